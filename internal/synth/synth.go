// Package synth is the pipeline's final stage: given a Slice (after
// structuralization and reduction), it emits one exported probe function
// whose execution returns the 64-bit fuel the original function would
// have consumed along the represented path.
package synth

import (
	"fmt"

	"fuelprobe/internal/costmodel"
	pipelineerrors "fuelprobe/internal/errors"
	"fuelprobe/internal/slicer"
	"fuelprobe/internal/wasm"
)

// SliceKind selects which of the two slice-derived probes to emit: the
// maximal variant replays every traced dependency; the minimal variant
// only replays branch deciders, parametrized by caller-supplied "taken"
// tokens.
type SliceKind uint8

const (
	Max SliceKind = iota
	Min
)

func (k SliceKind) String() string {
	if k == Min {
		return "min"
	}
	return "max"
}

// FuelVariant selects the fuel-accumulation policy. Approx's exact
// policy is an explicit open question in the source spec; rather than
// guess at a coarsening scheme, Synthesize reports it as unimplemented
// (see DESIGN.md) instead of silently behaving like Exact.
type FuelVariant uint8

const (
	Exact FuelVariant = iota
	Approx
)

func (v FuelVariant) String() string {
	if v == Approx {
		return "approx"
	}
	return "exact"
}

// Synthesize builds the probe function for sl, keyed by kind and
// fuelVariant. origFID and specName feed the export name
// "<fuelVariant>_<kind>_<origFID><specName>".
func Synthesize(mod *wasm.Module, fn *wasm.FuncDef, origFID int, sl *slicer.Slice, kind SliceKind, fuelVariant FuelVariant, cost costmodel.Func) (*wasm.FuncDef, error) {
	if fuelVariant == Approx {
		return nil, pipelineerrors.New(pipelineerrors.InvariantViolation,
			"approx fuel variant is not implemented; pass Exact").At(fn.Name, sl.Start)
	}

	b := newBuilder(mod, fn, sl, kind, cost)
	if err := b.build(); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s_%s_%d%s", fuelVariant, kind, origFID, sl.SpecName)
	return &wasm.FuncDef{
		Name:   name,
		Type:   wasm.FuncType{Params: b.paramTypes, Results: []wasm.ValType{wasm.I64}},
		Locals: []wasm.ValType{wasm.I64}, // the running fuel accumulator
		Body:   b.out,
	}, nil
}

// fuelLocal is always the first local declared after the probe's own
// parameters, i.e. local index len(paramTypes).
func fuelLocalIndex(paramCount int) uint32 { return uint32(paramCount) }

type builder struct {
	mod  *wasm.Module
	fn   *wasm.FuncDef
	sl   *slicer.Slice
	kind SliceKind
	cost costmodel.Func

	paramTypes []wasm.ValType
	fuelLocal  uint32

	// rewrite tables, populated only for the max-slice kind
	forParam map[int]uint32
	forGlobal map[int]uint32
	forLoad   map[int]uint32
	forCall   map[slicer.CallKey]uint32
	forCallIndirect map[slicer.CallKey]uint32

	// rewrite table for the min-slice kind
	forTaken map[int]uint32

	out        []wasm.Instruction
	runningCost int64
}

func newBuilder(mod *wasm.Module, fn *wasm.FuncDef, sl *slicer.Slice, kind SliceKind, cost costmodel.Func) *builder {
	return &builder{
		mod: mod, fn: fn, sl: sl, kind: kind, cost: cost,
		forParam:        make(map[int]uint32),
		forGlobal:       make(map[int]uint32),
		forLoad:         make(map[int]uint32),
		forCall:         make(map[slicer.CallKey]uint32),
		forCallIndirect: make(map[slicer.CallKey]uint32),
		forTaken:        make(map[int]uint32),
	}
}

// build assigns the parameter list and rewrite tables, then constructs
// the probe body.
func (b *builder) build() error {
	b.assignParams()
	b.fuelLocal = fuelLocalIndex(len(b.paramTypes))

	b.out = append(b.out, wasm.Instruction{Op: wasm.OpBlock, Block: wasm.BlockType{HasResult: false}})

	i := b.sl.Start
	for i < b.sl.End {
		instr := b.fn.Body[i]

		if wasm.IsLoop(instr) {
			// A nested loop is always the responsibility of its own
			// dedicated probe; this ancestor probe skips the whole
			// region (opener through matching End) unconditionally.
			loopEnd := wasm.FindSubsectionEnd(b.fn.Body, i)
			if j, ok := b.dependsInsideLoop(i, loopEnd); ok {
				return pipelineerrors.Newf(pipelineerrors.InvariantViolation,
					"probe depends on instruction %d inside nested loop [%d, %d), which this probe cannot replay", j, i, loopEnd).At(b.fn.Name, j)
			}
			i = loopEnd
			continue
		}

		if err := b.emit(i, instr); err != nil {
			return err
		}
		i++
	}

	b.out = append(b.out, wasm.Instruction{Op: wasm.OpEnd})
	b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: b.fuelLocal})
	b.out = append(b.out, wasm.Instruction{Op: wasm.OpReturn})
	return nil
}

// assignParams concatenates the slice's external-input maps in the
// stable order the spec requires and records a rewrite-table entry for
// every reader site.
func (b *builder) assignParams() {
	next := func() uint32 {
		idx := uint32(len(b.paramTypes))
		return idx
	}

	if b.kind == Max {
		for _, k := range b.sl.SortedParamKeys() {
			b.forParam[k.Idx] = next()
			b.paramTypes = append(b.paramTypes, b.sl.Params[k])
		}
		for _, k := range b.sl.SortedGlobalKeys() {
			b.forGlobal[k.Idx] = next()
			b.paramTypes = append(b.paramTypes, b.sl.Globals[k])
		}
		for _, idx := range b.sl.SortedLoadKeys() {
			b.forLoad[idx] = next()
			b.paramTypes = append(b.paramTypes, b.sl.Loads[idx])
		}
		for _, k := range b.sl.SortedCallKeys() {
			b.forCall[k] = next()
			b.paramTypes = append(b.paramTypes, b.sl.Calls[k])
		}
		for _, k := range b.sl.SortedCallIndirectKeys() {
			b.forCallIndirect[k] = next()
			b.paramTypes = append(b.paramTypes, b.sl.CallIndirects[k])
		}
		return
	}

	for _, idx := range b.sl.SortedTakenKeys() {
		b.forTaken[idx] = next()
		b.paramTypes = append(b.paramTypes, b.sl.Taken[idx])
	}
}

// dependsInsideLoop reports whether this probe's own slice membership
// reaches into [start, end) — a nested loop this probe otherwise skips
// unconditionally. That would mean some ancestor branch decision was
// traced back to a value computed only inside the loop body, which no
// single replay of the loop's iteration count can reproduce faithfully.
func (b *builder) dependsInsideLoop(start, end int) (int, bool) {
	for j := start; j < end; j++ {
		if b.inSlice(j) {
			return j, true
		}
	}
	return 0, false
}

func (b *builder) inSlice(i int) bool {
	return InSlice(b.sl, b.kind, i)
}

// InSlice reports whether index i is part of the probe kind would
// build from sl: a direct slice member, or pulled in purely for
// structural bracketing. dump uses this so its per-instruction side
// output reflects exactly what a probe would replay, rather than
// re-deriving the rule.
func InSlice(sl *slicer.Slice, kind SliceKind, i int) bool {
	if kind == Max {
		return sl.MaxSlice[i] || sl.InstrsSupport[i]
	}
	return sl.MinSlice[i] || sl.InstrsSupport[i]
}

// Provenance describes, in the same order Synthesize assigns parameter
// slots, what each parameter of the kind-probe built from sl feeds from.
// It exists purely for the annotated dump's "parameter provenance"
// column; Synthesize itself never calls it.
func Provenance(sl *slicer.Slice, kind SliceKind) []string {
	var out []string
	if kind == Max {
		for _, k := range sl.SortedParamKeys() {
			out = append(out, fmt.Sprintf("param(lid=%d)@%d", k.LID, k.Idx))
		}
		for _, k := range sl.SortedGlobalKeys() {
			out = append(out, fmt.Sprintf("global(gid=%d)@%d", k.GID, k.Idx))
		}
		for _, idx := range sl.SortedLoadKeys() {
			out = append(out, fmt.Sprintf("load@%d", idx))
		}
		for _, k := range sl.SortedCallKeys() {
			out = append(out, fmt.Sprintf("call@%d#%d", k.Idx, k.Res))
		}
		for _, k := range sl.SortedCallIndirectKeys() {
			out = append(out, fmt.Sprintf("call_indirect@%d#%d", k.Idx, k.Res))
		}
		return out
	}
	for _, idx := range sl.SortedTakenKeys() {
		out = append(out, fmt.Sprintf("taken@%d", idx))
	}
	return out
}

// IsFuelFlushPoint reports whether instr is one of the control-flow
// opcodes the synthesizer must flush the running per-block cost before
// emitting, per the reducer's own branch-decider classification plus
// Else/End/Return.
func IsFuelFlushPoint(instr wasm.Instruction) bool {
	switch instr.Op {
	case wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable, wasm.OpIf, wasm.OpElse, wasm.OpEnd, wasm.OpReturn:
		return true
	default:
		return false
	}
}

func (b *builder) emit(i int, instr wasm.Instruction) error {
	inSlice := b.inSlice(i)
	atEnd := i == b.sl.End-1

	b.runningCost += b.cost(instr)

	if (inSlice && IsFuelFlushPoint(instr)) || atEnd {
		b.flushFuel()
	}

	if !inSlice {
		return nil
	}

	return b.emitRewritten(i, instr)
}

// flushFuel emits "fuel := fuel + runningCost" and resets the running
// total. Per the spec, a zero-cost block emits nothing at all.
func (b *builder) flushFuel() {
	if b.runningCost == 0 {
		return
	}
	b.out = append(b.out,
		wasm.Instruction{Op: wasm.OpLocalGet, Index: b.fuelLocal},
		wasm.Instruction{Op: wasm.OpConst, ConstType: wasm.I64, I64Val: b.runningCost},
		wasm.Instruction{Op: wasm.OpBinop, NumType: wasm.I64},
		wasm.Instruction{Op: wasm.OpLocalSet, Index: b.fuelLocal},
	)
	b.runningCost = 0
}

// emitRewritten appends instr to the probe body, substituting a
// parameter read wherever the slice recorded this site as a rewritten
// state-read, and handling Return's special "push fuel, then return".
func (b *builder) emitRewritten(i int, instr wasm.Instruction) error {
	if b.kind == Min && needsTakenToken(instr) {
		slot, ok := b.forTaken[i]
		if !ok {
			return pipelineerrors.Newf(pipelineerrors.InvariantViolation,
				"branching instruction missing taken-token parameter").At(b.fn.Name, i)
		}
		b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: slot})
		b.out = append(b.out, instr)
		return nil
	}

	if instr.Op == wasm.OpReturn {
		b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: b.fuelLocal})
		b.out = append(b.out, instr)
		return nil
	}

	if b.kind == Max {
		switch instr.Op {
		case wasm.OpLocalGet:
			if slot, ok := b.forParam[i]; ok {
				b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: slot})
				return nil
			}
		case wasm.OpGlobalGet:
			if slot, ok := b.forGlobal[i]; ok {
				b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: slot})
				return nil
			}
		case wasm.OpLoad:
			if slot, ok := b.forLoad[i]; ok {
				b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: slot})
				return nil
			}
		case wasm.OpCall:
			return b.emitCallResults(i, wasm.OpCall)
		case wasm.OpCallIndirect:
			return b.emitCallResults(i, wasm.OpCallIndirect)
		}
	}

	b.out = append(b.out, instr)
	return nil
}

// emitCallResults replaces a Call/CallIndirect with one local.get per
// recorded (instr, result) parameter, in ascending result order; results
// nothing downstream used are simply never pushed.
func (b *builder) emitCallResults(i int, op wasm.Op) error {
	table := b.forCall
	if op == wasm.OpCallIndirect {
		table = b.forCallIndirect
	}
	for res := 0; ; res++ {
		slot, ok := table[slicer.CallKey{Idx: i, Res: res}]
		if !ok {
			break
		}
		b.out = append(b.out, wasm.Instruction{Op: wasm.OpLocalGet, Index: slot})
	}
	return nil
}

func needsTakenToken(instr wasm.Instruction) bool {
	switch instr.Op {
	case wasm.OpBrIf, wasm.OpBrTable, wasm.OpIf:
		return true
	default:
		return false
	}
}
