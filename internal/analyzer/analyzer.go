// Package analyzer performs the first pipeline stage: a symbolic
// interpreter that walks each function's body tracking only the
// provenance of every operand-stack and local value, never the value
// itself. Its output, a FuncState, is the substrate every later stage
// (slicer, structuralizer, reducer, synthesizer) reads from.
package analyzer

import (
	pipelineerrors "fuelprobe/internal/errors"
	"fuelprobe/internal/wasm"
)

// OriginKind is the tag of a provenance marker. Origin is a plain
// comparable struct rather than an interface hierarchy specifically so
// it can be used directly as a map key (the slicer keys several maps on
// compound (kind, idx[, res]) tuples).
type OriginKind uint8

const (
	OriginUntracked OriginKind = iota
	OriginInstr
	OriginLoad
	OriginCall
	OriginCallIndirect
	OriginGlobal
	OriginParam
)

// Origin is a tagged provenance marker attached to a symbolic
// operand-stack value. Only the fields relevant to Kind are meaningful;
// the rest are zero. Two origins are equal iff every field matches,
// which is exactly Go's struct equality — no custom Equals needed.
type Origin struct {
	Kind OriginKind
	Idx  int // producing/reading instruction index
	Res  int // result index, for Call/CallIndirect
	GID  int // global id, for Global
	LID  int // local id, for Param
}

func Instr(idx int) Origin          { return Origin{Kind: OriginInstr, Idx: idx} }
func Load(idx int) Origin           { return Origin{Kind: OriginLoad, Idx: idx} }
func Call(idx, res int) Origin      { return Origin{Kind: OriginCall, Idx: idx, Res: res} }
func CallIndirect(idx, res int) Origin {
	return Origin{Kind: OriginCallIndirect, Idx: idx, Res: res}
}
func Global(idx, gid int) Origin { return Origin{Kind: OriginGlobal, Idx: idx, GID: gid} }
func Param(idx, lid int) Origin  { return Origin{Kind: OriginParam, Idx: idx, LID: lid} }

// InstrKind classifies an instruction for the slicer: Control opcodes
// are backward-slicing seeds, Other opcodes are only pulled in when
// something downstream depends on them.
type InstrKind uint8

const (
	Other InstrKind = iota
	Control
)

// InstrInfo is the per-instruction record the analyzer produces: what
// kind of instruction this is, and the origins it popped. Multi-value
// pops (Call/CallIndirect arguments, Return values, and every opcode
// handled through the stack-effect table) go through popN, which lists
// them in stack order, bottom first, i.e. argument order.
type InstrInfo struct {
	Kind   InstrKind
	Inputs []Origin
}

// FuncState is the complete analyzer output for one function.
type FuncState struct {
	FID        int
	ParamCount int
	Instrs     []InstrInfo
}

// frame is the analyzer's control-stack entry: the operand-stack height
// on entering the block, and the block's declared result arity, used to
// enforce stack discipline at End/Else.
type frame struct {
	entryHeight int
	resultArity int
}

// state is the per-function symbolic interpreter.
type state struct {
	mod     *wasm.Module
	fn      *wasm.FuncDef
	fid     int
	operand []Origin
	locals  []Origin
	control []frame
	infos   []InstrInfo
}

// Analyze runs the symbolic interpreter over fn's body and returns its
// FuncState, or a *errors.PipelineError if the body is malformed or
// uses an opcode this analyzer does not model.
func Analyze(mod *wasm.Module, fn *wasm.FuncDef, fid int) (*FuncState, error) {
	// Every later stage (slicer's loop-subregion bounds, synth's
	// nested-loop skip) walks fn.Body via FindSubsectionEnd, which
	// depends on Instruction.Match; populate it once here rather than
	// have each downstream stage remember to do it itself.
	wasm.MatchBrackets(fn.Body)

	s := &state{
		mod:    mod,
		fn:     fn,
		fid:    fid,
		locals: make([]Origin, fn.NumLocals()),
		infos:  make([]InstrInfo, len(fn.Body)),
	}
	paramCount := len(fn.Type.Params)

	for i, instr := range fn.Body {
		if err := s.step(i, instr, paramCount); err != nil {
			return nil, err
		}
	}

	return &FuncState{FID: fid, ParamCount: paramCount, Instrs: s.infos}, nil
}

func (s *state) fail(kind pipelineerrors.Kind, idx int, format string, args ...any) error {
	return pipelineerrors.Newf(kind, format, args...).At(s.fn.Name, idx)
}

func (s *state) push(o Origin) { s.operand = append(s.operand, o) }

func (s *state) pop(idx int) (Origin, error) {
	if len(s.operand) == 0 {
		return Origin{}, s.fail(pipelineerrors.MalformedModule, idx, "operand stack underflow")
	}
	top := s.operand[len(s.operand)-1]
	s.operand = s.operand[:len(s.operand)-1]
	return top, nil
}

func (s *state) popN(idx, n int) ([]Origin, error) {
	out := make([]Origin, n)
	for k := n - 1; k >= 0; k-- {
		o, err := s.pop(idx)
		if err != nil {
			return nil, err
		}
		out[k] = o
	}
	return out, nil
}

func (s *state) log(i int, kind InstrKind, inputs []Origin) {
	s.infos[i] = InstrInfo{Kind: kind, Inputs: inputs}
}

func (s *state) step(i int, instr wasm.Instruction, paramCount int) error {
	switch instr.Op {
	case wasm.OpLocalGet:
		lid := int(instr.Index)
		if lid >= len(s.locals) {
			return s.fail(pipelineerrors.MalformedModule, i, "local.get of out-of-range local %d", lid)
		}
		if lid < paramCount {
			s.push(Param(i, lid))
		} else {
			s.push(s.locals[lid])
		}
		s.log(i, Other, nil)

	case wasm.OpLocalSet:
		o, err := s.pop(i)
		if err != nil {
			return err
		}
		lid := int(instr.Index)
		if lid >= len(s.locals) {
			return s.fail(pipelineerrors.MalformedModule, i, "local.set of out-of-range local %d", lid)
		}
		s.locals[lid] = o
		s.log(i, Other, []Origin{o})

	case wasm.OpLocalTee:
		o, err := s.pop(i)
		if err != nil {
			return err
		}
		lid := int(instr.Index)
		if lid >= len(s.locals) {
			return s.fail(pipelineerrors.MalformedModule, i, "local.tee of out-of-range local %d", lid)
		}
		s.locals[lid] = o
		s.push(o)
		s.log(i, Other, []Origin{o})

	case wasm.OpGlobalGet:
		s.push(Global(i, int(instr.Index)))
		s.log(i, Other, nil)

	case wasm.OpGlobalSet:
		o, err := s.pop(i)
		if err != nil {
			return err
		}
		s.log(i, Other, []Origin{o})

	case wasm.OpLoad:
		addr, err := s.pop(i)
		if err != nil {
			return err
		}
		s.push(Load(i))
		s.log(i, Other, []Origin{addr})

	case wasm.OpBrIf, wasm.OpBrTable:
		cond, err := s.pop(i)
		if err != nil {
			return err
		}
		s.log(i, Control, []Origin{cond})

	case wasm.OpReturn:
		arity := len(s.fn.Type.Results)
		inputs, err := s.popN(i, arity)
		if err != nil {
			return err
		}
		s.log(i, Control, inputs)

	case wasm.OpIf:
		cond, err := s.pop(i)
		if err != nil {
			return err
		}
		s.log(i, Control, []Origin{cond})
		s.control = append(s.control, frame{
			entryHeight: len(s.operand),
			resultArity: arity(instr.Block),
		})

	case wasm.OpBlock, wasm.OpLoop:
		s.control = append(s.control, frame{
			entryHeight: len(s.operand),
			resultArity: arity(instr.Block),
		})
		s.log(i, Other, nil)

	case wasm.OpElse:
		if len(s.control) == 0 {
			return s.fail(pipelineerrors.MalformedModule, i, "else with no matching if")
		}
		top := s.control[len(s.control)-1]
		s.truncate(top)
		s.log(i, Other, nil)

	case wasm.OpEnd:
		if i == len(s.fn.Body)-1 {
			// Function-terminal End: leave the implicit function frame
			// alone, nothing to pop or truncate.
			s.log(i, Other, nil)
			return nil
		}
		if len(s.control) == 0 {
			return s.fail(pipelineerrors.MalformedModule, i, "unmatched end")
		}
		top := s.control[len(s.control)-1]
		s.control = s.control[:len(s.control)-1]
		if err := s.checkHeight(i, top); err != nil {
			return err
		}
		s.truncate(top)
		s.log(i, Other, nil)

	case wasm.OpCall:
		callee := s.mod.FuncByIndex(instr.FuncIndex)
		if callee == nil {
			return s.fail(pipelineerrors.MalformedModule, i, "call to undefined function %d", instr.FuncIndex)
		}
		inputs, err := s.popN(i, len(callee.Type.Params))
		if err != nil {
			return err
		}
		for r := range callee.Type.Results {
			s.push(Call(i, r))
		}
		s.log(i, Other, inputs)

	case wasm.OpCallIndirect:
		if _, err := s.pop(i); err != nil { // table index operand
			return err
		}
		if int(instr.TypeIndex) >= len(s.mod.Types) {
			return s.fail(pipelineerrors.MalformedModule, i, "call_indirect of undefined type %d", instr.TypeIndex)
		}
		sig := s.mod.Types[instr.TypeIndex]
		inputs, err := s.popN(i, len(sig.Params))
		if err != nil {
			return err
		}
		for r := range sig.Results {
			s.push(CallIndirect(i, r))
		}
		s.log(i, Other, inputs)

	default:
		pop, pushc, ok := wasm.StackEffects(instr)
		if !ok {
			return s.fail(pipelineerrors.UnsupportedOpcode, i,
				"opcode %s has no stack-effect rule (GC/SIMD/atomics/exceptions/stack-switching are not modeled)", instr.Op)
		}
		inputs, err := s.popN(i, pop)
		if err != nil {
			return err
		}
		for k := 0; k < pushc; k++ {
			s.push(Instr(i))
		}
		s.log(i, Other, inputs)
	}
	return nil
}

// truncate discards operand-stack entries above f's declared exit
// height, per the block-end stack discipline in the analyzer's rules.
func (s *state) truncate(f frame) {
	target := f.entryHeight + f.resultArity
	if target < len(s.operand) {
		s.operand = s.operand[:target]
	}
	for len(s.operand) < target {
		s.operand = append(s.operand, Origin{Kind: OriginUntracked})
	}
}

func (s *state) checkHeight(i int, f frame) error {
	want := f.entryHeight + f.resultArity
	if len(s.operand) < want {
		return s.fail(pipelineerrors.MalformedModule, i, "stack height mismatch at block end: have %d want >= %d", len(s.operand), want)
	}
	return nil
}

func arity(bt wasm.BlockType) int {
	if bt.HasResult {
		return 1
	}
	return 0
}
