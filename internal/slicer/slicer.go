// Package slicer computes, for every function and every loop sub-region
// within it, the maximal backward slice from that region's control-flow
// sinks: the instructions, parameters, globals, loads and call results
// that a cost probe must reproduce to recompute the path's fuel total.
package slicer

import (
	"sort"
	"strconv"

	"fuelprobe/internal/analyzer"
	"fuelprobe/internal/wasm"
)

// ParamKey identifies a local.get of a function parameter that
// influences control: which parameter, and at which instruction the
// read happened.
type ParamKey struct {
	LID int
	Idx int
}

func (k ParamKey) less(o ParamKey) bool {
	if k.LID != o.LID {
		return k.LID < o.LID
	}
	return k.Idx < o.Idx
}

// GlobalKey identifies a global.get that influences control.
type GlobalKey struct {
	GID int
	Idx int
}

func (k GlobalKey) less(o GlobalKey) bool {
	if k.GID != o.GID {
		return k.GID < o.GID
	}
	return k.Idx < o.Idx
}

// CallKey identifies one result of one call (direct or indirect) that
// influences control.
type CallKey struct {
	Idx int
	Res int
}

func (k CallKey) less(o CallKey) bool {
	if k.Idx != o.Idx {
		return k.Idx < o.Idx
	}
	return k.Res < o.Res
}

// Slice is a contiguous instruction range plus everything the maximal
// backward trace pulled into it.
type Slice struct {
	Start, End int
	SpecName   string

	MaxSlice      map[int]bool
	MinSlice      map[int]bool
	InstrsSupport map[int]bool

	Params        map[ParamKey]wasm.ValType
	Globals       map[GlobalKey]wasm.ValType
	Loads         map[int]wasm.ValType
	Calls         map[CallKey]wasm.ValType
	CallIndirects map[CallKey]wasm.ValType

	// Taken holds, for the minimal variant only, the value type used to
	// encode "branch taken" at each recorded branching instruction.
	Taken map[int]wasm.ValType
}

func newSlice(start, end int, specName string) *Slice {
	return &Slice{
		Start: start, End: end, SpecName: specName,
		MaxSlice:      make(map[int]bool),
		MinSlice:      make(map[int]bool),
		InstrsSupport: make(map[int]bool),
		Params:        make(map[ParamKey]wasm.ValType),
		Globals:       make(map[GlobalKey]wasm.ValType),
		Loads:         make(map[int]wasm.ValType),
		Calls:         make(map[CallKey]wasm.ValType),
		CallIndirects: make(map[CallKey]wasm.ValType),
		Taken:         make(map[int]wasm.ValType),
	}
}

// SortedParamKeys returns s.Params' keys sorted by (lid, idx), the order
// the synthesizer assigns parameter positions in.
func (s *Slice) SortedParamKeys() []ParamKey {
	keys := make([]ParamKey, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// SortedGlobalKeys returns s.Globals' keys sorted by (gid, idx).
func (s *Slice) SortedGlobalKeys() []GlobalKey {
	keys := make([]GlobalKey, 0, len(s.Globals))
	for k := range s.Globals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// SortedLoadKeys returns s.Loads' instruction indices in ascending order.
func (s *Slice) SortedLoadKeys() []int {
	keys := make([]int, 0, len(s.Loads))
	for k := range s.Loads {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// SortedCallKeys returns s.Calls' keys sorted by (instr_idx, result_idx).
func (s *Slice) SortedCallKeys() []CallKey {
	return sortCallKeys(s.Calls)
}

// SortedCallIndirectKeys returns s.CallIndirects' keys, same ordering.
func (s *Slice) SortedCallIndirectKeys() []CallKey {
	return sortCallKeys(s.CallIndirects)
}

func sortCallKeys(m map[CallKey]wasm.ValType) []CallKey {
	keys := make([]CallKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// SortedTakenKeys returns s.Taken's instruction indices in ascending order.
func (s *Slice) SortedTakenKeys() []int {
	keys := make([]int, 0, len(s.Taken))
	for k := range s.Taken {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// SliceResult is the full slicer output for one function: its own
// function-level slice plus one nested slice per loop, keyed by the
// start instruction index the recursive walk assigned it.
type SliceResult struct {
	FID        int
	ParamCount int
	Slices     map[int]*Slice
}

// funcParamType resolves the declared type of parameter lid, used to
// annotate a traced Param origin.
func funcParamType(fn *wasm.FuncDef, lid int) wasm.ValType {
	return fn.Type.Params[lid]
}

// SliceProgram runs the slicer over one function's analyzer output and
// the module it belongs to (needed to resolve call and global types).
func SliceProgram(mod *wasm.Module, fs *analyzer.FuncState, fn *wasm.FuncDef) (*SliceResult, error) {
	result := &SliceResult{FID: fs.FID, ParamCount: fs.ParamCount, Slices: make(map[int]*Slice)}
	s := &slicer{mod: mod, fs: fs, fn: fn, result: result}
	s.slice(0, len(fn.Body), "")
	return result, nil
}

type slicer struct {
	mod    *wasm.Module
	fs     *analyzer.FuncState
	fn     *wasm.FuncDef
	result *SliceResult
}

// slice computes the Slice for the region [start, end) and records it
// under key start, recursing first into every Loop discovered by a
// single linear walk of that region.
func (s *slicer) slice(start, end int, specName string) {
	sl := newSlice(start, end, specName)
	var worklist []analyzer.Origin

	i := start
	for i < end {
		instr := s.fn.Body[i]
		if wasm.IsLoop(instr) {
			bodyEnd := wasm.FindSubsectionEnd(s.fn.Body, i)
			s.slice(i+1, bodyEnd-1, loopSpecName(i))
			i = bodyEnd
			continue
		}
		if s.fs.Instrs[i].Kind == analyzer.Control {
			worklist = append(worklist, s.fs.Instrs[i].Inputs...)
			sl.MaxSlice[i] = true
		}
		i++
	}

	for len(worklist) > 0 {
		origin := worklist[0]
		worklist = worklist[1:]
		s.dispatch(sl, origin, &worklist)
	}

	s.result.Slices[start] = sl
}

// dispatch traces one popped origin, adding whatever it resolves to into
// sl and, for an Instr origin still inside [sl.Start, sl.End), enqueueing
// that instruction's own inputs. An Instr origin pointing outside the
// region is dropped without following it further: a loop sub-slice must
// stay self-contained, and any value flowing in from before the loop
// surfaces as a Param/Global/Load/Call origin instead (those are always
// recorded at their own read site, which is necessarily in-region).
func (s *slicer) dispatch(sl *Slice, origin analyzer.Origin, worklist *[]analyzer.Origin) {
	switch origin.Kind {
	case analyzer.OriginInstr:
		j := origin.Idx
		if j < sl.Start || j >= sl.End {
			return
		}
		if sl.MaxSlice[j] {
			return
		}
		sl.MaxSlice[j] = true
		*worklist = append(*worklist, s.fs.Instrs[j].Inputs...)

	case analyzer.OriginLoad:
		j := origin.Idx
		if _, seen := sl.Loads[j]; seen {
			return
		}
		sl.Loads[j] = loadType(s.fn.Body[j])
		sl.MaxSlice[j] = true

	case analyzer.OriginCall:
		key := CallKey{Idx: origin.Idx, Res: origin.Res}
		if _, seen := sl.Calls[key]; seen {
			return
		}
		callee := s.mod.FuncByIndex(s.fn.Body[origin.Idx].FuncIndex)
		sl.Calls[key] = callee.Type.Results[origin.Res]
		sl.MaxSlice[origin.Idx] = true

	case analyzer.OriginCallIndirect:
		key := CallKey{Idx: origin.Idx, Res: origin.Res}
		if _, seen := sl.CallIndirects[key]; seen {
			return
		}
		sig := s.mod.Types[s.fn.Body[origin.Idx].TypeIndex]
		sl.CallIndirects[key] = sig.Results[origin.Res]
		sl.MaxSlice[origin.Idx] = true

	case analyzer.OriginGlobal:
		key := GlobalKey{GID: origin.GID, Idx: origin.Idx}
		sl.Globals[key] = s.mod.Globals[origin.GID].Type
		sl.MaxSlice[origin.Idx] = true

	case analyzer.OriginParam:
		key := ParamKey{LID: origin.LID, Idx: origin.Idx}
		sl.Params[key] = funcParamType(s.fn, origin.LID)
		sl.MaxSlice[origin.Idx] = true

	case analyzer.OriginUntracked:
		// nothing to record
	}
}

func loadType(instr wasm.Instruction) wasm.ValType { return instr.MemType }

func loopSpecName(idx int) string {
	return "_loop_at_" + strconv.Itoa(idx)
}
