// Package reducer runs the pipeline's fourth stage: deriving, from each
// maximal Slice, the minimal "branch decider" projection that only
// replays the act of choosing a branch, parametrized by externally
// supplied outcome tokens rather than by recomputing the condition.
package reducer

import (
	"fuelprobe/internal/slicer"
	"fuelprobe/internal/wasm"
)

// Reduce populates sl.MinSlice and sl.Taken from sl's own instruction
// range. Every branching opcode (conditional or not), every If, and
// every Return belongs in MinSlice unless it's already carried by
// InstrsSupport. Taken records, for opcodes whose outcome can't be
// known without a runtime test (every conditional branch form and If;
// unconditional Br needs no token), the I32 token type a probe caller
// must supply.
func Reduce(sl *slicer.Slice, fn *wasm.FuncDef) {
	for i := sl.Start; i < sl.End; i++ {
		instr := fn.Body[i]
		inMinSlice, needTaken := visitOp(instr)

		if inMinSlice && !sl.InstrsSupport[i] {
			sl.MinSlice[i] = true
		}
		if needTaken {
			sl.Taken[i] = wasm.I32
		}
	}
}

// visitOp classifies one opcode for the minimal slice: whether it
// belongs in min_slice at all, and whether reproducing it needs a
// caller-supplied "taken" token.
func visitOp(instr wasm.Instruction) (inMinSlice, needTaken bool) {
	isBranch := isBranchingOp(instr)
	inMinSlice = isBranch || instr.Op == wasm.OpIf || instr.Op == wasm.OpReturn
	needTaken = (isBranch && instr.Op != wasm.OpBr) || instr.Op == wasm.OpIf
	return inMinSlice, needTaken
}

// isBranchingOp reports whether instr is any branch form: unconditional
// Br, or one of the conditional/tabled forms. Unlike wasm.IsBranchingOp
// it does not count Return, Call, CallIndirect or Unreachable.
func isBranchingOp(instr wasm.Instruction) bool {
	switch instr.Op {
	case wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable:
		return true
	default:
		return false
	}
}
