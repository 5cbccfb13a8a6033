// Package structuralizer runs the pipeline's third stage: inflating a
// slicer-produced Slice with the minimum set of structural opcodes
// (block/if/else/end, unconditional branches, returns) so the projected
// instruction sequence remains a well-bracketed stack program.
package structuralizer

import (
	"fuelprobe/internal/slicer"
	"fuelprobe/internal/wasm"
)

type openFrame struct {
	opener   int
	mustSave bool
}

// Structuralize mutates sl.InstrsSupport in place, adding every
// structural opcode needed to keep sl.MaxSlice well-bracketed within
// fn's body.
//
// hasInstrs and support are deliberately single shared accumulators, not
// one per nested frame: they track "has anything worth saving appeared
// since the last commit", and only flush (into instrs_support) when a
// frame's End actually commits. A frame that closes without committing
// leaves both untouched, so whatever it saw keeps counting toward its
// still-open parent — exactly the carry-over behavior needed to decide
// whether an enclosing block needs saving too. Re-running this function
// on an already-structuralized slice is idempotent: every index it would
// add is already present in InstrsSupport, a set, so nothing grows.
func Structuralize(sl *slicer.Slice, fn *wasm.FuncDef) {
	var stack []openFrame
	var support []int
	hasInstrs := false

	for i := sl.Start; i < sl.End; i++ {
		instr := fn.Body[i]

		switch {
		case instr.Op.IsBlockHead():
			stack = append(stack, openFrame{opener: i, mustSave: sl.MaxSlice[i]})

		case instr.Op == wasm.OpElse:
			support = append(support, i)

		case instr.Op == wasm.OpEnd:
			if i == sl.End-1 {
				// function- (or region-) terminal End: never popped.
				continue
			}
			if len(stack) == 0 {
				continue
			}
			support = append(support, i)
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if hasInstrs || top.mustSave {
				sl.InstrsSupport[top.opener] = true
				for _, idx := range support {
					sl.InstrsSupport[idx] = true
				}
				support = support[:0]
				hasInstrs = false
			}

		default:
			if sl.MaxSlice[i] && len(stack) > 0 {
				hasInstrs = true
			}
			if isUnconditionalExit(instr) && len(stack) > 0 {
				support = append(support, i)
			}
		}
	}
}

// isUnconditionalExit reports whether instr is an opcode the
// structuralizer must keep "riding along" with its enclosing block even
// though it isn't itself a branch decider: an unconditional Br or Return.
func isUnconditionalExit(instr wasm.Instruction) bool {
	return instr.Op == wasm.OpBr || instr.Op == wasm.OpReturn
}
