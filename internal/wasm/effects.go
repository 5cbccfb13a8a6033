package wasm

// StackEffects returns (pop, push): how many values instr consumes from
// the top of the operand stack and how many it leaves behind. Structured
// control (Block/Loop/If/Else/End), Br and Return report 0/0 here — their
// effect on the *value* stack is governed by the block signature and
// handled by the analyzer's control-stack bookkeeping, not by a flat
// arity. BrIf and BrTable report the one condition/selector they pop. ok is false for any opcode this table doesn't model (currently
// only OpUnsupported, standing in for the GC/SIMD/atomics/exceptions/
// stack-switching families); the caller must treat that as fatal rather
// than guess at an arity.
func StackEffects(instr Instruction) (pop, push int, ok bool) {
	switch instr.Op {
	case OpUnreachable, OpNop, OpBlock, OpLoop, OpIf, OpElse, OpEnd,
		OpBr, OpReturn, OpMemorySize:
		return 0, 0, true
	case OpBrIf:
		return 1, 0, true
	case OpBrTable:
		return 1, 0, true
	case OpCall:
		return 0, 0, true // resolved per call site from the callee signature
	case OpCallIndirect:
		return 1, 0, true // +1 for the table index operand; rest from signature
	case OpDrop:
		return 1, 0, true
	case OpSelect:
		return 3, 1, true
	case OpLocalGet, OpGlobalGet:
		return 0, 1, true
	case OpLocalSet, OpGlobalSet:
		return 1, 0, true
	case OpLocalTee:
		return 1, 1, true
	case OpLoad:
		return 1, 1, true
	case OpStore:
		return 2, 0, true
	case OpConst:
		return 0, 1, true
	case OpMemoryGrow:
		return 1, 1, true
	case OpUnop, OpTestop, OpCvtop:
		return 1, 1, true
	case OpBinop, OpRelop:
		return 2, 1, true
	default:
		return 0, 0, false
	}
}

// IsBranchingOp reports whether instr can transfer control somewhere
// other than the next instruction: the branch family, call family
// (a trapping callee never returns, even though the common case falls
// through), Unreachable, and Return.
func IsBranchingOp(instr Instruction) bool {
	switch instr.Op {
	case OpBr, OpBrIf, OpBrTable, OpReturn, OpCall, OpCallIndirect, OpUnreachable:
		return true
	default:
		return false
	}
}

// IsLoop reports whether instr opens a loop region, i.e. a block whose
// branch-to-depth-0 target is its own start rather than its End.
func IsLoop(instr Instruction) bool {
	return instr.Op == OpLoop
}

// MatchBrackets walks a flat instruction stream once and fills in every
// Instruction.Match field: block-heads point at their closing End (or,
// for an If with an Else, at the Else), an Else points at its own End,
// and an End points back at the block-head it closes (or at the Else, for
// an If with an Else). This is a pure bracket-matching pass over the stream and
// is intentionally kept separate from control-flow interpretation so
// every later stage can call FindSubsectionEnd without re-deriving it.
func MatchBrackets(body []Instruction) {
	type frame struct{ head int }
	// Seed with a sentinel frame (head -1) for the function body itself:
	// its own terminal End closes this implicit frame, which was never
	// opened by an explicit Block/Loop/If, so there is no Instruction to
	// write a Match back into.
	stack := []frame{{head: -1}}
	for i := range body {
		switch body[i].Op {
		case OpBlock, OpLoop, OpIf:
			stack = append(stack, frame{head: i})
		case OpElse:
			top := stack[len(stack)-1]
			body[top.head].Match = i
			body[i].Match = top.head
			stack[len(stack)-1] = frame{head: i}
		case OpEnd:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.head >= 0 {
				body[top.head].Match = i
				body[i].Match = top.head
			}
		}
	}
}

// FindSubsectionEnd returns the index of the instruction one past the
// End that closes the block-head at body[start] (start must itself be a
// Block/Loop/If whose Match has already been populated by MatchBrackets).
func FindSubsectionEnd(body []Instruction, start int) int {
	i := body[start].Match
	// If start is an If whose Match points at an Else, walk to the Else's
	// own Match (the End) before stepping past it.
	if body[i].Op == OpElse {
		i = body[i].Match
	}
	return i + 1
}
