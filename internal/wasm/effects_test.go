package wasm

import "testing"

func TestStackEffectsBinop(t *testing.T) {
	pop, push, ok := StackEffects(Instruction{Op: OpBinop, NumType: I64})
	if !ok || pop != 2 || push != 1 {
		t.Fatalf("binop: got pop=%d push=%d ok=%v, want pop=2 push=1 ok=true", pop, push, ok)
	}
}

func TestStackEffectsConst(t *testing.T) {
	pop, push, ok := StackEffects(Instruction{Op: OpConst, ConstType: I32})
	if !ok || pop != 0 || push != 1 {
		t.Fatalf("const: got pop=%d push=%d ok=%v, want pop=0 push=1 ok=true", pop, push, ok)
	}
}

func TestStackEffectsRejectsUnsupportedOpcode(t *testing.T) {
	if _, _, ok := StackEffects(Instruction{Op: OpUnsupported}); ok {
		t.Fatal("OpUnsupported must report ok=false, not a guessed arity")
	}
}

func TestIsBranchingOp(t *testing.T) {
	cases := []struct {
		op   Op
		want bool
	}{
		{OpBrIf, true},
		{OpBrTable, true},
		{OpBr, true},
		{OpReturn, true},
		{OpCall, true},
		{OpCallIndirect, true},
		{OpIf, false},
		{OpConst, false},
	}
	for _, c := range cases {
		if got := IsBranchingOp(Instruction{Op: c.op}); got != c.want {
			t.Errorf("IsBranchingOp(%s) = %v, want %v", c.op, got, c.want)
		}
	}
}

func TestMatchBracketsIfElseEnd(t *testing.T) {
	body := []Instruction{
		{Op: OpConst, ConstType: I32, I32Val: 1}, // 0
		{Op: OpIf, Block: BlockType{}},           // 1
		{Op: OpConst, ConstType: I32, I32Val: 2},  // 2
		{Op: OpElse},                              // 3
		{Op: OpConst, ConstType: I32, I32Val: 3},  // 4
		{Op: OpEnd},                                // 5
		{Op: OpEnd},                                 // 6 (function terminal)
	}
	MatchBrackets(body)

	if body[1].Match != 3 {
		t.Fatalf("If.Match = %d, want 3 (the Else)", body[1].Match)
	}
	if body[3].Match != 5 {
		t.Fatalf("Else.Match = %d, want 5 (its own End)", body[3].Match)
	}
	if got := FindSubsectionEnd(body, 1); got != 6 {
		t.Fatalf("FindSubsectionEnd(if) = %d, want 6 (one past the Else's End)", got)
	}
}

func TestMatchBracketsLoop(t *testing.T) {
	body := []Instruction{
		{Op: OpLoop, Block: BlockType{}}, // 0
		{Op: OpConst, ConstType: I32},     // 1
		{Op: OpBrIf, BrDepth: 0},          // 2
		{Op: OpEnd},                        // 3
		{Op: OpEnd},                         // 4
	}
	MatchBrackets(body)

	if body[0].Match != 3 {
		t.Fatalf("Loop.Match = %d, want 3", body[0].Match)
	}
	if got := FindSubsectionEnd(body, 0); got != 4 {
		t.Fatalf("FindSubsectionEnd(loop) = %d, want 4 (one past its End)", got)
	}
}

func TestIsLoop(t *testing.T) {
	if !IsLoop(Instruction{Op: OpLoop}) {
		t.Fatal("OpLoop should be a loop")
	}
	if IsLoop(Instruction{Op: OpBlock}) {
		t.Fatal("OpBlock should not be a loop")
	}
}
