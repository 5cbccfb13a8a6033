package slicer

import (
	"testing"

	"fuelprobe/internal/analyzer"
	"fuelprobe/internal/wasm"
)

// loopFixture builds a function whose only control-flow sink lives
// inside a loop body, so the function-level slice should come back
// empty while the loop gets its own specialized sub-slice.
func loopFixture() (*wasm.Module, *wasm.FuncDef) {
	fn := &wasm.FuncDef{
		Name: "loopy",
		Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}},
		Body: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0},              // 0
			{Op: wasm.OpLoop, Block: wasm.BlockType{}},     // 1
			{Op: wasm.OpLocalGet, Index: 0},                 // 2
			{Op: wasm.OpBrIf, BrDepth: 0},                    // 3
			{Op: wasm.OpEnd},                                  // 4 (closes loop)
			{Op: wasm.OpDrop},                                  // 5
			{Op: wasm.OpEnd},                                    // 6 (function terminal)
		},
	}
	mod := &wasm.Module{Funcs: []*wasm.FuncDef{fn}}
	return mod, fn
}

func TestSliceProgramSpecializesLoopBody(t *testing.T) {
	mod, fn := loopFixture()
	wasm.MatchBrackets(fn.Body)

	fs, err := analyzer.Analyze(mod, fn, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	result, err := SliceProgram(mod, fs, fn)
	if err != nil {
		t.Fatalf("SliceProgram: %v", err)
	}

	if len(result.Slices) != 2 {
		t.Fatalf("got %d slices, want 2 (function-level + one loop body)", len(result.Slices))
	}

	top, ok := result.Slices[0]
	if !ok {
		t.Fatal("missing function-level slice at key 0")
	}
	if len(top.MaxSlice) != 0 {
		t.Fatalf("function-level slice should be empty (its only control sink is inside the loop), got %v", top.MaxSlice)
	}

	loop, ok := result.Slices[2]
	if !ok {
		t.Fatal("missing loop-body slice at key 2")
	}
	if loop.SpecName != "_loop_at_1" {
		t.Fatalf("got loop SpecName %q, want %q", loop.SpecName, "_loop_at_1")
	}
	if !loop.MaxSlice[3] {
		t.Fatalf("loop slice must include its br_if sink at index 3, got %v", loop.MaxSlice)
	}
	key := ParamKey{LID: 0, Idx: 2}
	if typ, ok := loop.Params[key]; !ok || typ != wasm.I32 {
		t.Fatalf("loop slice must record the param read at index 2 as i32, got %v ok=%v", typ, ok)
	}
}
