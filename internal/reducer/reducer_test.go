package reducer

import (
	"testing"

	"fuelprobe/internal/analyzer"
	"fuelprobe/internal/slicer"
	"fuelprobe/internal/structuralizer"
	"fuelprobe/internal/wasm"
)

// branchyFixture mirrors the structuralizer's if/else/return fixture: the
// If's condition is a real sink (kept in MaxSlice), its Else and End need
// only structural support, and a trailing Return is a second, independent
// sink that structuralizing never touches.
func branchyFixture() (*wasm.Module, *wasm.FuncDef) {
	fn := &wasm.FuncDef{
		Name: "branchy",
		Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}},
		Body: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0},
			{Op: wasm.OpIf, Block: wasm.BlockType{}},
			{Op: wasm.OpConst, ConstType: wasm.I32, I32Val: 1},
			{Op: wasm.OpDrop},
			{Op: wasm.OpElse},
			{Op: wasm.OpConst, ConstType: wasm.I32, I32Val: 2},
			{Op: wasm.OpDrop},
			{Op: wasm.OpEnd},
			{Op: wasm.OpReturn},
			{Op: wasm.OpEnd},
		},
	}
	mod := &wasm.Module{Funcs: []*wasm.FuncDef{fn}}
	return mod, fn
}

func TestReducePopulatesMinSliceAndTaken(t *testing.T) {
	mod, fn := branchyFixture()
	wasm.MatchBrackets(fn.Body)

	fs, err := analyzer.Analyze(mod, fn, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	result, err := slicer.SliceProgram(mod, fs, fn)
	if err != nil {
		t.Fatalf("SliceProgram: %v", err)
	}
	sl := result.Slices[0]

	structuralizer.Structuralize(sl, fn)
	Reduce(sl, fn)

	// The If at 1 is already carried by InstrsSupport, so it must not
	// be duplicated into MinSlice...
	if sl.MinSlice[1] {
		t.Fatalf("If at 1 is already structurally required, should not also be in MinSlice: %v", sl.MinSlice)
	}
	// ...but it still needs a taken token, since its outcome can't be
	// recomputed without the original condition value.
	if typ, ok := sl.Taken[1]; !ok || typ != wasm.I32 {
		t.Fatalf("If at 1 must record an i32 taken token, got %v ok=%v", typ, ok)
	}

	// Return at 8 has no structural support of its own and is a
	// genuine second sink: it belongs in MinSlice, but needs no token
	// since there's only one way to take a return.
	if !sl.MinSlice[8] {
		t.Fatalf("Return at 8 must be in MinSlice: %v", sl.MinSlice)
	}
	if _, ok := sl.Taken[8]; ok {
		t.Fatalf("Return never needs a taken token, got one: %v", sl.Taken)
	}

	for _, i := range []int{0, 2, 3, 4, 5, 6, 7, 9} {
		if sl.MinSlice[i] {
			t.Errorf("index %d should not be in MinSlice: %v", i, sl.MinSlice)
		}
	}
}
