package analyzer

import (
	"testing"

	pipelineerrors "fuelprobe/internal/errors"
	"fuelprobe/internal/wasm"
)

func TestAnalyzeTracksParamOrigin(t *testing.T) {
	fn := &wasm.FuncDef{
		Name: "f",
		Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}},
		Body: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0}, // 0
			{Op: wasm.OpDrop},                // 1
			{Op: wasm.OpEnd},                  // 2 (terminal)
		},
	}
	mod := &wasm.Module{Funcs: []*wasm.FuncDef{fn}}

	fs, err := Analyze(mod, fn, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if fs.Instrs[1].Kind != Other {
		t.Fatalf("Drop should be classified Other, got %v", fs.Instrs[1].Kind)
	}
	inputs := fs.Instrs[1].Inputs
	if len(inputs) != 1 || inputs[0] != Param(0, 0) {
		t.Fatalf("Drop should consume the Param(lid=0) origin produced by local.get 0, got %+v", inputs)
	}
}

func TestAnalyzeReturnIsControlSink(t *testing.T) {
	fn := &wasm.FuncDef{
		Name: "g",
		Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}, Results: []wasm.ValType{wasm.I32}},
		Body: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0}, // 0
			{Op: wasm.OpReturn},               // 1
			{Op: wasm.OpEnd},                   // 2 (terminal)
		},
	}
	mod := &wasm.Module{Funcs: []*wasm.FuncDef{fn}}

	fs, err := Analyze(mod, fn, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if fs.Instrs[1].Kind != Control {
		t.Fatalf("Return must be a Control sink, got %v", fs.Instrs[1].Kind)
	}
	if len(fs.Instrs[1].Inputs) != 1 || fs.Instrs[1].Inputs[0] != Param(0, 0) {
		t.Fatalf("Return should trace back to the param read, got %+v", fs.Instrs[1].Inputs)
	}
}

func TestAnalyzeRejectsStackUnderflow(t *testing.T) {
	fn := &wasm.FuncDef{
		Name: "bad",
		Body: []wasm.Instruction{
			{Op: wasm.OpDrop}, // pops from an empty stack
			{Op: wasm.OpEnd},
		},
	}
	mod := &wasm.Module{Funcs: []*wasm.FuncDef{fn}}

	if _, err := Analyze(mod, fn, 0); err == nil {
		t.Fatal("expected a MalformedModule error for popping an empty operand stack")
	}
}

func TestAnalyzeRejectsUnsupportedOpcode(t *testing.T) {
	fn := &wasm.FuncDef{
		Name: "unsupported",
		Body: []wasm.Instruction{
			{Op: wasm.OpUnsupported}, // stands in for GC/SIMD/atomics/exceptions/stack-switching
			{Op: wasm.OpEnd},
		},
	}
	mod := &wasm.Module{Funcs: []*wasm.FuncDef{fn}}

	_, err := Analyze(mod, fn, 0)
	if err == nil {
		t.Fatal("expected an UnsupportedOpcode error, got nil")
	}
	perr, ok := err.(*pipelineerrors.PipelineError)
	if !ok {
		t.Fatalf("expected a *errors.PipelineError, got %T: %v", err, err)
	}
	if perr.Kind != pipelineerrors.UnsupportedOpcode {
		t.Fatalf("got error kind %v, want %v", perr.Kind, pipelineerrors.UnsupportedOpcode)
	}
	if perr.Loc.Func != "unsupported" || perr.Loc.Instr != 0 {
		t.Fatalf("error should pin function/instruction, got loc=%+v", perr.Loc)
	}
}
