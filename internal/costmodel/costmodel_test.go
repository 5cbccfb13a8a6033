package costmodel

import (
	"testing"

	"fuelprobe/internal/wasm"
)

func TestUnitChargesOnePerOpcodeRegardlessOfKind(t *testing.T) {
	instrs := []wasm.Instruction{
		{Op: wasm.OpConst, ConstType: wasm.I32, I32Val: 1000},
		{Op: wasm.OpCall, FuncIndex: 3},
		{Op: wasm.OpLoop},
		{Op: wasm.OpEnd},
	}
	for _, instr := range instrs {
		if got := Unit(instr); got != 1 {
			t.Errorf("Unit(%v) = %d, want 1", instr.Op, got)
		}
	}
}
