// Package costmodel supplies the one external collaborator the spec
// leaves genuinely pluggable: a pure function from opcode to a
// non-negative 64-bit cost. Only the unit-cost table is known to be
// "real"; a load/store/call-overhead-aware table is future work (see
// the per-opcode cost table open question).
package costmodel

import "fuelprobe/internal/wasm"

// Func computes the fuel cost of executing instr once. Implementations
// must be pure and must never return a negative cost.
type Func func(instr wasm.Instruction) int64

// Unit charges exactly 1 for every opcode, matching the seed-test cost
// model ("cost model = 1 per opcode").
func Unit(wasm.Instruction) int64 {
	return 1
}
