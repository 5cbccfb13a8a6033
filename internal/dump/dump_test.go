package dump

import (
	"context"
	"strings"
	"testing"

	"fuelprobe/internal/pipeline"
	"fuelprobe/internal/synth"
	"fuelprobe/internal/wasm"
)

// returnsParamModule reads its only parameter and returns it directly:
// a single control sink (Return) whose traced input is the param read,
// so the max slice pulls in both instructions and the probe carries
// exactly one parameter, while the min slice needs none (Return never
// needs a taken token).
func returnsParamModule() *wasm.Module {
	fn := &wasm.FuncDef{
		Name: "identity",
		Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}, Results: []wasm.ValType{wasm.I32}},
		Body: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0}, // 0
			{Op: wasm.OpReturn},               // 1
			{Op: wasm.OpEnd},                   // 2 (terminal)
		},
	}
	return &wasm.Module{Funcs: []*wasm.FuncDef{fn}}
}

func runFixture(t *testing.T) *pipeline.Result {
	t.Helper()
	res, err := pipeline.Run(context.Background(), returnsParamModule(), pipeline.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestSliceRendersFuelMarkersAtFlushPoints(t *testing.T) {
	res := runFixture(t)
	fr := res.Funcs[0]
	if len(fr.Slices) != 1 {
		t.Fatalf("got %d slices, want 1 (no loops in this fixture)", len(fr.Slices))
	}

	d := &Dumper{}
	d.Slice(fr.Fn, fr.Slices[0], synth.Max, pipeline.DefaultConfig().Cost)
	out := d.String()

	// local.get(0) costs 1, then return's own cost of 1 flushes 2 total;
	// the function-terminal End (never itself in the max slice) still
	// forces a final flush of its own cost, 1.
	if !strings.Contains(out, "fuel+2") {
		t.Fatalf("expected a fuel+2 marker before the Return flush point, got:\n%s", out)
	}
	if !strings.Contains(out, "fuel+1") {
		t.Fatalf("expected a trailing fuel+1 marker for the terminal End, got:\n%s", out)
	}
	if !strings.Contains(out, "identity") {
		t.Fatalf("expected the function name in the listing header, got:\n%s", out)
	}
}

func TestAllSlicesCoversEveryFuncAndSlice(t *testing.T) {
	res := runFixture(t)

	d := &Dumper{}
	d.AllSlices(res, pipeline.DefaultConfig().Cost)
	out := d.String()

	if !strings.Contains(out, "(max)") || !strings.Contains(out, "(min)") {
		t.Fatalf("expected both max and min listings, got:\n%s", out)
	}
}

func TestFIDTableIncludesParameterProvenance(t *testing.T) {
	res := runFixture(t)

	d := &Dumper{}
	d.FIDTable(res)
	out := d.String()

	if !strings.Contains(out, res.RunID) {
		t.Fatalf("expected the run's UUID in the FID table header, got:\n%s", out)
	}
	if !strings.Contains(out, "exact_max_0[param(lid=0)@0]") {
		t.Fatalf("expected the max probe's parameter provenance, got:\n%s", out)
	}
	if !strings.Contains(out, "exact_min_0") {
		t.Fatalf("expected the min probe name, got:\n%s", out)
	}
}
