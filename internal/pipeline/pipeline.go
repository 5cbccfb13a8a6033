// Package pipeline wires the five analysis stages together: for every
// function of the input module, run Analyzer -> Slicer -> Structuralizer
// -> Reducer -> Synthesizer, independently and (optionally) concurrently,
// then merge the emitted probes into one output module in a
// deterministic order so two runs on the same input are byte-identical.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fuelprobe/internal/analyzer"
	"fuelprobe/internal/costmodel"
	"fuelprobe/internal/reducer"
	"fuelprobe/internal/slicer"
	"fuelprobe/internal/structuralizer"
	"fuelprobe/internal/synth"
	"fuelprobe/internal/wasm"
)

// Config holds the two tunables the spec calls out: the cost function
// and the fuel-computation variant, plus how much of the pipeline to
// parallelize across functions.
type Config struct {
	Cost        costmodel.Func
	FuelVariant synth.FuelVariant
	// Concurrency caps how many functions are analyzed at once; 0 or
	// negative means unbounded (errgroup.SetLimit is skipped).
	Concurrency int
}

// DefaultConfig returns the unit-cost, Exact-variant configuration the
// seed tests are defined against.
func DefaultConfig() Config {
	return Config{Cost: costmodel.Unit, FuelVariant: synth.Exact}
}

// Reporter receives progress notifications as the pipeline advances,
// one banner per stage per function, in the style of the original
// driver's writeln! progress banners. Implementations must be safe for
// concurrent use: both methods may be called from whichever goroutine
// is currently working on a given function. A nil Reporter is never
// invoked; Run accepts nil to mean "silent".
type Reporter interface {
	Stage(name string)
	Done(name string, elapsed time.Duration)
}

// reporterFuncs adapts two plain functions to the Reporter interface.
type reporterFuncs struct {
	stage func(string)
	done  func(string, time.Duration)
}

func (r reporterFuncs) Stage(name string)                       { r.stage(name) }
func (r reporterFuncs) Done(name string, elapsed time.Duration) { r.done(name, elapsed) }

// silentReporter is used when Run is called with a nil Reporter.
var silentReporter = reporterFuncs{stage: func(string) {}, done: func(string, time.Duration) {}}

// report wraps rep.Stage/rep.Done around running f, using name as both
// the stage label and (with fn/stage suffixed) the banner text.
func report(rep Reporter, fn *wasm.FuncDef, stage string, f func() error) error {
	name := fmt.Sprintf("%s: %s", fn.Name, stage)
	rep.Stage(name)
	start := time.Now()
	err := f()
	rep.Done(name, time.Since(start))
	return err
}

// FuncResult is everything the pipeline produced for one input function.
type FuncResult struct {
	FID    int
	Name   string
	Fn     *wasm.FuncDef   // the original function, retained for dump's annotated listing
	Slices []*slicer.Slice // one per (function-level + loop) region, same order as Probes pairs them
	Probes []*wasm.FuncDef // sorted by (slice start, kind) for determinism; [2*i]=max, [2*i+1]=min of Slices[i]
}

// Result is the pipeline's full output: per-function results in input
// order, ready to be assembled into an output module or dumped. RunID
// tags one invocation of Run so two runs over the same (and therefore
// byte-identical) output can still be told apart in logs and the
// annotated dump header. The build cache does not store it.
type Result struct {
	RunID string
	Funcs []FuncResult
}

// Run executes the pipeline over mod. With cfg.Concurrency != 1, each
// function is processed on its own goroutine via errgroup; because every
// FuncResult's probes are sorted before being written back, the merged
// Result is identical regardless of scheduling order.
func Run(ctx context.Context, mod *wasm.Module, cfg Config, rep Reporter) (*Result, error) {
	if rep == nil {
		rep = silentReporter
	}
	if cfg.Cost == nil {
		cfg.Cost = costmodel.Unit
	}

	results := make([]FuncResult, len(mod.Funcs))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}

	for fid, fn := range mod.Funcs {
		fid, fn := fid, fn
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			fr, err := runOne(mod, fn, fid, cfg, rep)
			if err != nil {
				return err
			}
			results[fid] = *fr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{RunID: uuid.New().String(), Funcs: results}, nil
}

func runOne(mod *wasm.Module, fn *wasm.FuncDef, fid int, cfg Config, rep Reporter) (*FuncResult, error) {
	var fs *analyzer.FuncState
	if err := report(rep, fn, "analyze", func() error {
		var err error
		fs, err = analyzer.Analyze(mod, fn, fid)
		return err
	}); err != nil {
		return nil, err
	}

	var sliceResult *slicer.SliceResult
	if err := report(rep, fn, "slice", func() error {
		var err error
		sliceResult, err = slicer.SliceProgram(mod, fs, fn)
		return err
	}); err != nil {
		return nil, err
	}

	starts := make([]int, 0, len(sliceResult.Slices))
	for start := range sliceResult.Slices {
		starts = append(starts, start)
	}
	sort.Ints(starts)

	var probes []*wasm.FuncDef
	var slices []*slicer.Slice
	for _, start := range starts {
		sl := sliceResult.Slices[start]
		slices = append(slices, sl)

		if err := report(rep, fn, fmt.Sprintf("structuralize+reduce %s", sl.SpecName), func() error {
			structuralizer.Structuralize(sl, fn)
			reducer.Reduce(sl, fn)
			return nil
		}); err != nil {
			return nil, err
		}

		var maxProbe, minProbe *wasm.FuncDef
		if err := report(rep, fn, fmt.Sprintf("synthesize %s", sl.SpecName), func() error {
			var err error
			maxProbe, err = synth.Synthesize(mod, fn, fid, sl, synth.Max, cfg.FuelVariant, cfg.Cost)
			if err != nil {
				return err
			}
			minProbe, err = synth.Synthesize(mod, fn, fid, sl, synth.Min, cfg.FuelVariant, cfg.Cost)
			return err
		}); err != nil {
			return nil, err
		}
		probes = append(probes, maxProbe, minProbe)
	}

	return &FuncResult{FID: fid, Name: fn.Name, Fn: fn, Slices: slices, Probes: probes}, nil
}

// AssembleModule flattens a Result into an output wasm.Module containing
// only the synthesized probes, in deterministic (FID, slice-start,
// kind) order.
func AssembleModule(res *Result) *wasm.Module {
	out := &wasm.Module{}
	for _, fr := range res.Funcs {
		out.Funcs = append(out.Funcs, fr.Probes...)
	}
	return out
}
