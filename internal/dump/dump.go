// Package dump renders the pipeline's required side output: a
// human-readable annotated listing of every function showing, per
// instruction, whether it rode into a slice (*), into structural
// support (~), or was omitted (space), plus the table mapping each
// original function ID to the probe names synthesized from it.
package dump

import (
	"fmt"
	"strings"

	"github.com/mattn/go-isatty"

	"fuelprobe/internal/costmodel"
	"fuelprobe/internal/pipeline"
	"fuelprobe/internal/slicer"
	"fuelprobe/internal/synth"
	"fuelprobe/internal/wasm"
)

const (
	colorReset  = "\x1b[0m"
	colorIn     = "\x1b[32m" // slice member: green
	colorSup    = "\x1b[33m" // structural support: yellow
)

// Dumper accumulates the annotated text for one run. Color is decided
// once at construction from whether fd is a terminal, matching the
// teacher idiom of gating ANSI on isatty rather than a flag the caller
// must remember to set.
type Dumper struct {
	color  bool
	output strings.Builder
}

// NewDumper returns a Dumper whose color output is enabled only when fd
// refers to an interactive terminal.
func NewDumper(fd uintptr) *Dumper {
	return &Dumper{color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (d *Dumper) paint(code, s string) string {
	if !d.color {
		return s
	}
	return code + s + colorReset
}

// Slice annotates fn's body against sl: one line per instruction, marked
// '*' for a max-slice/min-slice member, '~' for structural support, or a
// blank for an instruction the slice never touches, plus an inline
// "fuel+N" marker immediately before each point where the probe kind
// would build would flush its running per-block cost (mirroring
// synth.Synthesize's own flush points exactly, via synth.IsFuelFlushPoint
// and synth.InSlice, so the dump never drifts from what synthesis
// actually emits). kind selects which slice kind (Max or Min) the
// membership and flush markers reflect.
func (d *Dumper) Slice(fn *wasm.FuncDef, sl *slicer.Slice, kind synth.SliceKind, cost costmodel.Func) {
	fmt.Fprintf(&d.output, "function %s%s [%d, %d) (%s)\n", fn.Name, sl.SpecName, sl.Start, sl.End, kind)

	var running int64
	for i := sl.Start; i < sl.End; i++ {
		instr := fn.Body[i]
		inSlice := synth.InSlice(sl, kind, i)
		atEnd := i == sl.End-1

		running += cost(instr)
		if (inSlice && synth.IsFuelFlushPoint(instr)) || atEnd {
			if running != 0 {
				fmt.Fprintf(&d.output, "       %s\n", d.paint(colorSup, fmt.Sprintf("fuel+%d", running)))
			}
			running = 0
		}

		marker := " "
		switch {
		case membership(sl, kind)[i]:
			marker = d.paint(colorIn, "*")
		case sl.InstrsSupport[i]:
			marker = d.paint(colorSup, "~")
		}
		fmt.Fprintf(&d.output, "  %4d %s %s\n", i, marker, instr.Op)
	}
}

func membership(sl *slicer.Slice, kind synth.SliceKind) map[int]bool {
	if kind == synth.Min {
		return sl.MinSlice
	}
	return sl.MaxSlice
}

// AllSlices renders the annotated listing (both the max and min variant)
// for every (function, slice) pair the run produced, in FID then
// slice-start order. It is the dump subcommand's complete per-instruction
// side output, matching the listing FIDTable's table is a summary of.
func (d *Dumper) AllSlices(res *pipeline.Result, cost costmodel.Func) {
	for _, fr := range res.Funcs {
		if fr.Fn == nil {
			continue
		}
		for _, sl := range fr.Slices {
			d.Slice(fr.Fn, sl, synth.Max, cost)
			d.Slice(fr.Fn, sl, synth.Min, cost)
		}
	}
}

// FIDTable renders the mapping from original function ID to every probe
// name synthesized from it, each annotated with its parameter
// provenance (what external state each positional parameter reads),
// headed by the run's UUID so two runs of an unchanged (and therefore
// byte-identical) module can still be told apart in saved dumps.
func (d *Dumper) FIDTable(res *pipeline.Result) {
	fmt.Fprintf(&d.output, "\nrun %s\n", res.RunID)
	d.output.WriteString("orig_fid  name            probes\n")
	for _, fr := range res.Funcs {
		entries := make([]string, 0, len(fr.Probes))
		for i, sl := range fr.Slices {
			entries = append(entries,
				probeEntry(fr.Probes[2*i], sl, synth.Max),
				probeEntry(fr.Probes[2*i+1], sl, synth.Min),
			)
		}
		fmt.Fprintf(&d.output, "%8d  %-14s  %s\n", fr.FID, fr.Name, strings.Join(entries, ", "))
	}
}

// probeEntry renders one probe's name plus its parameter provenance,
// e.g. "exact_max_0[param(lid=0)@2]".
func probeEntry(probe *wasm.FuncDef, sl *slicer.Slice, kind synth.SliceKind) string {
	prov := synth.Provenance(sl, kind)
	if len(prov) == 0 {
		return probe.Name
	}
	return fmt.Sprintf("%s[%s]", probe.Name, strings.Join(prov, ", "))
}

// String returns everything accumulated so far.
func (d *Dumper) String() string {
	return d.output.String()
}
