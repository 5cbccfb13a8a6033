// cmd/fuelprobe is the pipeline driver: it reads an already-parsed
// input module, runs the five-stage pipeline over it, and writes the
// synthesized probe module (plus, on request, an annotated dump) back
// out.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"fuelprobe/internal/cache"
	"fuelprobe/internal/costmodel"
	"fuelprobe/internal/dump"
	"fuelprobe/internal/encode"
	"fuelprobe/internal/pipeline"
	"fuelprobe/internal/synth"
	"fuelprobe/internal/version"
	"fuelprobe/internal/watch"
)

const versionBanner = "fuelprobe " // + version.Format, printed in showVersion

var commandAliases = map[string]string{
	"r": "run",
	"v": "version",
	"d": "dump",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		showVersion()
	case "run":
		if err := runCommand(args[1:], false); err != nil {
			log.Fatalf("fuelprobe: %v", err)
		}
	case "dump":
		if err := runCommand(args[1:], true); err != nil {
			log.Fatalf("fuelprobe: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "fuelprobe: unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`usage: fuelprobe <command> [flags] <input.json>

commands:
  run     analyze the input module and write a synthesized probe module
  dump    like run, but also print the annotated slice/fid-table listing
  version print the build and probe-format version

flags:
  -out <path>       write the probe module here (default: stdout)
  -variant <name>   fuel variant: exact or approx (default: exact)
  -cache <path>     content-addressed cache database (default: disabled)
  -watch <addr>     broadcast progress over websocket at addr while running`)
}

func showVersion() {
	fmt.Printf("%s%s\n", versionBanner, version.Format)
}

type flags struct {
	input   string
	out     string
	variant string
	cache   string
	watch   string
}

func parseFlags(args []string) (flags, error) {
	f := flags{variant: "exact"}
	i := 0
	for i < len(args) {
		arg := args[i]
		switch arg {
		case "-out", "--out":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("%s needs a value", arg)
			}
			f.out = args[i]
		case "-variant", "--variant":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("%s needs a value", arg)
			}
			f.variant = args[i]
		case "-cache", "--cache":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("%s needs a value", arg)
			}
			f.cache = args[i]
		case "-watch", "--watch":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("%s needs a value", arg)
			}
			f.watch = args[i]
		default:
			if f.input != "" {
				return f, fmt.Errorf("unexpected argument %q", arg)
			}
			f.input = arg
		}
		i++
	}
	if f.input == "" {
		return f, fmt.Errorf("missing input module path")
	}
	return f, nil
}

func runCommand(args []string, withDump bool) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	variant := synth.Exact
	if f.variant == "approx" {
		variant = synth.Approx
	} else if f.variant != "exact" {
		return fmt.Errorf("unknown -variant %q (want exact or approx)", f.variant)
	}

	inputBytes, err := os.ReadFile(f.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	mod, err := encode.Unmarshal(inputBytes)
	if err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	var probeCache *cache.Cache
	var key string
	if f.cache != "" {
		probeCache, err = cache.Open(f.cache)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer probeCache.Close()
		key = cache.Key(inputBytes)
		if hit, ok, err := probeCache.Get(key); err != nil {
			return fmt.Errorf("cache lookup: %w", err)
		} else if ok {
			fmt.Fprintf(os.Stderr, "fuelprobe: cache hit for %s\n", key[:12])
			return writeOutput(f.out, hit)
		}
	}

	var broadcaster *watch.Broadcaster
	var rep pipeline.Reporter
	if f.watch != "" {
		broadcaster = watch.NewBroadcaster(f.watch)
		go func() {
			if err := broadcaster.Serve(); err != nil {
				fmt.Fprintf(os.Stderr, "fuelprobe: watch server: %v\n", err)
			}
		}()
		defer broadcaster.Close()
		rep = broadcaster
	} else {
		rep = consoleReporter{}
	}

	cfg := pipeline.DefaultConfig()
	cfg.Cost = costmodel.Unit
	cfg.FuelVariant = variant

	start := time.Now()
	res, err := pipeline.Run(context.Background(), mod, cfg, rep)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	elapsed := time.Since(start)

	out := pipeline.AssembleModule(res)
	outBytes, err := encode.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	if probeCache != nil {
		if err := probeCache.Put(key, outBytes); err != nil {
			return fmt.Errorf("cache store: %w", err)
		}
	}

	if withDump {
		d := dump.NewDumper(os.Stdout.Fd())
		d.AllSlices(res, cfg.Cost)
		d.FIDTable(res)
		fmt.Print(d.String())
	}

	probeCount := 0
	for _, fr := range res.Funcs {
		probeCount += len(fr.Probes)
	}
	fmt.Fprintf(os.Stderr, "fuelprobe: run %s — %d probes, %s, %s\n",
		res.RunID, probeCount, humanize.Bytes(uint64(len(outBytes))), elapsed.Round(time.Millisecond))

	return writeOutput(f.out, outBytes)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// consoleReporter prints stage banners to stderr, colored when stderr
// is a terminal, matching the teacher's isatty-gated progress prints.
type consoleReporter struct{}

func (consoleReporter) Stage(name string) {
	fmt.Fprintf(os.Stderr, "%s\n", colorize("-> "+name))
}

func (consoleReporter) Done(name string, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "%s\n", colorize(fmt.Sprintf("   %s (%s)", name, elapsed.Round(time.Microsecond))))
}

func colorize(s string) string {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return s
	}
	return "\x1b[36m" + s + "\x1b[0m"
}
