// Command mishegos differentially fuzzes machine-code decoders: it feeds
// mutated instruction candidates to every decoder named in the worker
// list and streams the candidates they disagree on to stdout (or a file)
// for offline triage.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aengelke/mishegos"
	"github.com/aengelke/mishegos/internal/config"
	"github.com/aengelke/mishegos/internal/emit"
	"github.com/aengelke/mishegos/internal/logging"
	"github.com/aengelke/mishegos/internal/worker"
	"github.com/aengelke/mishegos/mutator"
)

func main() {
	// Hidden re-exec entry: process-mode workers run this same binary.
	if len(os.Args) > 1 && os.Args[1] == worker.ChildCommand {
		runChild(os.Args[2:])
		return
	}

	os.Exit(run(os.Args[1:]))
}

func runChild(argv []string) {
	spec, err := worker.ParseChildSpec(argv)
	if err != nil {
		logging.Error("bad worker spec", "error", err)
		os.Exit(1)
	}
	if spec.Debug {
		logging.SetDefault(logging.NewLogger(&logging.Config{Level: logging.LevelDebug}))
	}
	if err := worker.RunChild(spec); err != nil {
		logging.Error("worker failed", "worker", spec.Index, "soname", spec.Soname, "error", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "usage: %s [-t] [-v] [-m mutator] [-s min[:max]] [-n] [-z codec] [-o file] [-c config] <workerfile>\n", os.Args[0])
	fmt.Fprintf(w, "  -t: use thread mode instead of worker processes\n")
	fmt.Fprintf(w, "  -v: debug logging\n")
	fmt.Fprintf(w, "  -m: candidate mutator (%s)\n", strings.Join(mutator.Names(), ", "))
	fmt.Fprintf(w, "  -s: keep samples where success count is in range; default is 1:%d\n", mishegos.MaxWorkers)
	fmt.Fprintf(w, "      (negative bounds are relative: -1 = nworkers, -2 = nworkers-1;\n")
	fmt.Fprintf(w, "       1:0 = empty range, e.g. for use with -n)\n")
	fmt.Fprintf(w, "  -n: keep samples where successful ndecoded differs\n")
	fmt.Fprintf(w, "  -z: compress the output stream (gzip, zstd)\n")
	fmt.Fprintf(w, "  -o: write the stream to a file instead of stdout\n")
	fmt.Fprintf(w, "  -c: engine config file (yaml); flags take precedence\n")
}

func run(argv []string) int {
	fs := flag.NewFlagSet("mishegos", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }

	threadMode := fs.Bool("t", false, "thread mode")
	verbose := fs.Bool("v", false, "debug logging")
	mutatorName := fs.String("m", "", "mutator name")
	filterSpec := fs.String("s", "", "success-count filter range")
	ndecoded := fs.Bool("n", false, "keep ndecoded disagreements")
	codec := fs.String("z", "", "output compression")
	outPath := fs.String("o", "", "output file")
	confPath := fs.String("c", "", "config file")

	if err := fs.Parse(argv); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "expected worker file as positional argument")
		usage(fs)
		return 1
	}

	opts := mishegos.Options{}

	// Config file first, flags override below.
	uring := false
	logLevel := logging.LevelInfo
	if *confPath != "" {
		conf, err := config.Load(*confPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		opts.ThreadMode = conf.ThreadMode
		opts.Mutator = conf.Mutator
		opts.FilterMinSuccess = conf.Filter.MinSuccess
		opts.FilterMaxSuccess = conf.Filter.MaxSuccess
		opts.FilterNdecodedSame = conf.Filter.NdecodedSame
		opts.Compression, err = emit.ParseCompression(conf.Output.Compression)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		opts.Rate = conf.RateLimit
		uring = conf.Output.Uring
		if *outPath == "" {
			*outPath = conf.Output.Path
		}
		if lvl, err := logging.ParseLevel(conf.LogLevel); err == nil {
			logLevel = lvl
		}
	}

	if *threadMode {
		opts.ThreadMode = true
	}
	if *mutatorName != "" {
		opts.Mutator = *mutatorName
	}
	if *filterSpec != "" {
		min, max, err := parseFilterSpec(*filterSpec)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		opts.FilterMinSuccess = min
		opts.FilterMaxSuccess = max
	}
	if *ndecoded {
		opts.FilterNdecodedSame = true
	}
	if *codec != "" {
		comp, err := emit.ParseCompression(*codec)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		opts.Compression = comp
	}

	if *verbose {
		logLevel = logging.LevelDebug
	}
	if logLevel == logging.LevelDebug {
		opts.Debug = true
	}
	logging.SetDefault(logging.NewLogger(&logging.Config{Level: logLevel}))
	opts.Logger = logging.Default()

	workers, err := config.ParseWorkerList(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	opts.Workers = workers

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		out = f
		if uring {
			sink, err := emit.NewUringSink(f)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			defer sink.Close()
			out = sink
		}
	}
	opts.Output = out

	// SIGINT/SIGTERM drain the pipeline like mutator exhaustion, so an
	// interrupted run still ends with a complete stream.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := mishegos.NewEngine(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := engine.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// parseFilterSpec parses "min" or "min:max".
func parseFilterSpec(s string) (*int, *int, error) {
	minStr, maxStr, hasMax := strings.Cut(s, ":")
	min, err := strconv.Atoi(minStr)
	if err != nil {
		return nil, nil, fmt.Errorf("-s needs format <min> or <min>:<max>")
	}
	if !hasMax {
		return &min, nil, nil
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil {
		return nil, nil, fmt.Errorf("-s needs format <min> or <min>:<max>")
	}
	return &min, &max, nil
}
