// Package mishegos is a differential fuzzer for machine-code decoders: a
// mutator streams candidate instructions through shared-memory rings to N
// isolated decoder workers, and candidates the decoders disagree on are
// written to a binary stream for offline triage.
package mishegos

import (
	"context"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/aengelke/mishegos/internal/constants"
	"github.com/aengelke/mishegos/internal/emit"
	"github.com/aengelke/mishegos/internal/filter"
	"github.com/aengelke/mishegos/internal/logging"
	"github.com/aengelke/mishegos/internal/ring"
	"github.com/aengelke/mishegos/internal/worker"
	"github.com/aengelke/mishegos/mutator"
	"github.com/aengelke/mishegos/slot"
)

// exitSentinel marks "not exiting yet": it can never collide with a real
// ring slot because valid slots are 0..NumChunks-1.
const exitSentinel = constants.NumChunks

// Options configures an engine run.
type Options struct {
	// Workers holds the resolved worker-list entries, in worker order.
	Workers []string

	// ThreadMode runs decoders as goroutines instead of child processes.
	ThreadMode bool

	// Mutator names a registered candidate generator; empty selects the
	// default. MutatorFunc, when set, bypasses the registry.
	Mutator     string
	MutatorFunc mutator.Func

	// Filter bounds; nil selects the defaults (min 1, max MaxWorkers).
	// Negative values resolve against the worker count: -1 means N.
	FilterMinSuccess *int
	FilterMaxSuccess *int

	// FilterNdecodedSame additionally keeps candidates whose successful
	// decoders disagree on the consumed length.
	FilterNdecodedSame bool

	// Output receives the triage stream; nil means stdout.
	Output      io.Writer
	Compression emit.Compression

	// Rate caps candidate generation per second; 0 means unlimited.
	Rate float64

	Debug  bool
	Logger *logging.Logger
}

// countingWriter tracks the bytes that actually reach the stream
// destination.
type countingWriter struct {
	w io.Writer
	n *Metrics
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.BytesEmitted.Add(uint64(n))
	return n, err
}

// Engine owns the rings, the workers and the dispatcher loop.
type Engine struct {
	opts    Options
	logger  *logging.Logger
	metrics *Metrics

	arena    *ring.Arena
	inputs   *ring.InputRing
	workers  []*worker.Worker
	outRings []*ring.OutputRing
	filter   filter.Config
	mut      mutator.Func
	writer   *emit.Writer
	limiter  *rate.Limiter

	// Per-slot scratch, reused across the whole run.
	outputs []*slot.Output
	entries []emit.Entry
}

// NewEngine validates the options, maps the rings and prepares (but does
// not start) the workers.
func NewEngine(opts Options) (*Engine, error) {
	n := len(opts.Workers)
	if n == 0 {
		return nil, NewError("configure", ErrCodeUsage, "no workers configured")
	}
	if n > constants.MaxWorkers {
		return nil, NewError("configure", ErrCodeUsage, "too many workers")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		opts:    opts,
		logger:  logger,
		metrics: NewMetrics(),
		outputs: make([]*slot.Output, n),
		entries: make([]emit.Entry, n),
	}

	e.filter = filter.Default()
	if opts.FilterMinSuccess != nil {
		e.filter.MinSuccess = *opts.FilterMinSuccess
	}
	if opts.FilterMaxSuccess != nil {
		e.filter.MaxSuccess = *opts.FilterMaxSuccess
	}
	e.filter.NdecodedSame = opts.FilterNdecodedSame
	if err := e.filter.Resolve(n); err != nil {
		return nil, WrapError("configure", ErrCodeUsage, err)
	}
	logger.Info("filter resolved",
		"min", e.filter.MinSuccess, "max", e.filter.MaxSuccess,
		"ndecoded_same", e.filter.NdecodedSame)

	e.mut = opts.MutatorFunc
	if e.mut == nil {
		m, err := mutator.Create(opts.Mutator)
		if err != nil {
			return nil, WrapError("configure", ErrCodeUsage, err)
		}
		e.mut = m
	}

	var err error
	if opts.ThreadMode {
		e.arena, err = ring.NewAnon(n)
	} else {
		e.arena, err = ring.NewMemfd(n)
	}
	if err != nil {
		return nil, WrapError("map rings", ErrCodeResourceExhausted, err)
	}
	e.inputs = e.arena.InputRing()

	for i, soname := range opts.Workers {
		e.workers = append(e.workers, worker.New(worker.Config{
			Soname:   soname,
			Index:    i,
			Inputs:   e.inputs,
			Outputs:  e.arena.OutputRing(i),
			StartGen: 1,
			StartIdx: 0,
			Logger:   logger,
		}))
		e.outRings = append(e.outRings, e.arena.OutputRing(i))
	}

	dest := opts.Output
	if dest == nil {
		dest = os.Stdout
	}
	e.writer, err = emit.NewWriter(&countingWriter{w: dest, n: e.metrics},
		emit.Options{Compression: opts.Compression})
	if err != nil {
		return nil, WrapError("open stream", ErrCodeIO, err)
	}

	if opts.Rate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.Rate), constants.SlotsPerChunk)
	}

	return e, nil
}

// Metrics exposes the run counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

func (e *Engine) processOpts() worker.ProcessOptions {
	return worker.ProcessOptions{
		Arena:    e.arena,
		NWorkers: len(e.workers),
		Debug:    e.opts.Debug,
		OnExit: func(crashed bool) {
			if crashed {
				e.metrics.CrashesObserved.Add(1)
			}
		},
	}
}

// Run drives the pipeline to mutator exhaustion. The dispatcher stays one
// generation lap ahead of itself: it produces into generation g and
// consumes the output its workers wrote during generation g-1 of the same
// ring slot.
func (e *Engine) Run(ctx context.Context) error {
	for _, w := range e.workers {
		if e.opts.ThreadMode {
			if err := w.StartThread(); err != nil {
				return &Error{Op: "start worker", Worker: w.Index,
					Code: ErrCodePluginLoad, Msg: err.Error(), Inner: err}
			}
		} else {
			if err := w.StartProcess(e.processOpts()); err != nil {
				return &Error{Op: "start worker", Worker: w.Index,
					Code: ErrCodeResourceExhausted, Msg: err.Error(), Inner: err}
			}
		}
	}

	gen := uint32(1)
	idx := 0
	exitIdx := exitSentinel

	for {
		ic := &e.inputs[idx]
		ic.RemainingWorkers.WaitUntil(0)

		if !e.opts.ThreadMode {
			restarted, err := e.restartSweep()
			if err != nil {
				return err
			}
			if restarted {
				// A restarted worker may still owe this chunk a
				// decrement; wait for the current idx again.
				continue
			}
		}

		// First lap has no prior-generation output to consume.
		if gen > 1 {
			for i := 0; i < int(ic.InputCount); i++ {
				if err := e.processSlot(idx, i); err != nil {
					return err
				}
			}
		}

		if idx == exitIdx {
			break
		}

		if exitIdx == exitSentinel {
			if !e.produce(ctx, ic, gen) {
				exitIdx = idx
			}
		}

		idx, gen = ring.Next(idx, gen)
	}

	if e.opts.ThreadMode {
		for _, w := range e.workers {
			<-w.Done()
		}
	}

	if err := e.writer.Close(); err != nil {
		return WrapError("close stream", ErrCodeIO, err)
	}
	e.metrics.Stop()

	s := e.metrics.Snapshot()
	e.logger.Info("run finished",
		"candidates", s.CandidatesGenerated,
		"records", s.RecordsEmitted,
		"bytes", s.BytesEmitted,
		"crashes", s.CrashesObserved,
		"restarts", s.WorkersRestarted,
		"candidates_per_sec", uint64(s.CandidatesPerSec))
	return nil
}

// restartSweep respawns every worker whose monitor flagged a crash. The
// monitor force-decremented RemainingWorkers on the worker's resume chunk
// to make the dispatcher's wait satisfiable; the sweep re-increments it
// so the respawned worker's own decrement balances out.
func (e *Engine) restartSweep() (bool, error) {
	restarted := false
	for _, w := range e.workers {
		if !w.Sigchld.Load() {
			continue
		}
		e.inputs[w.StartIdx].RemainingWorkers.Add(1)
		w.Sigchld.Store(false)
		if err := w.StartProcess(e.processOpts()); err != nil {
			// A lane that cannot be refilled would stall the ring for
			// good; treat the respawn failure as fatal.
			return restarted, &Error{Op: "respawn worker", Worker: w.Index,
				Code: ErrCodeResourceExhausted, Msg: err.Error(), Inner: err}
		}
		e.metrics.WorkersRestarted.Add(1)
		restarted = true
	}
	return restarted, nil
}

// produce fills the chunk from the mutator and publishes it. Publication
// order is load-bearing: workers futex on Generation, so InputCount and
// RemainingWorkers must be in place before the generation store makes
// them visible.
func (e *Engine) produce(ctx context.Context, ic *ring.InputChunk, gen uint32) bool {
	// Context cancellation looks like mutator exhaustion: publish a short
	// (possibly empty) chunk and let the normal drain run.
	more := ctx.Err() == nil
	if more && e.limiter != nil && e.limiter.WaitN(ctx, constants.SlotsPerChunk) != nil {
		more = false
	}

	count := 0
	for more && count < constants.SlotsPerChunk {
		if !e.mut(&ic.Inputs[count]) {
			more = false
			break
		}
		count++
	}
	e.metrics.CandidatesGenerated.Add(uint64(count))
	e.metrics.ChunksPublished.Add(1)

	ic.InputCount = uint32(count)
	ic.RemainingWorkers.Store(uint32(len(e.workers)))
	ic.Generation.Store(gen)
	ic.Generation.Notify()

	return more
}

// processSlot gathers the N verdicts for one candidate, applies the
// filter and emits survivors.
func (e *Engine) processSlot(idx, slotIdx int) error {
	e.metrics.SlotsFiltered.Add(1)

	for j := range e.workers {
		e.outputs[j] = &e.outRings[j][idx].Outputs[slotIdx]
	}

	if !e.filter.Keep(e.outputs) {
		return nil
	}

	for j, w := range e.workers {
		e.entries[j] = emit.Entry{Name: w.Soname, Output: e.outputs[j]}
	}
	if err := e.writer.WriteRecord(&e.inputs[idx].Inputs[slotIdx], e.entries); err != nil {
		return WrapError("emit", ErrCodeIO, err)
	}
	e.metrics.RecordsEmitted.Add(1)
	return nil
}
