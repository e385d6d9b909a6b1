// Package worker binds one decoder to the shared rings and runs the
// chunk-consumption loop. A worker runs either as a goroutine in the
// dispatcher process (thread mode) or as a re-exec'd child process
// (process mode); the loop itself is identical.
package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/aengelke/mishegos/decoder"
	"github.com/aengelke/mishegos/internal/constants"
	"github.com/aengelke/mishegos/internal/logging"
	"github.com/aengelke/mishegos/internal/ring"
	"github.com/aengelke/mishegos/slot"
)

// Config binds a decoder to its lane.
type Config struct {
	Soname   string
	Index    int
	Inputs   *ring.InputRing
	Outputs  *ring.OutputRing
	StartGen uint32
	StartIdx int
	Logger   *logging.Logger
}

// Worker is one decoder lane. StartGen/StartIdx form the resume cursor: a
// fresh worker starts there, and the crash monitor rewinds them to the
// chunk a dead worker was processing.
type Worker struct {
	Soname   string
	Index    int
	StartGen uint32
	StartIdx int

	// Sigchld is set by the crash monitor and consumed by the
	// dispatcher's restart sweep.
	Sigchld atomic.Bool

	inputs  *ring.InputRing
	outputs *ring.OutputRing
	logger  *logging.Logger

	proc *process
	done chan struct{}
}

// New creates a worker lane. It does not load the decoder; that happens
// in whichever process runs the loop.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		Soname:   cfg.Soname,
		Index:    cfg.Index,
		StartGen: cfg.StartGen,
		StartIdx: cfg.StartIdx,
		inputs:   cfg.Inputs,
		outputs:  cfg.Outputs,
		logger:   logger.With("worker", cfg.Index, "soname", cfg.Soname),
	}
}

// StartThread loads the decoder and runs the loop as a goroutine.
// Decoder panics are contained: the slot is marked crashed and the loop
// resumes behind it, mirroring what a process-mode restart would do.
func (w *Worker) StartThread() error {
	d, err := decoder.Load(w.Soname)
	if err != nil {
		return err
	}
	if c, ok := d.(decoder.Constructor); ok {
		if err := c.Construct(); err != nil {
			return fmt.Errorf("construct %s: %w", w.Soname, err)
		}
	}
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.runLoop(d, true)
		if dt, ok := d.(decoder.Destructor); ok {
			dt.Destruct()
		}
	}()
	return nil
}

// Done reports thread-mode loop completion. Nil in process mode.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// runLoop consumes chunks until a short chunk signals end of stream. The
// resume-cursor discipline: Remaining is stored before the first decode
// and after every slot, so an external observer can always name the one
// uncommitted slot.
func (w *Worker) runLoop(d decoder.Decoder, recoverPanics bool) {
	gen := w.StartGen
	idx := w.StartIdx

	for {
		ic := &w.inputs[idx]
		ic.Generation.WaitUntil(gen)
		count := ic.InputCount

		// A non-zero Remaining on entry means a predecessor crashed
		// here: resume one past the offending slot.
		oc := &w.outputs[idx]
		start := 0
		if oldRemaining := oc.Remaining.Load(); oldRemaining != 0 {
			start = int(count) - int(oldRemaining) + 1
		}
		oc.Remaining.Store(count - uint32(start))

		for i := start; i < int(count); i++ {
			out := &oc.Outputs[i]
			out.Len = 0
			out.Ndecoded = 0
			w.decodeSlot(d, out, ic.Inputs[i].Bytes(), recoverPanics)
			// Plain atomic store, not a read-modify-write: this worker
			// is the only writer. The store orders the decode result
			// before the commit.
			oc.Remaining.Store(count - uint32(i) - 1)
		}

		if old := ic.RemainingWorkers.Add(-1); old == 1 {
			ic.RemainingWorkers.Notify()
		}

		// A short chunk is the end-of-stream signal.
		if count != constants.SlotsPerChunk {
			return
		}

		idx, gen = ring.Next(idx, gen)
	}
}

func (w *Worker) decodeSlot(d decoder.Decoder, out *slot.Output, raw []byte, recoverPanics bool) {
	if !recoverPanics {
		d.TryDecode(out, raw)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			out.Status = slot.StatusCrash
			w.logger.Warn("decoder panicked", "panic", r)
		}
	}()
	d.TryDecode(out, raw)
}

// CrashScan runs the crash monitor's slot-location protocol after the
// worker's process died mid-run. It finds the chunk the worker was
// processing (the one with uncommitted slots), marks the offending slot,
// rewinds the resume cursor, and force-decrements RemainingWorkers so the
// dispatcher's pending wait becomes satisfiable without the dead worker.
// The dispatcher undoes that decrement before respawning; the replacement
// worker's own decrement then balances the books.
//
// Returns false if no chunk was in flight, meaning the worker died
// outside decoding.
func (w *Worker) CrashScan() bool {
	for widx := 0; widx < constants.NumChunks; widx++ {
		oc := &w.outputs[widx]
		remaining := oc.Remaining.Load()
		if remaining == 0 {
			continue
		}
		ic := &w.inputs[widx]

		oc.Outputs[ic.InputCount-remaining].Status = slot.StatusCrash
		w.StartGen = ic.Generation.Load()
		w.StartIdx = widx
		w.Sigchld.Store(true)

		ic.RemainingWorkers.Add(-1)
		// Unlike a SIGCHLD interrupting the C engine's futex syscall,
		// nothing restarts a parked dispatcher on our behalf: wake it.
		ic.RemainingWorkers.Notify()
		return true
	}
	return false
}
