//go:build linux

package worker

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/aengelke/mishegos/decoder"
	"github.com/aengelke/mishegos/internal/ring"
)

// ChildCommand is the hidden argv[1] that turns the binary into a worker
// process. Go cannot fork, so process mode re-execs the running
// executable and rebuilds the worker state from argv plus two inherited
// descriptors: the ring memfd and the startup handshake pipe.
const ChildCommand = "__worker"

const (
	childArenaFd = 3
	childPipeFd  = 4
)

// ChildSpec is the worker state that crosses the exec boundary.
type ChildSpec struct {
	Soname   string
	Index    int
	NWorkers int
	StartGen uint32
	StartIdx int
	Debug    bool
}

func (s ChildSpec) args() []string {
	args := []string{
		ChildCommand,
		"-soname", s.Soname,
		"-worker", strconv.Itoa(s.Index),
		"-nworkers", strconv.Itoa(s.NWorkers),
		"-start-gen", strconv.FormatUint(uint64(s.StartGen), 10),
		"-start-idx", strconv.Itoa(s.StartIdx),
	}
	if s.Debug {
		args = append(args, "-debug")
	}
	return args
}

// ParseChildSpec decodes the argv produced by args(). os.Args[2:] of a
// ChildCommand invocation.
func ParseChildSpec(argv []string) (ChildSpec, error) {
	var spec ChildSpec
	fs := flag.NewFlagSet(ChildCommand, flag.ContinueOnError)
	fs.StringVar(&spec.Soname, "soname", "", "decoder to load")
	fs.IntVar(&spec.Index, "worker", -1, "worker index")
	fs.IntVar(&spec.NWorkers, "nworkers", 0, "total worker count")
	startGen := fs.Uint64("start-gen", 0, "resume generation")
	fs.IntVar(&spec.StartIdx, "start-idx", 0, "resume chunk index")
	fs.BoolVar(&spec.Debug, "debug", false, "debug logging")
	if err := fs.Parse(argv); err != nil {
		return ChildSpec{}, err
	}
	spec.StartGen = uint32(*startGen)
	if spec.Soname == "" || spec.Index < 0 || spec.NWorkers <= spec.Index {
		return ChildSpec{}, fmt.Errorf("inconsistent worker spec: %+v", spec)
	}
	return spec, nil
}

// ProcessOptions configures a process-mode spawn.
type ProcessOptions struct {
	// Arena must be memfd-backed; its file is inherited as fd 3.
	Arena *ring.Arena

	NWorkers int
	Debug    bool

	// OnExit runs on the monitor goroutine after the child has been
	// reaped and, on a crash, after CrashScan completed. Used by the
	// engine for accounting; may be nil.
	OnExit func(crashed bool)
}

type process struct {
	cmd *exec.Cmd
}

// StartProcess spawns a worker child at the current resume cursor. The
// child blocks on the handshake pipe until the parent has recorded it, so
// a crash can never outrun the monitor's bookkeeping.
func (w *Worker) StartProcess(opts ProcessOptions) error {
	backing := opts.Arena.File()
	if backing == nil {
		return fmt.Errorf("process mode needs a memfd-backed arena")
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("handshake pipe: %w", err)
	}

	spec := ChildSpec{
		Soname:   w.Soname,
		Index:    w.Index,
		NWorkers: opts.NWorkers,
		StartGen: w.StartGen,
		StartIdx: w.StartIdx,
		Debug:    opts.Debug,
	}
	cmd := exec.Command(exe, spec.args()...)
	cmd.ExtraFiles = []*os.File{backing, pr} // fd 3, fd 4
	// The child must never touch the triage stream on stdout.
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGHUP}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("spawn worker %d: %w", w.Index, err)
	}
	pr.Close()

	w.proc = &process{cmd: cmd}
	go w.monitor(cmd, opts.OnExit)

	// The worker is recorded; release the child.
	if _, err := pw.Write([]byte{0}); err != nil {
		w.logger.Warn("handshake write failed", "error", err)
	}
	pw.Close()

	w.logger.Debug("worker process started",
		"pid", cmd.Process.Pid,
		"start_gen", w.StartGen, "start_idx", w.StartIdx)
	return nil
}

// monitor reaps the child and runs the crash protocol on abnormal exit.
// It is the Go stand-in for the C engine's SIGCHLD handler; running on an
// ordinary goroutine it has none of the handler's constraints, but it
// follows the same protocol so the dispatcher-side bookkeeping is
// identical.
func (w *Worker) monitor(cmd *exec.Cmd, onExit func(crashed bool)) {
	err := cmd.Wait()
	if err == nil {
		// Ordinary end-of-stream exit.
		if onExit != nil {
			onExit(false)
		}
		return
	}

	crashed := w.CrashScan()
	if crashed {
		w.logger.Warn("worker crashed mid-chunk",
			"pid", cmd.Process.Pid, "wait", err,
			"resume_gen", w.StartGen, "resume_idx", w.StartIdx)
	} else {
		// Died outside decoding; nothing to resume. Anomalous but not
		// fatal to the run.
		w.logger.Warn("worker died outside decoding",
			"pid", cmd.Process.Pid, "wait", err)
	}
	if onExit != nil {
		onExit(crashed)
	}
}

// RunChild is the worker-process main. It maps the inherited arena,
// performs the startup handshake, loads the decoder and runs the loop
// until end of stream. Decoder panics are not recovered here: the whole
// point of process mode is that the process is the crash boundary.
func RunChild(spec ChildSpec) error {
	arena, err := ring.FromFd(childArenaFd, spec.NWorkers)
	if err != nil {
		return err
	}

	// Wait for the parent to record our pid. EOF means the parent died
	// before pdeathsig could be armed against it; just exit.
	pipe := os.NewFile(uintptr(childPipeFd), "mishegos-handshake")
	var tmp [1]byte
	if n, err := pipe.Read(tmp[:]); err != nil || n != 1 {
		return fmt.Errorf("orphaned before startup handshake")
	}
	pipe.Close()

	d, err := decoder.Load(spec.Soname)
	if err != nil {
		return err
	}
	if c, ok := d.(decoder.Constructor); ok {
		if err := c.Construct(); err != nil {
			return fmt.Errorf("construct %s: %w", spec.Soname, err)
		}
	}

	w := New(Config{
		Soname:   spec.Soname,
		Index:    spec.Index,
		Inputs:   arena.InputRing(),
		Outputs:  arena.OutputRing(spec.Index),
		StartGen: spec.StartGen,
		StartIdx: spec.StartIdx,
	})
	w.runLoop(d, false)

	if dt, ok := d.(decoder.Destructor); ok {
		dt.Destruct()
	}
	return nil
}
