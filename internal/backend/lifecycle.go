// Package backend implements the per-plot backend lifecycle: compile on a
// dedicated worker, program, run a ticked flush loop against a live
// serial connection, and report status without ever blocking the world
// thread.
//
// Grounded on original_source/crates/backend/src/lib.rs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/voltplot/roc/internal/compilegraph"
	"github.com/voltplot/roc/internal/device"
	"github.com/voltplot/roc/internal/discretize"
	"github.com/voltplot/roc/internal/linker"
	"github.com/voltplot/roc/internal/scheduler"
	"github.com/voltplot/roc/internal/serialproto"
)

// bitstreamFile is the Quartus Standard Output File name the synthesizer
// produces and the programmer consumes, matching the original's hardcoded
// "RoC.sof".
const bitstreamFile = "RoC.sof"

// Status is the backend's lifecycle state.
type Status int

const (
	Redpiling Status = iota
	Compiling
	Ready
	Active
	Stopped
)

func (s Status) String() string {
	switch s {
	case Redpiling:
		return "Redpiling"
	case Compiling:
		return "Compiling"
	case Ready:
		return "Ready"
	case Active:
		return "Active"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Msg is a status update broadcast to the UI/scoreboard subsystem.
type Msg struct {
	Name   string
	Status Status
}

// FailThreshold is how many consecutive serial-frame failures during tick
// cause a transition to Stopped (spec's suggested default of 10).
const FailThreshold = 10

// Backend owns one plot's compile/program/run lifecycle and its exclusive
// serial connection.
type Backend struct {
	mu     sync.Mutex
	name   string
	status Status
	plot   scheduler.Plot

	sched *scheduler.Scheduler
	fpga  *scheduler.FPGA

	linker      *linker.Linker
	conn        *serialproto.Conn
	artifactDir string // stable directory holding linker.json and the bitstream
	invoker     device.Invoker

	statusCh chan<- Msg
	failures int

	// onUpdateSweep, if set, is invoked after a successful Reset — a
	// documented no-op extension point standing in for the upstream
	// world-update propagation the original runs here, which lives outside
	// this module's scope.
	onUpdateSweep func()
}

// New returns a backend named name for plot, reporting status on statusCh
// (a buffered channel; sends never block the caller — see sendStatus).
func New(name string, plot scheduler.Plot, sched *scheduler.Scheduler, statusCh chan<- Msg) *Backend {
	return &Backend{
		name:     name,
		plot:     plot,
		sched:    sched,
		statusCh: statusCh,
		status:   Redpiling,
	}
}

// Status returns the backend's current lifecycle state.
func (b *Backend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// SetOnUpdateSweep installs the post-reset hook.
func (b *Backend) SetOnUpdateSweep(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUpdateSweep = fn
}

func (b *Backend) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	b.sendStatus(s)
}

// sendStatus is a non-blocking send: a slow UI consumer must never stall
// the world thread, so a full channel just drops the update rather than
// waiting (spec §5's ordering guarantee is over serial commands, not over
// status messages).
func (b *Backend) sendStatus(s Status) {
	if b.statusCh == nil {
		return
	}
	select {
	case b.statusCh <- Msg{Name: b.name, Status: s}:
	default:
	}
}

// CompileInputs bundles everything Compile needs to drive the pipeline,
// since device.Config/Invoker/paths have no natural home on Backend
// itself (a backend may compile once and run for a long time after).
type CompileInputs struct {
	Graph     *compilegraph.Graph
	Linker    *linker.Linker
	DeviceCfg device.Config
	Invoker   device.Invoker

	// ArtifactDir is the stable directory the linker file and the
	// programmable bitstream are copied into, e.g. FPGA/bin/{plot}/{name}.
	ArtifactDir string
	// ProjectDir is the scratch Quartus build directory synthesis runs in,
	// e.g. ArtifactDir/prj. Deleted after a successful compile unless
	// Preserve is set.
	ProjectDir  string
	ProjectFile string // prj.tcl path, under ProjectDir
	VerilogPath string // emitted redstone.sv path, under ArtifactDir

	// Preserve keeps ProjectDir around after a successful compile instead
	// of deleting it, corresponding to the -c/--compile flag's preserve
	// effect.
	Preserve bool
}

// Compile runs the discretization pass, assembler, project-file
// emission, and external synthesis on a dedicated goroutine via
// errgroup, then waits for that goroutine: Compile does not return until
// the pipeline has finished, so the calling goroutine is blocked for the
// whole synthesizer run. It transitions Redpiling -> Compiling immediately, then Ready
// on success or Stopped on any failure. On success, the built bitstream is
// copied from the scratch ProjectDir to the stable ArtifactDir, the
// linker is persisted alongside it, and ProjectDir is removed unless
// in.Preserve is set.
func (b *Backend) Compile(ctx context.Context, in CompileInputs, assemble func(*compilegraph.Graph, string) error) error {
	b.setStatus(Compiling)

	var eg errgroup.Group
	eg.Go(func() error {
		discretize.Run(in.Graph)

		if err := assemble(in.Graph, in.VerilogPath); err != nil {
			return fmt.Errorf("backend: assemble: %w", err)
		}

		if err := in.DeviceCfg.CreateProject(in.ProjectFile, in.Linker.OutputBits, in.Linker.InputBits); err != nil {
			return fmt.Errorf("backend: create project: %w", err)
		}

		out, err := in.DeviceCfg.Compile(in.Invoker, in.ProjectDir)
		if err != nil {
			log.Printf("backend %s: synthesis output: %s", b.name, out)
			return fmt.Errorf("backend: compile: %w", err)
		}
		log.Printf("backend %s: synthesis output: %s", b.name, out)

		if cerr := copyFile(filepath.Join(in.ProjectDir, bitstreamFile), filepath.Join(in.ArtifactDir, bitstreamFile)); cerr != nil {
			return fmt.Errorf("backend: copy bitstream: %w", cerr)
		}

		if perr := in.Linker.Persist(filepath.Join(in.ArtifactDir, "linker.json")); perr != nil {
			// Persistence errors are logged, not fatal: the linker can be
			// regenerated from a recompile.
			log.Printf("backend %s: persist linker: %v", b.name, perr)
		}

		if !in.Preserve {
			if rerr := os.RemoveAll(in.ProjectDir); rerr != nil {
				log.Printf("backend %s: remove scratch dir %s: %v", b.name, in.ProjectDir, rerr)
			}
		}

		b.mu.Lock()
		b.linker = in.Linker
		b.artifactDir = in.ArtifactDir
		b.invoker = in.Invoker
		b.mu.Unlock()
		return nil
	})

	if err := eg.Wait(); err != nil {
		b.setStatus(Stopped)
		return err
	}
	b.setStatus(Ready)
	return nil
}

// copyFile copies src to dst, creating dst's parent directory as needed.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// ErrNoDevice is returned when Run cannot acquire a free FPGA.
var ErrNoDevice = errors.New("backend: no free device")

// Run locks a device, programs it with the compiled bitstream, opens the
// exclusive serial connection, and transitions Ready -> Active. openConn
// dials the physical transport (factored out so tests can supply a fake).
// Programming only runs if artifactDir and invoker were set by a prior
// Compile or Resume; a backend constructed neither way skips straight to
// opening the connection. Like the synthesizer invocation in Compile, this
// driver does not second-guess the programmer subprocess beyond its exit
// status: any error it returns is fatal to Run, and its output is logged
// either way.
func (b *Backend) Run(openConn func(cfg device.Config) (*serialproto.Conn, error)) error {
	b.mu.Lock()
	if b.status != Ready {
		b.mu.Unlock()
		return fmt.Errorf("backend: Run called in state %s, want Ready", b.status)
	}
	artifactDir := b.artifactDir
	invoker := b.invoker
	b.mu.Unlock()

	fpga, ok := b.sched.Lock(b.plot)
	if !ok {
		b.setStatus(Stopped)
		return ErrNoDevice
	}

	if artifactDir != "" && invoker != nil {
		out, err := fpga.Config.Program(invoker, artifactDir, bitstreamFile)
		log.Printf("backend %s: programmer output: %s", b.name, out)
		if err != nil {
			b.sched.Free(b.plot)
			b.setStatus(Stopped)
			return fmt.Errorf("backend: program device: %w", err)
		}
	}

	conn, err := openConn(fpga.Config)
	if err != nil {
		b.sched.Free(b.plot)
		b.setStatus(Stopped)
		return fmt.Errorf("backend: open serial: %w", err)
	}

	b.mu.Lock()
	b.fpga = fpga
	b.conn = conn
	b.failures = 0
	b.mu.Unlock()

	b.setStatus(Active)
	return nil
}

// Stop returns the device to the scheduler, drops the serial handle, and
// transitions back to Ready. It is safe to call from any state; states
// other than Active simply skip the device/serial teardown.
func (b *Backend) Stop() {
	b.mu.Lock()
	wasActive := b.status == Active
	b.conn = nil
	b.fpga = nil
	b.mu.Unlock()

	if wasActive {
		b.sched.Free(b.plot)
	}
	b.setStatus(Ready)
}

// Reset sends the Reset command and invokes the update-sweep hook on
// success.
func (b *Backend) Reset() error {
	b.mu.Lock()
	conn := b.conn
	sweep := b.onUpdateSweep
	b.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("backend: Reset called with no open connection")
	}
	if err := conn.Reset(); err != nil {
		return fmt.Errorf("backend: reset: %w", err)
	}
	if sweep != nil {
		sweep()
	}
	return nil
}

// SetRTPS forwards a redstone-ticks-per-second rate to the connected
// device.
func (b *Backend) SetRTPS(rtps uint32) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("backend: SetRTPS called with no open connection")
	}
	if err := conn.SetRTPS(rtps); err != nil {
		return b.recordFailure(err)
	}
	return nil
}

// Tick runs one Active-state flush cycle: Capture, then GetOutputs, then
// diffs the linker against the returned bitstream and re-emits current
// input states. Serial-frame failures are swallowed for the current tick;
// FailThreshold consecutive failures transition the backend to Stopped.
func (b *Backend) Tick() ([]linker.IntfBlock, error) {
	b.mu.Lock()
	conn := b.conn
	lk := b.linker
	b.mu.Unlock()

	if conn == nil || lk == nil {
		return nil, fmt.Errorf("backend: Tick called while not Active")
	}

	if err := conn.Capture(); err != nil {
		return nil, b.recordFailure(err)
	}
	data, err := conn.GetOutputs(lk.OutputBytes())
	if err != nil {
		return nil, b.recordFailure(err)
	}

	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()

	changed := lk.BlocksToChange(data)
	return changed, nil
}

func (b *Backend) recordFailure(cause error) error {
	b.mu.Lock()
	b.failures++
	n := b.failures
	b.mu.Unlock()

	if n >= FailThreshold {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		b.sched.Free(b.plot)
		b.setStatus(Stopped)
		return fmt.Errorf("backend: %d consecutive serial failures, stopping: %w", n, cause)
	}
	return fmt.Errorf("backend: tick failure %d/%d: %w", n, FailThreshold, cause)
}

// OnUseBlock handles a world input event: toggling the input block at pos
// and immediately forwarding the new state over the serial connection.
func (b *Backend) OnUseBlock(pos compilegraph.Pos) error {
	b.mu.Lock()
	conn := b.conn
	lk := b.linker
	b.mu.Unlock()

	if conn == nil || lk == nil {
		return fmt.Errorf("backend: OnUseBlock called while not Active")
	}
	if !lk.BlockAt(pos) {
		return nil
	}
	offset, kindCode, state := lk.ToggleInput(pos)
	if err := conn.SetInputs(uint32(offset), uint8(kindCode), state); err != nil {
		return b.recordFailure(err)
	}
	return nil
}
