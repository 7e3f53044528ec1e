package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDeadline is the wall-clock limit for one execution.
const DefaultDeadline = 3 * time.Second

// ExitStatus is what a Process reports once it has stopped.
type ExitStatus struct {
	Code int
	// Err is set when the runtime could not report a status (e.g. the daemon
	// connection broke while waiting).
	Err error
}

// Process is a launched sandbox as seen by the Arbiter.
type Process interface {
	// Exited yields the exit status once the program has stopped and its output
	// streams are fully drained. It yields at most one value.
	Exited() <-chan ExitStatus
	Stdout() string
	Stderr() string
	// Kill forcibly terminates the sandbox (SIGKILL, not a graceful stop).
	Kill(ctx context.Context) error
	// Close releases the sandbox's runtime resources.
	Close() error
}

// LaunchFunc starts a sandbox. It must not block until the program finishes.
type LaunchFunc func(ctx context.Context) (Process, error)

// Arbiter supervises one sandbox at a time per Supervise call. It is stateless
// between calls and safe for concurrent use.
type Arbiter struct {
	deadline time.Duration
	// grace bounds how long a killed process may take to report its exit before
	// its resources are released anyway.
	grace  time.Duration
	logger *slog.Logger
}

// NewArbiter returns an Arbiter enforcing deadline on every execution.
func NewArbiter(deadline time.Duration, logger *slog.Logger) *Arbiter {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Arbiter{
		deadline: deadline,
		grace:    10 * time.Second,
		logger:   logger,
	}
}

// Deadline returns the configured wall-clock limit.
func (a *Arbiter) Deadline() time.Duration {
	return a.deadline
}

// Supervise launches a sandbox and returns the first qualifying outcome among:
//
//   - the process exiting (Success or RuntimeError)
//   - the deadline expiring (Timeout, process killed)
//   - the launch failing (LaunchFailure, timer disarmed)
//   - ctx being cancelled (Canceled, process killed)
//
// Exactly one outcome is produced. Events arriving after resolution only affect
// cleanup. Supervise returns as soon as the outcome is known; releasing the
// sandbox continues in the background.
func (a *Arbiter) Supervise(ctx context.Context, launch LaunchFunc) Outcome {
	r := newResolution()

	timer := time.AfterFunc(a.deadline, func() {
		if r.claim() {
			a.kill(r)
			r.deliver(Timeout())
		}
	})
	stopCancel := context.AfterFunc(ctx, func() {
		if r.claim() {
			a.kill(r)
			r.deliver(Canceled())
		}
	})

	go a.watch(context.WithoutCancel(ctx), launch, r, timer)

	outcome := <-r.outcome
	stopCancel()
	timer.Stop()
	return outcome
}

// watch runs launch and waits for the process on its own goroutine.
func (a *Arbiter) watch(ctx context.Context, launch LaunchFunc, r *resolution, timer *time.Timer) {
	proc, err := launch(ctx)
	if err != nil {
		timer.Stop()
		if r.claim() {
			r.deliver(LaunchFailure(err))
			return
		}
		a.logger.Debug("launch failed after resolution", slog.String("error", err.Error()))
		return
	}
	defer a.release(proc)

	if r.attach(proc) {
		// The deadline or a cancellation won while we were still launching.
		a.killProcess(proc)
	}

	select {
	case status := <-proc.Exited():
		timer.Stop()
		if r.claim() {
			r.deliver(exitOutcome(proc, status))
		}
	case <-r.done:
		select {
		case <-proc.Exited():
		case <-time.After(a.grace):
			a.logger.Warn("sandbox did not exit after kill; releasing anyway")
		}
	}
}

func exitOutcome(proc Process, status ExitStatus) Outcome {
	if status.Err != nil {
		stderr := proc.Stderr()
		if stderr == "" {
			stderr = status.Err.Error()
		}
		return RuntimeError(stderr, status.Code)
	}
	if status.Code == 0 {
		return Success(proc.Stdout())
	}
	return RuntimeError(proc.Stderr(), status.Code)
}

// kill marks the resolution as killed and kills the process if it exists yet.
// If it does not, watch kills it as soon as launch returns.
func (a *Arbiter) kill(r *resolution) {
	if proc := r.requestKill(); proc != nil {
		a.killProcess(proc)
	}
}

func (a *Arbiter) killProcess(proc Process) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proc.Kill(ctx); err != nil {
		a.logger.Warn("failed to kill sandbox", slog.String("error", err.Error()))
	}
}

func (a *Arbiter) release(proc Process) {
	if err := proc.Close(); err != nil {
		a.logger.Warn("failed to release sandbox", slog.String("error", err.Error()))
	}
}

// resolution is the single-assignment guard shared by every event source.
type resolution struct {
	claimed atomic.Bool
	done    chan struct{} // closed by the claimant
	outcome chan Outcome  // receives exactly one value

	mu      sync.Mutex
	proc    Process
	killReq bool
}

func newResolution() *resolution {
	return &resolution{
		done:    make(chan struct{}),
		outcome: make(chan Outcome, 1),
	}
}

// claim reports whether the caller won the race. Only the winner may deliver.
func (r *resolution) claim() bool {
	if !r.claimed.CompareAndSwap(false, true) {
		return false
	}
	close(r.done)
	return true
}

func (r *resolution) deliver(o Outcome) {
	r.outcome <- o
}

// attach records the launched process and reports whether it must be killed
// immediately because a kill was requested before it existed.
func (r *resolution) attach(proc Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proc = proc
	return r.killReq
}

func (r *resolution) requestKill() Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killReq = true
	return r.proc
}
