package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess is a Process whose exit is driven by the test.
type fakeProcess struct {
	stdout, stderr string

	exited   chan ExitStatus
	exitOnce sync.Once

	kills  atomic.Int32
	closed chan struct{}
	// exitOnKill makes Kill behave like SIGKILL on a real container.
	exitOnKill bool
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		exited: make(chan ExitStatus, 1),
		closed: make(chan struct{}),
	}
}

func (p *fakeProcess) exit(status ExitStatus) {
	p.exitOnce.Do(func() { p.exited <- status })
}

func (p *fakeProcess) Exited() <-chan ExitStatus { return p.exited }
func (p *fakeProcess) Stdout() string            { return p.stdout }
func (p *fakeProcess) Stderr() string            { return p.stderr }

func (p *fakeProcess) Kill(context.Context) error {
	p.kills.Add(1)
	if p.exitOnKill {
		p.exit(ExitStatus{Code: 137})
	}
	return nil
}

func (p *fakeProcess) Close() error {
	close(p.closed)
	return nil
}

func (p *fakeProcess) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-p.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("process was never released")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func launchOf(p *fakeProcess) LaunchFunc {
	return func(context.Context) (Process, error) { return p, nil }
}

func TestSuperviseSuccess(t *testing.T) {
	proc := newFakeProcess()
	proc.stdout = "hi\n"
	proc.exit(ExitStatus{Code: 0})

	a := NewArbiter(time.Second, testLogger())
	got := a.Supervise(context.Background(), launchOf(proc))

	assert.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "hi\n", got.Output, "stdout must be passed through byte-for-byte")
	proc.waitClosed(t)
	assert.Zero(t, proc.kills.Load())
}

func TestSuperviseRuntimeError(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		status  ExitStatus
		wantOut string
	}{
		{
			name:    "stderr is reported verbatim",
			stderr:  "Traceback (most recent call last):\nZeroDivisionError: division by zero\n",
			status:  ExitStatus{Code: 1},
			wantOut: "Traceback (most recent call last):\nZeroDivisionError: division by zero\n",
		},
		{
			name:    "empty stderr gets a generic message",
			status:  ExitStatus{Code: 3},
			wantOut: "Process exited with status 3",
		},
		{
			name:    "wait error without stderr reports the error",
			status:  ExitStatus{Code: -1, Err: errors.New("connection reset")},
			wantOut: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newFakeProcess()
			proc.stderr = tt.stderr
			proc.exit(tt.status)

			got := NewArbiter(time.Second, testLogger()).Supervise(context.Background(), launchOf(proc))

			assert.Equal(t, KindRuntimeError, got.Kind)
			assert.Equal(t, tt.wantOut, got.Output)
		})
	}
}

func TestSuperviseTimeoutKillsProcess(t *testing.T) {
	proc := newFakeProcess()
	proc.exitOnKill = true

	start := time.Now()
	got := NewArbiter(50*time.Millisecond, testLogger()).Supervise(context.Background(), launchOf(proc))

	assert.Equal(t, KindTimeout, got.Kind)
	assert.Equal(t, TimeoutMessage, got.Output)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.EqualValues(t, 1, proc.kills.Load())
	proc.waitClosed(t)
}

func TestSuperviseTimeoutDuringLaunch(t *testing.T) {
	proc := newFakeProcess()
	proc.exitOnKill = true
	release := make(chan struct{})

	slowLaunch := func(context.Context) (Process, error) {
		<-release
		return proc, nil
	}

	got := NewArbiter(20*time.Millisecond, testLogger()).Supervise(context.Background(), slowLaunch)
	assert.Equal(t, KindTimeout, got.Kind)

	// The container shows up after the deadline: it must still be killed.
	close(release)
	proc.waitClosed(t)
	assert.EqualValues(t, 1, proc.kills.Load())
}

func TestSuperviseLaunchFailure(t *testing.T) {
	launchErr := errors.New("docker: Cannot connect to the Docker daemon")
	failing := func(context.Context) (Process, error) { return nil, launchErr }

	start := time.Now()
	got := NewArbiter(time.Second, testLogger()).Supervise(context.Background(), failing)

	assert.Equal(t, KindLaunchFailure, got.Kind)
	assert.Equal(t, LaunchFailureMessage, got.Output)
	assert.ErrorIs(t, got.Err, launchErr)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "launch failure resolves without waiting for the deadline")
}

func TestSuperviseCallerCancellation(t *testing.T) {
	proc := newFakeProcess()
	proc.exitOnKill = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	got := NewArbiter(5*time.Second, testLogger()).Supervise(ctx, launchOf(proc))

	assert.Equal(t, KindCanceled, got.Kind)
	assert.EqualValues(t, 1, proc.kills.Load())
	proc.waitClosed(t)
}

func TestSuperviseExitAndDeadlineRace(t *testing.T) {
	// Exit and deadline fire at (nearly) the same instant. Whichever the guard
	// observes first wins; the outcome is always one of the two, never both.
	const deadline = 5 * time.Millisecond

	for i := 0; i < 200; i++ {
		proc := newFakeProcess()
		proc.stdout = "done\n"
		time.AfterFunc(deadline, func() { proc.exit(ExitStatus{Code: 0}) })

		got := NewArbiter(deadline, testLogger()).Supervise(context.Background(), launchOf(proc))

		switch got.Kind {
		case KindSuccess:
			assert.Equal(t, "done\n", got.Output)
			assert.Zero(t, proc.kills.Load(), "the losing deadline must not kill")
		case KindTimeout:
			assert.EqualValues(t, 1, proc.kills.Load())
		default:
			t.Fatalf("iteration %d: unexpected outcome %q", i, got.Kind)
		}
		proc.waitClosed(t)
	}
}

func TestResolutionClaimIsSingleAssignment(t *testing.T) {
	r := newResolution()

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if r.claim() {
				wins.Add(1)
				r.deliver(RuntimeError("", i))
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	assert.Len(t, r.outcome, 1)
	select {
	case <-r.done:
	default:
		t.Fatal("done must be closed after a claim")
	}
}

func TestNewArbiterDefaultsDeadline(t *testing.T) {
	assert.Equal(t, DefaultDeadline, NewArbiter(0, testLogger()).Deadline())
}
