package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/language"
	"github.com/sakif/tomato-slides/internal/workspace"
)

const truncatedNotice = "\n... (output truncated)"

// Launcher starts one resource-capped container per execution.
type Launcher struct {
	cli    dockerClient
	config Config
	logger *slog.Logger
}

// NewLauncher creates a Launcher on top of a Docker client.
func NewLauncher(cli dockerClient, cfg Config, logger *slog.Logger) *Launcher {
	return &Launcher{cli: cli, config: cfg, logger: logger}
}

// Launch creates, attaches and starts a container that mounts ws and runs the
// profile's command on the workspace's source file. It returns as soon as the
// container is running; output is captured in the background.
//
// Any failure here means the sandbox never ran and is reported as ErrLaunch.
func (l *Launcher) Launch(ctx context.Context, ws *workspace.Workspace, profile language.Profile) (executor.Process, error) {
	pidsLimit := l.config.PidsLimit

	hostConfig := &container.HostConfig{
		Binds: []string{ws.Dir + ":" + l.config.Workdir},
		Resources: container.Resources{
			Memory:     l.config.MemoryLimit,
			MemorySwap: l.config.MemoryLimit,
			NanoCPUs:   int64(l.config.CPULimit * 1e9),
		},
		SecurityOpt: []string{"no-new-privileges"},
		AutoRemove:  false,
	}
	if pidsLimit > 0 {
		hostConfig.Resources.PidsLimit = &pidsLimit
	}
	if l.config.NetworkDisabled {
		hostConfig.NetworkMode = "none"
	}

	resp, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image:           profile.Image,
		Cmd:             []string{"sh", "-c", profile.Command(ws.FileName())},
		WorkingDir:      l.config.Workdir,
		AttachStdout:    true,
		AttachStderr:    true,
		Tty:             false,
		NetworkDisabled: l.config.NetworkDisabled,
		Labels: map[string]string{
			"tomato-slides.execution": ws.ID,
			"tomato-slides.language":  profile.ID,
		},
	}, hostConfig, nil, nil, "tomato-run-"+ws.ID)
	if err != nil {
		return nil, apperror.LaunchFailed("could not create sandbox container", err)
	}

	proc := &sandboxProcess{
		cli:    l.cli,
		id:     resp.ID,
		logger: l.logger,
		stdout: newCappedBuffer(l.config.MaxOutputBytes),
		stderr: newCappedBuffer(l.config.MaxOutputBytes),
		exited: make(chan executor.ExitStatus, 1),
	}

	// Attach before start so no early output is lost.
	attach, err := l.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		proc.remove()
		return nil, apperror.LaunchFailed("could not attach to sandbox container", err)
	}
	proc.attach = attach

	// The wait outlives Launch's ctx; it is cancelled when the process is closed.
	waitCtx, cancelWait := context.WithCancel(context.Background())
	proc.cancelWait = cancelWait
	statusCh, errCh := l.cli.ContainerWait(waitCtx, resp.ID, container.WaitConditionNextExit)

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		proc.Close()
		return nil, apperror.LaunchFailed("could not start sandbox container", err)
	}

	go proc.supervise(statusCh, errCh)

	l.logger.Debug("sandbox started",
		slog.String("container", shortID(resp.ID)),
		slog.String("execution", ws.ID),
		slog.String("image", profile.Image),
	)
	return proc, nil
}

// sandboxProcess is a running container owned by exactly one arbiter.
type sandboxProcess struct {
	cli    dockerClient
	id     string
	logger *slog.Logger

	attach     types.HijackedResponse
	cancelWait context.CancelFunc

	stdout *cappedBuffer
	stderr *cappedBuffer

	exited    chan executor.ExitStatus
	closeOnce sync.Once
}

var _ executor.Process = (*sandboxProcess)(nil)

// supervise drains the multiplexed output stream and reports the exit status
// once both the container has stopped and its output has been fully read.
func (p *sandboxProcess) supervise(statusCh <-chan container.WaitResponse, errCh <-chan error) {
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		if _, err := stdcopy.StdCopy(p.stdout, p.stderr, p.attach.Reader); err != nil {
			p.logger.Debug("sandbox stream ended", slog.String("container", shortID(p.id)), slog.String("error", err.Error()))
		}
	}()

	var status executor.ExitStatus
	select {
	case resp := <-statusCh:
		status.Code = int(resp.StatusCode)
		if resp.Error != nil && resp.Error.Message != "" {
			status.Err = fmt.Errorf("container error: %s", resp.Error.Message)
		}
	case err := <-errCh:
		status = executor.ExitStatus{Code: -1, Err: fmt.Errorf("wait for container: %w", err)}
	}

	// The attach stream hits EOF right after the container stops. If the daemon
	// never closes it, stop waiting so the exit is still reported.
	select {
	case <-copied:
	case <-time.After(2 * time.Second):
		p.logger.Warn("sandbox output stream did not close", slog.String("container", shortID(p.id)))
	}

	p.exited <- status
}

func (p *sandboxProcess) Exited() <-chan executor.ExitStatus { return p.exited }
func (p *sandboxProcess) Stdout() string                     { return p.stdout.String() }
func (p *sandboxProcess) Stderr() string                     { return p.stderr.String() }

// Kill sends SIGKILL; untrusted code may ignore anything gentler.
func (p *sandboxProcess) Kill(ctx context.Context) error {
	if err := p.cli.ContainerKill(ctx, p.id, "SIGKILL"); err != nil {
		return fmt.Errorf("docker: killing container %s: %w", shortID(p.id), err)
	}
	return nil
}

// Close detaches from the container and force-removes it. Safe to call twice.
func (p *sandboxProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.attach.Conn != nil {
			p.attach.Close()
		}
		if p.cancelWait != nil {
			p.cancelWait()
		}
		err = p.remove()
	})
	return err
}

func (p *sandboxProcess) remove() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, p.id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("docker: removing container %s: %w", shortID(p.id), err)
	}
	return nil
}

// cappedBuffer is a goroutine-safe buffer that keeps at most limit bytes.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

// Write always reports the full length so stdcopy keeps draining the stream.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + truncatedNotice
	}
	return b.buf.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
