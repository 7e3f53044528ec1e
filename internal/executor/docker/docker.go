// Package docker runs submissions in throwaway Docker containers.
//
// One execution is: validate -> take a sandbox slot -> write the workspace ->
// launch a container under the completion arbiter -> return its single outcome.
// The slot and workspace are released only once the container itself is gone.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/rs/xid"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/language"
	"github.com/sakif/tomato-slides/internal/metrics"
	"github.com/sakif/tomato-slides/internal/workspace"
)

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli       dockerClient
	config    Config
	logger    *slog.Logger
	languages *language.Registry
	preparer  *workspace.Preparer
	launcher  *Launcher
	arbiter   *executor.Arbiter
	pool      *Pool
}

var _ executor.Executor = (*Executor)(nil)

// New creates a new Docker Executor and initializes the connection.
func New(cfg Config, languages *language.Registry, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	exec, err := newWithClient(cli, cfg, languages, logger)
	if err != nil {
		cli.Close()
		return nil, err
	}

	if cfg.PullImages {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		exec.PullImages(ctx)
	}

	return exec, nil
}

func newWithClient(cli dockerClient, cfg Config, languages *language.Registry, logger *slog.Logger) (*Executor, error) {
	preparer, err := workspace.NewPreparer(cfg.ScratchDir)
	if err != nil {
		return nil, err
	}

	return &Executor{
		cli:       cli,
		config:    cfg,
		logger:    logger,
		languages: languages,
		preparer:  preparer,
		launcher:  NewLauncher(cli, cfg, logger),
		arbiter:   executor.NewArbiter(cfg.Timeout, logger),
		pool:      NewPool(cfg, logger),
	}, nil
}

// PullImages makes sure every language image is present. A missing image only
// breaks its own language (as a launch failure), so errors are logged, not returned.
func (e *Executor) PullImages(ctx context.Context) {
	for _, ref := range e.languages.Images() {
		e.logger.Info("ensuring docker image is available", slog.String("image", ref))
		reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			e.logger.Warn("failed to pull image", slog.String("image", ref), slog.String("error", err.Error()))
			continue
		}
		// Read everything to block until the pull is complete
		_, err = io.Copy(io.Discard, reader)
		reader.Close()
		if err != nil {
			e.logger.Warn("failed to pull image", slog.String("image", ref), slog.String("error", err.Error()))
			continue
		}
		e.logger.Info("docker image is ready", slog.String("image", ref))
	}
}

// Languages returns the registry this executor validates against.
func (e *Executor) Languages() *language.Registry {
	return e.languages
}

// Close shuts down the docker client.
func (e *Executor) Close() error {
	return e.cli.Close()
}

// Execute runs the submitted code in a sandboxed Docker container.
//
// Validation and capacity errors are returned before anything touches the disk
// or the daemon. Everything after that is folded into the result's Kind/Output,
// including a caller that went away while waiting for a slot.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if req.Code == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if req.Language == "" {
		return nil, apperror.ValidationFailed("language", "language is required")
	}
	profile, err := e.languages.Lookup(req.Language)
	if err != nil {
		return nil, err
	}

	id := xid.New().String()
	start := time.Now()

	// A caller that is already gone gets no container.
	if ctx.Err() != nil {
		return e.finish(id, profile, executor.Canceled(), start), nil
	}

	release, err := e.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return e.finish(id, profile, executor.Canceled(), start), nil
		}
		if errors.Is(err, apperror.ErrUnavailable) {
			metrics.AdmissionRejections.Inc()
		}
		return nil, err
	}
	metrics.SandboxesRunning.Inc()

	var ws *workspace.Workspace
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			if ws != nil {
				if err := ws.Remove(); err != nil {
					e.logger.Warn("failed to remove workspace", slog.String("execution", id), slog.String("error", err.Error()))
				}
			}
			release()
			metrics.SandboxesRunning.Dec()
		})
	}

	var outcome executor.Outcome
	ws, err = e.preparer.Prepare(id, req.Code, profile)
	switch {
	case err != nil:
		cleanup()
		outcome = executor.StorageFailure(err)
	case ctx.Err() != nil:
		cleanup()
		outcome = executor.Canceled()
	default:
		outcome = e.arbiter.Supervise(ctx, func(ctx context.Context) (executor.Process, error) {
			proc, err := e.launcher.Launch(ctx, ws, profile)
			if err != nil {
				cleanup()
				return nil, err
			}
			return &releasingProcess{Process: proc, release: cleanup}, nil
		})
	}

	return e.finish(id, profile, outcome, start), nil
}

// finish records one resolved execution and builds its result.
func (e *Executor) finish(id string, profile language.Profile, outcome executor.Outcome, start time.Time) *executor.ExecutionResult {
	duration := time.Since(start)
	metrics.ExecutionsTotal.WithLabelValues(profile.ID, string(outcome.Kind)).Inc()
	metrics.ExecutionDuration.WithLabelValues(profile.ID).Observe(duration.Seconds())

	attrs := []any{
		slog.String("execution", id),
		slog.String("language", profile.ID),
		slog.String("outcome", string(outcome.Kind)),
		slog.Duration("duration", duration),
	}
	if outcome.Err != nil {
		e.logger.Error("execution failed", append(attrs, slog.String("error", outcome.Err.Error()))...)
	} else {
		e.logger.Info("execution finished", attrs...)
	}

	return &executor.ExecutionResult{
		ID:       id,
		Language: profile.ID,
		Kind:     outcome.Kind,
		Output:   outcome.Output,
		ExitCode: outcome.ExitCode,
		Duration: duration,
	}
}

// releasingProcess frees the workspace and slot once the arbiter is done with
// the container.
type releasingProcess struct {
	executor.Process
	release func()
}

func (p *releasingProcess) Close() error {
	err := p.Process.Close()
	p.release()
	return err
}
