package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/tomato-slides/internal/apperror"
)

// Pool bounds how many sandboxes run at once. Each running container holds one
// slot from acquisition until its resources are released.
type Pool struct {
	slots  chan struct{}
	wait   time.Duration
	logger *slog.Logger
}

// NewPool creates a pool with cfg.MaxConcurrent slots.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	size := cfg.MaxConcurrent
	if size <= 0 {
		size = 1
	}
	return &Pool{
		slots:  make(chan struct{}, size),
		wait:   cfg.AdmissionWait,
		logger: logger,
	}
}

// Acquire takes a slot, waiting at most the configured admission wait. The
// returned release func must be called exactly once; extra calls are ignored.
// When no slot frees up in time it fails with ErrUnavailable; when ctx ends
// first the error wraps ctx.Err().
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case p.slots <- struct{}{}:
		return p.releaser(), nil
	default:
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		return p.releaser(), nil
	case <-timer.C:
		p.logger.Warn("sandbox capacity exhausted",
			slog.Int("capacity", cap(p.slots)),
			slog.Duration("waited", p.wait),
		)
		return nil, apperror.Unavailable(fmt.Sprintf("all %d sandboxes are busy, try again shortly", cap(p.slots)))
	case <-ctx.Done():
		return nil, fmt.Errorf("docker: waiting for a sandbox slot: %w", ctx.Err())
	}
}

func (p *Pool) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-p.slots })
	}
}

// InUse returns the number of occupied slots.
func (p *Pool) InUse() int {
	return len(p.slots)
}

// Capacity returns the total number of slots.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}
