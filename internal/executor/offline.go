package executor

import (
	"context"

	"github.com/rs/xid"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/language"
)

// Offline stands in when no container runtime could be reached at startup.
// Requests are still validated; every accepted one resolves as a launch failure,
// so the rest of the server keeps working.
type Offline struct {
	languages *language.Registry
	err       error
}

var _ Executor = (*Offline)(nil)

// NewOffline returns an Executor that reports err as a launch failure.
func NewOffline(languages *language.Registry, err error) *Offline {
	return &Offline{languages: languages, err: err}
}

func (o *Offline) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if req.Code == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	profile, err := o.languages.Lookup(req.Language)
	if err != nil {
		return nil, err
	}

	outcome := LaunchFailure(o.err)
	return &ExecutionResult{
		ID:       xid.New().String(),
		Language: profile.ID,
		Kind:     outcome.Kind,
		Output:   outcome.Output,
		ExitCode: outcome.ExitCode,
	}, nil
}
