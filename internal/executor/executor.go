// Package executor defines the code execution contract and the completion arbiter
// that turns a racing set of process events into exactly one Outcome.
//
// The Docker-backed implementation lives in the docker subpackage.
package executor

import (
	"context"
	"time"
)

// ExecutionRequest is one submission: source text plus the language to run it as.
type ExecutionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ExecutionResult is the terminal result of one ExecutionRequest.
type ExecutionResult struct {
	ID       string        `json:"id"`
	Language string        `json:"language"`
	Kind     Kind          `json:"kind"`
	Output   string        `json:"output"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Executor represents the core interface for running code in an isolated environment.
//
// Execute returns an error only when the request is rejected before any sandbox
// is involved (validation, capacity). Every accepted request yields a result,
// whatever happened to the sandboxed program.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
