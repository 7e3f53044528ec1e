package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/language"
)

// OutcomeHeader carries the outcome kind next to the plain {output} body, so
// clients can tell a timeout from a program that printed the same text.
const OutcomeHeader = "X-Execution-Outcome"

// RunResponse is the body of POST /api/run. Every outcome, failures included,
// is rendered as output text.
type RunResponse struct {
	Output string `json:"output"`
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	exec      executor.Executor
	languages *language.Registry
	logger    *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exec executor.Executor, languages *language.Registry, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:      exec,
		languages: languages,
		logger:    logger,
	}
}

// HandleRun runs one submission and replies with its output.
//
// 400: missing code, missing or unsupported language, malformed body
// 503: no sandbox slot freed up in time
// 200: everything else, including timeouts and sandbox failures
func (h *ExecuteHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(OutcomeHeader, string(result.Kind))
	writeJSON(w, http.StatusOK, RunResponse{Output: result.Output})
}

// HandleLanguages lists the languages the sandbox accepts.
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"languages": h.languages.IDs()})
}
