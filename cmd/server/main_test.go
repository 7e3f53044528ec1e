package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/config"
	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/language"
)

type stubExecutor struct {
	res *executor.ExecutionResult
	err error
	got executor.ExecutionRequest
}

func (s *stubExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	s.got = req
	return s.res, s.err
}

func callTool(t *testing.T, exec executor.Executor, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = "code_run"
	req.Params.Arguments = args

	res, err := codeRunHandler(exec)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	return res
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])

	buf.Reset()
	logger, err = newLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)
	logger.Debug("console line")
	assert.Contains(t, buf.String(), "console line")

	_, err = newLogger(config.LogConfig{Level: "loud", Format: "text"}, &buf)
	assert.Error(t, err)
}

func TestCodeRunTool(t *testing.T) {
	tool := codeRunTool(language.NewDefaultRegistry())

	assert.Equal(t, "code_run", tool.Name)
	assert.ElementsMatch(t, []string{"code", "language"}, tool.InputSchema.Required)
	langProp := tool.InputSchema.Properties["language"].(map[string]any)
	assert.Equal(t, []any{"java", "javascript", "python"}, langProp["enum"])
}

func TestCodeRunHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		exec := &stubExecutor{res: &executor.ExecutionResult{Kind: executor.KindSuccess, Output: "hi\n"}}
		res := callTool(t, exec, map[string]any{"code": "print('hi')", "language": "python"})

		assert.False(t, res.IsError)
		assert.Equal(t, "hi\n", textOf(t, res))
		assert.Equal(t, executor.ExecutionRequest{Code: "print('hi')", Language: "python"}, exec.got)
	})

	t.Run("timeout is a tool error", func(t *testing.T) {
		exec := &stubExecutor{res: &executor.ExecutionResult{Kind: executor.KindTimeout, Output: executor.TimeoutMessage}}
		res := callTool(t, exec, map[string]any{"code": "while True: pass", "language": "python"})

		assert.True(t, res.IsError)
		assert.Equal(t, executor.TimeoutMessage, textOf(t, res))
	})

	t.Run("validation error message", func(t *testing.T) {
		exec := &stubExecutor{err: apperror.ValidationFailed("language", `unsupported language "cobol"`)}
		res := callTool(t, exec, map[string]any{"code": "x", "language": "cobol"})

		assert.True(t, res.IsError)
		assert.Equal(t, `error: unsupported language "cobol"`, textOf(t, res))
	})

	t.Run("bad arguments", func(t *testing.T) {
		exec := &stubExecutor{}
		res := callTool(t, exec, map[string]any{"code": 42, "language": "python"})

		assert.True(t, res.IsError)
		assert.Contains(t, textOf(t, res), "'code'")
	})
}
