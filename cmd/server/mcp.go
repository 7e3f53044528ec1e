package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/language"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the sandbox as an MCP tool over stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout belongs to the protocol.
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	languages, err := language.Load(cfg.Sandbox.LanguagesFile)
	if err != nil {
		return err
	}

	exec, closeExec := newExecutor(cfg.Sandbox, languages, logger)
	if closeExec != nil {
		defer closeExec.Close()
	}

	s := mcpserver.NewMCPServer("tomato-slides-sandbox", "0.1.0")
	s.AddTool(codeRunTool(languages), codeRunHandler(exec))

	return mcpserver.ServeStdio(s)
}

func codeRunTool(languages *language.Registry) mcp.Tool {
	ids := languages.IDs()
	enum := make([]any, len(ids))
	for i, id := range ids {
		enum[i] = id
	}

	return mcp.Tool{
		Name: "code_run",
		Description: fmt.Sprintf("Run a short program in an isolated container (no network, %v) and return its output. "+
			"Programs that do not finish in time are killed.", ids),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Complete source of the program; it is saved as Main.<ext>",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language id",
					"enum":        enum,
				},
			},
			Required: []string{"code", "language"},
		},
	}
}

func codeRunHandler(exec executor.Executor) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		if args == nil {
			return toolError("error: invalid arguments"), nil
		}
		code, ok := args["code"].(string)
		if !ok {
			return toolError("error: 'code' argument must be a string"), nil
		}
		lang, ok := args["language"].(string)
		if !ok {
			return toolError("error: 'language' argument must be a string"), nil
		}

		res, err := exec.Execute(ctx, executor.ExecutionRequest{Code: code, Language: lang})
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) {
				return toolError("error: " + appErr.Message), nil
			}
			return toolError("error: " + err.Error()), nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: res.Output}},
			IsError: res.Kind != executor.KindSuccess,
		}, nil
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}
