// Package main is the entry point for the tomato-slides backend.
//
// The main package stays small: it reads configuration, builds the
// dependencies (logger, language registry, sandbox executor, token service)
// and hands them to internal/server. Everything else lives in internal/.
//
//	tomato-slides                 serve the HTTP API
//	tomato-slides run main.py     run one file through the sandbox
//	tomato-slides mcp             expose the sandbox as an MCP tool over stdio
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tomato-slides",
	Short: "tomato-slides - classroom slides with runnable code",
	Long: `tomato-slides serves slide decks, keeps every viewer on the presenter's slide
and runs student code in throwaway Docker containers.

Without a subcommand it starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file (default ./tomato.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
