package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/language"
)

var languageFlag string

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a source file through the sandbox",
	Long: `Run a source file in the same sandbox the server uses and print what the
student would see. The language is taken from the file extension unless
--language is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Language id (python, javascript, java, ...)")
	rootCmd.AddCommand(runCmd)
}

func runFile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the program output only.
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	languages, err := language.Load(cfg.Sandbox.LanguagesFile)
	if err != nil {
		return err
	}

	path := args[0]
	lang := languageFlag
	if lang == "" {
		p, ok := languages.ByExtension(filepath.Ext(path))
		if !ok {
			return fmt.Errorf("cannot tell the language of %s, use --language (one of %v)", path, languages.IDs())
		}
		lang = p.ID
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	exec, closeExec := newExecutor(cfg.Sandbox, languages, logger)
	if closeExec != nil {
		defer closeExec.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := exec.Execute(ctx, executor.ExecutionRequest{Code: string(code), Language: lang})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), res.Output)
	if res.Kind != executor.KindSuccess {
		return fmt.Errorf("%s (%s)", res.Kind, res.Duration)
	}
	return nil
}
