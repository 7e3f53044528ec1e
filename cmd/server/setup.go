package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/sakif/tomato-slides/internal/config"
	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/executor/docker"
	"github.com/sakif/tomato-slides/internal/language"
)

// loadConfig reads the config and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, nil
}

// newLogger builds the process logger. Text goes through tint for readable
// console output, json through the standard JSON handler.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		})), nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// closer is satisfied by executors holding a docker client.
type closer interface {
	Close() error
}

// newExecutor connects to Docker. The server still starts without a daemon,
// in which case every run resolves as a launch failure.
func newExecutor(cfg config.SandboxConfig, languages *language.Registry, logger *slog.Logger) (executor.Executor, closer) {
	exec, err := docker.New(cfg.Docker(), languages, logger)
	if err != nil {
		logger.Warn("docker executor unavailable, code runs will fail",
			slog.String("error", err.Error()),
		)
		return executor.NewOffline(languages, err), nil
	}
	return exec, exec
}
