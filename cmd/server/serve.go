package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/tomato-slides/internal/auth"
	"github.com/sakif/tomato-slides/internal/language"
	"github.com/sakif/tomato-slides/internal/server"
	"github.com/sakif/tomato-slides/internal/service"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	languages, err := language.Load(cfg.Sandbox.LanguagesFile)
	if err != nil {
		return err
	}

	// The "data" directory is created on first start, like `mkdir -p`.
	dbDir := filepath.Dir(cfg.Storage.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}

	exec, closeExec := newExecutor(cfg.Sandbox, languages, logger)
	if closeExec != nil {
		defer closeExec.Close()
	}

	var tokens *auth.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("auth.jwt_secret not set, anyone may change slides and read the dashboard")
	}

	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DBPath:          cfg.Storage.DBPath,
		SlidesDir:       cfg.Slides.Dir,
		UploadDir:       cfg.Slides.UploadDir,
		MaxUploadBytes:  cfg.Slides.MaxUploadMB * 1024 * 1024,
		RateLimitRPS:    cfg.RateLimit.RPS,
		RateLimitBurst:  cfg.RateLimit.Burst,
		TrustedProxies:  cfg.RateLimit.TrustedProxies,
	}, server.Dependencies{
		Executor:  exec,
		Languages: languages,
		Converter: service.NewPdftoppmConverter(cfg.Slides.Converter, cfg.Slides.Scale, 0),
		Tokens:    tokens,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("sandbox ready",
		slog.Any("languages", languages.IDs()),
		slog.Duration("timeout", cfg.Sandbox.Timeout),
		slog.Int("max_concurrent", cfg.Sandbox.MaxConcurrent),
	)

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}
