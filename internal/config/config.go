// Package config loads the server configuration.
//
// Sources, later ones winning:
//  1. built-in defaults
//  2. a YAML file (tomato.yaml in the working directory, or --config)
//  3. environment variables, TOMATO_<SECTION>_<KEY> (e.g. TOMATO_SANDBOX_TIMEOUT=5s),
//     including any loaded from a .env file
//
// PORT is honoured as well, for hosts that set it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sakif/tomato-slides/internal/executor/docker"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SandboxConfig struct {
	ScratchDir      string        `mapstructure:"scratch_dir"`
	Workdir         string        `mapstructure:"workdir"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MemoryLimitMB   int64         `mapstructure:"memory_limit_mb"`
	CPULimit        float64       `mapstructure:"cpu_limit"`
	PidsLimit       int64         `mapstructure:"pids_limit"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	AdmissionWait   time.Duration `mapstructure:"admission_wait"`
	MaxOutputBytes  int           `mapstructure:"max_output_bytes"`
	NetworkDisabled bool          `mapstructure:"network_disabled"`
	PullImages      bool          `mapstructure:"pull_images"`
	LanguagesFile   string        `mapstructure:"languages_file"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type SlidesConfig struct {
	Dir         string  `mapstructure:"dir"`
	UploadDir   string  `mapstructure:"upload_dir"`
	Scale       float64 `mapstructure:"scale"`
	Converter   string  `mapstructure:"converter"`
	MaxUploadMB int64   `mapstructure:"max_upload_mb"`
}

type AuthConfig struct {
	// JWTSecret enables presenter tokens when set.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type RateLimitConfig struct {
	// RPS of 0 disables rate limiting. A classroom usually shares one NAT
	// address, so it stays off unless the deployment can tell students apart.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Slides    SlidesConfig    `mapstructure:"slides"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// Load reads the configuration. path may be empty, in which case tomato.yaml is
// used if it exists.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOMATO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "TOMATO_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("binding PORT: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tomato")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := docker.DefaultConfig()

	v.SetDefault("server.port", 4000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("sandbox.scratch_dir", d.ScratchDir)
	v.SetDefault("sandbox.workdir", d.Workdir)
	v.SetDefault("sandbox.timeout", d.Timeout)
	v.SetDefault("sandbox.memory_limit_mb", d.MemoryLimit/(1024*1024))
	v.SetDefault("sandbox.cpu_limit", d.CPULimit)
	v.SetDefault("sandbox.pids_limit", d.PidsLimit)
	v.SetDefault("sandbox.max_concurrent", d.MaxConcurrent)
	v.SetDefault("sandbox.admission_wait", d.AdmissionWait)
	v.SetDefault("sandbox.max_output_bytes", d.MaxOutputBytes)
	v.SetDefault("sandbox.network_disabled", d.NetworkDisabled)
	v.SetDefault("sandbox.pull_images", d.PullImages)
	v.SetDefault("sandbox.languages_file", "")

	v.SetDefault("storage.db_path", "data/tomato.db")

	v.SetDefault("slides.dir", "slides")
	v.SetDefault("slides.upload_dir", "uploads")
	v.SetDefault("slides.scale", 3.0)
	v.SetDefault("slides.converter", "pdftoppm")
	v.SetDefault("slides.max_upload_mb", 50)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("rate_limit.rps", 0.0)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("rate_limit.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	case c.Sandbox.Timeout <= 0:
		return fmt.Errorf("config: sandbox.timeout must be positive")
	case c.Sandbox.MaxConcurrent <= 0:
		return fmt.Errorf("config: sandbox.max_concurrent must be positive")
	case c.Sandbox.MemoryLimitMB <= 0:
		return fmt.Errorf("config: sandbox.memory_limit_mb must be positive")
	case c.Sandbox.CPULimit <= 0:
		return fmt.Errorf("config: sandbox.cpu_limit must be positive")
	case c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16:
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters")
	case c.RateLimit.RPS < 0:
		return fmt.Errorf("config: rate_limit.rps must not be negative")
	case c.Log.Format != "text" && c.Log.Format != "json":
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Docker converts the sandbox section into the executor's configuration.
func (s SandboxConfig) Docker() docker.Config {
	return docker.Config{
		ScratchDir:      s.ScratchDir,
		Workdir:         s.Workdir,
		MemoryLimit:     s.MemoryLimitMB * 1024 * 1024,
		CPULimit:        s.CPULimit,
		PidsLimit:       s.PidsLimit,
		Timeout:         s.Timeout,
		MaxConcurrent:   s.MaxConcurrent,
		AdmissionWait:   s.AdmissionWait,
		MaxOutputBytes:  s.MaxOutputBytes,
		NetworkDisabled: s.NetworkDisabled,
		PullImages:      s.PullImages,
	}
}
