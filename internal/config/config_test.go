package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir runs the test from an empty directory so no stray tomato.yaml or .env
// is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	// Empty values are ignored, so a PORT from the host does not leak in.
	t.Setenv("PORT", "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, int64(100), cfg.Sandbox.MemoryLimitMB)
	assert.Equal(t, 0.5, cfg.Sandbox.CPULimit)
	assert.Equal(t, 8, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.AdmissionWait)
	assert.Equal(t, "temp", cfg.Sandbox.ScratchDir)
	assert.Equal(t, "data/tomato.db", cfg.Storage.DBPath)
	assert.Equal(t, "slides", cfg.Slides.Dir)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "text", cfg.Log.Format)
	// A classroom shares one NAT address; admission slots do the throttling.
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.Empty(t, cfg.RateLimit.TrustedProxies)

	d := cfg.Sandbox.Docker()
	assert.Equal(t, int64(100*1024*1024), d.MemoryLimit)
	assert.Equal(t, "/usr/src/app", d.Workdir)
}

func TestLoad_File(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  allowed_origins: ["https://class.example"]
sandbox:
  timeout: 5s
  max_concurrent: 2
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://class.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 2, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Sandbox.AdmissionWait)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tomato.yaml"), []byte("server:\n  port: 5050\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.Server.Port)
}

func TestLoad_Env(t *testing.T) {
	chdir(t)
	t.Setenv("TOMATO_SANDBOX_TIMEOUT", "7s")
	t.Setenv("TOMATO_AUTH_JWT_SECRET", "a-secret-of-sixteen+")
	t.Setenv("PORT", "8088")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "a-secret-of-sixteen+", cfg.Auth.JWTSecret)
	assert.Equal(t, 8088, cfg.Server.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TOMATO_SANDBOX_MAX_CONCURRENT=3\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TOMATO_SANDBOX_MAX_CONCURRENT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Sandbox.MaxConcurrent)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short secret", map[string]string{"TOMATO_AUTH_JWT_SECRET": "short"}},
		{"zero slots", map[string]string{"TOMATO_SANDBOX_MAX_CONCURRENT": "0"}},
		{"bad log format", map[string]string{"TOMATO_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdir(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}
