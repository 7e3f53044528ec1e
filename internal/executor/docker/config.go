package docker

import (
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// ScratchDir is the host directory holding per-execution workspaces. It is
	// bind-mounted into containers, so it must be visible to the Docker daemon.
	ScratchDir string
	// Workdir is where the workspace is mounted inside the container.
	Workdir string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PidsLimit caps processes inside the container (fork bombs).
	PidsLimit int64
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration
	// MaxConcurrent is the number of sandboxes allowed to run at once.
	MaxConcurrent int
	// AdmissionWait is how long a request may wait for a free slot.
	AdmissionWait time.Duration
	// MaxOutputBytes caps each captured stream; the rest is dropped.
	MaxOutputBytes int
	// NetworkDisabled runs containers with no network.
	NetworkDisabled bool
	// PullImages pulls every language image when the executor starts.
	PullImages bool
}

// DefaultConfig mirrors the limits the classroom server has always used:
// 100 MB of memory, half a CPU and three seconds.
func DefaultConfig() Config {
	return Config{
		ScratchDir:      "temp",
		Workdir:         "/usr/src/app",
		MemoryLimit:     100 * 1024 * 1024,
		CPULimit:        0.5,
		PidsLimit:       64,
		Timeout:         3 * time.Second,
		MaxConcurrent:   8,
		AdmissionWait:   2 * time.Second,
		MaxOutputBytes:  1 << 20,
		NetworkDisabled: true,
		PullImages:      true,
	}
}
