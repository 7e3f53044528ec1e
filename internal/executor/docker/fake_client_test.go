package docker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeProgram is what runs "inside" a fake container.
type fakeProgram struct {
	stdout io.Writer
	stderr io.Writer
	pw     *io.PipeWriter
	exit   chan container.WaitResponse
	once   sync.Once
}

func (p *fakeProgram) Print(s string)  { _, _ = p.stdout.Write([]byte(s)) }
func (p *fakeProgram) EPrint(s string) { _, _ = p.stderr.Write([]byte(s)) }

// Exit closes the output stream and reports the status, like a real process exit.
func (p *fakeProgram) Exit(code int64) {
	p.once.Do(func() {
		_ = p.pw.Close()
		p.exit <- container.WaitResponse{StatusCode: code}
	})
}

type createCall struct {
	id         string
	name       string
	config     *container.Config
	hostConfig *container.HostConfig
}

type fakeDockerClient struct {
	mu          sync.Mutex
	nextID      int
	imagePulls  []string
	createCalls []createCall
	programs    map[string]*fakeProgram
	pipes       map[string]*io.PipeReader
	kills       []string
	removed     []string
	closed      bool

	createErr error
	startErr  error
	// script runs when a container starts. A script that returns without
	// calling Exit behaves like an infinite loop.
	script  func(p *fakeProgram)
	created chan string
}

func newFakeDockerClient(script func(p *fakeProgram)) *fakeDockerClient {
	return &fakeDockerClient{
		programs: make(map[string]*fakeProgram),
		pipes:    make(map[string]*io.PipeReader),
		script:   script,
		created:  make(chan string, 16),
	}
}

func (f *fakeDockerClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	f.imagePulls = append(f.imagePulls, ref)
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader([]byte(`{"status":"done"}`))), nil
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}

	f.mu.Lock()
	id := fmt.Sprintf("container-%d", f.nextID)
	f.nextID++
	f.createCalls = append(f.createCalls, createCall{id: id, name: containerName, config: config, hostConfig: hostConfig})

	pr, pw := io.Pipe()
	f.pipes[id] = pr
	f.programs[id] = &fakeProgram{
		stdout: stdcopy.NewStdWriter(pw, stdcopy.Stdout),
		stderr: stdcopy.NewStdWriter(pw, stdcopy.Stderr),
		pw:     pw,
		exit:   make(chan container.WaitResponse, 1),
	}
	f.mu.Unlock()

	f.created <- id
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDockerClient) ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	pr := f.pipes[containerID]
	f.mu.Unlock()
	return types.HijackedResponse{Conn: &fakeConn{r: pr}, Reader: bufio.NewReader(pr)}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	if f.startErr != nil {
		return f.startErr
	}
	prog := f.program(containerID)
	if f.script != nil {
		go f.script(prog)
	}
	return nil
}

func (f *fakeDockerClient) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	prog := f.program(containerID)

	go func() {
		select {
		case status := <-prog.exit:
			statusCh <- status
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return statusCh, errCh
}

func (f *fakeDockerClient) ContainerKill(ctx context.Context, containerID, signal string) error {
	f.mu.Lock()
	f.kills = append(f.kills, containerID+":"+signal)
	f.mu.Unlock()
	f.program(containerID).Exit(137)
	return nil
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	f.removed = append(f.removed, containerID)
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) program(id string) *fakeProgram {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.programs[id]
}

func (f *fakeDockerClient) snapshot() (creates []createCall, kills, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.createCalls...),
		append([]string(nil), f.kills...),
		append([]string(nil), f.removed...)
}

type fakeConn struct {
	r *io.PipeReader
}

func (c *fakeConn) Read(b []byte) (int, error)  { return c.r.Read(b) }
func (c *fakeConn) Write(b []byte) (int, error) { return len(b), nil }
func (c *fakeConn) Close() error                { return c.r.Close() }
func (c *fakeConn) CloseWrite() error           { return nil }

func (c *fakeConn) LocalAddr() net.Addr              { return fakeAddr("local") }
func (c *fakeConn) RemoteAddr() net.Addr             { return fakeAddr("remote") }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return string(a) }
func (a fakeAddr) String() string  { return string(a) }
