// Package harness starts a TTS backend as a child process, waits until it
// answers Health, and tears it down again.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/cenkalti/backoff/v5"
	"google.golang.org/grpc"
	grpcbackoff "google.golang.org/grpc/backoff"
)

const (
	DefaultAddr           = "localhost:50051"
	DefaultStartupTimeout = 30 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultMaxPoll        = 2 * time.Second
	DefaultRPCTimeout     = 2 * time.Second
	DefaultStopTimeout    = 10 * time.Second

	addrFlag = "--addr"
)

var (
	// ErrCommandEmpty indicates Options without a command to run.
	ErrCommandEmpty = errors.New("backend command cannot be empty")
	// ErrStartupTimeout indicates that the backend never became healthy within the startup timeout.
	ErrStartupTimeout = errors.New("backend did not become healthy in time")
	// ErrProcessExited indicates that the backend exited before becoming healthy.
	ErrProcessExited = errors.New("backend process exited before becoming healthy")
	// ErrUnhealthy indicates a Health reply other than OK.
	ErrUnhealthy = errors.New("backend reported unhealthy")
	// ErrStopTimeout indicates that the backend ignored SIGTERM and had to be killed.
	ErrStopTimeout = errors.New("backend did not stop in time and was killed")

	errCleanExit = errors.New("exit status 0")
)

// Options describes the backend process and how patiently to wait for it.
type Options struct {
	// Command is the backend executable. It is started as Command Args... --addr Addr.
	Command string
	Args    []string
	Addr    string
	// Env is appended to the current environment.
	Env []string

	StartupTimeout time.Duration
	PollInterval   time.Duration
	RPCTimeout     time.Duration
	StopTimeout    time.Duration

	// Stdout and Stderr receive the backend's output; nil means os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// Output receives harness diagnostics; nil discards them.
	Output io.Writer

	// DialOptions are passed to backend.Dial after the defaults.
	DialOptions []grpc.DialOption
}

func (o *Options) applyDefaults() {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}

	if o.StartupTimeout <= 0 {
		o.StartupTimeout = DefaultStartupTimeout
	}

	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}

	if o.RPCTimeout <= 0 {
		o.RPCTimeout = DefaultRPCTimeout
	}

	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}

	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}

	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}

	if o.Output == nil {
		o.Output = io.Discard
	}
}

// Process is a running backend with a connected client.
type Process struct {
	opts   Options
	cmd    *exec.Cmd
	conn   *grpc.ClientConn
	client backend.BackendClient

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Start spawns the backend and blocks until Health returns OK. On any error
// the child process has already been stopped.
func Start(ctx context.Context, opts Options) (*Process, error) {
	if opts.Command == "" {
		return nil, ErrCommandEmpty
	}

	opts.applyDefaults()

	args := make([]string, 0, len(opts.Args)+2)
	args = append(args, opts.Args...)
	args = append(args, addrFlag, opts.Addr)

	cmd := exec.Command(opts.Command, args...) //nolint:gosec // the command is the backend under test
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.Env = append(os.Environ(), opts.Env...)

	fmt.Fprintf(opts.Output, "Starting backend: %s\n", cmd.String())

	err := cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start backend %s: %w", opts.Command, err)
	}

	proc := &Process{
		opts:   opts,
		cmd:    cmd,
		exited: make(chan struct{}),
	}

	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.exited)
	}()

	dialOpts := append([]grpc.DialOption{
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: grpcbackoff.Config{
				BaseDelay:  opts.PollInterval,
				Multiplier: grpcbackoff.DefaultConfig.Multiplier,
				Jitter:     grpcbackoff.DefaultConfig.Jitter,
				MaxDelay:   max(DefaultMaxPoll, opts.PollInterval),
			},
			MinConnectTimeout: opts.RPCTimeout,
		}),
	}, opts.DialOptions...)

	conn, err := backend.Dial(opts.Addr, dialOpts...)
	if err != nil {
		_ = proc.Stop()

		return nil, fmt.Errorf("failed to create client for %s: %w", opts.Addr, err)
	}

	proc.conn = conn
	proc.client = backend.NewBackendClient(conn)

	err = proc.waitHealthy(ctx)
	if err != nil {
		_ = proc.Stop()

		return nil, err
	}

	return proc, nil
}

// waitHealthy polls Health with exponential backoff until OK, the process
// exits, or the startup timeout elapses.
func (p *Process) waitHealthy(ctx context.Context) error {
	startedAt := time.Now()
	attempts := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.opts.PollInterval
	policy.MaxInterval = max(DefaultMaxPoll, p.opts.PollInterval)

	operation := func() (struct{}, error) {
		attempts++

		if p.hasExited() {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrProcessExited, p.exitError()))
		}

		return struct{}{}, p.checkHealth(ctx)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(p.opts.StartupTimeout),
	)

	if err != nil && p.hasExited() && !errors.Is(err, ErrProcessExited) {
		err = fmt.Errorf("%w: %w", ErrProcessExited, p.exitError())
	}

	switch {
	case err == nil:
		fmt.Fprintf(p.opts.Output, "Backend at %s healthy after %d attempt(s) in %s\n",
			p.opts.Addr, attempts, time.Since(startedAt).Round(time.Millisecond))

		return nil
	case errors.Is(err, ErrProcessExited):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("waiting for backend at %s: %w", p.opts.Addr, ctx.Err())
	default:
		return fmt.Errorf("%w: %s at %s, result of last query was: %w",
			ErrStartupTimeout, p.opts.StartupTimeout, p.opts.Addr, err)
	}
}

func (p *Process) checkHealth(ctx context.Context) error {
	rpcCtx, cancel := context.WithTimeout(ctx, p.opts.RPCTimeout)
	defer cancel()

	reply, err := p.client.Health(rpcCtx, &backend.HealthMessage{})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if string(reply.Message) != backend.HealthOK {
		return fmt.Errorf("%w: message %q", ErrUnhealthy, reply.Message)
	}

	return nil
}

func (p *Process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *Process) exitError() error {
	if p.waitErr != nil {
		return p.waitErr
	}

	return errCleanExit
}

// Client returns the client connected to the backend.
func (p *Process) Client() backend.BackendClient {
	return p.client
}

// Addr returns the address the backend was told to listen on.
func (p *Process) Addr() string {
	return p.opts.Addr
}

// Pid returns the backend's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited is closed once the backend process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Stop closes the client, sends SIGTERM, and kills the backend if it is
// still running after the stop timeout. Calling Stop more than once returns
// the first result.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})

	return p.stopErr
}

func (p *Process) stop() error {
	if p.conn != nil {
		_ = p.conn.Close()
	}

	if p.hasExited() {
		return nil
	}

	fmt.Fprintf(p.opts.Output, "Stopping backend (pid %d)\n", p.cmd.Process.Pid)

	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}

	timer := time.NewTimer(p.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	}

	killErr := p.cmd.Process.Kill()
	<-p.exited

	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return fmt.Errorf("%w: %w", ErrStopTimeout, killErr)
	}

	return ErrStopTimeout
}
