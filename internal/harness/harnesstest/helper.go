// Package harnesstest turns a test binary into a TTS backend so harness and
// contract tests can spawn a real child process without a separate build.
package harnesstest

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/book-expert/tts-backend/internal/core"
	"github.com/book-expert/tts-backend/internal/harness"
	"github.com/book-expert/tts-backend/internal/server"
	"github.com/book-expert/tts-backend/internal/tts"
	"github.com/book-expert/tts-backend/internal/tts/text"
	"google.golang.org/grpc"
)

// ModeEnv selects the helper behavior when set in the child environment.
const ModeEnv = "TTS_BACKEND_HELPER_MODE"

// Helper behaviors.
const (
	// ModeServe runs a working backend on the tone engine.
	ModeServe = "serve"
	// ModeExit exits immediately with a non-zero status.
	ModeExit = "exit"
	// ModeHang starts but never listens.
	ModeHang = "hang"
	// ModeUnhealthy serves a Health that never answers OK.
	ModeUnhealthy = "unhealthy"
	// ModeIgnoreTerm serves normally but ignores SIGTERM.
	ModeIgnoreTerm = "ignore-term"
)

const (
	exitCodeHelper  = 3
	unhealthyStatus = "LOADING"
)

var (
	errUnknownMode   = errors.New("unknown helper mode")
	errExitRequested = errors.New("exiting as requested")
)

// MaybeRun runs the helper backend and exits the process when ModeEnv is
// set. Call it first thing in TestMain.
func MaybeRun() {
	mode := os.Getenv(ModeEnv)
	if mode == "" {
		return
	}

	err := run(mode, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "helper backend: %v\n", err)
		os.Exit(exitCodeHelper)
	}

	os.Exit(0)
}

// Options returns harness options that start this test binary as a backend
// in the given mode on a free loopback port.
func Options(mode string) (harness.Options, error) {
	executable, err := os.Executable()
	if err != nil {
		return harness.Options{}, fmt.Errorf("failed to locate test binary: %w", err)
	}

	addr, err := harness.FreeAddr()
	if err != nil {
		return harness.Options{}, fmt.Errorf("failed to find a free port: %w", err)
	}

	return harness.Options{
		Command:        executable,
		Addr:           addr,
		Env:            []string{ModeEnv + "=" + mode},
		StartupTimeout: 10 * time.Second,
		StopTimeout:    5 * time.Second,
	}, nil
}

func run(mode string, args []string) error {
	if mode == ModeExit {
		return errExitRequested
	}

	flags := flag.NewFlagSet("helper", flag.ContinueOnError)
	addr := flags.String("addr", harness.DefaultAddr, "listen address")

	err := flags.Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	switch mode {
	case ModeHang:
		signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
		defer stop()
		<-signalCtx.Done()

		return nil
	case ModeServe, ModeUnhealthy, ModeIgnoreTerm:
	default:
		return fmt.Errorf("%w: %s", errUnknownMode, mode)
	}

	log, err := logger.New(os.TempDir(), "tts-backend-helper.log")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() { _ = log.Close() }()

	toneLoader, err := tts.NewToneLoader(0)
	if err != nil {
		return fmt.Errorf("failed to create tone loader: %w", err)
	}

	service, err := server.New(server.Options{
		Loaders:       map[string]core.ModelLoader{tts.EngineTone: toneLoader},
		DefaultEngine: tts.EngineTone,
		Normalizer:    text.NewNormalizer(),
		Log:           log,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	defer func() { _ = service.Close() }()

	ctx := context.Background()

	if mode != ModeIgnoreTerm {
		var stop context.CancelFunc

		ctx, stop = signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
		defer stop()
	} else {
		signal.Ignore(syscall.SIGTERM)
	}

	if mode == ModeUnhealthy {
		return serveUnhealthy(ctx, *addr, service)
	}

	return service.ListenAndServe(ctx, *addr)
}

func serveUnhealthy(ctx context.Context, addr string, service *server.Service) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(backend.Codec{}))
	backend.RegisterBackendServer(grpcServer, unhealthyServer{Service: service})

	go func() {
		<-ctx.Done()
		grpcServer.Stop()
	}()

	return grpcServer.Serve(listener)
}

// unhealthyServer answers Health with a status other than OK.
type unhealthyServer struct {
	*server.Service
}

func (unhealthyServer) Health(context.Context, *backend.HealthMessage) (*backend.Reply, error) {
	return &backend.Reply{Message: []byte(unhealthyStatus)}, nil
}
