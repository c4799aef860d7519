// main package for the tts-backend
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-backend/internal/config"
	"github.com/book-expert/tts-backend/internal/core"
	"github.com/book-expert/tts-backend/internal/metrics"
	"github.com/book-expert/tts-backend/internal/models"
	"github.com/book-expert/tts-backend/internal/objectstore"
	"github.com/book-expert/tts-backend/internal/server"
	"github.com/book-expert/tts-backend/internal/tts"
	"github.com/book-expert/tts-backend/internal/tts/text"
	"github.com/book-expert/tts-backend/internal/worker"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

// Flag names and descriptions.
const (
	flagAddr       = "addr"
	flagEngine     = "engine"
	flagModels     = "models"
	flagAddrDesc   = "Address the gRPC server listens on"
	flagEngineDesc = "Engine for models not listed in the models file (tone or exec)"
	flagModelsDesc = "YAML file listing the models the backend can load"
)

const (
	bootstrapLogFile = "tts-backend-bootstrap.log"
	logFile          = "tts-backend.log"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	addr   string
	engine string
	models string
}

// parseFlags parses args with the configuration values as defaults.
func parseFlags(args []string, cfg *config.Config) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("tts-backend", flag.ContinueOnError)
	flagSet.StringVar(&flags.addr, flagAddr, cfg.Backend.Addr, flagAddrDesc)
	flagSet.StringVar(&flags.engine, flagEngine, cfg.Backend.Engine, flagEngineDesc)
	flagSet.StringVar(&flags.models, flagModels, cfg.Backend.ModelsFile, flagModelsDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// applyFlags overrides the configuration with explicit flag values.
func applyFlags(cfg *config.Config, flags appFlags) {
	cfg.Backend.Addr = flags.addr
	cfg.Backend.Engine = flags.engine
	cfg.Backend.ModelsFile = flags.models
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// loadConfig reads the project configuration, falling back to defaults when
// no project file is available.
func loadConfig(bootstrapLog *logger.Logger) *config.Config {
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Warn("Using default configuration: %v", err)

		return config.Default()
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	return cfg
}

func run(ctx context.Context, args []string) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration, then let flags override it
	cfg := loadConfig(bootstrapLog)

	flags, err := parseFlags(args, cfg)
	if err != nil {
		return err
	}

	applyFlags(cfg, flags)

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	logDir := cfg.Paths.BaseLogsDir
	if logDir == "" {
		logDir = os.TempDir()
	}

	finalLog, err := setupLogger(logDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(ctx, cfg, finalLog)
}

// serve wires the engines, the service and its optional companions, and
// runs them until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	opts, err := serviceOptions(cfg, log)
	if err != nil {
		return err
	}

	var natsConnection *nats.Conn

	if cfg.NATS.Enabled {
		natsConnection, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		defer natsConnection.Close()

		store, storeErr := objectstore.New(ctx, natsConnection, cfg.NATS.AudioObjectStoreBucket)
		if storeErr != nil {
			return fmt.Errorf("failed to open object store: %w", storeErr)
		}

		opts.Store = store
	}

	service, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	defer func() {
		closeErr := service.Close()
		if closeErr != nil {
			log.Warn("Failed to close service: %v", closeErr)
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return service.ListenAndServe(groupCtx, cfg.Backend.Addr)
	})

	if cfg.Metrics.Addr != "" {
		group.Go(func() error {
			return metrics.NewExporter(cfg.Metrics.Addr, opts.Metrics).Serve(groupCtx)
		})
	}

	if natsConnection != nil {
		jobs := worker.NewNatsWorker(natsConnection, cfg.NATS.TextProcessedSubject, opts.Store, service, log)

		group.Go(func() error {
			return jobs.Run(groupCtx)
		})
	}

	log.System("TTS backend started on %s (engine %s)", cfg.Backend.Addr, cfg.Backend.Engine)

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("backend stopped: %w", err)
	}

	log.System("TTS backend stopped")

	return nil
}

// serviceOptions builds the engines, registry and normalizer the configuration asks for.
func serviceOptions(cfg *config.Config, log *logger.Logger) (server.Options, error) {
	toneLoader, err := tts.NewToneLoader(cfg.Engine.SampleRate)
	if err != nil {
		return server.Options{}, fmt.Errorf("failed to create tone engine: %w", err)
	}

	opts := server.Options{
		Loaders: map[string]core.ModelLoader{
			tts.EngineTone:    toneLoader,
			tts.EngineCommand: tts.NewCommandLoader(cfg.Engine.BinaryPath, log),
		},
		DefaultEngine:      cfg.Backend.Engine,
		DefaultTemperature: cfg.Engine.Temperature,
		DefaultTopP:        cfg.Engine.TopP,
		Metrics:            metrics.New(),
		Log:                log,
		SynthesisTimeout:   cfg.EngineTimeout(),
	}

	if cfg.Backend.ModelsFile != "" {
		registry, loadErr := models.LoadFile(cfg.Backend.ModelsFile, cfg.Backend.Engine)
		if loadErr != nil {
			return server.Options{}, fmt.Errorf("failed to load models file: %w", loadErr)
		}

		log.Info("Loaded %d model(s) from %s", len(registry.Names()), cfg.Backend.ModelsFile)
		opts.Registry = registry
	}

	if cfg.Backend.NormalizeText {
		opts.Normalizer = text.NewNormalizer()
	}

	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)

	err := run(ctx, os.Args[1:])

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
