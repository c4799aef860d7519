// Package server implements the Backend RPC service on top of the TTS model loaders.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/book-expert/tts-backend/internal/core"
	"github.com/book-expert/tts-backend/internal/metrics"
	"github.com/book-expert/tts-backend/internal/models"
	"github.com/book-expert/tts-backend/internal/tts"
	"github.com/book-expert/tts-backend/internal/tts/text"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultSynthesisTimeout = 5 * time.Minute
	defaultShutdownTimeout  = 10 * time.Second

	dirPermissions  = 0o750
	filePermissions = 0o600

	errFmtUnexpected = "Unexpected err=%v"
)

var (
	// ErrNoModelLoaded indicates a TTS call before any successful LoadModel.
	ErrNoModelLoaded = errors.New("no model loaded")
	// ErrNoLoaders indicates a service configured without any engine.
	ErrNoLoaders = errors.New("at least one model loader is required")
	// ErrLoggerRequired indicates a service configured without a logger.
	ErrLoggerRequired = errors.New("logger is required")
	// ErrModelMismatch indicates a TTS request naming a model other than the loaded one.
	ErrModelMismatch = errors.New("requested model is not loaded")
)

// Options configures a Service.
type Options struct {
	// Loaders maps engine names to the loaders that serve them.
	Loaders map[string]core.ModelLoader

	// Registry resolves requested model names; nil resolves every name to DefaultEngine.
	Registry      *models.Registry
	DefaultEngine string

	// Store receives synthesized audio when a TTS request has no destination path.
	Store core.ObjectStore

	// Normalizer rewrites text before synthesis; nil passes text through.
	Normalizer *text.Normalizer

	// DefaultTemperature and DefaultTopP apply when a load or request leaves them unset.
	DefaultTemperature float64
	DefaultTopP        float64

	Metrics          *metrics.Metrics
	Log              *logger.Logger
	SynthesisTimeout time.Duration
	ShutdownTimeout  time.Duration
}

// Service implements backend.BackendServer and core.Synthesizer.
// At most one model is loaded at a time.
type Service struct {
	opts Options

	mu           sync.RWMutex
	loaded       core.TTSProcessor
	loadedName   string
	loadedEngine string
}

var (
	_ backend.BackendServer = (*Service)(nil)
	_ core.Synthesizer      = (*Service)(nil)
)

// New validates opts and creates a Service.
func New(opts Options) (*Service, error) {
	if len(opts.Loaders) == 0 {
		return nil, ErrNoLoaders
	}

	if opts.Log == nil {
		return nil, ErrLoggerRequired
	}

	if opts.DefaultEngine == "" {
		opts.DefaultEngine = tts.EngineTone
	}

	if opts.Registry == nil {
		opts.Registry = models.NewRegistry(opts.DefaultEngine)
	}

	available := func(engine string) bool {
		_, ok := opts.Loaders[engine]

		return ok
	}

	err := opts.Registry.CheckEngines(available)
	if err != nil {
		return nil, fmt.Errorf("invalid model registry: %w", err)
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	if opts.SynthesisTimeout <= 0 {
		opts.SynthesisTimeout = defaultSynthesisTimeout
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Service{opts: opts}, nil
}

// Health reports that the service is up.
func (s *Service) Health(_ context.Context, _ *backend.HealthMessage) (*backend.Reply, error) {
	return &backend.Reply{Message: []byte(backend.HealthOK)}, nil
}

// LoadModel resolves and loads the requested model, replacing the current one.
// Loading the model that is already loaded is a no-op.
func (s *Service) LoadModel(ctx context.Context, req *backend.ModelOptions) (*backend.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded != nil && s.loadedName == req.Model {
		s.opts.Log.Info("Model %s already loaded", req.Model)

		return &backend.Result{Success: true, Message: backend.ModelLoadedMessage}, nil
	}

	engine, processor, err := s.load(ctx, req)
	if err != nil {
		s.opts.Metrics.ModelLoads.WithLabelValues(engine, metrics.OutcomeFailure).Inc()
		s.opts.Log.Error("Failed to load model '%s': %v", req.Model, err)

		return failure(err), nil
	}

	if s.loaded != nil {
		closeErr := s.loaded.Close()
		if closeErr != nil {
			s.opts.Log.Warn("Failed to close model %s: %v", s.loadedName, closeErr)
		}
	}

	s.loaded = processor
	s.loadedName = req.Model
	s.loadedEngine = engine

	s.opts.Metrics.ModelLoads.WithLabelValues(engine, metrics.OutcomeSuccess).Inc()
	s.opts.Log.Info("Model %s loaded with engine %s", req.Model, engine)

	return &backend.Result{Success: true, Message: backend.ModelLoadedMessage}, nil
}

func (s *Service) load(ctx context.Context, req *backend.ModelOptions) (string, core.TTSProcessor, error) {
	entry, err := s.opts.Registry.Resolve(req.Model)
	if err != nil {
		return s.opts.DefaultEngine, nil, err
	}

	loader, ok := s.opts.Loaders[entry.Engine]
	if !ok {
		return entry.Engine, nil, fmt.Errorf("%w: %q", models.ErrUnknownEngine, entry.Engine)
	}

	cfg := core.TTSConfig{
		Model:       entry.Model,
		ModelFile:   firstNonEmpty(req.ModelFile, entry.ModelFile),
		Voice:       firstNonEmpty(req.Voice, entry.Voice),
		Language:    firstNonEmpty(req.Language, entry.Language),
		Seed:        req.Seed,
		Temperature: req.Temperature,
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = s.opts.DefaultTemperature
	}

	if cfg.TopP == 0 {
		cfg.TopP = s.opts.DefaultTopP
	}

	processor, err := loader.Load(ctx, cfg)
	if err != nil {
		return entry.Engine, nil, err
	}

	return entry.Engine, processor, nil
}

// TTS synthesizes the request text with the loaded model and delivers the WAV
// to the destination path, the object store, or inline, in that order.
func (s *Service) TTS(ctx context.Context, req *backend.TTSRequest) (*backend.Result, error) {
	wav, err := s.synthesize(ctx, req.Model, req.Text, core.TTSConfig{Voice: req.Voice, Language: req.Language})
	if err != nil {
		s.opts.Metrics.Syntheses.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.opts.Log.Error("TTS failed: %v", err)

		return failure(err), nil
	}

	result, err := s.deliver(ctx, req.Dst, wav)
	if err != nil {
		s.opts.Metrics.Syntheses.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.opts.Log.Error("Failed to deliver audio: %v", err)

		return failure(err), nil
	}

	s.opts.Metrics.Syntheses.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.opts.Metrics.AudioBytes.Add(float64(len(wav)))

	return result, nil
}

func (s *Service) deliver(ctx context.Context, dst string, wav []byte) (*backend.Result, error) {
	if dst != "" {
		dirErr := os.MkdirAll(filepath.Dir(dst), dirPermissions)
		if dirErr != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", dirErr)
		}

		writeErr := os.WriteFile(dst, wav, filePermissions)
		if writeErr != nil {
			return nil, fmt.Errorf("failed to write audio file: %w", writeErr)
		}

		s.opts.Log.Info("Generated audio: %s (%d bytes)", dst, len(wav))

		return &backend.Result{Success: true, Message: dst}, nil
	}

	if s.opts.Store != nil {
		key := uuid.NewString() + ".wav"

		uploadErr := s.opts.Store.Upload(ctx, key, wav)
		if uploadErr != nil {
			return nil, fmt.Errorf("failed to upload audio for key '%s': %w", key, uploadErr)
		}

		s.opts.Log.Info("Uploaded audio: %s (%d bytes)", key, len(wav))

		return &backend.Result{Success: true, Message: key}, nil
	}

	return &backend.Result{Success: true, Audio: wav}, nil
}

// Synthesize runs the loaded model on text. Fields left empty in cfg fall
// back to the values the model was loaded with.
func (s *Service) Synthesize(ctx context.Context, input string, cfg core.TTSConfig) ([]byte, error) {
	return s.synthesize(ctx, "", input, cfg)
}

// synthesize is Synthesize for a request that may name its model; an empty
// model accepts whichever model is loaded.
func (s *Service) synthesize(ctx context.Context, model, input string, cfg core.TTSConfig) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.loaded == nil {
		return nil, ErrNoModelLoaded
	}

	if model != "" && model != s.loadedName {
		return nil, fmt.Errorf("%w: requested %q, loaded %q", ErrModelMismatch, model, s.loadedName)
	}

	if s.opts.Normalizer != nil {
		input = s.opts.Normalizer.Normalize(input)
	}

	if strings.TrimSpace(input) == "" {
		return nil, tts.ErrTextEmpty
	}

	base := s.loaded.GetConfig()
	cfg.Model = base.Model
	cfg.ModelFile = base.ModelFile
	cfg.Voice = firstNonEmpty(cfg.Voice, base.Voice)
	cfg.Language = firstNonEmpty(cfg.Language, base.Language)

	if cfg.Seed == 0 {
		cfg.Seed = base.Seed
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = base.Temperature
	}

	if cfg.TopP == 0 {
		cfg.TopP = base.TopP
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SynthesisTimeout)
	defer cancel()

	wav, err := s.loaded.Process(ctx, []byte(input), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to process text to speech: %w", err)
	}

	return wav, nil
}

// LoadedModel returns the name and engine of the loaded model, if any.
func (s *Service) LoadedModel() (name, engine string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadedName, s.loadedEngine, s.loaded != nil
}

// Close releases the loaded model.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded == nil {
		return nil
	}

	err := s.loaded.Close()
	s.loaded = nil
	s.loadedName = ""
	s.loadedEngine = ""

	if err != nil {
		return fmt.Errorf("failed to close model: %w", err)
	}

	return nil
}

// Serve serves the Backend and standard health services on listener until
// ctx is cancelled, then stops gracefully.
func (s *Service) Serve(ctx context.Context, listener net.Listener) error {
	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(backend.Codec{}),
		grpc.ChainUnaryInterceptor(s.opts.Metrics.UnaryServerInterceptor()),
	)
	backend.RegisterBackendServer(grpcServer, s)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(backend.ServiceName, healthgrpc.HealthCheckResponse_SERVING)
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	s.opts.Log.System("Backend listening on %s", listener.Addr())

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("grpc server failed: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	s.opts.Log.System("Shutting down backend")
	healthServer.Shutdown()

	stopped := make(chan struct{})

	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(s.opts.ShutdownTimeout):
		s.opts.Log.Warn("Graceful stop timed out after %s, forcing", s.opts.ShutdownTimeout)
		grpcServer.Stop()
		<-stopped
	}

	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, listener)
}

func failure(err error) *backend.Result {
	return &backend.Result{Success: false, Message: fmt.Sprintf(errFmtUnexpected, err)}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
