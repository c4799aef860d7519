// Package tts provides the model loaders and processors behind the backend.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-backend/internal/core"
	"github.com/book-expert/tts-backend/internal/tts/audio"
)

// Engine names accepted in configuration and model files.
const (
	EngineCommand = "exec"
	EngineTone    = "tone"
)

var (
	// ErrModelEmpty indicates that no model identifier was given.
	ErrModelEmpty = errors.New("model name cannot be empty")
	// ErrBinaryNotFound indicates that the engine binary is not on PATH.
	ErrBinaryNotFound = errors.New("engine binary not found")
	// ErrModelFileNotFound indicates that a local model file does not exist.
	ErrModelFileNotFound = errors.New("model file not found")
	// ErrTextEmpty indicates that there is nothing to synthesize.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrProcessorClosed is returned by processors used after Close.
	ErrProcessorClosed = errors.New("processor is closed")
)

// CommandLoader loads models that are executed by an external TTS binary.
type CommandLoader struct {
	binaryPath string
	log        *logger.Logger
}

// NewCommandLoader creates a loader running binaryPath for every synthesis.
func NewCommandLoader(binaryPath string, log *logger.Logger) *CommandLoader {
	return &CommandLoader{
		binaryPath: binaryPath,
		log:        log,
	}
}

// Load checks that the binary and optional model file exist.
func (l *CommandLoader) Load(_ context.Context, cfg core.TTSConfig) (core.TTSProcessor, error) {
	if cfg.Model == "" {
		return nil, ErrModelEmpty
	}

	resolved, err := exec.LookPath(l.binaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, l.binaryPath, err)
	}

	if cfg.ModelFile != "" {
		modelFile, resolveErr := ResolveModelFile(cfg.ModelFile)
		if resolveErr != nil {
			return nil, resolveErr
		}

		cfg.ModelFile = modelFile
	}

	return &CommandProcessor{
		binaryPath: resolved,
		config:     cfg,
		log:        l.log,
	}, nil
}

// CommandProcessor implements core.TTSProcessor by calling an external binary.
type CommandProcessor struct {
	binaryPath string
	config     core.TTSConfig
	log        *logger.Logger
}

// GetConfig returns the configuration the model was loaded with.
func (p *CommandProcessor) GetConfig() core.TTSConfig {
	return p.config
}

// Close is a no-op; the binary runs once per call.
func (p *CommandProcessor) Close() error {
	return nil
}

// Process runs the binary and returns the WAV file it exported.
func (p *CommandProcessor) Process(ctx context.Context, text []byte, cfg core.TTSConfig) ([]byte, error) {
	if len(text) == 0 {
		return nil, ErrTextEmpty
	}

	tempFile, err := os.CreateTemp("", "tts-output-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for tts output: %w", err)
	}

	closeErr := tempFile.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			p.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	// #nosec G204 -- the binary comes from configuration, text is passed as a single argument
	cmd := exec.CommandContext(ctx, p.binaryPath, p.buildArgs(string(text), cfg, tempFile.Name())...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("engine binary execution failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	_, decodeErr := audio.DecodeWAV(audioData)
	if decodeErr != nil {
		return nil, fmt.Errorf("engine produced invalid audio: %w", decodeErr)
	}

	return audioData, nil
}

func (p *CommandProcessor) buildArgs(text string, cfg core.TTSConfig, outputPath string) []string {
	model := p.config.Model
	if p.config.ModelFile != "" {
		model = p.config.ModelFile
	}

	args := []string{
		"--model", model,
		"--text", text,
		"--output", outputPath,
		"--seed", strconv.Itoa(cfg.Seed),
		"--temperature", fmt.Sprintf("%.2f", cfg.Temperature),
	}

	if cfg.TopP > 0 {
		args = append(args, "--top-p", fmt.Sprintf("%.2f", cfg.TopP))
	}

	if cfg.Voice != "" {
		args = append(args, "--voice", cfg.Voice)
	}

	if cfg.Language != "" {
		args = append(args, "--language", cfg.Language)
	}

	return args
}
