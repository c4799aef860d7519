// Package core defines the core business logic and interfaces for the TTS backend.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// TTSConfig holds the configuration for a single synthesis call.
// This allows for per-request customization of the TTS output.
type TTSConfig struct {
	Model       string
	ModelFile   string
	Voice       string
	Language    string
	Seed        int
	TopP        float64
	Temperature float64
}

// TTSProcessor is a loaded model able to turn text into WAV audio.
type TTSProcessor interface {
	Process(ctx context.Context, text []byte, cfg TTSConfig) ([]byte, error)
	GetConfig() TTSConfig
	Close() error
}

// ModelLoader creates processors for model identifiers.
type ModelLoader interface {
	Load(ctx context.Context, cfg TTSConfig) (TTSProcessor, error)
}

// Synthesizer turns text into audio with whatever model the backend has loaded.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, cfg TTSConfig) ([]byte, error)
}
