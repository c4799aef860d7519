package tts

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/book-expert/tts-backend/internal/core"
	"github.com/book-expert/tts-backend/internal/tts/audio"
)

const (
	toneSymbolDuration = 60 * time.Millisecond
	toneBaseFrequency  = 220.0
	toneStepFrequency  = 12.0
	toneSteps          = 48
	toneAmplitude      = 0.3 * math.MaxInt16
)

// ToneLoader loads the built-in tone engine. It accepts any model identifier,
// which makes it a stand-in for a neural model when exercising the service.
type ToneLoader struct {
	quality audio.Quality
}

// NewToneLoader creates a tone loader producing mono audio at sampleRate.
func NewToneLoader(sampleRate int) (*ToneLoader, error) {
	quality := audio.NewDefaultQuality()
	if sampleRate > 0 {
		quality.SampleRate = sampleRate
	}

	err := quality.Validate()
	if err != nil {
		return nil, err
	}

	return &ToneLoader{quality: quality}, nil
}

// Load returns a processor for cfg.
func (l *ToneLoader) Load(_ context.Context, cfg core.TTSConfig) (core.TTSProcessor, error) {
	if cfg.Model == "" {
		return nil, ErrModelEmpty
	}

	return &ToneProcessor{quality: l.quality, config: cfg}, nil
}

// ToneProcessor renders one short sine tone per character of input.
// Output is deterministic for a given text.
type ToneProcessor struct {
	quality audio.Quality
	config  core.TTSConfig
	closed  atomic.Bool
}

// GetConfig returns the configuration the model was loaded with.
func (p *ToneProcessor) GetConfig() core.TTSConfig {
	return p.config
}

// Close marks the processor unusable.
func (p *ToneProcessor) Close() error {
	p.closed.Store(true)

	return nil
}

// Process synthesizes text into a WAV clip.
func (p *ToneProcessor) Process(ctx context.Context, text []byte, _ core.TTSConfig) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}

	input := strings.TrimSpace(string(text))
	if input == "" {
		return nil, ErrTextEmpty
	}

	symbolFrames := p.quality.SampleRate * int(toneSymbolDuration/time.Millisecond) / 1000
	samples := make([]int16, 0, symbolFrames*len(input))

	for _, symbol := range input {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		samples = append(samples, p.renderSymbol(symbol, symbolFrames)...)
	}

	return audio.EncodePCM16(samples, p.quality.SampleRate, p.quality.Channels)
}

func (p *ToneProcessor) renderSymbol(symbol rune, frames int) []int16 {
	samples := make([]int16, frames)
	if unicode.IsSpace(symbol) || unicode.IsPunct(symbol) {
		return samples
	}

	frequency := toneBaseFrequency + toneStepFrequency*float64(int(unicode.ToLower(symbol))%toneSteps)
	fadeFrames := float64(max(1, frames/10))

	for i := range samples {
		// linear fade in and out avoids clicks between symbols
		envelope := math.Min(1, math.Min(float64(i), float64(frames-i))/fadeFrames)
		phase := 2 * math.Pi * frequency * float64(i) / float64(p.quality.SampleRate)
		samples[i] = int16(toneAmplitude * envelope * math.Sin(phase))
	}

	return samples
}
