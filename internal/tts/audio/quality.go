// Package audio provides PCM quality settings and the WAV container used for
// synthesized speech.
package audio

import (
	"errors"
	"fmt"
)

// Default output quality of the built-in engines.
const (
	DefaultSampleRate = 22050
	DefaultBitDepth   = 16
	DefaultChannels   = 1
)

// Quality validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
)

// ErrInvalidQuality is returned for out-of-range quality settings.
var ErrInvalidQuality = errors.New("invalid quality settings")

// Quality describes the PCM layout of an audio stream.
type Quality struct {
	SampleRate int `json:"sampleRate" toml:"sample_rate"`
	BitDepth   int `json:"bitDepth"   toml:"bit_depth"`
	Channels   int `json:"channels"   toml:"channels"`
}

// NewDefaultQuality returns 16-bit mono at 22.05 kHz.
func NewDefaultQuality() Quality {
	return Quality{
		SampleRate: DefaultSampleRate,
		BitDepth:   DefaultBitDepth,
		Channels:   DefaultChannels,
	}
}

// Validate checks that the settings describe a PCM layout we can encode.
func (q Quality) Validate() error {
	if q.SampleRate <= 0 || q.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidQuality, maxSampleRate, q.SampleRate)
	}

	switch q.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidQuality, q.BitDepth)
	}

	if q.Channels <= 0 || q.Channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidQuality, maxChannels, q.Channels)
	}

	return nil
}

// BytesPerFrame is the size of one sample across all channels.
func (q Quality) BytesPerFrame() int {
	return q.Channels * q.BitDepth / 8
}
