package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	wavHeaderSize   = 44
	fmtChunkSize    = 16
	formatPCM       = 1
	chunkHeaderSize = 8

	// streamingChunkSize is written by encoders that do not know the
	// final length, e.g. when piping to stdout.
	streamingChunkSize = 0xFFFFFFFF
)

// WAV decoding errors.
var (
	ErrNotWAV          = errors.New("not a RIFF/WAVE stream")
	ErrUnsupportedWAV  = errors.New("unsupported WAV encoding")
	ErrTruncatedWAV    = errors.New("truncated WAV stream")
	ErrMissingFmtChunk = errors.New("WAV stream has no fmt chunk")
)

// Clip is decoded PCM audio.
type Clip struct {
	Quality Quality
	Data    []byte
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	frame := c.Quality.BytesPerFrame()
	if frame == 0 {
		return 0
	}

	return len(c.Data) / frame
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.Quality.SampleRate == 0 {
		return 0
	}

	return time.Duration(c.Frames()) * time.Second / time.Duration(c.Quality.SampleRate)
}

// EncodePCM16 wraps little-endian signed 16-bit samples in a WAV container.
func EncodePCM16(samples []int16, sampleRate, channels int) ([]byte, error) {
	quality := Quality{SampleRate: sampleRate, BitDepth: 16, Channels: channels}

	err := quality.Validate()
	if err != nil {
		return nil, err
	}

	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}

	return EncodeWAV(pcm, quality)
}

// EncodeWAV wraps raw PCM bytes in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, quality Quality) ([]byte, error) {
	err := quality.Validate()
	if err != nil {
		return nil, err
	}

	dataSize := len(pcm)
	blockAlign := quality.BytesPerFrame()
	byteRate := quality.SampleRate * blockAlign

	wav := make([]byte, wavHeaderSize+dataSize)

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(wav[20:22], formatPCM)
	binary.LittleEndian.PutUint16(wav[22:24], uint16(quality.Channels))
	binary.LittleEndian.PutUint32(wav[24:28], uint32(quality.SampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], uint16(quality.BitDepth))

	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(dataSize))
	copy(wav[44:], pcm)

	return wav, nil
}

// DecodeWAV parses a PCM WAV stream. Chunks other than fmt and data are skipped.
// A data chunk declaring the streaming size runs to the end of the stream.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		clip    Clip
		haveFmt bool
	)

	offset := 12
	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		rawSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + chunkHeaderSize

		size := int(rawSize)
		if chunkID == "data" && rawSize == streamingChunkSize {
			size = len(data) - body
			if frame := clip.Quality.BytesPerFrame(); haveFmt && frame > 0 {
				size -= size % frame
			}
		}

		if size < 0 || body+size > len(data) {
			return nil, fmt.Errorf("%w: chunk %q overruns stream", ErrTruncatedWAV, chunkID)
		}

		switch chunkID {
		case "fmt ":
			quality, err := parseFmtChunk(data[body : body+size])
			if err != nil {
				return nil, err
			}

			clip.Quality = quality
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, ErrMissingFmtChunk
			}

			clip.Data = data[body : body+size]

			return &clip, nil
		}

		// chunks are word aligned
		offset = body + size + size%2
	}

	return nil, fmt.Errorf("%w: no data chunk", ErrTruncatedWAV)
}

func parseFmtChunk(chunk []byte) (Quality, error) {
	if len(chunk) < fmtChunkSize {
		return Quality{}, fmt.Errorf("%w: fmt chunk is %d bytes", ErrTruncatedWAV, len(chunk))
	}

	format := binary.LittleEndian.Uint16(chunk[0:2])
	if format != formatPCM {
		return Quality{}, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, format)
	}

	quality := Quality{
		Channels:   int(binary.LittleEndian.Uint16(chunk[2:4])),
		SampleRate: int(binary.LittleEndian.Uint32(chunk[4:8])),
		BitDepth:   int(binary.LittleEndian.Uint16(chunk[14:16])),
	}

	err := quality.Validate()
	if err != nil {
		return Quality{}, fmt.Errorf("%w: %w", ErrUnsupportedWAV, err)
	}

	return quality, nil
}
