// Package tts_test tests the model loaders and processors.
package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-backend/internal/core"
	"github.com/book-expert/tts-backend/internal/tts"
	"github.com/book-expert/tts-backend/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestToneProcessor_ProducesDecodableAudio(t *testing.T) {
	t.Parallel()

	loader, err := tts.NewToneLoader(0)
	require.NoError(t, err)

	processor, err := loader.Load(context.Background(), core.TTSConfig{Model: "parler-tts/parler_tts_mini_v0.1"})
	require.NoError(t, err)

	text := "Hey, how are you doing today?"

	wav, err := processor.Process(context.Background(), []byte(text), processor.GetConfig())
	require.NoError(t, err)

	clip, err := audio.DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, audio.NewDefaultQuality(), clip.Quality)
	assert.Equal(t, len(text)*1323, clip.Frames())

	again, err := processor.Process(context.Background(), []byte(text), processor.GetConfig())
	require.NoError(t, err)
	assert.Equal(t, wav, again, "tone output must be deterministic")
}

func TestToneProcessor_Errors(t *testing.T) {
	t.Parallel()

	loader, err := tts.NewToneLoader(16000)
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), core.TTSConfig{})
	require.ErrorIs(t, err, tts.ErrModelEmpty)

	processor, err := loader.Load(context.Background(), core.TTSConfig{Model: "tone"})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), []byte("   "), core.TTSConfig{})
	require.ErrorIs(t, err, tts.ErrTextEmpty)

	require.NoError(t, processor.Close())

	_, err = processor.Process(context.Background(), []byte("hello"), core.TTSConfig{})
	require.ErrorIs(t, err, tts.ErrProcessorClosed)
}

func TestNewToneLoader_RejectsInvalidRate(t *testing.T) {
	t.Parallel()

	_, err := tts.NewToneLoader(1_000_000)
	require.ErrorIs(t, err, audio.ErrInvalidQuality)
}

func TestCommandLoader_MissingBinary(t *testing.T) {
	t.Parallel()

	loader := tts.NewCommandLoader(filepath.Join(t.TempDir(), "no-such-engine"), createTestLogger(t))

	_, err := loader.Load(context.Background(), core.TTSConfig{Model: "parler-tts/parler_tts_mini_v0.1"})
	require.ErrorIs(t, err, tts.ErrBinaryNotFound)
}

func TestCommandLoader_MissingModelFile(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	binary := writeEngineScript(t, "#!/bin/sh\nexit 0\n")
	loader := tts.NewCommandLoader(binary, createTestLogger(t))

	_, err := loader.Load(context.Background(), core.TTSConfig{
		Model:     "local",
		ModelFile: filepath.Join(t.TempDir(), "missing.bin"),
	})
	require.ErrorIs(t, err, tts.ErrModelFileNotFound)
}

func TestCommandProcessor_Process(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fixture, err := audio.EncodePCM16([]int16{0, 100, -100, 0}, 16000, 1)
	require.NoError(t, err)

	fixturePath := filepath.Join(t.TempDir(), "fixture.wav")
	require.NoError(t, os.WriteFile(fixturePath, fixture, 0o600))

	// the script copies the fixture to whatever follows --output
	script := "#!/bin/sh\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"--output\" ]; then cp " + fixturePath + " \"$2\"; fi\n" +
		"  shift\n" +
		"done\n"
	binary := writeEngineScript(t, script)

	loader := tts.NewCommandLoader(binary, createTestLogger(t))

	processor, err := loader.Load(context.Background(), core.TTSConfig{Model: "parler-tts/parler_tts_mini_v0.1"})
	require.NoError(t, err)

	wav, err := processor.Process(context.Background(), []byte("hello"), core.TTSConfig{Voice: "calm"})
	require.NoError(t, err)
	assert.Equal(t, fixture, wav)
}

func TestCommandProcessor_PassesSamplingFlags(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fixture, err := audio.EncodePCM16([]int16{0, 100, -100, 0}, 16000, 1)
	require.NoError(t, err)

	dir := t.TempDir()
	fixturePath := filepath.Join(dir, "fixture.wav")
	argsPath := filepath.Join(dir, "args.txt")
	require.NoError(t, os.WriteFile(fixturePath, fixture, 0o600))

	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argsPath + "\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"--output\" ]; then cp " + fixturePath + " \"$2\"; fi\n" +
		"  shift\n" +
		"done\n"
	binary := writeEngineScript(t, script)

	loader := tts.NewCommandLoader(binary, createTestLogger(t))

	processor, err := loader.Load(context.Background(), core.TTSConfig{Model: "m"})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), []byte("hello"),
		core.TTSConfig{Seed: 7, TopP: 0.9, Temperature: 0.7, Language: "en"})
	require.NoError(t, err)

	recorded, err := os.ReadFile(argsPath)
	require.NoError(t, err)

	args := strings.Split(strings.TrimSpace(string(recorded)), "\n")
	assert.Subset(t, args, []string{"--top-p", "0.90", "--temperature", "0.70", "--seed", "7", "--language", "en"})
	assert.Equal(t, "0.90", args[slices.Index(args, "--top-p")+1])

	// TopP stays off the command line when unset
	_, err = processor.Process(context.Background(), []byte("hello"), core.TTSConfig{})
	require.NoError(t, err)

	recorded, err = os.ReadFile(argsPath)
	require.NoError(t, err)
	assert.NotContains(t, strings.Split(string(recorded), "\n"), "--top-p")
}

func TestCommandProcessor_RejectsNonWAVOutput(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	script := "#!/bin/sh\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"--output\" ]; then echo garbage > \"$2\"; fi\n" +
		"  shift\n" +
		"done\n"
	binary := writeEngineScript(t, script)

	loader := tts.NewCommandLoader(binary, createTestLogger(t))

	processor, err := loader.Load(context.Background(), core.TTSConfig{Model: "m"})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), []byte("hello"), core.TTSConfig{})
	require.ErrorIs(t, err, audio.ErrNotWAV)
}

func TestCommandProcessor_BinaryFailure(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	binary := writeEngineScript(t, "#!/bin/sh\necho 'model exploded' >&2\nexit 3\n")
	loader := tts.NewCommandLoader(binary, createTestLogger(t))

	processor, err := loader.Load(context.Background(), core.TTSConfig{Model: "m"})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), []byte("hello"), core.TTSConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")
}

func writeEngineScript(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o700)) //nolint:gosec

	return path
}
