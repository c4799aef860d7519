package tts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	envCacheDir   = "TTS_BACKEND_CACHE_DIR"
	appName       = "tts-backend"
	modelsDirName = "models"
	dotCache      = ".cache"
)

// CacheDir returns the backend's cache directory, honoring TTS_BACKEND_CACHE_DIR.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "cache")
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// ResolveModelFile finds a model file by checking, in order, the path as
// given, ./models/<name> and <cache dir>/models/<name>.
func ResolveModelFile(name string) (string, error) {
	candidatePaths := []string{
		name,
		filepath.Join(modelsDirName, name),
		filepath.Join(CacheDir(), modelsDirName, name),
	}

	for _, path := range candidatePaths {
		resolvedPath, found, err := resolveSinglePath(path)
		if err != nil {
			return "", err
		}

		if found {
			return resolvedPath, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrModelFileNotFound, name)
}

// resolveSinglePath reports found=false without error when path does not exist.
func resolveSinglePath(path string) (resolvedPath string, found bool, err error) {
	_, statErr := os.Stat(path)
	if errors.Is(statErr, os.ErrNotExist) {
		return "", false, nil
	}

	if statErr != nil {
		return "", false, fmt.Errorf("error checking model path %q: %w", path, statErr)
	}

	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		return "", false, fmt.Errorf("could not resolve absolute path for %q: %w", path, absErr)
	}

	return absPath, true, nil
}
