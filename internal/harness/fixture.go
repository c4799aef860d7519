package harness

import (
	"errors"
	"net"
	"testing"
)

// StartForTest starts the backend for the duration of a test. Stop is
// registered with t.Cleanup, so the process is reaped however the test ends.
func StartForTest(t testing.TB, opts Options) *Process {
	t.Helper()

	proc, err := Start(t.Context(), opts)
	if err != nil {
		t.Fatalf("failed to start backend: %v", err)
	}

	t.Cleanup(func() {
		stopErr := proc.Stop()
		if errors.Is(stopErr, ErrStopTimeout) {
			t.Logf("backend killed: %v", stopErr)
		} else if stopErr != nil {
			t.Errorf("failed to stop backend: %v", stopErr)
		}
	})

	return proc
}

// FreeAddr returns a loopback address with a port that was free a moment ago.
func FreeAddr() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	addr := listener.Addr().String()

	err = listener.Close()
	if err != nil {
		return "", err
	}

	return addr, nil
}
