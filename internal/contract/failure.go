// Package contract runs the Backend RPC contract scenarios against a
// backend process and reports each outcome by failure kind.
package contract

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/status"
)

// Kind classifies why a scenario failed.
type Kind string

const (
	// KindStartup means the backend never became healthy.
	KindStartup Kind = "startup"
	// KindTransport means an RPC itself failed.
	KindTransport Kind = "transport"
	// KindAssertion means an RPC answered with the wrong content.
	KindAssertion Kind = "assertion"
	// KindTeardown means the scenario passed but the backend did not stop cleanly.
	KindTeardown Kind = "teardown"
)

// ErrAssertion is wrapped by every assertion failure.
var ErrAssertion = errors.New("assertion failed")

// Failure is a scenario error tagged with its Kind.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the Kind of err, treating untagged errors as transport failures.
func KindOf(err error) Kind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}

	if errors.Is(err, ErrAssertion) {
		return KindAssertion
	}

	return KindTransport
}

func startupFailure(err error) error {
	return &Failure{Kind: KindStartup, Err: err}
}

func teardownFailure(err error) error {
	return &Failure{Kind: KindTeardown, Err: fmt.Errorf("failed to stop backend: %w", err)}
}

// transportFailure wraps an RPC error, keeping the gRPC status code in the message.
func transportFailure(method string, err error) error {
	if st, ok := status.FromError(err); ok {
		return &Failure{Kind: KindTransport, Err: fmt.Errorf("%s returned %s: %w", method, st.Code(), err)}
	}

	return &Failure{Kind: KindTransport, Err: fmt.Errorf("%s: %w", method, err)}
}

// Assertf reports that a response did not match what the contract requires.
func Assertf(format string, args ...any) error {
	return &Failure{Kind: KindAssertion, Err: fmt.Errorf("%w: %s", ErrAssertion, fmt.Sprintf(format, args...))}
}
