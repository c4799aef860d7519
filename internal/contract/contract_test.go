// Package contract_test runs the contract suite against helper backends.
package contract_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/book-expert/tts-backend/internal/contract"
	"github.com/book-expert/tts-backend/internal/harness"
	"github.com/book-expert/tts-backend/internal/harness/harnesstest"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMain(m *testing.M) {
	harnesstest.MaybeRun()

	color.NoColor = true

	os.Exit(m.Run())
}

func newConfig(t *testing.T, mode string) contract.Config {
	t.Helper()

	opts, err := harnesstest.Options(mode)
	require.NoError(t, err)

	opts.Stdout = &bytes.Buffer{}
	opts.Stderr = &bytes.Buffer{}

	return contract.Config{Harness: opts}
}

func resultNames(results []contract.Result) []string {
	names := make([]string, 0, len(results))
	for _, result := range results {
		names = append(names, result.Name)
	}

	return names
}

func TestRunner_AllScenariosPass(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	runner := contract.NewRunner(newConfig(t, harnesstest.ModeServe), contract.NewConsoleReporter(&out, false))
	results := runner.Run(t.Context())

	for _, result := range results.Results {
		assert.NoError(t, result.Err, result.Name)
		assert.Positive(t, result.Duration, result.Name)
	}

	assert.True(t, results.OK())
	assert.Equal(t, []string{
		contract.ScenarioServerStartup,
		contract.ScenarioLoadModel,
		contract.ScenarioLoadModelIdempotent,
		contract.ScenarioLoadModelInvalid,
		contract.ScenarioTTS,
	}, resultNames(results.Results))
	assert.Contains(t, out.String(), "[tts] PASSED")
	assert.Contains(t, out.String(), "All 5 scenario(s) passed")
}

func TestRunner_StartupFailure(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t, harnesstest.ModeExit)
	cfg.Filter = regexp.MustCompile(`^server_startup$`)

	var out bytes.Buffer

	results := contract.NewRunner(cfg, contract.NewConsoleReporter(&out, true)).Run(t.Context())

	require.Len(t, results.Results, 1)
	assert.False(t, results.OK())
	assert.Equal(t, contract.KindStartup, contract.KindOf(results.Results[0].Err))
	assert.Len(t, results.Skipped, 4)
	assert.Contains(t, out.String(), "[server_startup] starting")
	assert.Contains(t, out.String(), "[server_startup] FAILED (startup")
	assert.Contains(t, out.String(), "1 of 1 scenario(s) failed")
}

func TestRunner_FilterSelectsScenarios(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t, harnesstest.ModeServe)
	cfg.Filter = regexp.MustCompile(`^load_model`)

	results := contract.NewRunner(cfg, nil).Run(t.Context())

	assert.True(t, results.OK())
	assert.Equal(t, []string{
		contract.ScenarioLoadModel,
		contract.ScenarioLoadModelIdempotent,
		contract.ScenarioLoadModelInvalid,
	}, resultNames(results.Results))
	assert.Equal(t, []string{contract.ScenarioServerStartup, contract.ScenarioTTS}, results.Skipped)
}

func TestRunner_ClassifiesScenarioFailures(t *testing.T) {
	t.Parallel()

	assertion := contract.Scenario{
		Name: "wrong_content",
		Run: func(context.Context, backend.BackendClient, contract.Params) error {
			return contract.Assertf("got %d, want %d", 1, 2)
		},
	}
	transport := contract.Scenario{
		Name: "cancelled_call",
		Run: func(ctx context.Context, client backend.BackendClient, _ contract.Params) error {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := client.Health(cancelled, &backend.HealthMessage{})

			return err
		},
	}

	runner := contract.NewRunner(newConfig(t, harnesstest.ModeServe), nil).WithScenarios(assertion, transport)
	results := runner.Run(t.Context())

	require.Len(t, results.Results, 2)
	assert.Equal(t, contract.KindAssertion, contract.KindOf(results.Results[0].Err))
	require.ErrorIs(t, results.Results[0].Err, contract.ErrAssertion)
	assert.Equal(t, contract.KindTransport, contract.KindOf(results.Results[1].Err))
}

func TestRunner_TeardownFailure(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t, harnesstest.ModeIgnoreTerm)
	cfg.Harness.StopTimeout = 300 * time.Millisecond
	cfg.Filter = regexp.MustCompile(`^server_startup$`)

	var out bytes.Buffer

	results := contract.NewRunner(cfg, contract.NewConsoleReporter(&out, false)).Run(t.Context())

	require.Len(t, results.Results, 1)
	assert.False(t, results.OK())

	err := results.Results[0].Err
	assert.Equal(t, contract.KindTeardown, contract.KindOf(err))
	require.ErrorIs(t, err, harness.ErrStopTimeout)
	assert.Contains(t, out.String(), "[server_startup] FAILED (teardown")
}

func TestRunner_CancelledContextSkipsRemaining(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	results := contract.NewRunner(newConfig(t, harnesstest.ModeServe), nil).Run(ctx)

	assert.Empty(t, results.Results)
	assert.Len(t, results.Skipped, 5)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want contract.Kind
	}{
		{name: "assertion", err: contract.Assertf("bad"), want: contract.KindAssertion},
		{name: "wrapped assertion", err: errors.Join(errors.New("context"), contract.ErrAssertion), want: contract.KindAssertion},
		{name: "startup", err: &contract.Failure{Kind: contract.KindStartup, Err: errors.New("boom")}, want: contract.KindStartup},
		{name: "teardown", err: &contract.Failure{Kind: contract.KindTeardown, Err: harness.ErrStopTimeout}, want: contract.KindTeardown},
		{name: "grpc status", err: status.Error(codes.Unavailable, "down"), want: contract.KindTransport},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, contract.KindOf(testCase.err))
		})
	}
}

func TestConsoleReporter_Output(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	reporter := contract.NewConsoleReporter(&out, false)
	reporter.ScenarioStarted("quiet")
	reporter.ScenarioFinished(contract.Result{Name: "ok", Duration: 1500 * time.Microsecond})
	reporter.ScenarioFinished(contract.Result{Name: "bad", Err: contract.Assertf("mismatch")})
	reporter.RunFinished(contract.Results{Results: []contract.Result{
		{Name: "ok"},
		{Name: "bad", Err: contract.Assertf("mismatch")},
	}})

	output := out.String()
	assert.NotContains(t, output, "quiet")
	assert.Contains(t, output, "[ok] PASSED (2ms)")
	assert.Contains(t, output, "[bad] FAILED (assertion")
	assert.Contains(t, output, "mismatch")
	assert.Contains(t, output, "1 of 2 scenario(s) failed")
	assert.Contains(t, output, "  bad (assertion)")
}
