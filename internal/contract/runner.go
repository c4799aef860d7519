package contract

import (
	"context"
	"regexp"
	"time"

	"github.com/book-expert/tts-backend/internal/harness"
)

const defaultScenarioTimeout = 2 * time.Minute

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Duration time.Duration
	// Err is nil when the scenario passed; otherwise KindOf(Err) tells why it failed.
	Err error
}

// Passed reports whether the scenario succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Results holds the outcomes of a run in execution order.
type Results struct {
	Results []Result
	Skipped []string
}

// Failures returns the results that did not pass.
func (r Results) Failures() []Result {
	var failures []Result

	for _, result := range r.Results {
		if !result.Passed() {
			failures = append(failures, result)
		}
	}

	return failures
}

// OK reports whether every scenario that ran passed.
func (r Results) OK() bool {
	return len(r.Failures()) == 0
}

// Reporter observes a run as it progresses.
type Reporter interface {
	ScenarioStarted(name string)
	ScenarioFinished(result Result)
	RunFinished(results Results)
}

// Config controls a contract run.
type Config struct {
	// Harness describes the backend process; it is started afresh for every scenario.
	Harness harness.Options
	Params  Params
	// Filter selects scenarios by name; nil runs all of them.
	Filter *regexp.Regexp
	// ScenarioTimeout bounds the RPCs of a single scenario.
	ScenarioTimeout time.Duration
}

// Runner executes scenarios against fresh backend processes.
type Runner struct {
	cfg       Config
	scenarios []Scenario
	reporter  Reporter
}

// NewRunner creates a runner for the standard contract suite. A nil reporter
// is allowed.
func NewRunner(cfg Config, reporter Reporter) *Runner {
	cfg.Params.applyDefaults()

	if cfg.ScenarioTimeout <= 0 {
		cfg.ScenarioTimeout = defaultScenarioTimeout
	}

	return &Runner{
		cfg:       cfg,
		scenarios: Scenarios(),
		reporter:  reporter,
	}
}

// WithScenarios replaces the suite the runner executes.
func (r *Runner) WithScenarios(scenarios ...Scenario) *Runner {
	r.scenarios = scenarios

	return r
}

// Run executes every selected scenario in order and returns all results.
// A cancelled ctx stops the run before the next scenario.
func (r *Runner) Run(ctx context.Context) Results {
	var results Results

	for _, scenario := range r.scenarios {
		if r.cfg.Filter != nil && !r.cfg.Filter.MatchString(scenario.Name) {
			results.Skipped = append(results.Skipped, scenario.Name)

			continue
		}

		if ctx.Err() != nil {
			results.Skipped = append(results.Skipped, scenario.Name)

			continue
		}

		if r.reporter != nil {
			r.reporter.ScenarioStarted(scenario.Name)
		}

		result := r.runScenario(ctx, scenario)
		results.Results = append(results.Results, result)

		if r.reporter != nil {
			r.reporter.ScenarioFinished(result)
		}
	}

	if r.reporter != nil {
		r.reporter.RunFinished(results)
	}

	return results
}

func (r *Runner) runScenario(ctx context.Context, scenario Scenario) (result Result) {
	startedAt := time.Now()
	result.Name = scenario.Name

	defer func() {
		result.Duration = time.Since(startedAt)
	}()

	proc, err := harness.Start(ctx, r.cfg.Harness)
	if err != nil {
		result.Err = startupFailure(err)

		return result
	}

	defer func() {
		stopErr := proc.Stop()
		if stopErr != nil && result.Err == nil {
			result.Err = teardownFailure(stopErr)
		}
	}()

	scenarioCtx, cancel := context.WithTimeout(ctx, r.cfg.ScenarioTimeout)
	defer cancel()

	result.Err = scenario.Run(scenarioCtx, proc.Client(), r.cfg.Params)

	return result
}
