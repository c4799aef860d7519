package contract

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// ConsoleReporter prints scenario outcomes in color, green for passes.
type ConsoleReporter struct {
	out   io.Writer
	debug bool

	pass *color.Color
	fail *color.Color
	warn *color.Color
}

// NewConsoleReporter creates a reporter writing to out. With debug set it
// also announces each scenario before it starts.
func NewConsoleReporter(out io.Writer, debug bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:   out,
		debug: debug,
		pass:  color.New(color.FgGreen),
		fail:  color.New(color.FgRed),
		warn:  color.New(color.FgYellow),
	}
}

// ScenarioStarted announces the scenario when debug output is enabled.
func (c *ConsoleReporter) ScenarioStarted(name string) {
	if c.debug {
		fmt.Fprintf(c.out, "[%s] starting\n", name)
	}
}

// ScenarioFinished prints PASSED or FAILED with the failure kind. Assertion
// failures print in red and every other kind in yellow.
func (c *ConsoleReporter) ScenarioFinished(result Result) {
	duration := result.Duration.Round(time.Millisecond)

	if result.Passed() {
		c.pass.Fprintf(c.out, "[%s] PASSED (%s)\n", result.Name, duration)

		return
	}

	kind := KindOf(result.Err)
	printer := c.warn

	if kind == KindAssertion {
		printer = c.fail
	}

	printer.Fprintf(c.out, "[%s] FAILED (%s, %s)\n", result.Name, kind, duration)
	printer.Fprintf(c.out, "    %v\n", result.Err)
}

// RunFinished prints the summary line and lists each failed scenario with its kind.
func (c *ConsoleReporter) RunFinished(results Results) {
	fmt.Fprintln(c.out)

	failures := results.Failures()
	if len(failures) == 0 {
		c.pass.Fprintf(c.out, "All %d scenario(s) passed\n", len(results.Results))

		return
	}

	c.fail.Fprintf(c.out, "%d of %d scenario(s) failed:\n", len(failures), len(results.Results))

	for _, failure := range failures {
		fmt.Fprintf(c.out, "  %s (%s)\n", failure.Name, KindOf(failure.Err))
	}
}
