// main package for tts-contract, which runs the Backend contract scenarios
// against a backend executable.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-backend/internal/config"
	"github.com/book-expert/tts-backend/internal/contract"
)

const logFileName = "tts-contract.log"

var errScenariosFailed = errors.New("contract scenarios failed")

// loadConfig reads the [harness] defaults, falling back to built-in values.
func loadConfig(log *logger.Logger) *config.Config {
	cfg, err := config.Load(log)
	if err != nil {
		log.Warn("Using default configuration: %v", err)

		return config.Default()
	}

	return cfg
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() { _ = log.Close() }()

	var p params

	err = p.read(args, loadConfig(log))
	if err != nil {
		return err
	}

	cfg, err := p.contractConfig()
	if err != nil {
		return err
	}

	if p.debug {
		cfg.Harness.Output = stdout
	} else {
		cfg.Harness.Stdout = io.Discard
		cfg.Harness.Stderr = io.Discard
	}

	log.Info("Running contract against %s %v on %s", cfg.Harness.Command, cfg.Harness.Args, cfg.Harness.Addr)

	results := contract.NewRunner(cfg, contract.NewConsoleReporter(stdout, p.debug)).Run(ctx)

	for _, failure := range results.Failures() {
		log.Error("Scenario %s failed (%s): %v", failure.Name, contract.KindOf(failure.Err), failure.Err)
	}

	if !results.OK() {
		return fmt.Errorf("%w: %d of %d", errScenariosFailed, len(results.Failures()), len(results.Results))
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
