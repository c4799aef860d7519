package main

import (
	"errors"
	"flag"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/book-expert/tts-backend/internal/config"
	"github.com/book-expert/tts-backend/internal/contract"
	"github.com/book-expert/tts-backend/internal/harness"
)

// Flag names.
const (
	flagCommand        = "command"
	flagArgs           = "args"
	flagAddr           = "addr"
	flagModel          = "model"
	flagText           = "text"
	flagRun            = "run"
	flagStartupTimeout = "startup-timeout"
	flagStopTimeout    = "stop-timeout"
	flagDebug          = "debug"
)

// Flag descriptions.
const (
	flagCommandDesc        = "Backend executable to test (required)"
	flagArgsDesc           = "Extra argument for the backend, repeat once per argument; --addr is appended"
	flagAddrDesc           = "Address the backend is told to listen on"
	flagModelDesc          = "Model identifier sent to LoadModel"
	flagTextDesc           = "Text sent to TTS"
	flagRunDesc            = "Regular expression selecting scenarios by name"
	flagStartupTimeoutDesc = "How long to wait for the backend to become healthy"
	flagStopTimeoutDesc    = "How long to wait for the backend to exit before killing it"
	flagDebugDesc          = "Show backend output and harness diagnostics"
)

var errCommandRequired = errors.New("--" + flagCommand + " is required")

// params holds the parsed command-line values.
type params struct {
	command        string
	args           []string
	argsFromFlags  bool
	addr           string
	model          string
	text           string
	run            string
	startupTimeout time.Duration
	stopTimeout    time.Duration
	debug          bool
}

// read parses args, using cfg for every default.
func (p *params) read(args []string, cfg *config.Config) error {
	flagSet := flag.NewFlagSet("tts-contract", flag.ContinueOnError)
	flagSet.StringVar(&p.command, flagCommand, cfg.Harness.Command, flagCommandDesc)
	p.args = slices.Clone(cfg.Harness.Args)
	flagSet.Func(flagArgs, flagArgsDesc, p.appendArg)
	flagSet.StringVar(&p.addr, flagAddr, cfg.Harness.Addr, flagAddrDesc)
	flagSet.StringVar(&p.model, flagModel, cfg.Harness.Model, flagModelDesc)
	flagSet.StringVar(&p.text, flagText, cfg.Harness.Text, flagTextDesc)
	flagSet.StringVar(&p.run, flagRun, "", flagRunDesc)
	flagSet.DurationVar(&p.startupTimeout, flagStartupTimeout,
		time.Duration(cfg.Harness.StartupTimeoutSeconds)*time.Second, flagStartupTimeoutDesc)
	flagSet.DurationVar(&p.stopTimeout, flagStopTimeout,
		time.Duration(cfg.Harness.StopTimeoutSeconds)*time.Second, flagStopTimeoutDesc)
	flagSet.BoolVar(&p.debug, flagDebug, false, flagDebugDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if p.command == "" {
		return errCommandRequired
	}

	return nil
}

// appendArg collects one --args value. The first one on the command line
// replaces the configured arguments.
func (p *params) appendArg(value string) error {
	if !p.argsFromFlags {
		p.args = nil
		p.argsFromFlags = true
	}

	p.args = append(p.args, value)

	return nil
}

// contractConfig converts the parameters into a runner configuration.
func (p *params) contractConfig() (contract.Config, error) {
	cfg := contract.Config{
		Harness: harness.Options{
			Command:        p.command,
			Args:           slices.Clone(p.args),
			Addr:           p.addr,
			StartupTimeout: p.startupTimeout,
			StopTimeout:    p.stopTimeout,
		},
		Params: contract.Params{
			Model: p.model,
			Text:  p.text,
		},
	}

	if p.run != "" {
		filter, err := regexp.Compile(p.run)
		if err != nil {
			return contract.Config{}, fmt.Errorf("invalid --%s pattern: %w", flagRun, err)
		}

		cfg.Filter = filter
	}

	return cfg, nil
}
