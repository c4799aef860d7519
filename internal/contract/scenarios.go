package contract

import (
	"context"
	"fmt"

	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/book-expert/tts-backend/internal/tts/audio"
)

// Default request values, matching the reference parler-tts test.
const (
	DefaultModel        = "parler-tts/parler_tts_mini_v0.1"
	DefaultInvalidModel = "../not a model"
	DefaultText         = "Hey, how are you doing today?"
)

// Scenario names.
const (
	ScenarioServerStartup       = "server_startup"
	ScenarioLoadModel           = "load_model"
	ScenarioLoadModelIdempotent = "load_model_idempotent"
	ScenarioLoadModelInvalid    = "load_model_invalid"
	ScenarioTTS                 = "tts"
)

// Params are the request values the scenarios send.
type Params struct {
	Model        string
	InvalidModel string
	Text         string
	Voice        string
}

func (p *Params) applyDefaults() {
	if p.Model == "" {
		p.Model = DefaultModel
	}

	if p.InvalidModel == "" {
		p.InvalidModel = DefaultInvalidModel
	}

	if p.Text == "" {
		p.Text = DefaultText
	}
}

// ScenarioFunc runs one scenario against a healthy backend.
type ScenarioFunc func(ctx context.Context, client backend.BackendClient, params Params) error

// Scenario is a named contract check.
type Scenario struct {
	Name string
	Run  ScenarioFunc
}

// Scenarios returns the contract suite in execution order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: ScenarioServerStartup, Run: serverStartup},
		{Name: ScenarioLoadModel, Run: loadModel},
		{Name: ScenarioLoadModelIdempotent, Run: loadModelIdempotent},
		{Name: ScenarioLoadModelInvalid, Run: loadModelInvalid},
		{Name: ScenarioTTS, Run: synthesize},
	}
}

func serverStartup(ctx context.Context, client backend.BackendClient, _ Params) error {
	reply, err := client.Health(ctx, &backend.HealthMessage{})
	if err != nil {
		return transportFailure("Health", err)
	}

	if string(reply.Message) != backend.HealthOK {
		return Assertf("Health message = %q, want %q", reply.Message, backend.HealthOK)
	}

	return nil
}

func loadModel(ctx context.Context, client backend.BackendClient, params Params) error {
	return expectLoaded(ctx, client, params.Model)
}

func loadModelIdempotent(ctx context.Context, client backend.BackendClient, params Params) error {
	for attempt := 1; attempt <= 2; attempt++ {
		err := expectLoaded(ctx, client, params.Model)
		if err != nil {
			return fmt.Errorf("load %d: %w", attempt, err)
		}
	}

	return nil
}

func loadModelInvalid(ctx context.Context, client backend.BackendClient, params Params) error {
	result, err := client.LoadModel(ctx, &backend.ModelOptions{Model: params.InvalidModel})
	if err != nil {
		return transportFailure("LoadModel", err)
	}

	if result.Success {
		return Assertf("LoadModel(%q) succeeded, want failure", params.InvalidModel)
	}

	if result.Message == "" {
		return Assertf("LoadModel(%q) failed without a message", params.InvalidModel)
	}

	return nil
}

func synthesize(ctx context.Context, client backend.BackendClient, params Params) error {
	err := expectLoaded(ctx, client, params.Model)
	if err != nil {
		return err
	}

	result, err := client.TTS(ctx, &backend.TTSRequest{Text: params.Text, Model: params.Model, Voice: params.Voice})
	if err != nil {
		return transportFailure("TTS", err)
	}

	if result == nil {
		return Assertf("TTS returned no result")
	}

	if !result.Success {
		return Assertf("TTS failed: %s", result.Message)
	}

	if len(result.Audio) == 0 {
		return nil
	}

	clip, err := audio.DecodeWAV(result.Audio)
	if err != nil {
		return Assertf("TTS audio is not a valid WAV: %v", err)
	}

	if clip.Frames() == 0 {
		return Assertf("TTS audio has no frames")
	}

	return nil
}

func expectLoaded(ctx context.Context, client backend.BackendClient, model string) error {
	result, err := client.LoadModel(ctx, &backend.ModelOptions{Model: model})
	if err != nil {
		return transportFailure("LoadModel", err)
	}

	if !result.Success {
		return Assertf("LoadModel(%q) failed: %s", model, result.Message)
	}

	if result.Message != backend.ModelLoadedMessage {
		return Assertf("LoadModel(%q) message = %q, want %q", model, result.Message, backend.ModelLoadedMessage)
	}

	return nil
}
