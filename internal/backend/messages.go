// Package backend defines the RPC contract of a text-to-speech backend:
// the Backend service, its request/response messages and the codec used to
// carry them over gRPC. backend.proto is the wire schema.
package backend

import "google.golang.org/protobuf/encoding/protowire"

// HealthMessage is the empty request of the Health call.
type HealthMessage struct{}

// Reply is the response of the Health call.
type Reply struct {
	Message []byte
}

// ModelOptions is the request of the LoadModel call.
type ModelOptions struct {
	// Model is the model identifier, e.g. "parler-tts/parler_tts_mini_v0.1".
	Model string

	// ModelFile optionally points at a local copy of the model weights.
	ModelFile string

	// Voice is the default voice description used by TTS calls that do not set one.
	Voice string

	Language    string
	Seed        int
	Temperature float64
}

// Result is the response of the LoadModel and TTS calls.
type Result struct {
	Success bool
	Message string

	// Audio holds WAV bytes when the server returns the synthesized audio inline.
	Audio []byte
}

// TTSRequest is the request of the TTS call.
type TTSRequest struct {
	Text string
	// Model must name the loaded model when set; empty means whichever model is loaded.
	Model string

	// Dst is a server-side path the WAV output is written to.
	Dst string

	Voice    string
	Language string
}

// HealthOK is the message a ready backend answers Health with.
const HealthOK = "OK"

// ModelLoadedMessage is the message of a successful LoadModel result.
const ModelLoadedMessage = "Model loaded successfully"

// Field numbers from backend.proto.
const (
	replyMessageField = 1

	modelOptionsModelField       = 1
	modelOptionsSeedField        = 3
	modelOptionsModelFileField   = 21
	modelOptionsVoiceField       = 100
	modelOptionsLanguageField    = 101
	modelOptionsTemperatureField = 102

	resultMessageField = 1
	resultSuccessField = 2
	resultAudioField   = 100

	ttsRequestTextField     = 1
	ttsRequestModelField    = 2
	ttsRequestDstField      = 3
	ttsRequestVoiceField    = 4
	ttsRequestLanguageField = 5
)

func (m *HealthMessage) appendWire(b []byte) []byte {
	return b
}

func (m *HealthMessage) decodeField(protowire.Number, protowire.Type, []byte) int {
	return 0
}

func (m *Reply) appendWire(b []byte) []byte {
	return appendBytes(b, replyMessageField, m.Message)
}

func (m *Reply) decodeField(num protowire.Number, typ protowire.Type, b []byte) int {
	if num == replyMessageField {
		return consumeBytes(typ, b, &m.Message)
	}

	return 0
}

func (m *ModelOptions) appendWire(b []byte) []byte {
	b = appendString(b, modelOptionsModelField, m.Model)
	b = appendInt32(b, modelOptionsSeedField, int32(m.Seed)) //nolint:gosec // Seed is an int32 on the wire
	b = appendString(b, modelOptionsModelFileField, m.ModelFile)
	b = appendString(b, modelOptionsVoiceField, m.Voice)
	b = appendString(b, modelOptionsLanguageField, m.Language)

	return appendDouble(b, modelOptionsTemperatureField, m.Temperature)
}

func (m *ModelOptions) decodeField(num protowire.Number, typ protowire.Type, b []byte) int {
	switch num {
	case modelOptionsModelField:
		return consumeString(typ, b, &m.Model)
	case modelOptionsSeedField:
		var seed int32

		n := consumeInt32(typ, b, &seed)
		if n > 0 {
			m.Seed = int(seed)
		}

		return n
	case modelOptionsModelFileField:
		return consumeString(typ, b, &m.ModelFile)
	case modelOptionsVoiceField:
		return consumeString(typ, b, &m.Voice)
	case modelOptionsLanguageField:
		return consumeString(typ, b, &m.Language)
	case modelOptionsTemperatureField:
		return consumeDouble(typ, b, &m.Temperature)
	default:
		return 0
	}
}

func (m *Result) appendWire(b []byte) []byte {
	b = appendString(b, resultMessageField, m.Message)
	b = appendBool(b, resultSuccessField, m.Success)

	return appendBytes(b, resultAudioField, m.Audio)
}

func (m *Result) decodeField(num protowire.Number, typ protowire.Type, b []byte) int {
	switch num {
	case resultMessageField:
		return consumeString(typ, b, &m.Message)
	case resultSuccessField:
		return consumeBool(typ, b, &m.Success)
	case resultAudioField:
		return consumeBytes(typ, b, &m.Audio)
	default:
		return 0
	}
}

func (m *TTSRequest) appendWire(b []byte) []byte {
	b = appendString(b, ttsRequestTextField, m.Text)
	b = appendString(b, ttsRequestModelField, m.Model)
	b = appendString(b, ttsRequestDstField, m.Dst)
	b = appendString(b, ttsRequestVoiceField, m.Voice)

	return appendString(b, ttsRequestLanguageField, m.Language)
}

func (m *TTSRequest) decodeField(num protowire.Number, typ protowire.Type, b []byte) int {
	switch num {
	case ttsRequestTextField:
		return consumeString(typ, b, &m.Text)
	case ttsRequestModelField:
		return consumeString(typ, b, &m.Model)
	case ttsRequestDstField:
		return consumeString(typ, b, &m.Dst)
	case ttsRequestVoiceField:
		return consumeString(typ, b, &m.Voice)
	case ttsRequestLanguageField:
		return consumeString(typ, b, &m.Language)
	default:
		return 0
	}
}
