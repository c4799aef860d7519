package backend_test

import (
	"testing"

	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// schema mirrors backend.proto so the codec can be checked against the
// protobuf runtime itself.
func schema(t *testing.T) protoreflect.FileDescriptor {
	t.Helper()

	field := func(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(number),
			Type:   typ.Enum(),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}
	}

	message := func(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
		return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
	}

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("backend_schema_test.proto"),
		Package: proto.String("backendschema"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("Reply",
				field("message", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES)),
			message("ModelOptions",
				field("Model", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("Seed", 3, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				field("ModelFile", 21, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("Voice", 100, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("Language", 101, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("Temperature", 102, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE)),
			message("Result",
				field("message", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("success", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				field("audio", 100, descriptorpb.FieldDescriptorProto_TYPE_BYTES)),
			message("TTSRequest",
				field("text", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("model", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("dst", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("voice", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("language", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING)),
		},
	}

	descriptor, err := protodesc.NewFile(file, nil)
	require.NoError(t, err)

	return descriptor
}

func newDynamic(t *testing.T, name protoreflect.Name) *dynamicpb.Message {
	t.Helper()

	descriptor := schema(t).Messages().ByName(name)
	require.NotNil(t, descriptor, name)

	return dynamicpb.NewMessage(descriptor)
}

func set(msg *dynamicpb.Message, name protoreflect.Name, value protoreflect.Value) {
	msg.Set(msg.Descriptor().Fields().ByName(name), value)
}

func get(msg *dynamicpb.Message, name protoreflect.Name) protoreflect.Value {
	return msg.Get(msg.Descriptor().Fields().ByName(name))
}

func TestCodec_IsDefaultProtoCodec(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "proto", backend.Codec{}.Name())
	assert.NotNil(t, encoding.GetCodec(backend.CodecName))
}

func TestCodec_DecodesProtobufReply(t *testing.T) {
	t.Parallel()

	var reply backend.Reply

	err := backend.Codec{}.Unmarshal([]byte{0x0a, 0x02, 'O', 'K'}, &reply)
	require.NoError(t, err)
	assert.Equal(t, []byte(backend.HealthOK), reply.Message)
}

func TestCodec_ModelOptionsMatchesProtobuf(t *testing.T) {
	t.Parallel()

	data, err := backend.Codec{}.Marshal(&backend.ModelOptions{
		Model:       "parler-tts/parler_tts_mini_v0.1",
		ModelFile:   "/models/parler.bin",
		Voice:       "A calm female voice",
		Language:    "en",
		Seed:        -7,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	decoded := newDynamic(t, "ModelOptions")
	require.NoError(t, proto.Unmarshal(data, decoded))

	assert.Equal(t, "parler-tts/parler_tts_mini_v0.1", get(decoded, "Model").String())
	assert.Equal(t, "/models/parler.bin", get(decoded, "ModelFile").String())
	assert.Equal(t, "A calm female voice", get(decoded, "Voice").String())
	assert.Equal(t, "en", get(decoded, "Language").String())
	assert.Equal(t, int64(-7), get(decoded, "Seed").Int())
	assert.InDelta(t, 0.7, get(decoded, "Temperature").Float(), 1e-12)

	var roundTrip backend.ModelOptions

	require.NoError(t, backend.Codec{}.Unmarshal(data, &roundTrip))
	assert.Equal(t, -7, roundTrip.Seed)
}

func TestCodec_ModelOnlyRequestIsUpstreamEncoding(t *testing.T) {
	t.Parallel()

	upstream := newDynamic(t, "ModelOptions")
	set(upstream, "Model", protoreflect.ValueOfString("parler-tts/parler_tts_mini_v0.1"))

	want, err := proto.Marshal(upstream)
	require.NoError(t, err)

	got, err := backend.Codec{}.Marshal(&backend.ModelOptions{Model: "parler-tts/parler_tts_mini_v0.1"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCodec_ResultFromProtobuf(t *testing.T) {
	t.Parallel()

	encoded := newDynamic(t, "Result")
	set(encoded, "message", protoreflect.ValueOfString(backend.ModelLoadedMessage))
	set(encoded, "success", protoreflect.ValueOfBool(true))
	set(encoded, "audio", protoreflect.ValueOfBytes([]byte("RIFF")))

	data, err := proto.Marshal(encoded)
	require.NoError(t, err)

	var result backend.Result

	require.NoError(t, backend.Codec{}.Unmarshal(data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, backend.ModelLoadedMessage, result.Message)
	assert.Equal(t, []byte("RIFF"), result.Audio)
}

func TestCodec_TTSRequestMatchesProtobuf(t *testing.T) {
	t.Parallel()

	data, err := backend.Codec{}.Marshal(&backend.TTSRequest{
		Text:     "Hey, how are you doing today?",
		Model:    "parler",
		Dst:      "/tmp/out.wav",
		Voice:    "Jon",
		Language: "en",
	})
	require.NoError(t, err)

	decoded := newDynamic(t, "TTSRequest")
	require.NoError(t, proto.Unmarshal(data, decoded))

	assert.Equal(t, "Hey, how are you doing today?", get(decoded, "text").String())
	assert.Equal(t, "parler", get(decoded, "model").String())
	assert.Equal(t, "/tmp/out.wav", get(decoded, "dst").String())
	assert.Equal(t, "Jon", get(decoded, "voice").String())
	assert.Equal(t, "en", get(decoded, "language").String())
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	t.Parallel()

	// Reply{message: "OK"} followed by an int32 field 2 the backend does not know.
	data := []byte{0x0a, 0x02, 'O', 'K', 0x10, 0x05}

	var reply backend.Reply

	require.NoError(t, backend.Codec{}.Unmarshal(data, &reply))
	assert.Equal(t, []byte("OK"), reply.Message)
}

func TestCodec_RejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	var result backend.Result

	// Length prefix says ten bytes, only two follow.
	err := backend.Codec{}.Unmarshal([]byte{0x0a, 0x0a, 'O', 'K'}, &result)
	require.Error(t, err)
}

func TestCodec_DelegatesProtobufMessages(t *testing.T) {
	t.Parallel()

	data, err := backend.Codec{}.Marshal(&healthgrpc.HealthCheckRequest{Service: backend.ServiceName})
	require.NoError(t, err)

	var decoded healthgrpc.HealthCheckRequest

	require.NoError(t, backend.Codec{}.Unmarshal(data, &decoded))
	assert.Equal(t, backend.ServiceName, decoded.GetService())
}

func TestCodec_RejectsUnsupportedValues(t *testing.T) {
	t.Parallel()

	_, err := backend.Codec{}.Marshal("not a message")
	require.ErrorIs(t, err, backend.ErrUnsupportedMessage)
}
