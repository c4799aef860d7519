package backend

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	// Registered first so the codec below replaces it.
	_ "google.golang.org/grpc/encoding/proto"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// CodecName is gRPC's default content subtype. The backend messages use the
// protobuf wire format of backend.proto, so no subtype is negotiated.
const CodecName = "proto"

// ErrUnsupportedMessage indicates a value that is neither a backend message nor a protobuf message.
var ErrUnsupportedMessage = errors.New("unsupported message type")

// wireMessage is implemented by the backend messages in messages.go.
type wireMessage interface {
	appendWire(b []byte) []byte
	// decodeField consumes one field value and returns its length, or 0 to
	// skip it as unknown, or a negative protowire error code.
	decodeField(num protowire.Number, typ protowire.Type, b []byte) int
}

// Codec encodes backend messages with protowire and hands every other
// protobuf message, such as the grpc.health.v1 types, to proto.Marshal.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case wireMessage:
		return msg.appendWire(nil), nil
	case proto.Message:
		data, err := proto.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
		}

		return data, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
	}
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	switch msg := v.(type) {
	case wireMessage:
		err := decodeWire(data, msg)
		if err != nil {
			return fmt.Errorf("failed to unmarshal %T: %w", v, err)
		}

		return nil
	case proto.Message:
		err := proto.Unmarshal(data, msg)
		if err != nil {
			return fmt.Errorf("failed to unmarshal %T: %w", v, err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
	}
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

func decodeWire(data []byte, msg wireMessage) error {
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}

		data = data[tagLen:]

		valueLen := msg.decodeField(num, typ, data)
		if valueLen == 0 {
			valueLen = protowire.ConsumeFieldValue(num, typ, data)
		}

		if valueLen < 0 {
			return protowire.ParseError(valueLen)
		}

		data = data[valueLen:]
	}

	return nil
}

func appendString(b []byte, num protowire.Number, value string) []byte {
	if value == "" {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, value)
}

func appendBytes(b []byte, num protowire.Number, value []byte) []byte {
	if len(value) == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, value)
}

func appendBool(b []byte, num protowire.Number, value bool) []byte {
	if !value {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, protowire.EncodeBool(value))
}

// appendInt32 encodes an int32 field; negative values take ten bytes, as in protobuf.
func appendInt32(b []byte, num protowire.Number, value int32) []byte {
	if value == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, uint64(int64(value)))
}

func appendDouble(b []byte, num protowire.Number, value float64) []byte {
	if value == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.Fixed64Type)

	return protowire.AppendFixed64(b, math.Float64bits(value))
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}

	value, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = value
	}

	return n
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}

	value, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte(nil), value...)
	}

	return n
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) int {
	if typ != protowire.VarintType {
		return 0
	}

	value, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = protowire.DecodeBool(value)
	}

	return n
}

func consumeInt32(typ protowire.Type, b []byte, dst *int32) int {
	if typ != protowire.VarintType {
		return 0
	}

	value, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = int32(value) //nolint:gosec // int32 fields truncate, as in protobuf
	}

	return n
}

func consumeDouble(typ protowire.Type, b []byte, dst *float64) int {
	if typ != protowire.Fixed64Type {
		return 0
	}

	value, n := protowire.ConsumeFixed64(b)
	if n >= 0 {
		*dst = math.Float64frombits(value)
	}

	return n
}
