package protoschema

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/wellknown"
)

// DecodeJSON decodes wire-format data as an instance of the compiled
// message type, returning a JSON-shaped value whose structure matches the
// field layout ArrowSchema projects.
func (s *CompiledSchema) DecodeJSON(data []byte) (map[string]any, error) {
	msg := dynamicpb.NewMessage(s.message)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, &DecodeJSONError{Message: fmt.Sprintf("unmarshal wire bytes: %v", err)}
	}
	return decodeMessage(msg)
}

// decodeMessage walks every populated field of msg, building a JSON object
// keyed by field name. Repeated fields collapse to an array in wire order;
// singular fields overwrite on re-appearance, matching proto3's last-wins
// semantics for non-repeated fields.
func decodeMessage(msg protoreflect.Message) (map[string]any, error) {
	if err := checkUnknownFields(msg); err != nil {
		return nil, err
	}

	result := make(map[string]any)
	var rangeErr error
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		decoded, err := decodeValue(fd, v)
		if err != nil {
			rangeErr = err
			return false
		}
		result[string(fd.Name())] = decoded
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}

	return result, nil
}

// checkUnknownFields surfaces wire bytes that didn't match any field
// declared on the compiled schema as a DecodeJSONError naming the
// offending field number, rather than silently dropping them.
func checkUnknownFields(msg protoreflect.Message) error {
	unknown := msg.GetUnknown()
	if len(unknown) == 0 {
		return nil
	}

	num, _, n := protowire.ConsumeTag(unknown)
	if n < 0 {
		return &DecodeJSONError{Message: fmt.Sprintf("malformed field in %s", msg.Descriptor().FullName())}
	}

	return &DecodeJSONError{Message: fmt.Sprintf("Missing field number %d in %s", num, msg.Descriptor().FullName())}
}

func decodeValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) (any, error) {
	if fd.IsMap() {
		return nil, &DecodeJSONError{Message: "map fields are not supported: " + string(fd.FullName())}
	}

	if fd.IsList() {
		list := v.List()
		out := make([]any, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			elem, err := decodeScalarOrMessage(fd, list.Get(i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}

	return decodeScalarOrMessage(fd, v)
}

func decodeScalarOrMessage(fd protoreflect.FieldDescriptor, v protoreflect.Value) (any, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(v.Int()), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int(), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(v.Uint()), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint(), nil
	case protoreflect.FloatKind:
		return float32(v.Float()), nil
	case protoreflect.DoubleKind:
		return v.Float(), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.BytesKind:
		return nil, &DecodeJSONError{Message: "bytes field not supported: " + string(fd.FullName())}
	case protoreflect.EnumKind:
		enumValue := fd.Enum().Values().ByNumber(v.Enum())
		if enumValue == nil {
			return nil, &DecodeJSONError{Message: fmt.Sprintf("enum value %d not found in %s", v.Enum(), fd.Enum().FullName())}
		}
		return string(enumValue.Name()), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return decodeMessageValue(fd.Message(), v.Message())
	default:
		return nil, &DecodeJSONError{Message: "unsupported field kind: " + string(fd.FullName())}
	}
}

func decodeMessageValue(md protoreflect.MessageDescriptor, msg protoreflect.Message) (any, error) {
	fullName := md.FullName()

	if wellknown.IsTimestamp(string(fullName)) {
		return decodeTimestampMillis(msg)
	}

	return decodeMessage(msg)
}

// decodeTimestampMillis renders google.protobuf.Timestamp as the number of
// milliseconds since the epoch, matching the Arrow Timestamp(Millisecond)
// projection of the same field. It only applies the millisecond projection
// when both seconds and nanos were actually present on the wire; a
// Timestamp value with one or both fields absent falls back to the generic
// struct rendering, so a wire-absent zero is distinguishable from an
// explicit zero the way the decoder's reference does.
func decodeTimestampMillis(msg protoreflect.Message) (any, error) {
	fields := msg.Descriptor().Fields()
	secondsField := fields.ByNumber(1)
	nanosField := fields.ByNumber(2)
	if secondsField == nil || nanosField == nil {
		return nil, &DecodeJSONError{Message: "malformed google.protobuf.Timestamp"}
	}

	if !msg.Has(secondsField) || !msg.Has(nanosField) {
		return decodeMessage(msg)
	}

	seconds := msg.Get(secondsField).Int()
	nanos := msg.Get(nanosField).Int()

	return seconds*1000 + nanos/1_000_000, nil
}
