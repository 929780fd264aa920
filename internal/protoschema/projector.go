package protoschema

import (
	"github.com/apache/arrow-go/v18/arrow"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/wellknown"
)

// ArrowSchema projects the compiled message type onto an Arrow schema.
// Every field is nullable, matching proto3's implicit presence semantics.
func (s *CompiledSchema) ArrowSchema() (*arrow.Schema, error) {
	fields, err := projectFields(s.message, map[protoreflect.FullName]bool{})
	if err != nil {
		return nil, err
	}
	return arrow.NewSchema(fields, nil), nil
}

func projectFields(md protoreflect.MessageDescriptor, visiting map[protoreflect.FullName]bool) ([]arrow.Field, error) {
	descFields := md.Fields()
	fields := make([]arrow.Field, 0, descFields.Len())
	for i := 0; i < descFields.Len(); i++ {
		f, err := projectField(descFields.Get(i), visiting)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func projectField(fd protoreflect.FieldDescriptor, visiting map[protoreflect.FullName]bool) (arrow.Field, error) {
	if fd.IsMap() {
		return arrow.Field{}, &SchemaProjectionError{Message: "map fields are not supported: " + string(fd.FullName())}
	}

	dt, err := projectType(fd, visiting)
	if err != nil {
		return arrow.Field{}, err
	}

	if fd.IsList() {
		return arrow.Field{
			Name:     string(fd.Name()),
			Type:     arrow.ListOf(dt),
			Nullable: true,
		}, nil
	}

	return arrow.Field{Name: string(fd.Name()), Type: dt, Nullable: true}, nil
}

// projectType maps a single field's proto kind onto an Arrow data type.
// Message kinds recurse into a Struct, substituting the dedicated Arrow
// Timestamp type for google.protobuf.Timestamp and erroring on a message
// type that recursively contains itself, since Arrow schemas cannot
// express unbounded nesting.
func projectType(fd protoreflect.FieldDescriptor, visiting map[protoreflect.FullName]bool) (arrow.DataType, error) {
	switch fd.Kind() {
	case protoreflect.DoubleKind:
		return arrow.PrimitiveTypes.Float64, nil
	case protoreflect.FloatKind:
		return arrow.PrimitiveTypes.Float32, nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return arrow.PrimitiveTypes.Int32, nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return arrow.PrimitiveTypes.Int64, nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return arrow.PrimitiveTypes.Uint32, nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return arrow.PrimitiveTypes.Uint64, nil
	case protoreflect.BoolKind:
		return arrow.FixedWidthTypes.Boolean, nil
	case protoreflect.StringKind:
		return arrow.BinaryTypes.String, nil
	case protoreflect.BytesKind:
		return arrow.BinaryTypes.Binary, nil
	case protoreflect.EnumKind:
		return arrow.BinaryTypes.String, nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return projectMessageType(fd.Message(), visiting)
	default:
		return nil, &SchemaProjectionError{Message: "unsupported field kind for " + string(fd.FullName())}
	}
}

func projectMessageType(md protoreflect.MessageDescriptor, visiting map[protoreflect.FullName]bool) (arrow.DataType, error) {
	fullName := md.FullName()

	if wellknown.IsTimestamp(string(fullName)) {
		return arrow.FixedWidthTypes.Timestamp_ms, nil
	}

	if visiting[fullName] {
		return nil, &SchemaProjectionError{Message: "recursive message type: " + string(fullName)}
	}

	visiting[fullName] = true
	nested, err := projectFields(md, visiting)
	delete(visiting, fullName)
	if err != nil {
		return nil, err
	}

	return arrow.StructOf(nested...), nil
}
