// Package protoschema compiles raw Protobuf sources into a live type
// context, projects a compiled message type onto an Arrow schema, and
// decodes wire-format messages into JSON that matches that projection.
package protoschema

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// CompiledSchema is the result of compiling a set of raw .proto sources: a
// live type context together with the full name of the message type that
// this schema's messages are instances of.
type CompiledSchema struct {
	files    *protoregistry.Files
	message  protoreflect.MessageDescriptor
	fullName string
}

// FullName returns the full name of the compiled message type.
func (s *CompiledSchema) FullName() string {
	return s.fullName
}

// MessageDescriptor returns the descriptor of the compiled message type.
func (s *CompiledSchema) MessageDescriptor() protoreflect.MessageDescriptor {
	return s.message
}

// Files returns the underlying file registry, in case a caller needs to
// resolve a different message from the same compiled context.
func (s *CompiledSchema) Files() *protoregistry.Files {
	return s.files
}

// CompileError wraps a failure to assemble or link the raw Protobuf
// sources into a type context.
type CompileError struct {
	Cause error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile protobuf schema: %v", e.Cause)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

// SchemaProjectionError indicates the compiled message type cannot be
// projected onto an Arrow schema.
type SchemaProjectionError struct {
	Message string
}

func (e *SchemaProjectionError) Error() string {
	return e.Message
}

// DecodeJSONError indicates a wire-format message could not be rendered
// as JSON against its compiled schema.
type DecodeJSONError struct {
	Message string
}

func (e *DecodeJSONError) Error() string {
	return e.Message
}
