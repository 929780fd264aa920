package protoschema

import (
	"context"
	"fmt"
	"strings"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/protoresolver"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/wellknown"
)

// SourceFile is a single raw .proto source, keyed by the import path other
// sources reference it by (the reference name the registry lists it under,
// or a well-known import path).
type SourceFile struct {
	Path    string
	Content string
}

// Compiler assembles raw .proto sources, augmented with the bundled
// well-known types, into a compiled type context.
type Compiler struct {
	wellKnown map[string]string
}

// NewCompiler creates a Compiler pre-seeded with the well-known type bundle.
func NewCompiler() *Compiler {
	return &Compiler{wellKnown: wellknown.Sources()}
}

// Compile compiles primary together with its transitive references into a
// CompiledSchema whose top-level message is fullName. refs should already
// be in dependency order (dependencies before dependents); order does not
// affect correctness here since every source is resolvable by path, but it
// mirrors how the registry cache assembles the list.
//
// Neither primary nor refs need to carry the well-known sources they
// import: Compile lexically resolves each source's import list and pulls
// in only the well-known bundle sources actually imported, rather than
// seeding the compile with the whole bundle unconditionally.
func (c *Compiler) Compile(ctx context.Context, primary SourceFile, refs []SourceFile, fullName string) (*CompiledSchema, error) {
	sources := make(map[string]string, len(refs)+1)
	for _, ref := range refs {
		sources[ref.Path] = ref.Content
	}
	sources[primary.Path] = primary.Content

	resolveWellKnown := func(content string) {
		info := protoresolver.Resolve(content)
		for _, imp := range info.Imports {
			if wk, ok := c.wellKnown[imp]; ok {
				sources[imp] = wk
			}
		}
	}
	for _, ref := range refs {
		resolveWellKnown(ref.Content)
	}
	resolveWellKnown(primary.Content)

	resolver := &mapResolver{sources: sources}
	compiler := protocompile.Compiler{
		Resolver:       resolver,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}

	roots := make([]string, 0, len(refs)+1)
	for _, ref := range refs {
		roots = append(roots, ref.Path)
	}
	roots = append(roots, primary.Path)

	files, err := compiler.Compile(ctx, roots...)
	if err != nil {
		return nil, &CompileError{Cause: err}
	}

	reg := &protoregistry.Files{}
	for _, f := range files {
		if regErr := reg.RegisterFile(f); regErr != nil {
			return nil, &CompileError{Cause: fmt.Errorf("registering %s: %w", f.Path(), regErr)}
		}
	}

	desc, err := reg.FindDescriptorByName(protoreflect.FullName(fullName))
	if err != nil {
		return nil, &CompileError{Cause: fmt.Errorf("message %s not found: %w", fullName, err)}
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, &CompileError{Cause: fmt.Errorf("%s is not a message type", fullName)}
	}

	return &CompiledSchema{
		files:    reg,
		message:  md,
		fullName: fullName,
	}, nil
}

// mapResolver serves raw .proto sources out of an in-memory path -> content
// map. Every source needed to compile a schema is known up front, fetched
// and assembled by the registry cache before compilation starts.
type mapResolver struct {
	sources map[string]string
}

// FindFileByPath implements protocompile.Resolver.
func (r *mapResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	content, ok := r.sources[path]
	if !ok {
		return protocompile.SearchResult{}, &fileNotFoundError{path: path}
	}
	return protocompile.SearchResult{
		Source: strings.NewReader(content),
	}, nil
}

type fileNotFoundError struct {
	path string
}

func (e *fileNotFoundError) Error() string {
	return "file not found: " + e.path
}

var _ protocompile.Resolver = (*mapResolver)(nil)
