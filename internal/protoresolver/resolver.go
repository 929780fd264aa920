// Package protoresolver performs a lexical scan of raw .proto source text to
// recover its package declaration and the list of files it imports, without
// invoking a full protobuf parser. It is the first step of schema
// compilation: the compiler needs a schema's transitive import list before
// it can assemble the full set of sources to hand to the parser.
//
// The scan assumes "clean" protobuf source with no `//` or `/* */` comments,
// which holds for schemas served by a registry that normalizes submissions.
package protoresolver

import "regexp"

// Info holds the package and import declarations recovered from a raw
// .proto source.
type Info struct {
	Package string
	Imports []string
}

var (
	packageRe = regexp.MustCompile(`package\s+([A-Za-z0-9_.]+)\s*;`)
	importRe  = regexp.MustCompile(`import\s+"([A-Za-z0-9_./]+)"\s*;`)
	tokenRe   = regexp.MustCompile(`package\s+[A-Za-z0-9_.]+\s*;|import\s+"[A-Za-z0-9_./]+"\s*;`)
)

// Resolve scans raw .proto source and returns its package name and the
// ordered list of paths it imports.
func Resolve(source string) Info {
	var info Info

	for _, tok := range tokenRe.FindAllString(source, -1) {
		switch {
		case packageRe.MatchString(tok):
			m := packageRe.FindStringSubmatch(tok)
			info.Package = m[1]
		case importRe.MatchString(tok):
			m := importRe.FindStringSubmatch(tok)
			info.Imports = append(info.Imports, m[1])
		}
	}

	return info
}
