// Package pipeline chains the preprocessor, lexer and parser into the one
// front-end entry point cmd/scc's interpret and compile subcommands share.
package pipeline

import "regvm/pkg/compiler"

// BuildAST preprocesses, lexes and parses path, returning the resulting
// Program. Any stage's failure is returned as-is; callers can type-assert
// to *compiler.Diagnostic to recover kind/position for reporting.
func BuildAST(path string) (*compiler.Program, error) {
	source, sourceMap, err := compiler.Preprocess(path)
	if err != nil {
		return nil, err
	}

	tokens, diag := compiler.Lex(source, path, sourceMap)
	if diag != nil {
		return nil, diag
	}

	program, err := compiler.Parse(tokens, path)
	if err != nil {
		return nil, err
	}
	return program, nil
}
