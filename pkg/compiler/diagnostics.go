package compiler

import "fmt"

// DiagnosticKind is the closed set of error categories raised anywhere in
// the pipeline, from preprocessing through code generation.
type DiagnosticKind int

const (
	PreprocessingError DiagnosticKind = iota
	LexError
	ParseError
	RuntimeError
	CodegenError
)

func (k DiagnosticKind) String() string {
	switch k {
	case PreprocessingError:
		return "PreprocessingError"
	case LexError:
		return "LexError"
	case ParseError:
		return "ParseError"
	case RuntimeError:
		return "RuntimeError"
	case CodegenError:
		return "CodegenError"
	default:
		return "UnknownError"
	}
}

// Diagnostic is the single error shape produced by every pipeline stage.
// It always carries a kind and a source position, even when a stage cannot
// pin the position down precisely (in which case File is still set and
// Line/Column default to the best available approximation).
type Diagnostic struct {
	Kind    DiagnosticKind
	Pos     Position
	Message string
}

func (d *Diagnostic) Error() string {
	if d.Pos.File == "" && d.Pos.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Pos, d.Message)
}

func newDiag(kind DiagnosticKind, pos Position, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...)}
}
