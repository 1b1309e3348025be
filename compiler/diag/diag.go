package diag

import (
	"fmt"
)

type (
	// Kind classifies a diagnostic by the stage and rule that produced it.
	Kind int

	// Error is a fatal compiler diagnostic with a source position.
	Error struct {
		Kind Kind

		File string
		Line int
		Col  int

		Msg string
	}

	// Internal reports a bug in the code generator or assembler tables.
	Internal struct {
		Func  string
		Label string

		Msg string
	}
)

const (
	Lex Kind = iota
	Indentation
	Parse
	Name
	Type
	Range
	Arity
)

var kindNames = []string{"LexError", "IndentationError", "ParseError", "NameError", "TypeError", "RangeError", "ArityError"}

func New(kind Kind, line, col int, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Line: line,
		Col:  col,
		Msg:  fmt.Sprintf(format, args...),
	}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%v at %v:%d:%d: %v", e.Kind, e.File, e.Line, e.Col, e.Msg)
	}

	return fmt.Sprintf("%v at %d:%d: %v", e.Kind, e.Line, e.Col, e.Msg)
}

func NewInternal(fn, label, format string, args ...any) *Internal {
	return &Internal{
		Func:  fn,
		Label: label,
		Msg:   fmt.Sprintf(format, args...),
	}
}

func (e *Internal) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("InternalAssemblerError in %v at %v: %v", e.Func, e.Label, e.Msg)
	}

	return fmt.Sprintf("InternalAssemblerError in %v: %v", e.Func, e.Msg)
}
