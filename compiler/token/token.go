package token

import (
	"fmt"
)

type (
	Kind int

	// Token is a single lexical element with its source coordinates.
	Token struct {
		Kind Kind

		Text  []byte // lexeme for Ident, Keyword, Op, Punct
		Str   []byte // decoded bytes for Str
		Int   uint64 // value for Int
		Radix int    // 10, 16 or 2 for Int

		Line int
		Col  int
	}
)

const (
	EOF Kind = iota
	Newline
	Indent
	Dedent

	Keyword
	Ident
	Int
	Str
	Op
	Punct
)

var kindNames = []string{"EOF", "NEWLINE", "INDENT", "DEDENT", "KEYWORD", "IDENT", "INT", "STR", "OP", "PUNCT"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

func (t Token) String() string {
	switch t.Kind {
	case Int:
		return fmt.Sprintf("%v(%d)", t.Kind, t.Int)
	case Str:
		return fmt.Sprintf("%v(%q)", t.Kind, t.Str)
	case Keyword, Ident, Op, Punct:
		return fmt.Sprintf("%v(%s)", t.Kind, t.Text)
	default:
		return t.Kind.String()
	}
}

// Is reports whether the token is of the kind with exactly the given text.
func (t Token) Is(k Kind, text string) bool {
	return t.Kind == k && string(t.Text) == text
}
