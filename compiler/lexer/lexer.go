package lexer

import (
	"bytes"
	"context"

	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/token"
)

type (
	// Lexer turns source bytes into a flat token stream.
	// Indentation is tracked with a width stack and surfaces as
	// synthetic INDENT/DEDENT tokens.
	Lexer struct {
		b []byte
		i int

		line int
		col  int

		indents []int
		parens  int

		toks []token.Token
	}
)

// tabWidth is the column width a tab advances to when measuring indentation.
const tabWidth = 8

var keywords = map[string]struct{}{
	"func": {}, "give": {}, "when": {}, "else": {},
	"while": {}, "loop": {}, "repeat": {},
	"break": {}, "stop": {}, "continue": {}, "skip": {},
	"mode": {}, "True": {}, "False": {},
}

func New(text []byte) *Lexer {
	text = bytes.ReplaceAll(text, []byte("\r\n"), []byte("\n"))

	return &Lexer{
		b:       text,
		line:    1,
		col:     1,
		indents: []int{0},
	}
}

func Tokenize(ctx context.Context, text []byte) (toks []token.Token, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "lex", "size", len(text))
	defer tr.Finish("err", &err)

	l := New(text)

	toks, err = l.Tokenize()
	if err != nil {
		return nil, err
	}

	if tr.If("dump_tokens") {
		for i, tk := range toks {
			tr.Printw("token", "i", i, "line", tk.Line, "col", tk.Col, "tok", tk.String())
		}
	}

	return toks, nil
}

func (l *Lexer) Tokenize() ([]token.Token, error) {
	for l.i < len(l.b) {
		err := l.line1()
		if err != nil {
			return nil, err
		}
	}

	l.flushDedents()
	l.emit(token.Token{Kind: token.EOF, Line: l.line, Col: l.col})

	return l.toks, nil
}

// line1 scans one physical line: indentation first, then tokens, then NEWLINE.
func (l *Lexer) line1() error {
	width, only := l.measureIndent()
	if only {
		return nil
	}

	if l.parens == 0 {
		err := l.applyIndent(width)
		if err != nil {
			return err
		}
	}

	for l.i < len(l.b) && l.b[l.i] != '\n' {
		c := l.b[l.i]

		switch {
		case c == ' ' || c == '\t':
			l.advance(1)
		case c == '/' && l.i+1 < len(l.b) && l.b[l.i+1] == '/', c == '#':
			l.skipComment()
		default:
			err := l.token1()
			if err != nil {
				return err
			}
		}
	}

	line, col := l.line, l.col

	if l.i < len(l.b) { // consume '\n'
		l.i++
		l.line++
		l.col = 1
	}

	if l.parens == 0 {
		l.emitNewline(line, col)
	}

	return nil
}

// measureIndent counts leading whitespace columns. It reports the width and
// whether the line holds nothing but whitespace or a comment.
func (l *Lexer) measureIndent() (width int, skip bool) {
	j := l.i
	w := 0

	for j < len(l.b) {
		switch l.b[j] {
		case ' ':
			w++
		case '\t':
			w = (w/tabWidth + 1) * tabWidth
		default:
			goto done
		}

		j++
	}

done:
	rest := l.b[j:]
	blank := len(rest) == 0 || rest[0] == '\n' || rest[0] == '#' ||
		(len(rest) > 1 && rest[0] == '/' && rest[1] == '/')

	if blank {
		for j < len(l.b) && l.b[j] != '\n' {
			j++
		}

		if j < len(l.b) {
			j++
		}

		l.i = j
		l.line++
		l.col = 1

		return 0, true
	}

	l.col += j - l.i
	l.i = j

	return w, false
}

func (l *Lexer) applyIndent(w int) error {
	top := l.indents[len(l.indents)-1]

	switch {
	case w == top:
	case w > top:
		l.indents = append(l.indents, w)
		l.emit(token.Token{Kind: token.Indent, Line: l.line, Col: l.col})
	default:
		for len(l.indents) > 1 && l.indents[len(l.indents)-1] > w {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(token.Token{Kind: token.Dedent, Line: l.line, Col: l.col})
		}

		if l.indents[len(l.indents)-1] != w {
			return diag.New(diag.Indentation, l.line, l.col, "unindent does not match any outer indentation level")
		}
	}

	return nil
}

func (l *Lexer) flushDedents() {
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(token.Token{Kind: token.Dedent, Line: l.line, Col: l.col})
	}
}

func (l *Lexer) token1() error {
	c := l.b[l.i]
	line, col := l.line, l.col

	switch {
	case isIdentStart(c):
		text := l.scanIdent()

		kind := token.Ident
		if _, ok := keywords[string(text)]; ok {
			kind = token.Keyword
		}

		l.emit(token.Token{Kind: kind, Text: text, Line: line, Col: col})

		return nil
	case c >= '0' && c <= '9':
		return l.scanNumber(line, col)
	case c == '"':
		return l.scanString(line, col)
	}

	two := ""
	if l.i+1 < len(l.b) {
		two = string(l.b[l.i : l.i+2])
	}

	switch two {
	case "<<", ">>", "==", "!=", "<=", ">=":
		l.emit(token.Token{Kind: token.Op, Text: []byte(two), Line: line, Col: col})
		l.advance(2)

		return nil
	case "->":
		l.emit(token.Token{Kind: token.Punct, Text: []byte(two), Line: line, Col: col})
		l.advance(2)

		return nil
	}

	switch c {
	case '+', '-', '*', '/', '%', '&', '|', '^', '<', '>', '!', '=':
		l.emit(token.Token{Kind: token.Op, Text: l.b[l.i : l.i+1], Line: line, Col: col})
		l.advance(1)
	case ':', ',':
		l.emit(token.Token{Kind: token.Punct, Text: l.b[l.i : l.i+1], Line: line, Col: col})
		l.advance(1)
	case '(':
		l.parens++
		l.emit(token.Token{Kind: token.Punct, Text: l.b[l.i : l.i+1], Line: line, Col: col})
		l.advance(1)
	case ')':
		if l.parens > 0 {
			l.parens--
		}

		l.emit(token.Token{Kind: token.Punct, Text: l.b[l.i : l.i+1], Line: line, Col: col})
		l.advance(1)
	default:
		return diag.New(diag.Lex, line, col, "unexpected character %q", c)
	}

	return nil
}

func (l *Lexer) scanIdent() []byte {
	st := l.i

	for l.i < len(l.b) && isIdentPart(l.b[l.i]) {
		l.advance(1)
	}

	return l.b[st:l.i]
}

func (l *Lexer) scanNumber(line, col int) error {
	radix := 10
	digits := func(c byte) bool { return c >= '0' && c <= '9' }

	if l.b[l.i] == '0' && l.i+1 < len(l.b) {
		switch l.b[l.i+1] {
		case 'x', 'X':
			radix = 16
			digits = isHexDigit
			l.advance(2)
		case 'b', 'B':
			radix = 2
			digits = func(c byte) bool { return c == '0' || c == '1' }
			l.advance(2)
		}
	}

	st := l.i

	var v uint64

	for l.i < len(l.b) && digits(l.b[l.i]) {
		d := digitVal(l.b[l.i])

		hi := v * uint64(radix)
		if hi/uint64(radix) != v || hi+uint64(d) < hi {
			return diag.New(diag.Lex, line, col, "integer literal does not fit in 64 bits")
		}

		v = hi + uint64(d)
		l.advance(1)
	}

	if l.i == st {
		return diag.New(diag.Lex, line, col, "malformed integer literal")
	}

	if l.i < len(l.b) && isIdentPart(l.b[l.i]) {
		return diag.New(diag.Lex, l.line, l.col, "unexpected character %q in integer literal", l.b[l.i])
	}

	l.emit(token.Token{Kind: token.Int, Int: v, Radix: radix, Line: line, Col: col})

	return nil
}

func (l *Lexer) scanString(line, col int) error {
	l.advance(1) // opening quote

	var out []byte

	for {
		if l.i >= len(l.b) || l.b[l.i] == '\n' {
			return diag.New(diag.Lex, line, col, "unterminated string literal")
		}

		c := l.b[l.i]

		if c == '"' {
			l.advance(1)
			break
		}

		if c != '\\' {
			out = append(out, c)
			l.advance(1)

			continue
		}

		if l.i+1 >= len(l.b) {
			return diag.New(diag.Lex, line, col, "unterminated string literal")
		}

		e := l.b[l.i+1]

		switch e {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case '\\':
			out = append(out, '\\')
		case '"':
			out = append(out, '"')
		default:
			return diag.New(diag.Lex, l.line, l.col, "unknown escape sequence \\%c", e)
		}

		l.advance(2)
	}

	l.emit(token.Token{Kind: token.Str, Str: out, Line: line, Col: col})

	return nil
}

func (l *Lexer) skipComment() {
	for l.i < len(l.b) && l.b[l.i] != '\n' {
		l.advance(1)
	}
}

// emitNewline adds a NEWLINE unless the stream is empty or the previous
// token already ends a line.
func (l *Lexer) emitNewline(line, col int) {
	if len(l.toks) == 0 {
		return
	}

	switch l.toks[len(l.toks)-1].Kind {
	case token.Newline, token.Indent, token.Dedent:
		return
	}

	l.emit(token.Token{Kind: token.Newline, Line: line, Col: col})
}

func (l *Lexer) emit(tk token.Token) {
	l.toks = append(l.toks, tk)
}

func (l *Lexer) advance(n int) {
	l.i += n
	l.col += n
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
