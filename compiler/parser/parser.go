package parser

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/token"
)

type (
	// Parser is a recursive descent parser over a token stream.
	Parser struct {
		toks []token.Token
		i    int
	}
)

func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

func Parse(ctx context.Context, toks []token.Token) (p *ast.Program, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "parse", "tokens", len(toks))
	defer tr.Finish("err", &err)

	p, err = New(toks).Program()
	if err != nil {
		return nil, err
	}

	if tr.If("dump_ast") {
		tr.Printw("program", "mode", p.Mode, "funcs", len(p.Funcs))

		for _, f := range p.Funcs {
			tr.Printw("func", "name", f.Name, "params", f.Params, "ret", f.Ret, "stmts", len(f.Body))
		}
	}

	return p, nil
}

func (p *Parser) Program() (*ast.Program, error) {
	prog := &ast.Program{}

	p.skipNewlines()

	if p.peek().Is(token.Keyword, "mode") {
		p.next()

		tk := p.next()
		if tk.Kind != token.Ident {
			return nil, p.err(tk, "mode name expected, got %v", tk)
		}

		prog.Mode = string(tk.Text)

		err := p.expectNewline()
		if err != nil {
			return nil, err
		}

		p.skipNewlines()
	}

	for p.peek().Kind != token.EOF {
		tk := p.peek()

		if !tk.Is(token.Keyword, "func") {
			return nil, p.err(tk, "func declaration expected, got %v", tk)
		}

		f, err := p.funcDecl()
		if err != nil {
			return nil, err
		}

		prog.Funcs = append(prog.Funcs, f)

		p.skipNewlines()
	}

	return prog, nil
}

func (p *Parser) funcDecl() (*ast.Func, error) {
	kw := p.next() // func

	name := p.next()
	if name.Kind != token.Ident {
		return nil, p.err(name, "function name expected, got %v", name)
	}

	f := &ast.Func{
		Pos:  pos(kw),
		Name: string(name.Text),
	}

	err := p.expectPunct("(")
	if err != nil {
		return nil, err
	}

	for !p.peek().Is(token.Punct, ")") {
		if len(f.Params) != 0 {
			err = p.expectPunct(",")
			if err != nil {
				return nil, err
			}
		}

		pn := p.next()
		if pn.Kind != token.Ident {
			return nil, p.err(pn, "parameter name expected, got %v", pn)
		}

		err = p.expectPunct(":")
		if err != nil {
			return nil, err
		}

		pt := p.next()
		if pt.Kind != token.Ident {
			return nil, p.err(pt, "parameter type expected, got %v", pt)
		}

		f.Params = append(f.Params, ast.Param{Pos: pos(pn), Name: string(pn.Text), Type: string(pt.Text)})
	}

	p.next() // )

	err = p.expectPunct("->")
	if err != nil {
		return nil, p.err(p.prev(), "return type expected after parameter list")
	}

	rt := p.next()
	if rt.Kind != token.Ident {
		return nil, p.err(rt, "return type expected, got %v", rt)
	}

	f.Ret = string(rt.Text)

	f.Body, err = p.colonBlock()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// colonBlock parses `: NEWLINE INDENT stmts DEDENT`.
func (p *Parser) colonBlock() (ast.Block, error) {
	err := p.expectPunct(":")
	if err != nil {
		return nil, err
	}

	err = p.expectNewline()
	if err != nil {
		return nil, err
	}

	if tk := p.peek(); tk.Kind != token.Indent {
		return nil, p.err(tk, "indented block expected, got %v", tk)
	}

	p.next()

	var b ast.Block

	for {
		tk := p.peek()
		if tk.Kind == token.Dedent || tk.Kind == token.EOF {
			break
		}

		s, err := p.stmt()
		if err != nil {
			return nil, err
		}

		b = append(b, s)
	}

	if p.peek().Kind == token.Dedent {
		p.next()
	}

	if len(b) == 0 {
		return nil, p.err(p.prev(), "empty block")
	}

	return b, nil
}

func (p *Parser) stmt() (ast.Node, error) {
	tk := p.peek()

	if tk.Kind == token.Keyword {
		switch string(tk.Text) {
		case "give":
			return p.giveStmt()
		case "when":
			return p.whenStmt()
		case "while":
			return p.whileStmt()
		case "loop", "repeat":
			p.next()

			body, err := p.colonBlock()
			if err != nil {
				return nil, err
			}

			return ast.Loop{Pos: pos(tk), Body: body}, nil
		case "break", "stop":
			p.next()
			return ast.Break{Pos: pos(tk)}, p.expectNewline()
		case "continue", "skip":
			p.next()
			return ast.Continue{Pos: pos(tk)}, p.expectNewline()
		}

		return nil, p.err(tk, "unexpected %v", tk)
	}

	if tk.Kind == token.Ident {
		switch string(tk.Text) {
		case "write", "writeln":
			if p.at(1).Is(token.Punct, "(") {
				return p.writeStmt()
			}
		}

		if p.at(1).Is(token.Punct, ":") {
			return p.varDecl()
		}

		if p.at(1).Is(token.Op, "=") {
			name := p.next()
			p.next() // =

			x, err := p.expr()
			if err != nil {
				return nil, err
			}

			return ast.Assign{Pos: pos(name), Name: string(name.Text), X: x}, p.expectNewline()
		}
	}

	x, err := p.expr()
	if err != nil {
		return nil, err
	}

	return ast.ExprStmt{Pos: pos(tk), X: x}, p.expectNewline()
}

func (p *Parser) giveStmt() (ast.Node, error) {
	kw := p.next()

	if p.peek().Kind == token.Newline {
		p.next()
		return ast.Return{Pos: pos(kw)}, nil
	}

	x, err := p.expr()
	if err != nil {
		return nil, err
	}

	return ast.Return{Pos: pos(kw), X: x}, p.expectNewline()
}

func (p *Parser) whenStmt() (ast.Node, error) {
	kw := p.next()

	cond, err := p.expr()
	if err != nil {
		return nil, err
	}

	then, err := p.colonBlock()
	if err != nil {
		return nil, err
	}

	s := ast.If{Pos: pos(kw), Cond: cond, Then: then}

	if !p.peek().Is(token.Keyword, "else") {
		return s, nil
	}

	p.next()

	if p.peek().Is(token.Keyword, "when") {
		chained, err := p.whenStmt()
		if err != nil {
			return nil, err
		}

		s.Else = ast.Block{chained}

		return s, nil
	}

	s.Else, err = p.colonBlock()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (p *Parser) whileStmt() (ast.Node, error) {
	kw := p.next()

	cond, err := p.expr()
	if err != nil {
		return nil, err
	}

	body, err := p.colonBlock()
	if err != nil {
		return nil, err
	}

	return ast.While{Pos: pos(kw), Cond: cond, Body: body}, nil
}

func (p *Parser) varDecl() (ast.Node, error) {
	name := p.next()
	p.next() // :

	tn := p.next()
	if tn.Kind != token.Ident {
		return nil, p.err(tn, "type name expected, got %v", tn)
	}

	d := ast.VarDecl{Pos: pos(name), Name: string(name.Text), Type: string(tn.Text)}

	if p.peek().Is(token.Op, "=") {
		p.next()

		var err error

		d.Init, err = p.expr()
		if err != nil {
			return nil, err
		}
	}

	return d, p.expectNewline()
}

func (p *Parser) writeStmt() (ast.Node, error) {
	name := p.next()
	p.next() // (

	x, err := p.expr()
	if err != nil {
		return nil, err
	}

	err = p.expectPunct(")")
	if err != nil {
		return nil, err
	}

	w := ast.Write{Pos: pos(name), X: x, Newline: string(name.Text) == "writeln"}

	return w, p.expectNewline()
}

// expr parses a full expression. Comparison binds loosest and does not chain.
func (p *Parser) expr() (ast.Node, error) {
	l, err := p.bitOr()
	if err != nil {
		return nil, err
	}

	op := p.peek()
	if !isCompareOp(op) {
		return l, nil
	}

	p.next()

	r, err := p.bitOr()
	if err != nil {
		return nil, err
	}

	if tk := p.peek(); isCompareOp(tk) {
		return nil, p.err(tk, "comparisons do not chain")
	}

	return ast.Binary{Pos: pos(op), Op: string(op.Text), L: l, R: r}, nil
}

func (p *Parser) bitOr() (ast.Node, error)  { return p.binary(p.bitXor, "|") }
func (p *Parser) bitXor() (ast.Node, error) { return p.binary(p.bitAnd, "^") }
func (p *Parser) bitAnd() (ast.Node, error) { return p.binary(p.shift, "&") }
func (p *Parser) shift() (ast.Node, error)  { return p.binary(p.additive, "<<", ">>") }
func (p *Parser) additive() (ast.Node, error) {
	return p.binary(p.multiplicative, "+", "-")
}
func (p *Parser) multiplicative() (ast.Node, error) {
	return p.binary(p.unary, "*", "/", "%")
}

func (p *Parser) binary(next func() (ast.Node, error), ops ...string) (ast.Node, error) {
	l, err := next()
	if err != nil {
		return nil, err
	}

	for {
		tk := p.peek()
		if tk.Kind != token.Op || !contains(ops, string(tk.Text)) {
			return l, nil
		}

		p.next()

		r, err := next()
		if err != nil {
			return nil, err
		}

		l = ast.Binary{Pos: pos(tk), Op: string(tk.Text), L: l, R: r}
	}
}

func (p *Parser) unary() (ast.Node, error) {
	tk := p.peek()

	if tk.Kind == token.Op && (string(tk.Text) == "-" || string(tk.Text) == "!") {
		p.next()

		x, err := p.unary()
		if err != nil {
			return nil, err
		}

		return ast.Unary{Pos: pos(tk), Op: string(tk.Text), X: x}, nil
	}

	return p.primary()
}

func (p *Parser) primary() (ast.Node, error) {
	tk := p.next()

	switch tk.Kind {
	case token.Int:
		return ast.IntLit{Pos: pos(tk), Value: tk.Int, Radix: tk.Radix}, nil
	case token.Str:
		return ast.StrLit{Pos: pos(tk), Value: tk.Str}, nil
	case token.Keyword:
		switch string(tk.Text) {
		case "True":
			return ast.BoolLit{Pos: pos(tk), Value: true}, nil
		case "False":
			return ast.BoolLit{Pos: pos(tk)}, nil
		}
	case token.Punct:
		if string(tk.Text) == "(" {
			x, err := p.expr()
			if err != nil {
				return nil, err
			}

			return x, p.expectPunct(")")
		}
	case token.Ident:
		if !p.peek().Is(token.Punct, "(") {
			return ast.Ident{Pos: pos(tk), Name: string(tk.Text)}, nil
		}

		p.next() // (

		var args []ast.Node

		for !p.peek().Is(token.Punct, ")") {
			if len(args) != 0 {
				err := p.expectPunct(",")
				if err != nil {
					return nil, err
				}
			}

			a, err := p.expr()
			if err != nil {
				return nil, err
			}

			args = append(args, a)
		}

		p.next() // )

		if b, ok := ast.BuiltinByName(string(tk.Text)); ok {
			return ast.BuiltinCall{Pos: pos(tk), Kind: b, Args: args}, nil
		}

		return ast.Call{Pos: pos(tk), Name: string(tk.Text), Args: args}, nil
	}

	return nil, p.err(tk, "expression expected, got %v", tk)
}

func (p *Parser) peek() token.Token { return p.at(0) }

func (p *Parser) at(n int) token.Token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}

	return token.Token{Kind: token.EOF}
}

func (p *Parser) next() token.Token {
	tk := p.peek()

	if p.i < len(p.toks) {
		p.i++
	}

	return tk
}

func (p *Parser) prev() token.Token {
	if p.i > 0 {
		return p.toks[p.i-1]
	}

	return token.Token{}
}

func (p *Parser) skipNewlines() {
	for p.peek().Kind == token.Newline {
		p.next()
	}
}

func (p *Parser) expectPunct(text string) error {
	tk := p.next()
	if !tk.Is(token.Punct, text) {
		return p.err(tk, "%q expected, got %v", text, tk)
	}

	return nil
}

func (p *Parser) expectNewline() error {
	tk := p.next()
	if tk.Kind != token.Newline && tk.Kind != token.EOF {
		return p.err(tk, "end of line expected, got %v", tk)
	}

	return nil
}

func (p *Parser) err(tk token.Token, format string, args ...any) error {
	return diag.New(diag.Parse, tk.Line, tk.Col, format, args...)
}

func pos(tk token.Token) ast.Pos {
	return ast.Pos{Line: tk.Line, Col: tk.Col}
}

func isCompareOp(tk token.Token) bool {
	if tk.Kind != token.Op {
		return false
	}

	switch string(tk.Text) {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}

	return false
}

func contains(ops []string, s string) bool {
	for _, o := range ops {
		if o == s {
			return true
		}
	}

	return false
}
