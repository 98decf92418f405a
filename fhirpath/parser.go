package fhirpath

import "fmt"

// ParseMode selects how the parser behaves when it hits an unexpected
// token.
type ParseMode uint8

const (
	// ModeFast stops at the first error, the way a one-shot evaluation
	// caller wants: no point building a partial tree it will never use.
	ModeFast ParseMode = iota
	// ModeAnalysis collects diagnostics, synthesizes ErrorExpr sentinels,
	// and keeps going: the shape an editor/LSP frontend needs.
	ModeAnalysis
)

// canStartExpr reports whether tok can legally begin an expression at
// any precedence level; synchronize() scans forward to the next such token.
func canStartExpr(tok Token) bool {
	switch tok.Kind {
	case TokenIdentifier, TokenDelimitedIdentifier, TokenString, TokenInteger,
		TokenDecimal, TokenDate, TokenTime, TokenDateTime, TokenQuantity,
		TokenBoolean, TokenVariable:
		return true
	case TokenPunctuation:
		return tok.Text == "(" || tok.Text == "{"
	case TokenOperator:
		return tok.Text == "+" || tok.Text == "-"
	case TokenKeyword:
		return tok.Text == "not"
	default:
		return false
	}
}

// Parser is a hand-rolled precedence-climbing (Pratt) parser over a
// pre-lexed token slice. It never touches the lexer's input bytes
// directly; spans on synthesized nodes are derived from token spans.
type Parser struct {
	tokens []Token
	pos    int
	sink   *Sink
	mode   ParseMode
	fast   error // set in ModeFast once the first error fires; short-circuits
}

// ParseExpression parses src as a complete FHIRPath expression. In
// ModeFast it returns (nil, diagnostics) on the first syntax error. In
// ModeAnalysis it always returns a usable tree, padded with ErrorExpr
// sentinels where recovery was needed.
func ParseExpression(src string, mode ParseMode) (Expr, []Diagnostic) {
	sink := &Sink{}
	tok := NewTokenizer(src, sink)
	var tokens []Token
	for {
		t := tok.Next()
		tokens = append(tokens, t)
		if t.Kind == TokenEOF {
			break
		}
	}

	p := &Parser{tokens: tokens, sink: sink, mode: mode}
	expr := p.parseExpr()
	if p.fast != nil {
		return nil, sink.Diagnostics()
	}
	if !p.atEOF() {
		tok := p.peek()
		p.errorf(CodeUnexpectedToken, tok.Span, "unexpected trailing input %q", tok.Text)
		if mode == ModeFast {
			return nil, sink.Diagnostics()
		}
	}
	return expr, sink.Diagnostics()
}

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) atEOF() bool {
	return p.peek().Kind == TokenEOF
}

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *Parser) isOp(kinds []string) bool {
	t := p.peek()
	if t.Kind != TokenOperator && t.Kind != TokenKeyword {
		return false
	}
	for _, k := range kinds {
		if t.Text == k {
			return true
		}
	}
	return false
}

func (p *Parser) isPunct(text string) bool {
	t := p.peek()
	return t.Kind == TokenPunctuation && t.Text == text
}

func (p *Parser) errorf(code DiagnosticCode, span Span, format string, args ...any) {
	d := newDiag(code, span, format, args...)
	p.sink.Add(d)
	if p.mode == ModeFast && p.fast == nil {
		p.fast = d
	}
}

// synchronize scans forward to the next token that could legally start an
// expression, so the caller can resume parsing at a consistent point. It
// always consumes at least one token to guarantee progress.
func (p *Parser) synchronize() {
	p.advance()
	for !p.atEOF() && !canStartExpr(p.peek()) {
		p.advance()
	}
}

func (p *Parser) errorExpr(span Span, expected []string, msg string) Expr {
	e := &ErrorExpr{Message: msg, Expected: expected}
	e.span = span
	return e
}

func mergeSpan(parts ...Expr) Span {
	var s Span
	first := true
	for _, e := range parts {
		if e == nil {
			continue
		}
		if first {
			s = e.Span()
			first = false
		} else {
			s = s.Cover(e.Span())
		}
	}
	return s
}

// --- precedence ladder, lowest to highest ---

func (p *Parser) parseExpr() Expr {
	return p.parseImplies()
}

func (p *Parser) parseImplies() Expr {
	left := p.parseOrXor()
	if p.fast != nil {
		return left
	}
	if p.isOp([]string{"implies"}) {
		p.advance()
		right := p.parseImplies() // right-associative
		return &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: "implies", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseOrXor() Expr {
	left := p.parseAnd()
	for p.fast == nil && p.isOp([]string{"or", "xor"}) {
		op := p.advance().Text
		right := p.parseAnd()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseMembership()
	for p.fast == nil && p.isOp([]string{"and"}) {
		p.advance()
		right := p.parseMembership()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: "and", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMembership() Expr {
	left := p.parseEquality()
	for p.fast == nil && p.isOp([]string{"in", "contains"}) {
		op := p.advance().Text
		right := p.parseEquality()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() Expr {
	left := p.parseInequality()
	for p.fast == nil && p.isOp([]string{"=", "!=", "~", "!~"}) {
		op := p.advance().Text
		right := p.parseInequality()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseInequality() Expr {
	left := p.parseTypeExpr()
	for p.fast == nil && p.isOp([]string{"<", "<=", ">", ">="}) {
		op := p.advance().Text
		right := p.parseTypeExpr()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseTypeExpr() Expr {
	left := p.parseUnion()
	for p.fast == nil && p.isOp([]string{"is", "as"}) {
		op := p.advance().Text
		spec := p.parseTypeSpecifier()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, spec)}, Op: op, Left: left, Right: spec}
	}
	return left
}

// parseTypeSpecifier parses the right operand of the is/as operators: one or
// two dotted identifiers, never a general expression.
func (p *Parser) parseTypeSpecifier() Expr {
	start := p.peek().Span
	if p.peek().Kind != TokenIdentifier && p.peek().Kind != TokenDelimitedIdentifier {
		p.errorf(CodeUnexpectedToken, start, "expected a type name, got %q", p.peek().Text)
		return p.errorExpr(start, []string{"identifier"}, "expected type name")
	}
	first := p.identifierText(p.advance())
	name := first
	namespace := ""
	if p.isPunct(".") && (p.peekAt(1).Kind == TokenIdentifier || p.peekAt(1).Kind == TokenDelimitedIdentifier) {
		p.advance()
		namespace = first
		name = p.identifierText(p.advance())
	}
	end := p.tokens[p.pos-1].Span
	return &TypeSpecifierExpr{exprBase: exprBase{span: start.Cover(end)}, Namespace: namespace, Name: name}
}

func (p *Parser) identifierText(tok Token) string {
	if tok.Kind == TokenDelimitedIdentifier {
		s, _ := unescape(tok.Text[1 : len(tok.Text)-1])
		return s
	}
	return tok.Text
}

func (p *Parser) parseUnion() Expr {
	left := p.parseAdditive()
	for p.fast == nil && p.isPunct("|") {
		p.advance()
		right := p.parseAdditive()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: "|", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.fast == nil && p.isOp([]string{"+", "-", "&"}) {
		op := p.advance().Text
		right := p.parseMultiplicative()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseUnary()
	for p.fast == nil && p.isOp([]string{"*", "/", "div", "mod"}) {
		op := p.advance().Text
		right := p.parseUnary()
		left = &BinaryExpr{exprBase: exprBase{span: mergeSpan(left, right)}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.isOp([]string{"+", "-", "not"}) {
		op := p.advance()
		operand := p.parseUnary()
		return &UnaryExpr{exprBase: exprBase{span: op.Span.Cover(operand.Span())}, Op: op.Text, Operand: operand}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	for p.fast == nil {
		switch {
		case p.isPunct("."):
			p.advance()
			expr = p.parseInvocation(expr)
		case p.isPunct("["):
			open := p.advance()
			index := p.parseExpr()
			end := p.expectPunct("]", open.Span)
			expr = &IndexExpr{exprBase: exprBase{span: expr.Span().Cover(end)}, Target: expr, Index: index}
		default:
			return expr
		}
	}
	return expr
}

// parseInvocation parses the member-or-call following a `.`, binding a
// trailing `(...)` to the preceding identifier as a function call with
// receiver.
func (p *Parser) parseInvocation(receiver Expr) Expr {
	tok := p.peek()
	switch {
	case tok.Kind == TokenIdentifier || tok.Kind == TokenDelimitedIdentifier || (tok.Kind == TokenKeyword):
		p.advance()
		name := p.identifierText(tok)
		if p.isPunct("(") {
			args, endSpan := p.parseArgList()
			return &FunctionCallExpr{exprBase: exprBase{span: receiver.Span().Cover(endSpan)}, Receiver: receiver, Name: name, Args: args}
		}
		return &PathExpr{exprBase: exprBase{span: receiver.Span().Cover(tok.Span)}, Receiver: receiver, Member: name}
	case tok.Kind == TokenVariable && tok.Text == "$this":
		p.advance()
		return &PathExpr{exprBase: exprBase{span: receiver.Span().Cover(tok.Span)}, Receiver: receiver, Member: "$this"}
	default:
		p.errorf(CodeUnexpectedToken, tok.Span, "expected a member name or function call after '.', got %q", tok.Text)
		errExpr := p.errorExpr(tok.Span, []string{"identifier"}, "expected member or function after '.'")
		if p.mode == ModeAnalysis {
			p.synchronize()
		}
		return errExpr
	}
}

// parseArgList parses `(` arg (`,` arg)* `)`, already having seen `(`.
func (p *Parser) parseArgList() ([]Expr, Span) {
	open := p.advance() // '('
	var args []Expr
	if !p.isPunct(")") {
		args = append(args, p.parseExpr())
		for p.fast == nil && p.isPunct(",") {
			p.advance()
			args = append(args, p.parseExpr())
		}
	}
	end := p.expectPunct(")", open.Span)
	return args, end
}

func (p *Parser) expectPunct(text string, openerSpan Span) Span {
	if p.isPunct(text) {
		return p.advance().Span
	}
	tok := p.peek()
	d := newDiag(CodeUnclosedDelimiter, tok.Span, "expected %q, got %q", text, tok.Text)
	d.Related = []Related{{Span: openerSpan, Message: "to match this opening delimiter"}}
	p.sink.Add(d)
	if p.mode == ModeFast && p.fast == nil {
		p.fast = d
	}
	return tok.Span
}

func (p *Parser) parsePrimary() Expr {
	tok := p.peek()
	switch tok.Kind {
	case TokenInteger:
		p.advance()
		v, err := ParseIntegerLiteral(tok.Text)
		if err != nil {
			p.errorf(CodeTypeMismatch, tok.Span, "invalid integer literal %q: %v", tok.Text, err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: v}
	case TokenDecimal:
		p.advance()
		v, err := ParseDecimalLiteral(tok.Text)
		if err != nil {
			p.errorf(CodeTypeMismatch, tok.Span, "invalid decimal literal %q: %v", tok.Text, err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: v}
	case TokenString:
		p.advance()
		s, err := unescape(tok.Text[1 : len(tok.Text)-1])
		if err != nil {
			p.errorf(CodeBadEscape, tok.Span, "%v", err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: String(s)}
	case TokenBoolean:
		p.advance()
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: Boolean(tok.Text == "true")}
	case TokenDate:
		p.advance()
		v, err := ParseDate(tok.Text)
		if err != nil {
			p.errorf(CodeTypeMismatch, tok.Span, "invalid date literal %q: %v", tok.Text, err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: v}
	case TokenTime:
		p.advance()
		v, err := ParseTime(tok.Text)
		if err != nil {
			p.errorf(CodeTypeMismatch, tok.Span, "invalid time literal %q: %v", tok.Text, err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: v}
	case TokenDateTime:
		p.advance()
		v, err := ParseDateTime(tok.Text)
		if err != nil {
			p.errorf(CodeTypeMismatch, tok.Span, "invalid datetime literal %q: %v", tok.Text, err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: v}
	case TokenQuantity:
		p.advance()
		v, err := ParseQuantity(tok.Text)
		if err != nil {
			p.errorf(CodeTypeMismatch, tok.Span, "invalid quantity literal %q: %v", tok.Text, err)
		}
		return &LiteralExpr{exprBase: exprBase{span: tok.Span}, Value: v}
	case TokenVariable:
		p.advance()
		switch tok.Text {
		case "$this":
			return &VariableExpr{exprBase: exprBase{span: tok.Span}, Name: "this", IsSystem: true}
		case "$index":
			return &VariableExpr{exprBase: exprBase{span: tok.Span}, Name: "index", IsSystem: true}
		case "$total":
			return &VariableExpr{exprBase: exprBase{span: tok.Span}, Name: "total", IsSystem: true}
		default:
			name := tok.Text[1:]
			if len(name) > 0 && (name[0] == '`' || name[0] == '\'') {
				unq, _ := unescape(name[1 : len(name)-1])
				name = unq
			}
			return &VariableExpr{exprBase: exprBase{span: tok.Span}, Name: name}
		}
	case TokenIdentifier, TokenDelimitedIdentifier:
		p.advance()
		name := p.identifierText(tok)
		if p.isPunct("(") {
			args, endSpan := p.parseArgList()
			return &FunctionCallExpr{exprBase: exprBase{span: tok.Span.Cover(endSpan)}, Name: name, Args: args}
		}
		return &IdentifierExpr{exprBase: exprBase{span: tok.Span}, Name: name}
	case TokenPunctuation:
		switch tok.Text {
		case "(":
			p.advance()
			inner := p.parseExpr()
			end := p.expectPunct(")", tok.Span)
			return wrapSpan(inner, tok.Span.Cover(end))
		case "{":
			open := p.advance()
			end := p.expectPunct("}", open.Span)
			return &LiteralExpr{exprBase: exprBase{span: open.Span.Cover(end)}, Value: nil}
		}
	}

	p.errorf(CodeUnexpectedToken, tok.Span, "unexpected token %q", tok.Text)
	expected := []string{"identifier", "literal", "(", "{"}
	errExpr := p.errorExpr(tok.Span, expected, fmt.Sprintf("unexpected token %q", tok.Text))
	if p.mode == ModeAnalysis {
		p.synchronize()
	}
	return errExpr
}

// wrapSpan returns inner with its span widened to cover span (used for
// parenthesized expressions, where the parens extend the observable span
// without changing the node's semantics).
func wrapSpan(inner Expr, span Span) Expr {
	switch e := inner.(type) {
	case *LiteralExpr:
		e.span = span
	case *IdentifierExpr:
		e.span = span
	case *VariableExpr:
		e.span = span
	case *IndexExpr:
		e.span = span
	case *PathExpr:
		e.span = span
	case *FunctionCallExpr:
		e.span = span
	case *UnaryExpr:
		e.span = span
	case *BinaryExpr:
		e.span = span
	case *ErrorExpr:
		e.span = span
	}
	return inner
}
