package fhirpath

import "testing"

func parseOK(t *testing.T, src string) Expr {
	t.Helper()
	expr, diags := ParseExpression(src, ModeFast)
	if expr == nil {
		t.Fatalf("%q: parse failed: %v", src, diags)
	}
	return expr
}

func TestParserPrecedenceLadder(t *testing.T) {
	// '+' binds tighter than '=', which binds tighter than 'and'.
	expr := parseOK(t, "1 + 2 = 3 and true")
	and, ok := expr.(*BinaryExpr)
	if !ok || and.Op != "and" {
		t.Fatalf("top node = %#v, want top-level 'and'", expr)
	}
	eq, ok := and.Left.(*BinaryExpr)
	if !ok || eq.Op != "=" {
		t.Fatalf("and.Left = %#v, want '='", and.Left)
	}
	plus, ok := eq.Left.(*BinaryExpr)
	if !ok || plus.Op != "+" {
		t.Fatalf("eq.Left = %#v, want '+'", eq.Left)
	}
}

func TestParserImpliesIsRightAssociative(t *testing.T) {
	expr := parseOK(t, "a implies b implies c")
	top, ok := expr.(*BinaryExpr)
	if !ok || top.Op != "implies" {
		t.Fatalf("top = %#v, want 'implies'", expr)
	}
	if _, ok := top.Left.(*IdentifierExpr); !ok {
		t.Fatalf("top.Left = %#v, want identifier 'a'", top.Left)
	}
	right, ok := top.Right.(*BinaryExpr)
	if !ok || right.Op != "implies" {
		t.Fatalf("top.Right = %#v, want nested 'implies'", top.Right)
	}
}

func TestParserAdditiveIsLeftAssociative(t *testing.T) {
	expr := parseOK(t, "1 - 2 - 3")
	top, ok := expr.(*BinaryExpr)
	if !ok || top.Op != "-" {
		t.Fatalf("top = %#v", expr)
	}
	left, ok := top.Left.(*BinaryExpr)
	if !ok || left.Op != "-" {
		t.Fatalf("expected left-associative nesting, got %#v", top.Left)
	}
}

func TestParserUnaryBindsTighterThanMultiplicative(t *testing.T) {
	expr := parseOK(t, "-1 * 2")
	top, ok := expr.(*BinaryExpr)
	if !ok || top.Op != "*" {
		t.Fatalf("top = %#v, want '*'", expr)
	}
	if _, ok := top.Left.(*UnaryExpr); !ok {
		t.Fatalf("top.Left = %#v, want unary minus", top.Left)
	}
}

func TestParserPathAndFunctionCall(t *testing.T) {
	expr := parseOK(t, "Patient.name.where(use = 'official').given")
	path, ok := expr.(*PathExpr)
	if !ok || path.Member != "given" {
		t.Fatalf("top = %#v, want trailing .given path", expr)
	}
	call, ok := path.Receiver.(*FunctionCallExpr)
	if !ok || call.Name != "where" {
		t.Fatalf("path.Receiver = %#v, want where() call", path.Receiver)
	}
	if len(call.Args) != 1 {
		t.Fatalf("where() args = %v, want 1", call.Args)
	}
	if call.Receiver == nil {
		t.Fatalf("where() should carry the Patient.name receiver")
	}
}

func TestParserIndexExpr(t *testing.T) {
	expr := parseOK(t, "name[0]")
	idx, ok := expr.(*IndexExpr)
	if !ok {
		t.Fatalf("top = %#v, want IndexExpr", expr)
	}
	lit, ok := idx.Index.(*LiteralExpr)
	if !ok {
		t.Fatalf("index = %#v, want integer literal", idx.Index)
	}
	if lit.Value != Integer(0) {
		t.Errorf("index literal = %v, want 0", lit.Value)
	}
}

func TestParserIsAsTypeSpecifier(t *testing.T) {
	expr := parseOK(t, "value is FHIR.Quantity")
	bin, ok := expr.(*BinaryExpr)
	if !ok || bin.Op != "is" {
		t.Fatalf("top = %#v, want 'is'", expr)
	}
	spec, ok := bin.Right.(*TypeSpecifierExpr)
	if !ok {
		t.Fatalf("bin.Right = %#v, want TypeSpecifierExpr", bin.Right)
	}
	if spec.Namespace != "FHIR" || spec.Name != "Quantity" {
		t.Errorf("spec = %+v, want FHIR.Quantity", spec)
	}
}

func TestParserParenthesesWidenSpanNotStructure(t *testing.T) {
	expr := parseOK(t, "(1 + 2)")
	bin, ok := expr.(*BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("top = %#v, want '+' (parens don't create a node)", expr)
	}
	if bin.Span().Start != 0 {
		t.Errorf("span should start at the opening paren, got %d", bin.Span().Start)
	}
}

func TestParserEmptyBraceLiteral(t *testing.T) {
	expr := parseOK(t, "{}")
	lit, ok := expr.(*LiteralExpr)
	if !ok || lit.Value != nil {
		t.Fatalf("top = %#v, want empty-collection literal", expr)
	}
}

func TestParserModeFastStopsAtFirstError(t *testing.T) {
	expr, diags := ParseExpression("Patient..name", ModeFast)
	if expr != nil {
		t.Fatalf("expected nil tree in ModeFast on syntax error, got %#v", expr)
	}
	if len(diags) == 0 {
		t.Fatalf("expected at least one diagnostic")
	}
}

func TestParserModeAnalysisRecovers(t *testing.T) {
	expr, diags := ParseExpression("Patient..name", ModeAnalysis)
	if expr == nil {
		t.Fatalf("ModeAnalysis should still return a usable tree")
	}
	if len(diags) == 0 {
		t.Fatalf("expected diagnostics describing the recovery")
	}
}

func TestParserUnclosedParenReportsRelatedSpan(t *testing.T) {
	_, diags := ParseExpression("(1 + 2", ModeFast)
	found := false
	for _, d := range diags {
		if d.Code == CodeUnclosedDelimiter {
			found = true
			if len(d.Related) == 0 {
				t.Errorf("expected Related pointing at the opening paren")
			}
		}
	}
	if !found {
		t.Errorf("expected a CodeUnclosedDelimiter diagnostic, got %v", diags)
	}
}

func TestParserTrailingInputIsAnError(t *testing.T) {
	_, diags := ParseExpression("1 + 2 )", ModeFast)
	if len(diags) == 0 {
		t.Fatalf("expected a diagnostic for unconsumed trailing input")
	}
}

func TestParserDollarThisAfterDot(t *testing.T) {
	expr := parseOK(t, "children().$this")
	path, ok := expr.(*PathExpr)
	if !ok || path.Member != "$this" {
		t.Fatalf("top = %#v, want PathExpr with Member $this", expr)
	}
}

func TestParserKeywordAsMemberName(t *testing.T) {
	// "div" and "as" are keywords elsewhere but are valid member names
	// following a dot: any identifier-shaped keyword can follow '.'.
	expr := parseOK(t, "Patient.as")
	path, ok := expr.(*PathExpr)
	if !ok || path.Member != "as" {
		t.Fatalf("top = %#v, want PathExpr with Member 'as'", expr)
	}
}

func TestParserDelimitedIdentifier(t *testing.T) {
	expr := parseOK(t, "Patient.`div`")
	path, ok := expr.(*PathExpr)
	if !ok || path.Member != "div" {
		t.Fatalf("top = %#v, want PathExpr with Member 'div' (unescaped)", expr)
	}
}

func TestParserUnionOperator(t *testing.T) {
	expr := parseOK(t, "a | b | c")
	top, ok := expr.(*BinaryExpr)
	if !ok || top.Op != "|" {
		t.Fatalf("top = %#v, want '|'", expr)
	}
}

func TestParserMembershipOperators(t *testing.T) {
	for _, op := range []string{"in", "contains"} {
		expr := parseOK(t, "a "+op+" b")
		top, ok := expr.(*BinaryExpr)
		if !ok || top.Op != op {
			t.Errorf("%q: top = %#v", op, expr)
		}
	}
}

func TestParserQuantityLiteral(t *testing.T) {
	expr := parseOK(t, "4 'mg'")
	lit, ok := expr.(*LiteralExpr)
	if !ok {
		t.Fatalf("top = %#v, want LiteralExpr", expr)
	}
	if _, ok := lit.Value.(Quantity); !ok {
		t.Fatalf("literal value = %#v (%T), want Quantity", lit.Value, lit.Value)
	}
}

func TestParserVariableExpr(t *testing.T) {
	expr := parseOK(t, "%resource")
	v, ok := expr.(*VariableExpr)
	if !ok || v.Name != "resource" || v.IsSystem {
		t.Fatalf("top = %#v, want user variable 'resource'", expr)
	}
}

func TestParserSystemVariables(t *testing.T) {
	for name, want := range map[string]string{"$this": "this", "$index": "index", "$total": "total"} {
		expr := parseOK(t, name)
		v, ok := expr.(*VariableExpr)
		if !ok || v.Name != want || !v.IsSystem {
			t.Errorf("%q: got %#v", name, expr)
		}
	}
}
