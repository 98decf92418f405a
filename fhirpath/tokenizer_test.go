package fhirpath

import "testing"

func tokenKinds(t *testing.T, src string) []TokenKind {
	t.Helper()
	sink := &Sink{}
	tok := NewTokenizer(src, sink)
	var kinds []TokenKind
	for {
		tk := tok.Next()
		if tk.Kind == TokenEOF {
			break
		}
		kinds = append(kinds, tk.Kind)
	}
	return kinds
}

func TestTokenizerLongestMatchOperators(t *testing.T) {
	cases := map[string][]string{
		"a != b":     {"!="},
		"a !~ b":     {"!~"},
		"a <= b":     {"<="},
		"a >= b":     {">="},
		"a | b -> c": {"|", "->"},
	}
	for src, want := range cases {
		sink := &Sink{}
		tok := NewTokenizer(src, sink)
		var ops []string
		for {
			tk := tok.Next()
			if tk.Kind == TokenEOF {
				break
			}
			if tk.Kind == TokenOperator || tk.Kind == TokenPunctuation {
				ops = append(ops, tk.Text)
			}
		}
		if len(ops) != len(want) {
			t.Fatalf("%q: got ops %v, want %v", src, ops, want)
		}
		for i := range want {
			if ops[i] != want[i] {
				t.Errorf("%q: op[%d]=%q, want %q", src, i, ops[i], want[i])
			}
		}
	}
}

func TestTokenizerSkipsComments(t *testing.T) {
	src := "a /* comment */ . b // trailing\n.c"
	kinds := tokenKinds(t, src)
	want := []TokenKind{TokenIdentifier, TokenPunctuation, TokenIdentifier, TokenPunctuation, TokenIdentifier}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
}

func TestTokenizerStringEscapes(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer(`'line1\nline2\tA'`, sink)
	tk := tok.Next()
	if tk.Kind != TokenString {
		t.Fatalf("expected string token, got %s", tk.Kind)
	}
	got, err := unescape(tk.Text[1 : len(tk.Text)-1])
	if err != nil {
		t.Fatalf("unescape: %v", err)
	}
	want := "line1\nline2\tA"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTokenizerBadEscapeRecovers(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer(`'bad\qescape'`, sink)
	tk := tok.Next()
	if tk.Kind != TokenString {
		t.Fatalf("expected string token despite bad escape, got %s", tk.Kind)
	}
	if len(sink.Diagnostics()) == 0 {
		t.Errorf("expected a diagnostic for the bad escape")
	}
}

func TestTokenizerBacktickIdentifier(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("`div`.given", sink)
	tk := tok.Next()
	if tk.Kind != TokenDelimitedIdentifier {
		t.Fatalf("expected delimited identifier, got %s", tk.Kind)
	}
}

func TestTokenizerNumericKinds(t *testing.T) {
	cases := map[string]TokenKind{
		"42":     TokenInteger,
		"42.5":   TokenDecimal,
		"0":      TokenInteger,
	}
	for src, want := range cases {
		sink := &Sink{}
		tok := NewTokenizer(src, sink)
		tk := tok.Next()
		if tk.Kind != want {
			t.Errorf("%q: got %s, want %s", src, tk.Kind, want)
		}
	}
}

func TestTokenizerQuantityLiteral(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("4 'mg'", sink)
	tk := tok.Next()
	if tk.Kind != TokenQuantity {
		t.Fatalf("expected quantity token, got %s (%q)", tk.Kind, tk.Text)
	}
}

func TestTokenizerCalendarDurationQuantity(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("3 days", sink)
	tk := tok.Next()
	if tk.Kind != TokenQuantity {
		t.Fatalf("expected quantity token for calendar duration, got %s", tk.Kind)
	}
}

func TestTokenizerDollarVariables(t *testing.T) {
	for _, name := range []string{"$this", "$index", "$total"} {
		sink := &Sink{}
		tok := NewTokenizer(name, sink)
		tk := tok.Next()
		if tk.Kind != TokenVariable {
			t.Errorf("%q: expected variable token, got %s", name, tk.Kind)
		}
	}
}

func TestTokenizerUserVariable(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("%resource", sink)
	tk := tok.Next()
	if tk.Kind != TokenVariable {
		t.Fatalf("expected variable token, got %s", tk.Kind)
	}
	if tk.Text != "%resource" {
		t.Errorf("got text %q", tk.Text)
	}
}

func TestTokenizerKeywordsVsIdentifiers(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("and divvy", sink)
	first := tok.Next()
	if first.Kind != TokenKeyword {
		t.Fatalf("expected 'and' to tokenize as keyword, got %s", first.Kind)
	}
	second := tok.Next()
	if second.Kind != TokenIdentifier {
		t.Fatalf("expected 'divvy' to tokenize as identifier (not a 'div' prefix match), got %s", second.Kind)
	}
}

func TestTokenizerTildeLexesWithoutDiagnostics(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("a ~ b", sink)
	var kinds []TokenKind
	for {
		tk := tok.Next()
		if tk.Kind == TokenEOF {
			break
		}
		kinds = append(kinds, tk.Kind)
	}
	// '~' is a valid operator (equivalence), so this should tokenize cleanly
	// with no diagnostics; this test guards against a regression that
	// treats it as an unexpected character.
	if len(sink.Diagnostics()) != 0 {
		t.Errorf("unexpected diagnostics for valid '~' operator: %v", sink.Diagnostics())
	}
	if len(kinds) != 3 {
		t.Errorf("got %v", kinds)
	}
}

func TestTokenEveryTokenCarriesASpan(t *testing.T) {
	sink := &Sink{}
	tok := NewTokenizer("Patient.name.first()", sink)
	for {
		tk := tok.Next()
		if tk.Kind == TokenEOF {
			break
		}
		if tk.Span.Len() == 0 && tk.Text != "" {
			t.Errorf("token %v has zero-length span but non-empty text", tk)
		}
	}
}
