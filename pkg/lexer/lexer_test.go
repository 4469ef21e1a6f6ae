package lexer

import "testing"

func tokenTypes(src string) []TokenType {
	l := New("test", src)
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF {
			break
		}
	}
	return types
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tests := []struct {
		src  string
		want TokenType
	}{
		{"debugger", TokenIdentifier},
		{"debug", TokenDebug},
		{"globals", TokenGlobals},
		{"forest", TokenIdentifier},
		{"for", TokenFor},
		{"x1", TokenIdentifier},
	}
	for _, tt := range tests {
		l := New("test", tt.src)
		got := l.NextToken().Type
		if got != tt.want {
			t.Errorf("lex(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestMultiCharOperators(t *testing.T) {
	types := tokenTypes("== != <= >= << >> && || += -= *= /= =>")
	want := []TokenType{
		TokenEq, TokenNeq, TokenLte, TokenGte, TokenShl, TokenShr,
		TokenAndAnd, TokenOrOr, TokenPlusEq, TokenMinusEq, TokenStarEq,
		TokenSlashEq, TokenArrow, TokenEOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(types), len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestStringLiteralBothDelimiters(t *testing.T) {
	l := New("test", `"double" 'single'`)
	tok := l.NextToken()
	if tok.Type != TokenString || tok.Literal != "double" {
		t.Fatalf("got %v %q, want STRING \"double\"", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Literal != "single" {
		t.Fatalf("got %v %q, want STRING \"single\"", tok.Type, tok.Literal)
	}
}

func TestUnterminatedStringPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for unterminated string")
		}
	}()
	l := New("test", `"no closing quote`)
	l.NextToken()
}

func TestUnterminatedBlockCommentPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for unterminated block comment")
		}
	}()
	l := New("test", "/* never closes")
	l.NextToken()
}

func TestLineCommentsSkipped(t *testing.T) {
	l := New("test", "1 // ignored\n2")
	a := l.NextToken()
	b := l.NextToken()
	if a.Number != 1 || b.Number != 2 {
		t.Fatalf("got %v, %v", a, b)
	}
	if !b.Newline {
		t.Fatal("expected newline flag set on token following a line comment")
	}
}

func TestNumberForms(t *testing.T) {
	tests := map[string]float64{
		"42":      42,
		".5":      0.5,
		"3.14":    3.14,
		"1e3":     1000,
		"1.5e-2":  0.015,
		"2E+1":    20,
	}
	for src, want := range tests {
		l := New("test", src)
		tok := l.NextToken()
		if tok.Type != TokenNumber || tok.Number != want {
			t.Errorf("lex(%q) = %v %v, want NUMBER %v", src, tok.Type, tok.Number, want)
		}
	}
}

func TestNewlineFlagDrivesImplicitTermination(t *testing.T) {
	l := New("test", "var a = 1\nvar b = 2")
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	// the second `var` follows a newline
	for _, tok := range tokens {
		if tok.Type == TokenVar && tok.Literal == "var" && tok.Loc.Line == 2 {
			if !tok.Newline {
				t.Fatal("expected newline flag set on second `var`")
			}
		}
	}
}
