package script

import (
	"testing"
)

func TestNextToken(t *testing.T) {
	input := `define o.x value=-1.5e3 get=f["k"] => {value: 1} # trailing`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
		expectedColumn  int
	}{
		{WORD, "define", 1},
		{WORD, "o", 8},
		{DOT, ".", 9},
		{WORD, "x", 10},
		{WORD, "value", 12},
		{ASSIGN, "=", 17},
		{NUMBER, "-1.5e3", 18},
		{WORD, "get", 25},
		{ASSIGN, "=", 28},
		{WORD, "f", 29},
		{LBRACKET, "[", 30},
		{STRING, "k", 31},
		{RBRACKET, "]", 34},
		{ARROW, "=>", 36},
	}

	l := NewLexer(input, 7, "case.yaml")

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal: %q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
		if tok.Pos.Column != tt.expectedColumn {
			t.Errorf("tests[%d] - column wrong. expected=%d, got=%d", i, tt.expectedColumn, tok.Pos.Column)
		}
		if tok.Pos.Line != 7 || tok.Pos.File != "case.yaml" {
			t.Errorf("tests[%d] - position wrong: %+v", i, tok.Pos)
		}
	}
	if rest := l.Rest(); rest != "{value: 1}" {
		t.Errorf("Rest() = %q, want %q", rest, "{value: 1}")
	}
}

func TestLexerWords(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"-Infinity", WORD, "-Infinity"},
		{"-0", NUMBER, "-0"},
		{"+7", NUMBER, "+7"},
		{"1e-3", NUMBER, "1e-3"},
		{"same-shape", WORD, "same-shape"},
		{"wm-set", WORD, "wm-set"},
		{"# only a comment", EOL, ""},
		{"", EOL, ""},
		{"@", WORD, "@"},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input, 1, "").NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.lit {
			t.Errorf("%q: got %s %q, want %s %q", tt.input, tok.Type, tok.Literal, tt.typ, tt.lit)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"plain"`, "plain"},
		{`"a\tb\nc"`, "a\tb\nc"},
		{`"quote \" and \\"`, `quote " and \`},
		{`"é"`, "é"},
		{`"😀"`, "😀"},
		{`"\ud83d"`, "�"},
		{`"# not a comment"`, "# not a comment"},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input, 1, "").NextToken()
		if tok.Type != STRING {
			t.Errorf("%s: got %s %q, want a string", tt.input, tok.Type, tok.Literal)
			continue
		}
		if tok.Literal != tt.want {
			t.Errorf("%s: got %q, want %q", tt.input, tok.Literal, tt.want)
		}
	}

	for _, bad := range []string{`"open`, `"bad \q escape"`, `"\u12"`} {
		if tok := NewLexer(bad, 1, "").NextToken(); tok.Type != ILLEGAL {
			t.Errorf("%s: got %s, want ILLEGAL", bad, tok.Type)
		}
	}
}
