package script

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"structura/pkg/errors"
)

// TokenType represents the type of a scenario token.
type TokenType string

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOL     TokenType = "EOL"

	WORD   TokenType = "WORD"   // commands, names, keywords
	NUMBER TokenType = "NUMBER" // 1, -0, 1.5e3
	STRING TokenType = "STRING" // "text"

	DOT      TokenType = "."
	LBRACKET TokenType = "["
	RBRACKET TokenType = "]"
	ASSIGN   TokenType = "="
	ARROW    TokenType = "=>"
)

type Token struct {
	Type    TokenType
	Literal string
	Pos     errors.Position
	Offset  int // byte offset of the token within its line
}

// Lexer splits a single scenario line into tokens. A '#' outside a string
// starts a comment that runs to the end of the line.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char's byte offset)
	readPosition int  // current reading position in input (byte offset after current char)
	ch           byte // current char under examination
	line         int  // line number reported in token positions
	column       int  // current 1-based column number
	file         string
}

func NewLexer(input string, line int, file string) *Lexer {
	l := &Lexer{input: input, line: line, file: file}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) pos() errors.Position {
	return errors.Position{Line: l.line, Column: l.column, File: l.file}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

// Rest returns the unread remainder of the line, trimmed.
func (l *Lexer) Rest() string {
	if l.position >= len(l.input) {
		return ""
	}
	rest := l.input[l.position:]
	if i := strings.IndexByte(rest, '#'); i >= 0 && !strings.Contains(rest[:i], `"`) {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	tok := Token{Pos: l.pos(), Offset: l.position}

	switch l.ch {
	case 0, '#', '\n':
		tok.Type = EOL
		return tok
	case '.':
		tok.Type, tok.Literal = DOT, "."
	case '[':
		tok.Type, tok.Literal = LBRACKET, "["
	case ']':
		tok.Type, tok.Literal = RBRACKET, "]"
	case '=':
		if l.peekChar() == '>' {
			l.readChar()
			tok.Type, tok.Literal = ARROW, "=>"
		} else {
			tok.Type, tok.Literal = ASSIGN, "="
		}
	case '"':
		s, ok := l.readString()
		if !ok {
			tok.Type, tok.Literal = ILLEGAL, "unterminated string"
			return tok
		}
		tok.Type, tok.Literal = STRING, s
		return tok
	default:
		if isDigit(l.ch) || ((l.ch == '-' || l.ch == '+') && isDigit(l.peekChar())) {
			tok.Type, tok.Literal = NUMBER, l.readNumber()
			return tok
		}
		if isWordChar(l.ch) {
			tok.Type, tok.Literal = WORD, l.readWord()
			return tok
		}
		tok.Type, tok.Literal = ILLEGAL, string(l.ch)
	}
	l.readChar()
	return tok
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

func isWordChar(ch byte) bool {
	switch ch {
	case 0, ' ', '\t', '\r', '\n', '.', '[', ']', '=', '"', '#':
		return false
	}
	return true
}

func (l *Lexer) readWord() string {
	start := l.position
	for isWordChar(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber() string {
	start := l.position
	if l.ch == '-' || l.ch == '+' {
		l.readChar()
	}
	for isDigit(l.ch) || l.ch == '.' || l.ch == 'e' || l.ch == 'E' ||
		((l.ch == '-' || l.ch == '+') && (l.input[l.position-1] == 'e' || l.input[l.position-1] == 'E')) {
		l.readChar()
	}
	return l.input[start:l.position]
}

// readString reads a double-quoted string with the usual escapes,
// including \uXXXX so lone surrogates can be written.
func (l *Lexer) readString() (string, bool) {
	var builder strings.Builder
	l.readChar() // opening quote
	for {
		switch l.ch {
		case '"':
			l.readChar()
			return builder.String(), true
		case 0:
			return "", false
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				builder.WriteByte('\n')
			case 't':
				builder.WriteByte('\t')
			case '\\', '"':
				builder.WriteByte(l.ch)
			case 'u':
				r, ok := l.readHex4()
				if !ok {
					return "", false
				}
				if utf16.IsSurrogate(r) && l.ch == '\\' && l.peekChar() == 'u' {
					l.readChar()
					lo, ok := l.readHex4()
					if !ok {
						return "", false
					}
					if pair := utf16.DecodeRune(r, lo); pair != unicode.ReplacementChar {
						builder.WriteRune(pair)
						continue
					}
					builder.WriteRune(unicode.ReplacementChar)
					r = lo
				}
				builder.WriteRune(r)
				continue
			default:
				return "", false
			}
		default:
			builder.WriteByte(l.ch)
		}
		l.readChar()
	}
}

func (l *Lexer) readHex4() (rune, bool) {
	var r rune
	for i := 0; i < 4; i++ {
		l.readChar()
		var d byte
		switch {
		case isDigit(l.ch):
			d = l.ch - '0'
		case 'a' <= l.ch && l.ch <= 'f':
			d = l.ch - 'a' + 10
		case 'A' <= l.ch && l.ch <= 'F':
			d = l.ch - 'A' + 10
		default:
			return 0, false
		}
		r = r<<4 | rune(d)
	}
	l.readChar()
	return r, true
}
