package script

import (
	"math"
	"strconv"
	"strings"

	"structura/pkg/errors"
)

// Parser turns one scenario line into a Command.
type Parser struct {
	l         *Lexer
	curToken  Token
	peekToken Token
}

func newParser(l *Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) errorf(pos errors.Position, format string, args ...any) *errors.ScriptError {
	return errors.NewScriptError(pos, format, args...)
}

// ParseLine parses a single line. Blank and comment-only lines yield a nil
// command.
func ParseLine(line string, lineNo int, file string) (*Command, error) {
	p := newParser(NewLexer(line, lineNo, file))
	if p.curToken.Type == EOL {
		return nil, nil
	}
	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	switch p.curToken.Type {
	case ARROW:
		// The expectation is the raw remainder so key lists and quoted
		// strings compare textually.
		cmd.Expect = strings.TrimSpace(line[p.curToken.Offset+2:])
		if i := strings.Index(cmd.Expect, " #"); i >= 0 && !strings.Contains(cmd.Expect[:i], `"`) {
			cmd.Expect = strings.TrimSpace(cmd.Expect[:i])
		}
		cmd.HasExpect = true
	case EOL:
	default:
		return nil, p.errorf(p.curToken.Pos, "unexpected %q", p.curToken.Literal)
	}
	return cmd, nil
}

// Parse parses a whole step block. Line numbers start at firstLine. All
// syntax errors are collected.
func Parse(src string, firstLine int, file string) ([]*Command, []errors.EngineError) {
	var cmds []*Command
	var errs []errors.EngineError
	for i, line := range strings.Split(src, "\n") {
		cmd, err := ParseLine(line, firstLine+i, file)
		if err != nil {
			errs = append(errs, err.(errors.EngineError))
			continue
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds, errs
}

func (p *Parser) parseCommand() (*Command, error) {
	if p.curToken.Type != WORD {
		return nil, p.errorf(p.curToken.Pos, "expected a command, got %q", p.curToken.Literal)
	}
	cmd := &Command{Position: p.curToken.Pos, Name: p.curToken.Literal}
	p.nextToken()

	if cmd.Name == "repeat" {
		if p.curToken.Type != NUMBER {
			return nil, p.errorf(p.curToken.Pos, "repeat needs a count")
		}
		n, err := strconv.Atoi(p.curToken.Literal)
		if err != nil || n < 1 {
			return nil, p.errorf(p.curToken.Pos, "invalid repeat count %q", p.curToken.Literal)
		}
		cmd.Count = n
		p.nextToken()
		body, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		if body.Name == "repeat" {
			return nil, p.errorf(body.Position, "repeat cannot be nested")
		}
		cmd.Body = body
		return cmd, nil
	}

	for p.curToken.Type != EOL && p.curToken.Type != ARROW {
		arg, err := p.parseArgument()
		if err != nil {
			return nil, err
		}
		cmd.Args = append(cmd.Args, arg)
	}
	return cmd, nil
}

func (p *Parser) parseArgument() (Expr, error) {
	if p.curToken.Type == WORD && p.peekToken.Type == ASSIGN {
		opt := &Option{Position: p.curToken.Pos, Name: p.curToken.Literal}
		p.nextToken()
		p.nextToken()
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		opt.Value = v
		return opt, nil
	}
	return p.parseExpression()
}

func (p *Parser) parseExpression() (Expr, error) {
	var left Expr
	tok := p.curToken
	switch tok.Type {
	case WORD:
		left = &Ident{Position: tok.Pos, Name: tok.Literal}
	case NUMBER:
		f, err := parseNumber(tok.Literal)
		if err != nil {
			return nil, p.errorf(tok.Pos, "invalid number %q", tok.Literal)
		}
		left = &NumberLiteral{Position: tok.Pos, Value: f, Text: tok.Literal}
	case STRING:
		left = &StringLiteral{Position: tok.Pos, Value: tok.Literal}
	case ILLEGAL:
		return nil, p.errorf(tok.Pos, "%s", tok.Literal)
	default:
		return nil, p.errorf(tok.Pos, "unexpected %q", tok.Literal)
	}
	p.nextToken()

	for {
		switch p.curToken.Type {
		case DOT:
			pos := p.curToken.Pos
			p.nextToken()
			if p.curToken.Type != WORD && p.curToken.Type != NUMBER {
				return nil, p.errorf(p.curToken.Pos, "expected a property name after '.'")
			}
			left = &Member{Position: pos, Object: left, Name: p.curToken.Literal}
			p.nextToken()
		case LBRACKET:
			pos := p.curToken.Pos
			p.nextToken()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if p.curToken.Type != RBRACKET {
				return nil, p.errorf(p.curToken.Pos, "expected ']'")
			}
			p.nextToken()
			left = &Member{Position: pos, Object: left, Index: index}
		default:
			return left, nil
		}
	}
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f == 0 && strings.HasPrefix(s, "-") {
		return math.Copysign(0, -1), nil
	}
	return f, nil
}
