package script

import (
	"strconv"
	"strings"

	"structura/pkg/errors"
)

// Expr is an argument of a scenario command.
type Expr interface {
	Pos() errors.Position
	String() string
}

// Ident names a variable or one of the literal keywords (true, false,
// null, undefined, NaN, Infinity).
type Ident struct {
	Position errors.Position
	Name     string
}

type NumberLiteral struct {
	Position errors.Position
	Value    float64
	Text     string
}

type StringLiteral struct {
	Position errors.Position
	Value    string
}

// Member is a property reference: obj.name or obj[expr].
type Member struct {
	Position errors.Position
	Object   Expr
	Name     string // set for obj.name
	Index    Expr   // set for obj[expr]
}

// Option is a name=value argument, used by define, func and proxy.
type Option struct {
	Position errors.Position
	Name     string
	Value    Expr
}

func (e *Ident) Pos() errors.Position         { return e.Position }
func (e *NumberLiteral) Pos() errors.Position { return e.Position }
func (e *StringLiteral) Pos() errors.Position { return e.Position }
func (e *Member) Pos() errors.Position        { return e.Position }
func (e *Option) Pos() errors.Position        { return e.Position }

func (e *Ident) String() string         { return e.Name }
func (e *NumberLiteral) String() string { return e.Text }
func (e *StringLiteral) String() string { return strconv.Quote(e.Value) }
func (e *Option) String() string        { return e.Name + "=" + e.Value.String() }

func (e *Member) String() string {
	if e.Index != nil {
		return e.Object.String() + "[" + e.Index.String() + "]"
	}
	return e.Object.String() + "." + e.Name
}

// Command is one parsed scenario line.
type Command struct {
	Position errors.Position
	Name     string
	Args     []Expr

	// Count and Body are set for repeat.
	Count int
	Body  *Command

	Expect    string
	HasExpect bool
}

func (c *Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Body != nil {
		b.WriteString(" " + strconv.Itoa(c.Count) + " " + c.Body.String())
	}
	for _, a := range c.Args {
		b.WriteString(" " + a.String())
	}
	if c.HasExpect {
		b.WriteString(" => " + c.Expect)
	}
	return b.String()
}
