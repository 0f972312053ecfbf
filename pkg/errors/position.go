package errors

import "fmt"

// Position represents a location in a scenario script.
// Line and Column are 1-based; a zero Line means "no position".
type Position struct {
	Line   int    // 1-based line number
	Column int    // 1-based column number (byte index within the line)
	File   string // Scenario file or step name, if known
}

// IsValid reports whether the position points at a real line.
func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
