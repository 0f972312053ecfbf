package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// EngineError is the interface implemented by all structura errors.
type EngineError interface {
	error // Embed the standard error interface
	Pos() Position
	Kind() string // e.g., "TypeError", "RangeError", "Script"
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// --- Concrete Error Types ---

// TypeError is raised by the object model when an operation violates
// property attributes, extensibility or a proxy invariant.
type TypeError struct {
	Position
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *TypeError) Error() string   { return "TypeError: " + e.Msg }
func (e *TypeError) Pos() Position   { return e.Position }
func (e *TypeError) Kind() string    { return "TypeError" }
func (e *TypeError) Message() string { return e.Msg }
func (e *TypeError) Unwrap() error   { return e.Cause }
func (e *TypeError) CausedBy(cause error) *TypeError {
	e.Cause = cause
	return e
}

// RangeError is raised for invalid array lengths, exhausted property
// limits and prototype chains that are too deep.
type RangeError struct {
	Position
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *RangeError) Error() string   { return "RangeError: " + e.Msg }
func (e *RangeError) Pos() Position   { return e.Position }
func (e *RangeError) Kind() string    { return "RangeError" }
func (e *RangeError) Message() string { return e.Msg }
func (e *RangeError) Unwrap() error   { return e.Cause }
func (e *RangeError) CausedBy(cause error) *RangeError {
	e.Cause = cause
	return e
}

// ScriptError represents a malformed scenario line or a failed assertion.
type ScriptError struct {
	Position
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *ScriptError) Error() string {
	if e.Line == 0 {
		return "Script Error: " + e.Msg
	}
	return fmt.Sprintf("Script Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *ScriptError) Pos() Position   { return e.Position }
func (e *ScriptError) Kind() string    { return "Script" }
func (e *ScriptError) Message() string { return e.Msg }
func (e *ScriptError) Unwrap() error   { return e.Cause }
func (e *ScriptError) CausedBy(cause error) *ScriptError {
	e.Cause = cause
	return e
}

// ThrowError carries a value thrown by native code (an accessor or a proxy
// trap). The thrown value is kept opaque here; the vm package knows its type.
type ThrowError struct {
	Position
	Value any
	Text  string // Display form of the thrown value
}

func (e *ThrowError) Error() string   { return "Uncaught " + e.Text }
func (e *ThrowError) Pos() Position   { return e.Position }
func (e *ThrowError) Kind() string    { return "Throw" }
func (e *ThrowError) Message() string { return e.Text }
func (e *ThrowError) Unwrap() error   { return nil }

// --- Helpers ---

// NewTypeError formats a TypeError.
func NewTypeError(format string, args ...any) *TypeError {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

// NewRangeError formats a RangeError.
func NewRangeError(format string, args ...any) *RangeError {
	return &RangeError{Msg: fmt.Sprintf(format, args...)}
}

// NewScriptError formats a ScriptError at the given position.
func NewScriptError(pos Position, format string, args ...any) *ScriptError {
	return &ScriptError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// IsTypeError reports whether err is or wraps a TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return stderrors.As(err, &te)
}

// IsRangeError reports whether err is or wraps a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return stderrors.As(err, &re)
}

// KindOf returns the Kind of the first EngineError in err's chain, or ""
// when err is not an engine error.
func KindOf(err error) string {
	var ee EngineError
	if stderrors.As(err, &ee) {
		return ee.Kind()
	}
	return ""
}

// --- Error Reporting ---

// DisplayErrors writes a list of errors to w in a user-friendly format,
// including the source line and a position marker when one is known.
func DisplayErrors(w io.Writer, source string, errs []EngineError) {
	if len(errs) == 0 {
		return
	}

	lines := strings.Split(source, "\n")

	for _, err := range errs {
		pos := err.Pos()
		kind := err.Kind()
		msg := err.Message()

		// Ensure line numbers are within bounds (1-based index)
		lineIdx := pos.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(w, "%s: %s\n", kind, msg)
			continue
		}

		sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")

		fmt.Fprintf(w, "%s at %d:%d: %s\n", kind, pos.Line, pos.Column, msg)
		fmt.Fprintf(w, "  %s\n", sourceLine)

		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		fmt.Fprintf(w, "  %s^\n", strings.Repeat(" ", col))
		fmt.Fprintln(w)
	}
}
