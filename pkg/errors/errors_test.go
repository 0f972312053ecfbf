package errors

import (
	"bytes"
	"fmt"
	"testing"
)

func TestKindChecks(t *testing.T) {
	wrapped := fmt.Errorf("step 3: %w", NewTypeError("Cannot redefine property: %s", "x"))
	if !IsTypeError(wrapped) || IsRangeError(wrapped) {
		t.Errorf("wrapped TypeError misclassified")
	}
	if got := KindOf(wrapped); got != "TypeError" {
		t.Errorf("KindOf = %q", got)
	}
	if got := KindOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q", got)
	}
	if got := NewRangeError("Invalid array length").Error(); got != "RangeError: Invalid array length" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDisplayErrors(t *testing.T) {
	source := "new o\nset o.x 1\nexpect o.y 2"
	errs := []EngineError{
		NewScriptError(Position{Line: 3, Column: 8}, "expected 2, got undefined"),
		NewTypeError("no position"),
	}
	var buf bytes.Buffer
	DisplayErrors(&buf, source, errs)

	want := "Script at 3:8: expected 2, got undefined\n" +
		"  expect o.y 2\n" +
		"         ^\n\n" +
		"TypeError: no position\n"
	if got := buf.String(); got != want {
		t.Errorf("DisplayErrors output:\n%s\nwant:\n%s", got, want)
	}
}
