package script

import (
	"math"
	"strings"
	"testing"

	"structura/pkg/errors"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		input  string
		want   string // Command.String()
		expect string
	}{
		{"new o", "new o", ""},
		{"set o.x 1", "set o.x 1", ""},
		{`get o["a b"].c => 3`, `get o["a b"].c => 3`, "3"},
		{"get arr[i] => undefined   # comment", "get arr[i] => undefined", "undefined"},
		{"define o.x value=1 writable=false", "define o.x value=1 writable=false", ""},
		{"keys o => [a, b]", "keys o => [a, b]", "[a, b]"},
		{`get o.s => "a # b"`, `get o.s => "a # b"`, `"a # b"`},
		{"repeat 3 get o.x => 1", "repeat 3 get o.x => 1", "1"},
		{"describe o.x => {value: 1, writable: true, enumerable: true, configurable: true}",
			"describe o.x => {value: 1, writable: true, enumerable: true, configurable: true}",
			"{value: 1, writable: true, enumerable: true, configurable: true}"},
	}

	for _, tt := range tests {
		cmd, err := ParseLine(tt.input, 4, "t.yaml")
		if err != nil {
			t.Errorf("ParseLine(%q): %v", tt.input, err)
			continue
		}
		if got := cmd.String(); got != tt.want {
			t.Errorf("ParseLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if cmd.Expect != tt.expect || cmd.HasExpect != (tt.expect != "") {
			t.Errorf("ParseLine(%q) expectation = %q (%v), want %q", tt.input, cmd.Expect, cmd.HasExpect, tt.expect)
		}
		if cmd.Position.Line != 4 {
			t.Errorf("ParseLine(%q) line = %d, want 4", tt.input, cmd.Position.Line)
		}
	}
}

func TestParseLineStructure(t *testing.T) {
	cmd, err := ParseLine("define o.inner[k].x get=g throw=false", 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cmd.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(cmd.Args))
	}
	m, ok := cmd.Args[0].(*Member)
	if !ok || m.Name != "x" {
		t.Fatalf("first arg is %T %s, want member .x", cmd.Args[0], cmd.Args[0])
	}
	idx, ok := m.Object.(*Member)
	if !ok || idx.Index == nil {
		t.Fatalf("expected an index member under .x, got %T", m.Object)
	}
	if id, ok := idx.Index.(*Ident); !ok || id.Name != "k" {
		t.Errorf("index expression = %s, want k", idx.Index)
	}
	opt, ok := cmd.Args[1].(*Option)
	if !ok || opt.Name != "get" || opt.Value.String() != "g" {
		t.Errorf("second arg = %s, want get=g", cmd.Args[1])
	}

	rep, err := ParseLine("repeat 2 set o.x 1", 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Count != 2 || rep.Body == nil || rep.Body.Name != "set" {
		t.Errorf("repeat parsed as %+v", rep)
	}

	neg, err := ParseLine("set o.z -0", 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lit := neg.Args[1].(*NumberLiteral)
	if lit.Value != 0 || !math.Signbit(lit.Value) {
		t.Errorf("-0 parsed as %v", lit.Value)
	}
}

func TestParseBlankLines(t *testing.T) {
	for _, line := range []string{"", "   ", "# just a note", "\t# indented note"} {
		cmd, err := ParseLine(line, 1, "")
		if err != nil || cmd != nil {
			t.Errorf("ParseLine(%q) = %v, %v; want nil, nil", line, cmd, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"1 o", "expected a command"},
		{"repeat x get o.a", "repeat needs a count"},
		{"repeat 0 get o.a", "invalid repeat count"},
		{"repeat 2 repeat 2 get o.a", "repeat cannot be nested"},
		{"get o.", "expected a property name"},
		{"get o[1", "expected ']'"},
		{`print "open`, "unterminated string"},
		{"get o.x = 1", "unexpected"},
	}
	for _, tt := range tests {
		_, err := ParseLine(tt.input, 9, "bad.yaml")
		if err == nil {
			t.Errorf("ParseLine(%q): expected an error", tt.input)
			continue
		}
		if !strings.Contains(err.Error(), tt.msg) {
			t.Errorf("ParseLine(%q) error = %q, want it to mention %q", tt.input, err, tt.msg)
		}
		if ee, ok := err.(errors.EngineError); !ok || ee.Pos().Line != 9 {
			t.Errorf("ParseLine(%q) error has no line 9 position: %v", tt.input, err)
		}
	}
}

func TestParseCollectsAllErrors(t *testing.T) {
	src := "new o\nget o.\nset o.x 1\nrepeat 0 get o.x\n"
	cmds, errs := Parse(src, 10, "multi.yaml")
	if len(cmds) != 2 {
		t.Errorf("expected 2 commands, got %d", len(cmds))
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Pos().Line != 11 || errs[1].Pos().Line != 13 {
		t.Errorf("error lines = %d, %d; want 11, 13", errs[0].Pos().Line, errs[1].Pos().Line)
	}
	if cmds[1].Position.Line != 12 {
		t.Errorf("second command on line %d, want 12", cmds[1].Position.Line)
	}
}
