package script

import (
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/tliron/commonlog"

	"structura/pkg/errors"
	"structura/pkg/vm"
)

var log = commonlog.GetLogger("structura.script")

// Interpreter executes scenario commands against one realm. Every command
// line is its own access site: the line number selects the inline cache.
type Interpreter struct {
	realm  *vm.Realm
	strict bool
	out    io.Writer
	sites  *vm.SiteTable

	vars      map[string]vm.Value
	names     map[*vm.Object]string
	buffers   map[string]*vm.ArrayBuffer
	weakmaps  map[string]*vm.WeakMap
	weaksets  map[string]*vm.WeakSet
	registers map[string][]vm.Value
}

// NewInterpreter creates a fresh realm with opts. Output of print goes to
// out, which may be nil.
func NewInterpreter(opts vm.Options, strict bool, out io.Writer) *Interpreter {
	if out == nil {
		out = io.Discard
	}
	r := vm.NewRealm(vm.WithOptions(opts))
	in := &Interpreter{
		realm:     r,
		strict:    strict,
		out:       out,
		sites:     r.NewSiteTable(0),
		vars:      make(map[string]vm.Value),
		names:     make(map[*vm.Object]string),
		buffers:   make(map[string]*vm.ArrayBuffer),
		weakmaps:  make(map[string]*vm.WeakMap),
		weaksets:  make(map[string]*vm.WeakSet),
		registers: make(map[string][]vm.Value),
	}
	in.bind("Object", vm.ObjectValue(r.ObjectPrototype))
	in.bind("Array", vm.ObjectValue(r.ArrayPrototype))
	in.bind("Function", vm.ObjectValue(r.FunctionPrototype))
	return in
}

func (in *Interpreter) Realm() *vm.Realm      { return in.realm }
func (in *Interpreter) Sites() *vm.SiteTable  { return in.sites }
func (in *Interpreter) Strict() bool          { return in.strict }
func (in *Interpreter) SetStrict(strict bool) { in.strict = strict }

// Names returns the variable names bound in the interpreter.
func (in *Interpreter) Names() []string {
	out := make([]string, 0, len(in.vars))
	for name := range in.vars {
		out = append(out, name)
	}
	return out
}

// bind assigns name. An object displays under the name it was first bound
// to; when that name moves on, the alphabetically first other name still
// holding the object takes over.
func (in *Interpreter) bind(name string, v vm.Value) {
	if old := in.vars[name].AsObject(); old != nil && in.names[old] == name {
		delete(in.names, old)
		next := ""
		for other, ov := range in.vars {
			if other != name && ov.AsObject() == old && (next == "" || other < next) {
				next = other
			}
		}
		if next != "" {
			in.names[old] = next
		}
	}
	in.vars[name] = v
	if o := v.AsObject(); o != nil {
		if _, named := in.names[o]; !named {
			in.names[o] = name
		}
	}
}

// Step executes cmd and checks its expectation. Engine errors that the
// line expects are not failures.
func (in *Interpreter) Step(cmd *Command) (string, error) {
	result, err := in.Exec(cmd)
	if err != nil {
		if cmd.HasExpect && errorMatches(err, cmd.Expect) {
			return errorKind(err), nil
		}
		var se *errors.ScriptError
		if stderrors.As(err, &se) {
			return "", err
		}
		return "", (&errors.ScriptError{Position: cmd.Position, Msg: err.Error()}).CausedBy(err)
	}
	if cmd.HasExpect && result != cmd.Expect {
		return result, errors.NewScriptError(cmd.Position, "%s: expected %s, got %s", cmd.Name, cmd.Expect, result)
	}
	return result, nil
}

// RunSource parses and executes a block of steps, stopping at the first
// failure. It returns the number of steps executed.
func (in *Interpreter) RunSource(src string, firstLine int, file string) (int, error) {
	cmds, errs := Parse(src, firstLine, file)
	if len(errs) > 0 {
		return 0, errs[0]
	}
	for i, cmd := range cmds {
		if _, err := in.Step(cmd); err != nil {
			return i, err
		}
	}
	return len(cmds), nil
}

// errorKind names the engine error class of err.
func errorKind(err error) string {
	switch {
	case errors.IsTypeError(err):
		return "TypeError"
	case errors.IsRangeError(err):
		return "RangeError"
	}
	var te *errors.ThrowError
	if stderrors.As(err, &te) {
		return "Throw"
	}
	return errors.KindOf(err)
}

func errorMatches(err error, expect string) bool {
	kind := errorKind(err)
	if expect == kind {
		return true
	}
	var te *errors.ThrowError
	if stderrors.As(err, &te) {
		return expect == "throws "+te.Text
	}
	return strings.HasPrefix(err.Error(), expect)
}

func (in *Interpreter) errorf(e Expr, format string, args ...any) error {
	return errors.NewScriptError(e.Pos(), format, args...)
}

// --- evaluation ---

func (in *Interpreter) literal(name string) (vm.Value, bool) {
	switch name {
	case "undefined":
		return vm.Undefined, true
	case "null":
		return vm.Null, true
	case "true":
		return vm.True, true
	case "false":
		return vm.False, true
	case "NaN":
		return vm.NumberValue(math.NaN()), true
	case "Infinity":
		return vm.NumberValue(math.Inf(1)), true
	case "-Infinity":
		return vm.NumberValue(math.Inf(-1)), true
	}
	return vm.Undefined, false
}

// eval computes the value of e. A member read goes through site when one
// is given.
func (in *Interpreter) eval(e Expr, site *vm.PropInlineCache) (vm.Value, error) {
	switch e := e.(type) {
	case *Ident:
		if v, ok := in.literal(e.Name); ok {
			return v, nil
		}
		if v, ok := in.vars[e.Name]; ok {
			return v, nil
		}
		return vm.Undefined, in.errorf(e, "undefined variable %s", e.Name)
	case *NumberLiteral:
		return vm.NumberValue(e.Value), nil
	case *StringLiteral:
		return vm.NewString(e.Value), nil
	case *Member:
		obj, key, err := in.ref(e)
		if err != nil {
			return vm.Undefined, err
		}
		return in.realm.GetById(site, obj, key)
	default:
		return vm.Undefined, in.errorf(e, "%s is not a value", e)
	}
}

func (in *Interpreter) object(e Expr) (*vm.Object, error) {
	v, err := in.eval(e, nil)
	if err != nil {
		return nil, err
	}
	o := v.AsObject()
	if o == nil {
		return nil, in.errorf(e, "%s is not an object", e)
	}
	return o, nil
}

// objectOrNull evaluates a prototype argument.
func (in *Interpreter) objectOrNull(e Expr) (*vm.Object, error) {
	if id, ok := e.(*Ident); ok && id.Name == "null" {
		return nil, nil
	}
	return in.object(e)
}

func (in *Interpreter) ref(e Expr) (*vm.Object, vm.PropertyKey, error) {
	m, ok := e.(*Member)
	if !ok {
		return nil, vm.PropertyKey{}, in.errorf(e, "%s is not a property reference", e)
	}
	obj, err := in.object(m.Object)
	if err != nil {
		return nil, vm.PropertyKey{}, err
	}
	if m.Index == nil {
		return obj, vm.StringKey(m.Name), nil
	}
	kv, err := in.eval(m.Index, nil)
	if err != nil {
		return nil, vm.PropertyKey{}, err
	}
	if kv.IsObject() {
		return nil, vm.PropertyKey{}, in.errorf(m.Index, "object keys are not supported")
	}
	return obj, vm.KeyFromValue(kv), nil
}

func (in *Interpreter) name(e Expr) (string, error) {
	id, ok := e.(*Ident)
	if !ok {
		return "", in.errorf(e, "expected a name, got %s", e)
	}
	if _, lit := in.literal(id.Name); lit {
		return "", in.errorf(e, "%s is reserved", id.Name)
	}
	return id.Name, nil
}

func (in *Interpreter) integer(e Expr) (int, error) {
	v, err := in.eval(e, nil)
	if err != nil {
		return 0, err
	}
	f := v.ToNumber()
	if !v.IsNumber() || f != math.Trunc(f) {
		return 0, in.errorf(e, "%s is not an integer", e)
	}
	if math.Abs(f) > 1<<53 {
		return 0, in.errorf(e, "%s is out of range", e)
	}
	return int(f), nil
}

// --- display ---

// Display renders v the way expectations are written: strings quoted,
// named objects by name.
func (in *Interpreter) Display(v vm.Value) string {
	if o := v.AsObject(); o != nil {
		if name, ok := in.names[o]; ok {
			return name
		}
		return o.String()
	}
	if v.IsNumber() && v.AsNumber() == 0 && math.Signbit(v.AsNumber()) {
		return "-0"
	}
	return v.Inspect()
}

func displayKeys(keys []vm.PropertyKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func displayBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (in *Interpreter) displayDescriptor(d vm.PropertyDescriptor) string {
	if d.IsAccessorDescriptor() {
		return fmt.Sprintf("{get: %s, set: %s, enumerable: %t, configurable: %t}",
			in.Display(d.Get), in.Display(d.Set), d.Enumerable.Bool(), d.Configurable.Bool())
	}
	return fmt.Sprintf("{value: %s, writable: %t, enumerable: %t, configurable: %t}",
		in.Display(d.Value), d.Writable.Bool(), d.Enumerable.Bool(), d.Configurable.Bool())
}

// displayShape describes a layout without its arena id, so expectations
// stay stable across runs.
func displayShape(s *vm.Shape) string {
	var b strings.Builder
	if s.IsDictionary() {
		b.WriteString("dictionary {")
	} else {
		b.WriteString("uniform {")
	}
	for i, e := range s.Properties() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s@%d:%s", e.Key, e.Offset, e.Attrs)
	}
	b.WriteString("}")
	return b.String()
}
