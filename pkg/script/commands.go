package script

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"structura/pkg/vm"
)

// Exec runs cmd and returns its display result. Expectations are not
// checked; see Step.
func (in *Interpreter) Exec(cmd *Command) (string, error) {
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("%s: %s", cmd.Position, cmd)
	}
	if cmd.Name == "repeat" {
		var result string
		for i := 0; i < cmd.Count; i++ {
			body := *cmd.Body
			body.Position = cmd.Position
			r, err := in.Exec(&body)
			if err != nil {
				return "", err
			}
			result = r
		}
		return result, nil
	}

	spec, ok := commandTable[cmd.Name]
	if !ok {
		return "", in.errorf(&Ident{Position: cmd.Position, Name: cmd.Name}, "unknown command %q", cmd.Name)
	}
	if len(cmd.Args) < spec.min || (spec.max >= 0 && len(cmd.Args) > spec.max) {
		return "", in.errorf(&Ident{Position: cmd.Position}, "usage: %s", spec.usage)
	}
	return spec.run(in, cmd)
}

type commandSpec struct {
	min, max int // max < 0 means unbounded
	usage    string
	run      func(in *Interpreter, cmd *Command) (string, error)
}

var commandTable map[string]commandSpec

func init() {
	commandTable = map[string]commandSpec{
		"let":        {2, 2, "let NAME VALUE", (*Interpreter).cmdLet},
		"symbol":     {1, 2, `symbol NAME ["description"]`, (*Interpreter).cmdSymbol},
		"new":        {1, 3, "new NAME [PROTO|null] [capacity=N]", (*Interpreter).cmdNew},
		"array":      {1, -1, "array NAME [VALUE...]", (*Interpreter).cmdArray},
		"buffer":     {2, 2, "buffer NAME BYTES", (*Interpreter).cmdBuffer},
		"typed":      {3, 5, "typed NAME KIND LENGTH | typed NAME KIND BUFFER [OFFSET [LENGTH]]", (*Interpreter).cmdTyped},
		"detach":     {1, 1, "detach BUFFER", (*Interpreter).cmdDetach},
		"string":     {2, 2, `string NAME "text"`, (*Interpreter).cmdString},
		"args":       {3, -1, "args NAME strict|sloppy PARAMS [VALUE...]", (*Interpreter).cmdArgs},
		"param":      {2, 3, "param ARGS INDEX [VALUE]", (*Interpreter).cmdParam},
		"func":       {2, 3, "func NAME const VALUE | throw VALUE | this | arg | record KEY", (*Interpreter).cmdFunc},
		"proxy":      {2, -1, "proxy NAME TARGET [trap=VALUE...]", (*Interpreter).cmdProxy},
		"revoke":     {1, 1, "revoke PROXY", (*Interpreter).cmdRevoke},
		"get":        {1, 2, "get REF [site=N]", (*Interpreter).cmdGet},
		"set":        {2, 3, "set REF VALUE [site=N]", (*Interpreter).cmdSet},
		"delete":     {1, 1, "delete REF", (*Interpreter).cmdDelete},
		"define":     {1, -1, "define REF [value=V] [writable=B] [enumerable=B] [configurable=B] [get=F] [set=F] [throw=B]", (*Interpreter).cmdDefine},
		"describe":   {1, 1, "describe REF", (*Interpreter).cmdDescribe},
		"has":        {1, 1, "has REF", (*Interpreter).cmdHas},
		"hasown":     {1, 1, "hasown REF", (*Interpreter).cmdHasOwn},
		"keys":       {1, 2, "keys OBJ [all|strings|symbols|enumerable]", (*Interpreter).cmdKeys},
		"forin":      {1, 1, "forin OBJ", (*Interpreter).cmdForIn},
		"proto":      {1, 1, "proto OBJ", (*Interpreter).cmdProto},
		"setproto":   {2, 2, "setproto OBJ PROTO|null", (*Interpreter).cmdSetProto},
		"freeze":     {1, 1, "freeze OBJ", (*Interpreter).cmdFreeze},
		"seal":       {1, 1, "seal OBJ", (*Interpreter).cmdSeal},
		"preventext": {1, 1, "preventext OBJ", (*Interpreter).cmdPreventExt},
		"isfrozen":   {1, 1, "isfrozen OBJ", (*Interpreter).cmdIsFrozen},
		"issealed":   {1, 1, "issealed OBJ", (*Interpreter).cmdIsSealed},
		"extensible": {1, 1, "extensible OBJ", (*Interpreter).cmdExtensible},
		"shape":      {1, 1, "shape OBJ", (*Interpreter).cmdShape},
		"same-shape": {2, 2, "same-shape OBJ OBJ", (*Interpreter).cmdSameShape},
		"mode":       {1, 1, "mode OBJ", (*Interpreter).cmdMode},
		"site":       {1, 2, "site LINE [state|hits|misses|entries]", (*Interpreter).cmdSite},
		"weakmap":    {1, 1, "weakmap NAME", (*Interpreter).cmdWeakMap},
		"wm-set":     {3, 3, "wm-set MAP KEY VALUE", (*Interpreter).cmdWeakMapSet},
		"wm-get":     {2, 2, "wm-get MAP KEY", (*Interpreter).cmdWeakMapGet},
		"wm-has":     {2, 2, "wm-has MAP KEY", (*Interpreter).cmdWeakMapHas},
		"wm-delete":  {2, 2, "wm-delete MAP KEY", (*Interpreter).cmdWeakMapDelete},
		"wm-size":    {1, 1, "wm-size MAP", (*Interpreter).cmdWeakMapSize},
		"weakset":    {1, 1, "weakset NAME", (*Interpreter).cmdWeakSet},
		"ws-add":     {2, 2, "ws-add SET KEY", (*Interpreter).cmdWeakSetAdd},
		"ws-has":     {2, 2, "ws-has SET KEY", (*Interpreter).cmdWeakSetHas},
		"ws-delete":  {2, 2, "ws-delete SET KEY", (*Interpreter).cmdWeakSetDelete},
		"gc":         {0, 0, "gc", (*Interpreter).cmdGC},
		"epoch":      {0, 0, "epoch", (*Interpreter).cmdEpoch},
		"stat":       {1, 1, "stat NAME", (*Interpreter).cmdStat},
		"print":      {0, -1, "print [VALUE...]", (*Interpreter).cmdPrint},
	}
}

// Commands lists the command names in sorted order, for completion.
func Commands() []string {
	out := make([]string, 0, len(commandTable)+1)
	for name := range commandTable {
		out = append(out, name)
	}
	out = append(out, "repeat")
	sort.Strings(out)
	return out
}

func (in *Interpreter) site(cmd *Command) *vm.PropInlineCache {
	return in.sites.Site(cmd.Position.Line)
}

// accessSite returns the cache for a get or set. A site=N option names the
// site explicitly so several lines can share one cache.
func (in *Interpreter) accessSite(cmd *Command, want int) (*vm.PropInlineCache, []Expr, error) {
	args, opts := options(cmd.Args)
	if len(args) != want || len(opts) > 1 || (len(opts) == 1 && opts["site"] == nil) {
		return nil, nil, in.errorf(&Ident{Position: cmd.Position}, "usage: %s", commandTable[cmd.Name].usage)
	}
	o, ok := opts["site"]
	if !ok {
		return in.site(cmd), args, nil
	}
	n, err := in.integer(o.Value)
	if err != nil {
		return nil, nil, err
	}
	if n < 1 || n > vm.MaxSite {
		return nil, nil, in.errorf(o, "site must be between 1 and %d", vm.MaxSite)
	}
	return in.sites.Site(n), args, nil
}

// options splits trailing name=value arguments from positional ones.
func options(args []Expr) ([]Expr, map[string]*Option) {
	var pos []Expr
	opts := make(map[string]*Option)
	for _, a := range args {
		if o, ok := a.(*Option); ok {
			opts[o.Name] = o
			continue
		}
		pos = append(pos, a)
	}
	return pos, opts
}

// --- values and objects ---

func (in *Interpreter) cmdLet(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	v, err := in.eval(cmd.Args[1], in.site(cmd))
	if err != nil {
		return "", err
	}
	in.bind(name, v)
	return in.Display(v), nil
}

func (in *Interpreter) cmdSymbol(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	desc := name
	if len(cmd.Args) == 2 {
		v, err := in.eval(cmd.Args[1], nil)
		if err != nil {
			return "", err
		}
		desc = v.ToString()
	}
	v := vm.SymbolValue(vm.NewSymbol(desc))
	in.bind(name, v)
	return in.Display(v), nil
}

func (in *Interpreter) cmdNew(cmd *Command) (string, error) {
	args, opts := options(cmd.Args)
	if len(args) == 0 || len(args) > 2 {
		return "", in.errorf(&Ident{Position: cmd.Position}, "usage: %s", commandTable["new"].usage)
	}
	name, err := in.name(args[0])
	if err != nil {
		return "", err
	}
	proto := in.realm.ObjectPrototype
	if len(args) > 1 {
		if proto, err = in.objectOrNull(args[1]); err != nil {
			return "", err
		}
	}
	var o *vm.Object
	if c, ok := opts["capacity"]; ok {
		n, err := in.integer(c.Value)
		if err != nil {
			return "", err
		}
		if o, err = in.realm.NewObjectWithCapacity(proto, n); err != nil {
			return "", err
		}
	} else {
		o = in.realm.NewObject(proto)
	}
	in.bind(name, vm.ObjectValue(o))
	return name, nil
}

func (in *Interpreter) values(args []Expr) ([]vm.Value, error) {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		v, err := in.eval(a, nil)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (in *Interpreter) cmdArray(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	vals, err := in.values(cmd.Args[1:])
	if err != nil {
		return "", err
	}
	in.bind(name, vm.ObjectValue(in.realm.NewArray(vals...)))
	return name, nil
}

func (in *Interpreter) cmdBuffer(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	n, err := in.integer(cmd.Args[1])
	if err != nil {
		return "", err
	}
	buf, err := in.realm.AllocateArrayBuffer(n)
	if err != nil {
		return "", err
	}
	in.buffers[name] = buf
	return name, nil
}

func (in *Interpreter) buffer(e Expr) (*vm.ArrayBuffer, error) {
	if id, ok := e.(*Ident); ok {
		if b, ok := in.buffers[id.Name]; ok {
			return b, nil
		}
	}
	return nil, in.errorf(e, "%s is not a buffer", e)
}

func (in *Interpreter) cmdTyped(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	kindName, err := in.name(cmd.Args[1])
	if err != nil {
		return "", err
	}
	kind, ok := vm.ParseTypedArrayKind(kindName)
	if !ok {
		return "", in.errorf(cmd.Args[1], "unknown typed array kind %s", kindName)
	}

	var o *vm.Object
	if buf, berr := in.buffer(cmd.Args[2]); berr == nil {
		offset, length := 0, -1
		if len(cmd.Args) > 3 {
			if offset, err = in.integer(cmd.Args[3]); err != nil {
				return "", err
			}
		}
		if len(cmd.Args) > 4 {
			if length, err = in.integer(cmd.Args[4]); err != nil {
				return "", err
			}
		} else if size := kind.BytesPerElement(); offset >= 0 && offset <= buf.ByteLength() {
			length = (buf.ByteLength() - offset) / size
		}
		o, err = in.realm.NewTypedArray(kind, buf, offset, length)
	} else {
		if len(cmd.Args) != 3 {
			return "", berr
		}
		n, ierr := in.integer(cmd.Args[2])
		if ierr != nil {
			return "", ierr
		}
		o, err = in.realm.NewTypedArrayOfLength(kind, n)
	}
	if err != nil {
		return "", err
	}
	in.bind(name, vm.ObjectValue(o))
	return name, nil
}

func (in *Interpreter) cmdDetach(cmd *Command) (string, error) {
	buf, err := in.buffer(cmd.Args[0])
	if err != nil {
		return "", err
	}
	buf.Detach()
	return "undefined", nil
}

func (in *Interpreter) cmdString(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	v, err := in.eval(cmd.Args[1], nil)
	if err != nil {
		return "", err
	}
	in.bind(name, vm.ObjectValue(in.realm.NewStringObject(v.ToString())))
	return name, nil
}

func (in *Interpreter) cmdArgs(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	mode, err := in.name(cmd.Args[1])
	if err != nil {
		return "", err
	}
	if mode != "strict" && mode != "sloppy" {
		return "", in.errorf(cmd.Args[1], "mode must be strict or sloppy")
	}
	params, err := in.integer(cmd.Args[2])
	if err != nil || params < 0 {
		return "", in.errorf(cmd.Args[2], "invalid parameter count")
	}
	vals, err := in.values(cmd.Args[3:])
	if err != nil {
		return "", err
	}
	regs := make([]vm.Value, params)
	for i := range regs {
		regs[i] = vm.Undefined
	}
	callee := in.realm.NewFunction(name, func(r *vm.Realm, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Undefined, nil
	})
	o := in.realm.NewArguments(regs, vals, callee, mode == "strict")
	in.registers[name] = regs
	in.bind(name, vm.ObjectValue(o))
	return name, nil
}

// cmdParam reads or writes a parameter register behind an arguments object.
func (in *Interpreter) cmdParam(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	regs, ok := in.registers[name]
	if !ok {
		return "", in.errorf(cmd.Args[0], "%s is not an arguments object", name)
	}
	i, err := in.integer(cmd.Args[1])
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(regs) {
		return "", in.errorf(cmd.Args[1], "no parameter %d", i)
	}
	if len(cmd.Args) == 3 {
		v, err := in.eval(cmd.Args[2], nil)
		if err != nil {
			return "", err
		}
		regs[i] = v
	}
	return in.Display(regs[i]), nil
}

func (in *Interpreter) cmdFunc(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	behaviour, err := in.name(cmd.Args[1])
	if err != nil {
		return "", err
	}
	var operand Expr
	if len(cmd.Args) == 3 {
		operand = cmd.Args[2]
	}
	needOperand := func() error {
		if operand == nil {
			return in.errorf(cmd.Args[1], "%s needs an operand", behaviour)
		}
		return nil
	}

	var fn vm.NativeFunction
	switch behaviour {
	case "const", "throw":
		if err := needOperand(); err != nil {
			return "", err
		}
		v, err := in.eval(operand, nil)
		if err != nil {
			return "", err
		}
		if behaviour == "const" {
			fn = func(*vm.Realm, vm.Value, []vm.Value) (vm.Value, error) { return v, nil }
		} else {
			fn = func(r *vm.Realm, _ vm.Value, _ []vm.Value) (vm.Value, error) { return vm.Undefined, r.Throw(v) }
		}
	case "this":
		fn = func(_ *vm.Realm, this vm.Value, _ []vm.Value) (vm.Value, error) { return this, nil }
	case "arg":
		fn = func(_ *vm.Realm, _ vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.Undefined, nil
			}
			return args[0], nil
		}
	case "record":
		if err := needOperand(); err != nil {
			return "", err
		}
		kv, err := in.eval(operand, nil)
		if err != nil {
			return "", err
		}
		key := vm.KeyFromValue(kv)
		// Stores its argument on the receiver, as a setter backing a
		// differently named property would.
		fn = func(r *vm.Realm, this vm.Value, args []vm.Value) (vm.Value, error) {
			o := this.AsObject()
			if o == nil {
				return vm.Undefined, r.Throw(vm.NewString("record: receiver is not an object"))
			}
			v := vm.Undefined
			if len(args) > 0 {
				v = args[0]
			}
			return vm.Undefined, r.Set(o, key, v, true)
		}
	default:
		return "", in.errorf(cmd.Args[1], "unknown function behaviour %s", behaviour)
	}
	in.bind(name, vm.ObjectValue(in.realm.NewFunction(name, fn)))
	return name, nil
}

func (in *Interpreter) cmdProxy(cmd *Command) (string, error) {
	args, opts := options(cmd.Args)
	if len(args) != 2 {
		return "", in.errorf(&Ident{Position: cmd.Position}, "usage: %s", commandTable["proxy"].usage)
	}
	name, err := in.name(args[0])
	if err != nil {
		return "", err
	}
	target, err := in.object(args[1])
	if err != nil {
		return "", err
	}
	h, err := in.proxyHandler(opts)
	if err != nil {
		return "", err
	}
	p, err := in.realm.NewProxy(target, h)
	if err != nil {
		return "", err
	}
	in.bind(name, vm.ObjectValue(p))
	return name, nil
}

// proxyHandler builds canned traps: each option fixes what its trap
// reports, so scenarios can provoke invariant checks.
func (in *Interpreter) proxyHandler(opts map[string]*Option) (*vm.ProxyHandler, error) {
	h := &vm.ProxyHandler{}
	boolOpt := func(o *Option) (bool, error) {
		v, err := in.eval(o.Value, nil)
		if err != nil {
			return false, err
		}
		return v.ToBoolean(), nil
	}
	for name, o := range opts {
		switch name {
		case "get":
			v, err := in.eval(o.Value, nil)
			if err != nil {
				return nil, err
			}
			h.Get = func(*vm.Object, vm.PropertyKey, vm.Value) (vm.Value, error) { return v, nil }
		case "set", "has", "delete", "define", "extensible", "preventext":
			b, err := boolOpt(o)
			if err != nil {
				return nil, err
			}
			switch name {
			case "set":
				h.Set = func(*vm.Object, vm.PropertyKey, vm.Value, vm.Value) (bool, error) { return b, nil }
			case "has":
				h.Has = func(*vm.Object, vm.PropertyKey) (bool, error) { return b, nil }
			case "delete":
				h.DeleteProperty = func(*vm.Object, vm.PropertyKey) (bool, error) { return b, nil }
			case "define":
				h.DefineProperty = func(*vm.Object, vm.PropertyKey, vm.PropertyDescriptor) (bool, error) { return b, nil }
			case "extensible":
				h.IsExtensible = func(*vm.Object) (bool, error) { return b, nil }
			case "preventext":
				h.PreventExtensions = func(*vm.Object) (bool, error) { return b, nil }
			}
		case "proto":
			p, err := in.objectOrNull(o.Value)
			if err != nil {
				return nil, err
			}
			h.GetPrototypeOf = func(*vm.Object) (*vm.Object, error) { return p, nil }
		case "ownkeys":
			arr, err := in.object(o.Value)
			if err != nil {
				return nil, err
			}
			h.OwnKeys = func(*vm.Object) ([]vm.PropertyKey, error) {
				n := arr.ArrayLength()
				keys := make([]vm.PropertyKey, 0, n)
				for i := uint32(0); i < n; i++ {
					v, err := in.realm.Get(arr, vm.IndexKey(i))
					if err != nil {
						return nil, err
					}
					keys = append(keys, vm.KeyFromValue(v))
				}
				return keys, nil
			}
		case "getown":
			// getown=undefined hides every property.
			h.GetOwnPropertyDescriptor = func(*vm.Object, vm.PropertyKey) (vm.PropertyDescriptor, bool, error) {
				return vm.PropertyDescriptor{}, false, nil
			}
		default:
			return nil, in.errorf(o, "unknown trap %s", name)
		}
	}
	return h, nil
}

func (in *Interpreter) cmdRevoke(cmd *Command) (string, error) {
	p, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	if p.Kind() != vm.KindProxy {
		return "", in.errorf(cmd.Args[0], "%s is not a proxy", cmd.Args[0])
	}
	in.realm.RevokeProxy(p)
	return "undefined", nil
}

// --- property operations ---

func (in *Interpreter) cmdGet(cmd *Command) (string, error) {
	site, args, err := in.accessSite(cmd, 1)
	if err != nil {
		return "", err
	}
	obj, key, err := in.ref(args[0])
	if err != nil {
		return "", err
	}
	v, err := in.realm.GetById(site, obj, key)
	if err != nil {
		return "", err
	}
	return in.Display(v), nil
}

func (in *Interpreter) cmdSet(cmd *Command) (string, error) {
	site, args, err := in.accessSite(cmd, 2)
	if err != nil {
		return "", err
	}
	obj, key, err := in.ref(args[0])
	if err != nil {
		return "", err
	}
	v, err := in.eval(args[1], nil)
	if err != nil {
		return "", err
	}
	if err := in.realm.PutById(site, obj, key, v, in.strict); err != nil {
		return "", err
	}
	return in.Display(v), nil
}

func (in *Interpreter) cmdDelete(cmd *Command) (string, error) {
	obj, key, err := in.ref(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.DeleteById(obj, key, in.strict)
	if err != nil {
		return "", err
	}
	return displayBool(ok), nil
}

func (in *Interpreter) cmdDefine(cmd *Command) (string, error) {
	args, opts := options(cmd.Args)
	if len(args) != 1 {
		return "", in.errorf(&Ident{Position: cmd.Position}, "usage: %s", commandTable["define"].usage)
	}
	obj, key, err := in.ref(args[0])
	if err != nil {
		return "", err
	}
	var desc vm.PropertyDescriptor
	throw := true
	for name, o := range opts {
		v, err := in.eval(o.Value, nil)
		if err != nil {
			return "", err
		}
		switch name {
		case "value":
			desc.Value, desc.HasValue = v, true
		case "writable":
			desc.Writable = vm.FlagOf(v.ToBoolean())
		case "enumerable":
			desc.Enumerable = vm.FlagOf(v.ToBoolean())
		case "configurable":
			desc.Configurable = vm.FlagOf(v.ToBoolean())
		case "get":
			desc.Get, desc.HasGet = v, true
		case "set":
			desc.Set, desc.HasSet = v, true
		case "throw":
			throw = v.ToBoolean()
		default:
			return "", in.errorf(o, "unknown descriptor field %s", name)
		}
	}
	if desc.IsAccessorDescriptor() && desc.IsDataDescriptor() {
		return "", in.realm.Throw(vm.NewString("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute"))
	}
	for _, f := range []vm.Value{desc.Get, desc.Set} {
		if !f.IsUndefined() && !f.IsCallable() {
			return "", in.realm.Throw(vm.NewString("Getter or setter must be a function: " + in.Display(f)))
		}
	}
	ok, err := in.realm.DefineOwnProperty(obj, key, desc, throw)
	if err != nil {
		return "", err
	}
	return displayBool(ok), nil
}

func (in *Interpreter) cmdDescribe(cmd *Command) (string, error) {
	obj, key, err := in.ref(cmd.Args[0])
	if err != nil {
		return "", err
	}
	d, ok, err := in.realm.GetOwnProperty(obj, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "undefined", nil
	}
	return in.displayDescriptor(d), nil
}

func (in *Interpreter) cmdHas(cmd *Command) (string, error) {
	obj, key, err := in.ref(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.HasProperty(obj, key)
	return displayBool(ok), err
}

func (in *Interpreter) cmdHasOwn(cmd *Command) (string, error) {
	obj, key, err := in.ref(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.HasOwnProperty(obj, key)
	return displayBool(ok), err
}

func (in *Interpreter) cmdKeys(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	filter := vm.KeysStrings
	if len(cmd.Args) == 2 {
		which, err := in.name(cmd.Args[1])
		if err != nil {
			return "", err
		}
		switch which {
		case "all":
			filter = vm.KeysAll
		case "strings":
		case "symbols":
			filter = vm.KeysSymbols
		case "enumerable":
			filter = vm.KeysStrings | vm.KeysEnumerableOnly
		default:
			return "", in.errorf(cmd.Args[1], "unknown key filter %s", which)
		}
	}
	keys, err := in.realm.OwnPropertyKeys(obj, filter)
	if err != nil {
		return "", err
	}
	return displayKeys(keys), nil
}

func (in *Interpreter) cmdForIn(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	keys, err := in.realm.EnumerateKeys(in.sites.Enumerator(cmd.Position.Line), obj)
	if err != nil {
		return "", err
	}
	return displayKeys(keys), nil
}

// --- prototypes and integrity ---

func (in *Interpreter) cmdProto(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	p, err := in.realm.GetPrototypeOf(obj)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "null", nil
	}
	return in.Display(vm.ObjectValue(p)), nil
}

func (in *Interpreter) cmdSetProto(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	p, err := in.objectOrNull(cmd.Args[1])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.SetPrototypeOf(obj, p, false)
	return displayBool(ok), err
}

func (in *Interpreter) integrity(cmd *Command, level vm.IntegrityLevel) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	if err := in.realm.SetIntegrityLevel(obj, level); err != nil {
		return "", err
	}
	return in.Display(vm.ObjectValue(obj)), nil
}

func (in *Interpreter) cmdFreeze(cmd *Command) (string, error) {
	return in.integrity(cmd, vm.IntegrityFrozen)
}

func (in *Interpreter) cmdSeal(cmd *Command) (string, error) {
	return in.integrity(cmd, vm.IntegritySealed)
}

func (in *Interpreter) cmdPreventExt(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.PreventExtensions(obj, true)
	return displayBool(ok), err
}

func (in *Interpreter) testIntegrity(cmd *Command, level vm.IntegrityLevel) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.TestIntegrityLevel(obj, level)
	return displayBool(ok), err
}

func (in *Interpreter) cmdIsFrozen(cmd *Command) (string, error) {
	return in.testIntegrity(cmd, vm.IntegrityFrozen)
}

func (in *Interpreter) cmdIsSealed(cmd *Command) (string, error) {
	return in.testIntegrity(cmd, vm.IntegritySealed)
}

func (in *Interpreter) cmdExtensible(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ok, err := in.realm.IsExtensible(obj)
	return displayBool(ok), err
}

// --- introspection ---

func (in *Interpreter) cmdShape(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	return displayShape(obj.Shape()), nil
}

func (in *Interpreter) cmdSameShape(cmd *Command) (string, error) {
	a, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	b, err := in.object(cmd.Args[1])
	if err != nil {
		return "", err
	}
	return displayBool(a.Shape() == b.Shape()), nil
}

func (in *Interpreter) cmdMode(cmd *Command) (string, error) {
	obj, err := in.object(cmd.Args[0])
	if err != nil {
		return "", err
	}
	if obj.IsDictionary() {
		return "dictionary", nil
	}
	return "uniform", nil
}

func (in *Interpreter) cmdSite(cmd *Command) (string, error) {
	line, err := in.integer(cmd.Args[0])
	if err != nil {
		return "", err
	}
	ic := in.sites.Site(line)
	what := "state"
	if len(cmd.Args) == 2 {
		if what, err = in.name(cmd.Args[1]); err != nil {
			return "", err
		}
	}
	switch what {
	case "state":
		return ic.State().String(), nil
	case "hits":
		return strconv.FormatUint(uint64(ic.Hits()), 10), nil
	case "misses":
		return strconv.FormatUint(uint64(ic.Misses()), 10), nil
	case "entries":
		return strconv.Itoa(ic.EntryCount()), nil
	}
	return "", in.errorf(cmd.Args[1], "unknown site field %s", what)
}

// --- weak maps ---

func (in *Interpreter) weakmap(e Expr) (*vm.WeakMap, error) {
	if id, ok := e.(*Ident); ok {
		if m, ok := in.weakmaps[id.Name]; ok {
			return m, nil
		}
	}
	return nil, in.errorf(e, "%s is not a weak map", e)
}

func (in *Interpreter) weakKey(cmd *Command) (*vm.WeakMap, *vm.Object, error) {
	m, err := in.weakmap(cmd.Args[0])
	if err != nil {
		return nil, nil, err
	}
	v, err := in.eval(cmd.Args[1], nil)
	if err != nil {
		return nil, nil, err
	}
	key := v.AsObject()
	if key == nil {
		return nil, nil, in.realm.Throw(vm.NewString("Invalid value used as weak map key"))
	}
	return m, key, nil
}

func (in *Interpreter) cmdWeakMap(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	in.weakmaps[name] = vm.NewWeakMap()
	return name, nil
}

func (in *Interpreter) cmdWeakMapSet(cmd *Command) (string, error) {
	m, key, err := in.weakKey(cmd)
	if err != nil {
		return "", err
	}
	v, err := in.eval(cmd.Args[2], nil)
	if err != nil {
		return "", err
	}
	m.Set(key, v)
	return in.Display(v), nil
}

func (in *Interpreter) cmdWeakMapGet(cmd *Command) (string, error) {
	m, key, err := in.weakKey(cmd)
	if err != nil {
		return "", err
	}
	v, _ := m.Get(key)
	return in.Display(v), nil
}

func (in *Interpreter) cmdWeakMapHas(cmd *Command) (string, error) {
	m, key, err := in.weakKey(cmd)
	if err != nil {
		return "", err
	}
	return displayBool(m.Has(key)), nil
}

func (in *Interpreter) cmdWeakMapDelete(cmd *Command) (string, error) {
	m, key, err := in.weakKey(cmd)
	if err != nil {
		return "", err
	}
	return displayBool(m.Delete(key)), nil
}

func (in *Interpreter) cmdWeakMapSize(cmd *Command) (string, error) {
	m, err := in.weakmap(cmd.Args[0])
	if err != nil {
		return "", err
	}
	return strconv.Itoa(m.Prune()), nil
}

func (in *Interpreter) cmdWeakSet(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	in.weaksets[name] = vm.NewWeakSet()
	return name, nil
}

func (in *Interpreter) weakSetKey(cmd *Command) (*vm.WeakSet, *vm.Object, error) {
	var set *vm.WeakSet
	if id, ok := cmd.Args[0].(*Ident); ok {
		set = in.weaksets[id.Name]
	}
	if set == nil {
		return nil, nil, in.errorf(cmd.Args[0], "%s is not a weak set", cmd.Args[0])
	}
	v, err := in.eval(cmd.Args[1], nil)
	if err != nil {
		return nil, nil, err
	}
	key := v.AsObject()
	if key == nil {
		return nil, nil, in.realm.Throw(vm.NewString("Invalid value used in weak set"))
	}
	return set, key, nil
}

func (in *Interpreter) cmdWeakSetAdd(cmd *Command) (string, error) {
	set, key, err := in.weakSetKey(cmd)
	if err != nil {
		return "", err
	}
	set.Add(key)
	return strconv.Itoa(set.Len()), nil
}

func (in *Interpreter) cmdWeakSetHas(cmd *Command) (string, error) {
	set, key, err := in.weakSetKey(cmd)
	if err != nil {
		return "", err
	}
	return displayBool(set.Has(key)), nil
}

func (in *Interpreter) cmdWeakSetDelete(cmd *Command) (string, error) {
	set, key, err := in.weakSetKey(cmd)
	if err != nil {
		return "", err
	}
	return displayBool(set.Delete(key)), nil
}

// --- realm ---

func (in *Interpreter) cmdGC(cmd *Command) (string, error) {
	runtime.GC()
	removed := in.realm.CollectShapes()
	for _, m := range in.weakmaps {
		m.Prune()
	}
	for _, s := range in.weaksets {
		s.Prune()
	}
	return strconv.Itoa(removed), nil
}

func (in *Interpreter) cmdEpoch(cmd *Command) (string, error) {
	return strconv.FormatUint(in.realm.Epoch(), 10), nil
}

// cmdStat reads one realm counter by its JSON name, e.g. cacheHits.
func (in *Interpreter) cmdStat(cmd *Command) (string, error) {
	name, err := in.name(cmd.Args[0])
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(in.realm.Stats())
	if err != nil {
		return "", err
	}
	var fields map[string]uint64
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", err
	}
	v, ok := fields[name]
	if !ok {
		return "", in.errorf(cmd.Args[0], "unknown statistic %s", name)
	}
	return strconv.FormatUint(v, 10), nil
}

func (in *Interpreter) cmdPrint(cmd *Command) (string, error) {
	parts := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		v, err := in.eval(a, in.site(cmd))
		if err != nil {
			return "", err
		}
		parts[i] = in.Display(v)
	}
	line := strings.Join(parts, " ")
	fmt.Fprintln(in.out, line)
	return line, nil
}
