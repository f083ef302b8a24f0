package script

// Func is a native function callable from the environment. The return
// value is ignored when the callback has thrown.
type Func func(env *Env, info *CallbackInfo) Value

// CallbackInfo carries the arguments of a single native call.
type CallbackInfo struct {
	This      Value
	Args      []Value
	newTarget bool
}

// NewTarget reports whether the function was invoked with construction
// semantics (via NewInstance) rather than as a plain call.
func (ci *CallbackInfo) NewTarget() bool {
	return ci.newTarget
}

// Arg returns the i-th argument, or undefined when fewer were passed.
func (ci *CallbackInfo) Arg(i int) Value {
	if i < 0 || i >= len(ci.Args) {
		return Value{}
	}
	return ci.Args[i]
}

func (e *Env) CreateFunction(name string, fn Func) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if fn == nil {
		return Value{}, e.fail(InvalidArg, "nil function implementation")
	}
	return Value{kind: Function, fn: &functionData{name: name, impl: fn, native: true}}, OK
}

// CallFunction invokes fn as a plain call. If the callee throws, the
// call reports PendingException and the exception stays pending for the
// caller to consume.
func (e *Env) CallFunction(fn Value, this Value, args ...Value) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if fn.kind != Function {
		return Value{}, e.fail(FunctionExpected, "a function was expected, got %s", fn.kind)
	}
	info := &CallbackInfo{This: this, Args: args}
	res := fn.fn.impl(e, info)
	if e.pending != nil {
		return Value{}, e.fail(PendingException, "exception thrown by %s", fn.fn.name)
	}
	return res, OK
}

// NewInstance invokes ctor with construction semantics: a fresh object
// as the receiver and NewTarget set. The callback's return value is the
// instance unless it returns undefined, in which case the receiver is.
func (e *Env) NewInstance(ctor Value, args ...Value) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if ctor.kind != Function {
		return Value{}, e.fail(FunctionExpected, "a function was expected, got %s", ctor.kind)
	}
	this := Value{kind: Object, obj: &objectData{props: make(map[string]Value)}}
	info := &CallbackInfo{This: this, Args: args, newTarget: true}
	res := ctor.fn.impl(e, info)
	if e.pending != nil {
		return Value{}, e.fail(PendingException, "exception thrown by %s", ctor.fn.name)
	}
	if res.kind == Undefined {
		return this, OK
	}
	return res, OK
}

// Define installs a native function on the global object under name.
func (e *Env) Define(name string, fn Func) Status {
	f, st := e.CreateFunction(name, fn)
	if st != OK {
		return st
	}
	return e.SetProperty(e.global, name, f)
}
