package script

import (
	"fmt"
	"sort"
)

// Status is the result code every Env call reports. It mirrors the call
// contract of embedding APIs for managed runtimes: OK means the call did
// what was asked, anything else names the first reason it could not.
type Status int

const (
	OK Status = iota
	InvalidArg
	ObjectExpected
	StringExpected
	NameExpected
	FunctionExpected
	NumberExpected
	BooleanExpected
	ArrayExpected
	GenericFailure
	PendingException
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case InvalidArg:
		return "invalid_arg"
	case ObjectExpected:
		return "object_expected"
	case StringExpected:
		return "string_expected"
	case NameExpected:
		return "name_expected"
	case FunctionExpected:
		return "function_expected"
	case NumberExpected:
		return "number_expected"
	case BooleanExpected:
		return "boolean_expected"
	case ArrayExpected:
		return "array_expected"
	case GenericFailure:
		return "generic_failure"
	case PendingException:
		return "pending_exception"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrorInfo is the extended error record of the most recent failing call.
// It is only meaningful immediately after a call returned non-OK.
type ErrorInfo struct {
	Code    Status
	Message string
}

// Env is a single-threaded scripting environment: a value arena plus the
// pending-exception state machine. While an exception is pending every
// call short-circuits with PendingException, so native code layered on
// top can unwind without raising secondary errors. An Env must not be
// shared across goroutines.
type Env struct {
	global    Value
	pending   *Value
	lastError ErrorInfo
}

func NewEnv() *Env {
	e := &Env{}
	e.global = Value{kind: Object, obj: &objectData{props: make(map[string]Value)}}
	return e
}

// Global returns the environment's root object. Native modules install
// their exports as properties on it.
func (e *Env) Global() Value {
	return e.global
}

func (e *Env) fail(code Status, format string, args ...any) Status {
	e.lastError = ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
	return code
}

// checkPending is the guard at the top of every call.
func (e *Env) checkPending() Status {
	if e.pending != nil {
		return e.fail(PendingException, "an exception is pending")
	}
	return OK
}

// LastError returns the extended error info of the most recent failure.
func (e *Env) LastError() ErrorInfo {
	return e.lastError
}

// IsExceptionPending reports whether a thrown error has not yet been
// consumed. It is valid at any time, including while pending.
func (e *Env) IsExceptionPending() bool {
	return e.pending != nil
}

// ThrowError raises a script exception carrying msg. Raising while an
// exception is already pending fails with PendingException and leaves
// the original exception in place.
func (e *Env) ThrowError(msg string) Status {
	if st := e.checkPending(); st != OK {
		return st
	}
	errObj := Value{kind: Object, obj: &objectData{props: map[string]Value{
		"message": {kind: String, s: msg},
	}}}
	e.pending = &errObj
	return OK
}

// PendingException returns the pending exception and clears it.
func (e *Env) PendingException() (Value, bool) {
	if e.pending == nil {
		return Value{}, false
	}
	v := *e.pending
	e.pending = nil
	return v, true
}

// TypeOf reports the Kind of v.
func (e *Env) TypeOf(v Value) (Kind, Status) {
	if st := e.checkPending(); st != OK {
		return Undefined, st
	}
	return v.kind, OK
}

// --- construction ---

func (e *Env) Undefined() Value {
	return Value{}
}

func (e *Env) Null() Value {
	return Value{kind: Null}
}

func (e *Env) CreateBoolean(b bool) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: Boolean, b: b}, OK
}

func (e *Env) CreateInt32(v int32) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: Number, n: float64(v)}, OK
}

func (e *Env) CreateUint32(v uint32) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: Number, n: float64(v)}, OK
}

func (e *Env) CreateInt64(v int64) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: Number, n: float64(v)}, OK
}

func (e *Env) CreateDouble(v float64) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: Number, n: v}, OK
}

func (e *Env) CreateString(s string) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: String, s: s}, OK
}

func (e *Env) CreateObject() (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: Object, obj: &objectData{props: make(map[string]Value)}}, OK
}

func (e *Env) CreateArray(length int) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if length < 0 {
		return Value{}, e.fail(InvalidArg, "negative array length %d", length)
	}
	return Value{kind: Array, arr: &arrayData{elems: make([]Value, length)}}, OK
}

// CreateExternal wraps opaque native data. finalize, if non-nil, runs at
// most once, when ReleaseExternal is called on the value.
func (e *Env) CreateExternal(data any, finalize func(any)) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	return Value{kind: External, ext: &externalData{data: data, finalize: finalize}}, OK
}

func (e *Env) CreateTypedArray(elem ElemType, length int) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if length < 0 {
		return Value{}, e.fail(InvalidArg, "negative typed array length %d", length)
	}
	return Value{kind: TypedArray, ta: &typedArrayData{elem: elem, data: make([]byte, length*elem.Size())}}, OK
}

// CreateTypedArrayFromBytes copies data into a fresh typed array. len(data)
// must be a multiple of the element width.
func (e *Env) CreateTypedArrayFromBytes(elem ElemType, data []byte) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if w := elem.Size(); w == 0 || len(data)%w != 0 {
		return Value{}, e.fail(InvalidArg, "buffer length %d is not a multiple of %s element width", len(data), elem)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Value{kind: TypedArray, ta: &typedArrayData{elem: elem, data: buf}}, OK
}

// --- numeric access ---

func (e *Env) BoolValue(v Value) (bool, Status) {
	if st := e.checkPending(); st != OK {
		return false, st
	}
	if v.kind != Boolean {
		return false, e.fail(BooleanExpected, "a boolean was expected, got %s", v.kind)
	}
	return v.b, OK
}

func (e *Env) DoubleValue(v Value) (float64, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != Number {
		return 0, e.fail(NumberExpected, "a number was expected, got %s", v.kind)
	}
	return v.n, OK
}

// Int64Value truncates a Number toward zero. Every other kind fails with
// NumberExpected; there is no coercion from strings or booleans.
func (e *Env) Int64Value(v Value) (int64, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != Number {
		return 0, e.fail(NumberExpected, "a number was expected, got %s", v.kind)
	}
	return int64(v.n), OK
}

func (e *Env) Int32Value(v Value) (int32, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != Number {
		return 0, e.fail(NumberExpected, "a number was expected, got %s", v.kind)
	}
	return int32(int64(v.n)), OK
}

func (e *Env) Uint32Value(v Value) (uint32, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != Number {
		return 0, e.fail(NumberExpected, "a number was expected, got %s", v.kind)
	}
	return uint32(int64(v.n)), OK
}

// --- string access ---

// StringLen returns the byte length of the string's UTF-8 encoding, not
// counting the terminator a bounded copy appends.
func (e *Env) StringLen(v Value) (int, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != String {
		return 0, e.fail(StringExpected, "a string was expected, got %s", v.kind)
	}
	return len(v.s), OK
}

// CopyString copies the string's bytes into buf, NUL-terminated, copying
// at most len(buf)-1 bytes. It returns the number of bytes copied, not
// counting the terminator.
func (e *Env) CopyString(v Value, buf []byte) (int, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != String {
		return 0, e.fail(StringExpected, "a string was expected, got %s", v.kind)
	}
	if len(buf) == 0 {
		return 0, e.fail(InvalidArg, "zero-length destination buffer")
	}
	n := copy(buf[:len(buf)-1], v.s)
	buf[n] = 0
	return n, OK
}

// --- arrays ---

func (e *Env) IsArray(v Value) (bool, Status) {
	if st := e.checkPending(); st != OK {
		return false, st
	}
	return v.kind == Array, OK
}

func (e *Env) ArrayLength(v Value) (uint32, Status) {
	if st := e.checkPending(); st != OK {
		return 0, st
	}
	if v.kind != Array {
		return 0, e.fail(ArrayExpected, "an array was expected, got %s", v.kind)
	}
	return uint32(len(v.arr.elems)), OK
}

func (e *Env) Element(v Value, i uint32) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if v.kind != Array {
		return Value{}, e.fail(ArrayExpected, "an array was expected, got %s", v.kind)
	}
	if int(i) >= len(v.arr.elems) {
		return Value{}, e.fail(GenericFailure, "index %d out of range for array of length %d", i, len(v.arr.elems))
	}
	return v.arr.elems[i], OK
}

func (e *Env) SetElement(v Value, i uint32, elem Value) Status {
	if st := e.checkPending(); st != OK {
		return st
	}
	if v.kind != Array {
		return e.fail(ArrayExpected, "an array was expected, got %s", v.kind)
	}
	if int(i) >= len(v.arr.elems) {
		return e.fail(GenericFailure, "index %d out of range for array of length %d", i, len(v.arr.elems))
	}
	v.arr.elems[i] = elem
	return OK
}

// --- objects ---

func (e *Env) SetProperty(obj Value, name string, v Value) Status {
	if st := e.checkPending(); st != OK {
		return st
	}
	if obj.kind != Object {
		return e.fail(ObjectExpected, "an object was expected, got %s", obj.kind)
	}
	obj.obj.props[name] = v
	return OK
}

// Property returns the named property, or undefined when absent.
func (e *Env) Property(obj Value, name string) (Value, Status) {
	if st := e.checkPending(); st != OK {
		return Value{}, st
	}
	if obj.kind != Object {
		return Value{}, e.fail(ObjectExpected, "an object was expected, got %s", obj.kind)
	}
	return obj.obj.props[name], OK
}

// PropertyNames returns the object's own property names, sorted.
func (e *Env) PropertyNames(obj Value) ([]string, Status) {
	if st := e.checkPending(); st != OK {
		return nil, st
	}
	if obj.kind != Object {
		return nil, e.fail(ObjectExpected, "an object was expected, got %s", obj.kind)
	}
	names := make([]string, 0, len(obj.obj.props))
	for k := range obj.obj.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, OK
}

// --- typed arrays ---

func (e *Env) IsTypedArray(v Value) (bool, Status) {
	if st := e.checkPending(); st != OK {
		return false, st
	}
	return v.kind == TypedArray, OK
}

func (e *Env) TypedArrayData(v Value) (TypedArrayInfo, Status) {
	if st := e.checkPending(); st != OK {
		return TypedArrayInfo{}, st
	}
	if v.kind != TypedArray {
		return TypedArrayInfo{}, e.fail(InvalidArg, "a typed array was expected, got %s", v.kind)
	}
	return TypedArrayInfo{
		Elem:   v.ta.elem,
		Length: len(v.ta.data) / v.ta.elem.Size(),
		Bytes:  v.ta.data,
	}, OK
}

// --- externals ---

func (e *Env) ExternalValue(v Value) (any, Status) {
	if st := e.checkPending(); st != OK {
		return nil, st
	}
	if v.kind != External {
		return nil, e.fail(InvalidArg, "an external was expected, got %s", v.kind)
	}
	if v.ext.released {
		return nil, e.fail(GenericFailure, "external value already released")
	}
	return v.ext.data, OK
}

// ReleaseExternal runs the external's finalizer. A second release is a
// no-op for the finalizer but still returns OK.
func (e *Env) ReleaseExternal(v Value) Status {
	if st := e.checkPending(); st != OK {
		return st
	}
	if v.kind != External {
		return e.fail(InvalidArg, "an external was expected, got %s", v.kind)
	}
	if !v.ext.released {
		v.ext.released = true
		if v.ext.finalize != nil {
			v.ext.finalize(v.ext.data)
		}
	}
	return OK
}
