package bridge

import (
	"reflect"

	"github.com/23skdu/longbow-nock/internal/script"
)

// The validators below share one convention: true means the value
// passed, false means an exception was raised (or was already pending)
// and the caller must return without touching the runtime.

func EnsureValueIsObject(env *script.Env, value script.Value) bool {
	kind, st := env.TypeOf(value)
	if !EnsureCallOK(env, st) {
		return false
	}
	if kind != script.Object {
		throwError(env, callerOrigin(1), kindValidation, "Argument is not an object!")
		return false
	}
	return true
}

func EnsureValueIsString(env *script.Env, value script.Value) bool {
	kind, st := env.TypeOf(value)
	if !EnsureCallOK(env, st) {
		return false
	}
	if kind != script.String {
		throwError(env, callerOrigin(1), kindValidation, "Argument is not a string!")
		return false
	}
	return true
}

func EnsureValueIsNumber(env *script.Env, value script.Value) bool {
	kind, st := env.TypeOf(value)
	if !EnsureCallOK(env, st) {
		return false
	}
	if kind != script.Number {
		throwError(env, callerOrigin(1), kindValidation, "Argument is not a number!")
		return false
	}
	return true
}

func EnsureValueIsArray(env *script.Env, value script.Value) bool {
	isArr, st := env.IsArray(value)
	if !EnsureCallOK(env, st) {
		return false
	}
	if !isArr {
		throwError(env, callerOrigin(1), kindValidation, "Argument is not an array!")
		return false
	}
	return true
}

func EnsureValueIsTypedArray(env *script.Env, value script.Value) bool {
	isTA, st := env.IsTypedArray(value)
	if !EnsureCallOK(env, st) {
		return false
	}
	if !isTA {
		throwError(env, callerOrigin(1), kindValidation, "Argument is not a typed array!")
		return false
	}
	return true
}

// EnsureValueIsLessThan enforces an inclusive maximum on a numeric
// value; strictly greater raises a range failure.
func EnsureValueIsLessThan(env *script.Env, value script.Value, max uint32) bool {
	v, st := env.Uint32Value(value)
	if !EnsureCallOK(env, st) {
		return false
	}
	if v > max {
		throwError(env, callerOrigin(1), kindValidation, "Argument is greater than max: %d > %d", v, max)
		return false
	}
	return true
}

// EnsureValueIsNotNull guards handles returned by fallible allocations.
// It accepts any pointer-like handle so the one check serves tensors,
// sessions and raw buffers alike.
func EnsureValueIsNotNull(env *script.Env, handle any) bool {
	null := handle == nil
	if !null {
		rv := reflect.ValueOf(handle)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
			null = rv.IsNil()
		}
	}
	if null {
		throwError(env, callerOrigin(1), kindNullHandle, "Argument is null!")
		return false
	}
	return true
}

// EnsureConstructorCall rejects plain invocations of constructor-style
// entry points before they allocate anything.
func EnsureConstructorCall(env *script.Env, info *script.CallbackInfo) bool {
	if !info.NewTarget() {
		throwError(env, callerOrigin(1), kindConstructor, "Function not used as a constructor!")
		return false
	}
	return true
}
