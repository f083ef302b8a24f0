package bridge

import (
	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/script"
)

// EnsureCallOK translates a non-OK environment call status into an
// exception and reports success as true. The raised message carries the
// numeric code and the environment's extended error text.
func EnsureCallOK(env *script.Env, st script.Status) bool {
	if st == script.OK {
		return true
	}
	throwError(env, callerOrigin(1), kindScriptStatus,
		"Invalid script status: %d\nMessage: %s", int(st), env.LastError().Message)
	return false
}

// EnsureRuntimeOK translates a non-OK native runtime status into an
// exception and reports success as true.
func EnsureRuntimeOK(env *script.Env, s *native.Status) bool {
	if s.Code() == native.OK {
		return true
	}
	throwError(env, callerOrigin(1), kindRuntimeStatus,
		"Invalid runtime status: %d\nMessage: %s", int(s.Code()), s.Message())
	return false
}

// ReportUnknownDataType raises for a runtime data type the bridge has no
// marshaling for.
func ReportUnknownDataType(env *script.Env, dtype native.DataType) {
	throwError(env, callerOrigin(1), kindUnknownEnum, "Unhandled data type: %d", int(dtype))
}

// ReportUnknownAttrType raises for a graph attribute the bridge cannot
// convert to a script value.
func ReportUnknownAttrType(env *script.Env, attr any) {
	throwError(env, callerOrigin(1), kindUnknownEnum, "Unhandled attribute type: %T", attr)
}

// ReportUnknownTypedArrayType raises for a typed-array element type with
// no runtime data type mapping.
func ReportUnknownTypedArrayType(env *script.Env, elem script.ElemType) {
	throwError(env, callerOrigin(1), kindUnknownEnum, "Unhandled typed array type: %d", int(elem))
}
