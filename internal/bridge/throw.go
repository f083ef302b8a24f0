// Package bridge marshals values between a scripting environment and
// the native tensor runtime: argument validation, status translation,
// shape extraction and tensor construction. Every failure is raised
// into the environment as an exception and reported to the caller as a
// false return, so call sites can unwind with a plain early return.
package bridge

import (
	"fmt"
	"runtime"

	"github.com/23skdu/longbow-nock/internal/script"
)

// maxMessageLen bounds the formatted text of a raised error. Longer
// messages truncate; they never grow the buffer.
const maxMessageLen = 500

// origin is the source location a failure is attributed to.
type origin struct {
	file string
	line int
}

func (o origin) String() string {
	return fmt.Sprintf("%s:%d", o.file, o.line)
}

// callerOrigin captures the call site skip+1 frames up.
func callerOrigin(skip int) origin {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return origin{file: "unknown"}
	}
	return origin{file: file, line: line}
}

// ThrowError raises a formatted exception attributed to the caller's
// source location. Binding code uses it for failures none of the
// specialized helpers cover.
func ThrowError(env *script.Env, format string, args ...any) {
	throwError(env, callerOrigin(1), kindGeneric, format, args...)
}

// throwError is the one raising primitive every helper funnels through:
// bounded formatting with the origin attached, an optional debug echo,
// then a single exception into the environment. When an exception is
// already pending nothing is raised, so the first failure stays the one
// the caller sees.
func throwError(env *script.Env, o origin, kind string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	msg = fmt.Sprintf("%s\n    at %s", msg, o)
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	if debugEnabled {
		debugLog(o, msg)
	}
	errorsRaised.WithLabelValues(kind).Inc()
	if !env.IsExceptionPending() {
		env.ThrowError(msg)
	}
}
