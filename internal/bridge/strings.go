package bridge

import (
	"strings"

	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/script"
)

// StringParam extracts a script string through the two-phase protocol:
// validate the kind, query the encoded length, copy through a scratch
// buffer of length+1 and build an owned Go string. The scratch buffer is
// released on success and failure alike.
func StringParam(env *script.Env, value script.Value) (string, bool) {
	if !EnsureValueIsString(env, value) {
		return "", false
	}
	length, st := env.StringLen(value)
	if !EnsureCallOK(env, st) {
		return "", false
	}

	a := native.Allocator()
	buf := a.Allocate(length + 1)
	defer a.Free(buf)

	copied, st := env.CopyString(value, buf)
	if !EnsureCallOK(env, st) {
		return "", false
	}
	return string(buf[:copied]), true
}

// Split breaks a comma-separated list into its non-empty tokens.
func Split(list string) []string {
	var out []string
	for _, tok := range strings.Split(list, ",") {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
