package bridge

import (
	"github.com/23skdu/longbow-nock/internal/script"
)

// MaxTensorShape is the rank bound the fast-path surfaces enforce on
// shape descriptors. Extraction itself handles any rank.
const MaxTensorShape = 4

// ExtractArrayShape converts a script array into a dimension vector.
// Every element must coerce to a 64-bit integer; the first element that
// does not (or any failing environment call) aborts the extraction and
// the returned slice must not be used.
func ExtractArrayShape(env *script.Env, array script.Value) ([]int64, bool) {
	length, st := env.ArrayLength(array)
	if !EnsureCallOK(env, st) {
		return nil, false
	}

	shape := make([]int64, 0, length)
	for i := uint32(0); i < length; i++ {
		elem, st := env.Element(array, i)
		if !EnsureCallOK(env, st) {
			return nil, false
		}
		dim, st := env.Int64Value(elem)
		if !EnsureCallOK(env, st) {
			return nil, false
		}
		shape = append(shape, dim)
	}
	shapesExtracted.Inc()
	return shape, true
}
