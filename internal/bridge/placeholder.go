package bridge

import (
	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/script"
)

// Placeholder adds a placeholder node named name to g, typed dtype and
// shaped dims when dims is non-empty. On failure the runtime status is
// raised into env and the bool is false.
func Placeholder(env *script.Env, g *native.Graph, name string, dtype native.DataType, dims []int64) (*native.Operation, bool) {
	desc := g.NewOperation("Placeholder", name)
	desc.SetAttrType("dtype", dtype)
	if len(dims) > 0 {
		desc.SetAttrShape("shape", dims)
	}

	s := native.NewStatus()
	op := desc.Finish(s)
	if !EnsureRuntimeOK(env, s) {
		return nil, false
	}
	return op, true
}
