package native

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Tensor buffers come from an arrow allocator so tests can swap in
// memory.CheckedAllocator and assert on buffer balance.
var bufAlloc memory.Allocator = memory.NewGoAllocator()

// SetAllocator replaces the buffer allocator for tensors allocated after
// the call and returns the previous one. Live tensors keep releasing
// through the allocator that produced them.
func SetAllocator(a memory.Allocator) memory.Allocator {
	prev := bufAlloc
	if a != nil {
		bufAlloc = a
	}
	return prev
}

// Allocator returns the allocator new tensor buffers are drawn from.
func Allocator() memory.Allocator {
	return bufAlloc
}
