package native

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// Deallocator releases a caller-owned tensor buffer. The runtime invokes
// it exactly once, with the same slice that was registered, when the
// tensor is deleted. It must not touch runtime state.
type Deallocator func(data []byte)

// Tensor holds a typed n-dimensional buffer. Buffers are either owned by
// the runtime (AllocateTensor) or adopted from the caller together with
// the Deallocator that releases them (NewTensor).
type Tensor struct {
	dtype    DataType
	dims     []int64
	data     []byte
	alloc    memory.Allocator
	dealloc  Deallocator
	released bool
}

func numElements(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// AllocateTensor creates a tensor backed by a runtime-owned buffer of
// byteSize bytes. Dims may be empty (a scalar) and any dim may be zero,
// which yields a zero-element tensor.
func AllocateTensor(dtype DataType, dims []int64, byteSize int) *Tensor {
	d := make([]int64, len(dims))
	copy(d, dims)

	a := bufAlloc
	var buf []byte
	if byteSize > 0 {
		buf = a.Allocate(byteSize)
	}
	t := &Tensor{dtype: dtype, dims: d, data: buf, alloc: a}
	tensorsAllocated.Inc()
	liveTensorBytes.Add(float64(byteSize))
	return t
}

// NewTensor adopts data as the tensor's buffer. Ownership transfers to
// the runtime: the caller must not reuse or free data, and dealloc will
// be invoked once, with exactly that slice, when the tensor is deleted.
func NewTensor(dtype DataType, dims []int64, data []byte, dealloc Deallocator) (*Tensor, error) {
	if dealloc == nil {
		return nil, errors.New("NewTensor: nil deallocator")
	}
	if w := dtype.Size(); w > 0 {
		if want := numElements(dims) * int64(w); int64(len(data)) != want {
			return nil, errors.Errorf("NewTensor: buffer is %d bytes, %v of %v needs %d", len(data), dims, dtype, want)
		}
	}
	d := make([]int64, len(dims))
	copy(d, dims)
	t := &Tensor{dtype: dtype, dims: d, data: data, dealloc: dealloc}
	tensorsAllocated.Inc()
	liveTensorBytes.Add(float64(len(data)))
	return t, nil
}

// Type returns the element type.
func (t *Tensor) Type() DataType {
	return t.dtype
}

// NumDims returns the rank.
func (t *Tensor) NumDims() int {
	return len(t.dims)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int64 {
	return t.dims[i]
}

// Data exposes the raw buffer. Nil after the tensor has been deleted.
func (t *Tensor) Data() []byte {
	return t.data
}

// ByteSize returns the buffer length in bytes.
func (t *Tensor) ByteSize() int {
	return len(t.data)
}

// DeleteTensor releases the tensor's buffer: runtime-owned buffers go
// back to the allocator, adopted buffers go to the registered
// deallocator. Deleting nil or an already-deleted tensor is a no-op.
func DeleteTensor(t *Tensor) {
	if t == nil || t.released {
		return
	}
	t.released = true
	size := len(t.data)
	buf := t.data
	t.data = nil

	if t.alloc != nil {
		if buf != nil {
			t.alloc.Free(buf)
		}
	} else if t.dealloc != nil {
		cb := t.dealloc
		t.dealloc = nil
		cb(buf)
	}
	tensorsReleased.Inc()
	liveTensorBytes.Sub(float64(size))
}
