package bridge

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-nock/internal/native"
)

// TensorNumElements returns the element count of a tensor, the product
// of its dimensions. Rank 0 counts as one element.
func TensorNumElements(t *native.Tensor) int64 {
	n := int64(1)
	for i := 0; i < t.NumDims(); i++ {
		n *= t.Dim(i)
	}
	return n
}

func shapeElements(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// Int32Tensor builds a tensor of the given shape from values, backed by
// a runtime-owned buffer. A zero in dims is legal and yields an empty
// tensor. len(values) must equal the product of dims.
func Int32Tensor(dims []int64, values []int32) (*native.Tensor, error) {
	want := shapeElements(dims)
	if int64(len(values)) != want {
		return nil, errors.Errorf("shape %v holds %d elements, got %d values", dims, want, len(values))
	}
	t := native.AllocateTensor(native.Int32, dims, native.Int32.Size()*len(values))
	copy(t.Data(), arrow.Int32Traits.CastToBytes(values))
	tensorsBuilt.WithLabelValues("allocate").Inc()
	return t, nil
}

// Int32TensorFromSlice builds a rank-1 tensor whose single dimension is
// len(values).
func Int32TensorFromSlice(values []int32) *native.Tensor {
	t := native.AllocateTensor(native.Int32, []int64{int64(len(values))}, native.Int32.Size()*len(values))
	copy(t.Data(), arrow.Int32Traits.CastToBytes(values))
	tensorsBuilt.WithLabelValues("allocate").Inc()
	return t
}

// Int32Scalar builds a rank-0 tensor holding v. The buffer is owned by
// the bridge until handoff: ownership transfers to the runtime together
// with a deallocator that returns the buffer to the allocator that
// produced it, and the runtime invokes that deallocator exactly once
// when it deletes the tensor.
func Int32Scalar(v int32) (*native.Tensor, error) {
	a := native.Allocator()
	buf := a.Allocate(native.Int32.Size())
	copy(buf, arrow.Int32Traits.CastToBytes([]int32{v}))

	t, err := native.NewTensor(native.Int32, nil, buf, func(data []byte) {
		a.Free(data)
	})
	if err != nil {
		a.Free(buf)
		return nil, err
	}
	tensorsBuilt.WithLabelValues("adopt").Inc()
	return t, nil
}

// TensorFromBytes is the generic byte-copy constructor for fixed-width
// data types whose per-element semantics the bridge does not interpret.
func TensorFromBytes(dtype native.DataType, dims []int64, raw []byte) (*native.Tensor, error) {
	w := dtype.Size()
	if w == 0 {
		return nil, errors.Errorf("data type %v has no fixed element width", dtype)
	}
	if want := shapeElements(dims) * int64(w); int64(len(raw)) != want {
		return nil, errors.Errorf("shape %v of %v holds %d bytes, got %d", dims, dtype, want, len(raw))
	}
	t := native.AllocateTensor(dtype, dims, len(raw))
	copy(t.Data(), raw)
	tensorsBuilt.WithLabelValues("allocate").Inc()
	return t, nil
}
