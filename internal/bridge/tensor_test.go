package bridge

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-nock/internal/native"
)

// recordingAllocator instruments buffer traffic so tests can assert on
// exactly which buffers were handed out and released.
type recordingAllocator struct {
	mem       memory.Allocator
	allocated [][]byte
	freed     [][]byte
}

func newRecordingAllocator() *recordingAllocator {
	return &recordingAllocator{mem: memory.NewGoAllocator()}
}

func (a *recordingAllocator) Allocate(size int) []byte {
	b := a.mem.Allocate(size)
	a.allocated = append(a.allocated, b)
	return b
}

func (a *recordingAllocator) Reallocate(size int, b []byte) []byte {
	nb := a.mem.Reallocate(size, b)
	a.allocated = append(a.allocated, nb)
	return nb
}

func (a *recordingAllocator) Free(b []byte) {
	a.freed = append(a.freed, b)
	a.mem.Free(b)
}

func TestInt32Tensor(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		values := []int32{1, 2, 3, 4, 5, 6}
		tensor, err := Int32Tensor([]int64{2, 3}, values)
		if err != nil {
			t.Fatalf("Int32Tensor: %v", err)
		}
		defer native.DeleteTensor(tensor)

		if got := TensorNumElements(tensor); got != 6 {
			t.Errorf("elements = %d, want 6", got)
		}
		back := arrow.Int32Traits.CastFromBytes(tensor.Data())
		for i, v := range values {
			if back[i] != v {
				t.Errorf("element %d = %d, want %d", i, back[i], v)
			}
		}
	})

	t.Run("ZeroDimension", func(t *testing.T) {
		tensor, err := Int32Tensor([]int64{2, 0, 3}, nil)
		if err != nil {
			t.Fatalf("zero-dim construction failed: %v", err)
		}
		defer native.DeleteTensor(tensor)

		if got := TensorNumElements(tensor); got != 0 {
			t.Errorf("elements = %d, want 0", got)
		}
		if tensor.ByteSize() != 0 {
			t.Errorf("byte size = %d, want 0", tensor.ByteSize())
		}
	})

	t.Run("CountMismatch", func(t *testing.T) {
		if _, err := Int32Tensor([]int64{2, 2}, []int32{1, 2, 3}); err == nil {
			t.Fatal("mismatched value count accepted")
		}
	})
}

func TestInt32TensorFromSlice(t *testing.T) {
	values := []int32{7, 8, 9}
	tensor := Int32TensorFromSlice(values)
	defer native.DeleteTensor(tensor)

	if tensor.NumDims() != 1 || tensor.Dim(0) != 3 {
		t.Fatalf("shape = rank %d dim0 %d", tensor.NumDims(), tensor.Dim(0))
	}
	back := arrow.Int32Traits.CastFromBytes(tensor.Data())
	for i, v := range values {
		if back[i] != v {
			t.Errorf("element %d = %d, want %d", i, back[i], v)
		}
	}
}

func TestInt32Scalar(t *testing.T) {
	t.Run("Value", func(t *testing.T) {
		tensor, err := Int32Scalar(-17)
		if err != nil {
			t.Fatalf("Int32Scalar: %v", err)
		}
		defer native.DeleteTensor(tensor)

		if tensor.NumDims() != 0 {
			t.Errorf("rank = %d, want 0", tensor.NumDims())
		}
		if got := TensorNumElements(tensor); got != 1 {
			t.Errorf("elements = %d, want 1", got)
		}
		if got := arrow.Int32Traits.CastFromBytes(tensor.Data())[0]; got != -17 {
			t.Errorf("value = %d, want -17", got)
		}
	})

	t.Run("DeallocatorContract", func(t *testing.T) {
		rec := newRecordingAllocator()
		prev := native.SetAllocator(rec)
		defer native.SetAllocator(prev)

		tensor, err := Int32Scalar(5)
		if err != nil {
			t.Fatalf("Int32Scalar: %v", err)
		}
		if len(rec.allocated) != 1 {
			t.Fatalf("allocations = %d, want 1", len(rec.allocated))
		}

		native.DeleteTensor(tensor)
		native.DeleteTensor(tensor)

		if len(rec.freed) != 1 {
			t.Fatalf("deallocator released %d buffers, want exactly 1", len(rec.freed))
		}
		if &rec.freed[0][0] != &rec.allocated[0][0] {
			t.Error("deallocator released a different buffer than was registered")
		}
	})
}

func TestTensorFromBytes(t *testing.T) {
	t.Run("Int64", func(t *testing.T) {
		raw := arrow.Int64Traits.CastToBytes([]int64{10, 20})
		tensor, err := TensorFromBytes(native.Int64, []int64{2}, raw)
		if err != nil {
			t.Fatalf("TensorFromBytes: %v", err)
		}
		defer native.DeleteTensor(tensor)

		if tensor.Type() != native.Int64 {
			t.Errorf("dtype = %v", tensor.Type())
		}
		back := arrow.Int64Traits.CastFromBytes(tensor.Data())
		if back[0] != 10 || back[1] != 20 {
			t.Errorf("contents = %v", back)
		}
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		if _, err := TensorFromBytes(native.Int64, []int64{2}, make([]byte, 9)); err == nil {
			t.Fatal("ragged buffer accepted")
		}
	})

	t.Run("VariableWidthRejected", func(t *testing.T) {
		if _, err := TensorFromBytes(native.String, []int64{1}, []byte("x")); err == nil {
			t.Fatal("variable-width dtype accepted")
		}
	})
}
