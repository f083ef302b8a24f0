package savedmodel

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/script"
)

// recordingAllocator tracks every buffer it hands out and takes back.
type recordingAllocator struct {
	mem       *memory.GoAllocator
	allocated [][]byte
	freed     [][]byte
}

func newRecordingAllocator() *recordingAllocator {
	return &recordingAllocator{mem: memory.NewGoAllocator()}
}

func (a *recordingAllocator) Allocate(size int) []byte {
	buf := a.mem.Allocate(size)
	a.allocated = append(a.allocated, buf)
	return buf
}

func (a *recordingAllocator) Reallocate(size int, b []byte) []byte {
	return a.mem.Reallocate(size, b)
}

func (a *recordingAllocator) Free(b []byte) {
	a.freed = append(a.freed, b)
	a.mem.Free(b)
}

func stageModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	m := native.Manifest{
		Tags: []string{"serve"},
		Signatures: map[string]native.Signature{
			"serving_default": {
				MethodName: "predict",
				Inputs: map[string]native.TensorInfo{
					"x": {Name: "input_x", DType: native.Int32, Shape: []int64{-1, 3}},
				},
				Outputs: map[string]native.TensorInfo{
					"y": {Name: "output_y", DType: native.Int32, Shape: []int64{-1, 2}},
				},
			},
		},
	}
	require.NoError(t, native.WriteManifest(dir, m))
	return dir
}

func newBindingEnv(t *testing.T) (*script.Env, *Binding) {
	t.Helper()
	env := script.NewEnv()
	b := NewBinding(NewMapRegistry())
	require.NoError(t, b.Install(env))
	return env, b
}

func callGlobal(t *testing.T, env *script.Env, name string, args ...script.Value) (script.Value, script.Status) {
	t.Helper()
	fn, st := env.Property(env.Global(), name)
	require.Equal(t, script.OK, st)
	return env.CallFunction(fn, env.Global(), args...)
}

func mustCall(t *testing.T, env *script.Env, name string, args ...script.Value) script.Value {
	t.Helper()
	res, st := callGlobal(t, env, name, args...)
	require.Equal(t, script.OK, st, "calling %s: %v", name, env.LastError())
	require.False(t, env.IsExceptionPending())
	return res
}

func pendingMessage(t *testing.T, env *script.Env) string {
	t.Helper()
	exc, ok := env.PendingException()
	require.True(t, ok, "no exception pending")
	msg, st := env.Property(exc, "message")
	require.Equal(t, script.OK, st)
	return stringValue(t, env, msg)
}

func stringValue(t *testing.T, env *script.Env, v script.Value) string {
	t.Helper()
	n, st := env.StringLen(v)
	require.Equal(t, script.OK, st)
	buf := make([]byte, n+1)
	_, st = env.CopyString(v, buf)
	require.Equal(t, script.OK, st)
	return string(buf[:n])
}

func numberValue(t *testing.T, env *script.Env, v script.Value) float64 {
	t.Helper()
	f, st := env.DoubleValue(v)
	require.Equal(t, script.OK, st)
	return f
}

func property(t *testing.T, env *script.Env, obj script.Value, name string) script.Value {
	t.Helper()
	v, st := env.Property(obj, name)
	require.Equal(t, script.OK, st)
	return v
}

func mkString(t *testing.T, env *script.Env, s string) script.Value {
	t.Helper()
	v, st := env.CreateString(s)
	require.Equal(t, script.OK, st)
	return v
}

func mkNumber(t *testing.T, env *script.Env, f float64) script.Value {
	t.Helper()
	v, st := env.CreateDouble(f)
	require.Equal(t, script.OK, st)
	return v
}

func mkShape(t *testing.T, env *script.Env, dims ...float64) script.Value {
	t.Helper()
	arr, st := env.CreateArray(len(dims))
	require.Equal(t, script.OK, st)
	for i, d := range dims {
		require.Equal(t, script.OK, env.SetElement(arr, uint32(i), mkNumber(t, env, d)))
	}
	return arr
}

func mkInt32Data(t *testing.T, env *script.Env, values ...int32) script.Value {
	t.Helper()
	v, st := env.CreateTypedArrayFromBytes(script.ElemInt32, arrow.Int32Traits.CastToBytes(values))
	require.Equal(t, script.OK, st)
	return v
}

func shapeOf(t *testing.T, env *script.Env, tensor script.Value) []int64 {
	t.Helper()
	arr := mustCall(t, env, "tensorShape", tensor)
	n, st := env.ArrayLength(arr)
	require.Equal(t, script.OK, st)
	dims := make([]int64, n)
	for i := range dims {
		el, st := env.Element(arr, uint32(i))
		require.Equal(t, script.OK, st)
		d, st := env.Int64Value(el)
		require.Equal(t, script.OK, st)
		dims[i] = d
	}
	return dims
}

func TestInstallRegistersAPI(t *testing.T) {
	env, _ := newBindingEnv(t)

	names := []string{
		"loadSavedModel", "deleteSavedModel", "runSavedModel", "loadedModelCount",
		"createTensor", "deleteTensor", "tensorData", "tensorShape",
		"graphOpAttr", "runtimeVersion", "SavedModel",
	}
	for _, name := range names {
		kind, st := env.TypeOf(property(t, env, env.Global(), name))
		require.Equal(t, script.OK, st)
		assert.Equal(t, script.Function, kind, name)
	}

	version := mustCall(t, env, "runtimeVersion")
	assert.Equal(t, native.Version(), stringValue(t, env, version))
}

func TestLoadSavedModel(t *testing.T) {
	dir := stageModel(t)
	env, _ := newBindingEnv(t)

	model := mustCall(t, env, "loadSavedModel", mkString(t, env, dir), mkString(t, env, "serve"))

	handle := numberValue(t, env, property(t, env, model, "handle"))
	assert.GreaterOrEqual(t, handle, float64(1))

	sig := property(t, env, property(t, env, model, "signatures"), "serving_default")
	assert.Equal(t, "predict", stringValue(t, env, property(t, env, sig, "method")))

	x := property(t, env, property(t, env, sig, "inputs"), "x")
	assert.Equal(t, "input_x", stringValue(t, env, property(t, env, x, "name")))
	assert.Equal(t, float64(native.Int32), numberValue(t, env, property(t, env, x, "dtype")))

	count := mustCall(t, env, "loadedModelCount")
	assert.Equal(t, float64(1), numberValue(t, env, count))
}

func TestLoadSavedModel_MissingDir(t *testing.T) {
	env, _ := newBindingEnv(t)

	_, st := callGlobal(t, env, "loadSavedModel",
		mkString(t, env, t.TempDir()+"/nope"), mkString(t, env, "serve"))
	require.Equal(t, script.PendingException, st)

	msg := pendingMessage(t, env)
	assert.Contains(t, msg, "Invalid runtime status: 5")
	assert.Contains(t, msg, "Message:")

	count := mustCall(t, env, "loadedModelCount")
	assert.Equal(t, float64(0), numberValue(t, env, count))
}

func TestSavedModelConstructor(t *testing.T) {
	dir := stageModel(t)

	t.Run("Construction", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		ctor := property(t, env, env.Global(), "SavedModel")

		inst, st := env.NewInstance(ctor, mkString(t, env, dir), mkString(t, env, "serve"))
		require.Equal(t, script.OK, st)

		assert.GreaterOrEqual(t, numberValue(t, env, property(t, env, inst, "handle")), float64(1))
		sigs := property(t, env, inst, "signatures")
		kind, st := env.TypeOf(property(t, env, sigs, "serving_default"))
		require.Equal(t, script.OK, st)
		assert.Equal(t, script.Object, kind)
	})

	t.Run("PlainCallNeverAllocates", func(t *testing.T) {
		rec := newRecordingAllocator()
		prev := native.SetAllocator(rec)
		defer native.SetAllocator(prev)

		env, _ := newBindingEnv(t)
		ctor := property(t, env, env.Global(), "SavedModel")

		_, st := env.CallFunction(ctor, env.Global(),
			mkString(t, env, dir), mkString(t, env, "serve"))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "Function not used as a constructor!")

		assert.Empty(t, rec.allocated)
		count := mustCall(t, env, "loadedModelCount")
		assert.Equal(t, float64(0), numberValue(t, env, count))
	})
}

func TestCreateTensor(t *testing.T) {
	t.Run("HappyPath", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		tensor := mustCall(t, env, "createTensor",
			mkShape(t, env, 2, 3),
			mkNumber(t, env, float64(native.Int32)),
			mkInt32Data(t, env, 1, 2, 3, 4, 5, 6))

		assert.Equal(t, []int64{2, 3}, shapeOf(t, env, tensor))

		data := mustCall(t, env, "tensorData", tensor)
		info, st := env.TypedArrayData(data)
		require.Equal(t, script.OK, st)
		assert.Equal(t, script.ElemInt32, info.Elem)
		assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, arrow.Int32Traits.CastFromBytes(info.Bytes))
	})

	t.Run("Scalar", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		tensor := mustCall(t, env, "createTensor",
			mkShape(t, env),
			mkNumber(t, env, float64(native.Int32)),
			mkInt32Data(t, env, 42))

		assert.Empty(t, shapeOf(t, env, tensor))

		data := mustCall(t, env, "tensorData", tensor)
		info, st := env.TypedArrayData(data)
		require.Equal(t, script.OK, st)
		assert.Equal(t, []int32{42}, arrow.Int32Traits.CastFromBytes(info.Bytes))
	})

	t.Run("ShapeNotArray", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		_, st := callGlobal(t, env, "createTensor",
			mkNumber(t, env, 1),
			mkNumber(t, env, float64(native.Int32)),
			mkInt32Data(t, env, 1))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "Argument is not an array!")
	})

	t.Run("RankAboveMax", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		_, st := callGlobal(t, env, "createTensor",
			mkShape(t, env, 1, 1, 1, 1, 1),
			mkNumber(t, env, float64(native.Int32)),
			mkInt32Data(t, env, 1))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "Argument is greater than max: 5 > 4")
	})

	t.Run("DTypeMismatch", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		_, st := callGlobal(t, env, "createTensor",
			mkShape(t, env, 3),
			mkNumber(t, env, float64(native.Int64)),
			mkInt32Data(t, env, 1, 2, 3))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "does not match")
	})

	t.Run("DataNotTypedArray", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		_, st := callGlobal(t, env, "createTensor",
			mkShape(t, env, 1),
			mkNumber(t, env, float64(native.Int32)),
			mkShape(t, env, 1))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "Argument is not a typed array!")
	})

	t.Run("ElementCountMismatch", func(t *testing.T) {
		env, _ := newBindingEnv(t)
		_, st := callGlobal(t, env, "createTensor",
			mkShape(t, env, 2, 3),
			mkNumber(t, env, float64(native.Int32)),
			mkInt32Data(t, env, 1, 2, 3, 4, 5))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "Failed to create tensor")
	})
}

func TestDeleteTensor(t *testing.T) {
	rec := newRecordingAllocator()
	prev := native.SetAllocator(rec)
	defer native.SetAllocator(prev)

	env, _ := newBindingEnv(t)
	tensor := mustCall(t, env, "createTensor",
		mkShape(t, env, 2, 3),
		mkNumber(t, env, float64(native.Int32)),
		mkInt32Data(t, env, 1, 2, 3, 4, 5, 6))
	require.Len(t, rec.allocated, 1)

	mustCall(t, env, "deleteTensor", tensor)
	require.Len(t, rec.freed, 1)
	assert.Same(t, &rec.allocated[0][0], &rec.freed[0][0], "released a different buffer than was allocated")

	// The external is spent: further use raises, nothing double-frees.
	_, st := callGlobal(t, env, "tensorData", tensor)
	require.Equal(t, script.PendingException, st)
	assert.Contains(t, pendingMessage(t, env), "Invalid script status: 9")
	assert.Len(t, rec.freed, 1)
}

func TestRunSavedModel(t *testing.T) {
	dir := stageModel(t)
	env, _ := newBindingEnv(t)

	model := mustCall(t, env, "loadSavedModel", mkString(t, env, dir), mkString(t, env, "serve"))
	handle := property(t, env, model, "handle")

	feedTensor := mustCall(t, env, "createTensor",
		mkShape(t, env, 1, 3),
		mkNumber(t, env, float64(native.Int32)),
		mkInt32Data(t, env, 7, 8, 9))

	feeds, st := env.CreateObject()
	require.Equal(t, script.OK, st)
	require.Equal(t, script.OK, env.SetProperty(feeds, "x", feedTensor))

	t.Run("HappyPath", func(t *testing.T) {
		out := mustCall(t, env, "runSavedModel", handle, mkString(t, env, "serving_default"), feeds)
		y := property(t, env, out, "y")

		assert.Equal(t, []int64{1, 2}, shapeOf(t, env, y))
		data := mustCall(t, env, "tensorData", y)
		info, st := env.TypedArrayData(data)
		require.Equal(t, script.OK, st)
		assert.Equal(t, []int32{0, 0}, arrow.Int32Traits.CastFromBytes(info.Bytes))

		mustCall(t, env, "deleteTensor", y)
	})

	t.Run("UnknownHandle", func(t *testing.T) {
		_, st := callGlobal(t, env, "runSavedModel",
			mkNumber(t, env, 424242), mkString(t, env, "serving_default"), feeds)
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), "No saved model with handle: 424242")
	})

	t.Run("UnknownSignature", func(t *testing.T) {
		_, st := callGlobal(t, env, "runSavedModel",
			handle, mkString(t, env, "bogus"), feeds)
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), `Signature "bogus" is not in the loaded model`)
	})

	t.Run("UnknownInputKey", func(t *testing.T) {
		bad, st := env.CreateObject()
		require.Equal(t, script.OK, st)
		require.Equal(t, script.OK, env.SetProperty(bad, "zz", feedTensor))

		_, cst := callGlobal(t, env, "runSavedModel",
			handle, mkString(t, env, "serving_default"), bad)
		require.Equal(t, script.PendingException, cst)
		assert.Contains(t, pendingMessage(t, env), `has no input named "zz"`)
	})

	t.Run("FeedShapeMismatch", func(t *testing.T) {
		wide := mustCall(t, env, "createTensor",
			mkShape(t, env, 1, 4),
			mkNumber(t, env, float64(native.Int32)),
			mkInt32Data(t, env, 1, 2, 3, 4))
		badFeeds, st := env.CreateObject()
		require.Equal(t, script.OK, st)
		require.Equal(t, script.OK, env.SetProperty(badFeeds, "x", wide))

		_, cst := callGlobal(t, env, "runSavedModel",
			handle, mkString(t, env, "serving_default"), badFeeds)
		require.Equal(t, script.PendingException, cst)
		assert.Contains(t, pendingMessage(t, env), "Invalid runtime status: 3")
	})
}

func TestDeleteSavedModel(t *testing.T) {
	dir := stageModel(t)
	env, _ := newBindingEnv(t)

	model := mustCall(t, env, "loadSavedModel", mkString(t, env, dir), mkString(t, env, "serve"))
	handle := property(t, env, model, "handle")

	mustCall(t, env, "deleteSavedModel", handle)
	count := mustCall(t, env, "loadedModelCount")
	assert.Equal(t, float64(0), numberValue(t, env, count))

	_, st := callGlobal(t, env, "deleteSavedModel", handle)
	require.Equal(t, script.PendingException, st)
	assert.Contains(t, pendingMessage(t, env), "Delete called on an unknown handle")
}

func TestGraphOpAttr(t *testing.T) {
	dir := stageModel(t)
	env, _ := newBindingEnv(t)

	model := mustCall(t, env, "loadSavedModel", mkString(t, env, dir), mkString(t, env, "serve"))
	handle := property(t, env, model, "handle")

	t.Run("DTypeAttr", func(t *testing.T) {
		v := mustCall(t, env, "graphOpAttr",
			handle, mkString(t, env, "input_x"), mkString(t, env, "dtype"))
		assert.Equal(t, float64(native.Int32), numberValue(t, env, v))
	})

	t.Run("ShapeAttr", func(t *testing.T) {
		v := mustCall(t, env, "graphOpAttr",
			handle, mkString(t, env, "input_x"), mkString(t, env, "shape"))
		n, st := env.ArrayLength(v)
		require.Equal(t, script.OK, st)
		require.Equal(t, uint32(2), n)
		first, st := env.Element(v, 0)
		require.Equal(t, script.OK, st)
		assert.Equal(t, float64(-1), numberValue(t, env, first))
	})

	t.Run("UnknownOp", func(t *testing.T) {
		_, st := callGlobal(t, env, "graphOpAttr",
			handle, mkString(t, env, "nope"), mkString(t, env, "dtype"))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), `No operation named "nope"`)
	})

	t.Run("UnknownAttr", func(t *testing.T) {
		_, st := callGlobal(t, env, "graphOpAttr",
			handle, mkString(t, env, "input_x"), mkString(t, env, "batch"))
		require.Equal(t, script.PendingException, st)
		assert.Contains(t, pendingMessage(t, env), `has no attr "batch"`)
	})
}
