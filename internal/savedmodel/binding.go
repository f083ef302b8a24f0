// Package savedmodel exposes saved-model loading, tensor construction
// and signature runs to a script environment, marshaling every argument
// and result through the bridge.
package savedmodel

import (
	"context"
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/23skdu/longbow-nock/internal/bridge"
	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/script"
)

var tracer = otel.Tracer("nock-savedmodel")

// Binding wires the saved-model API into script environments. All
// loaded sessions live in the store until deleted by script code.
type Binding struct {
	store SessionStore
}

func NewBinding(store SessionStore) *Binding {
	if store == nil {
		store = NewMapRegistry()
	}
	return &Binding{store: store}
}

// Install registers the binding's entry points on the environment's
// global object.
func (b *Binding) Install(env *script.Env) error {
	entries := map[string]script.Func{
		"loadSavedModel":   b.loadSavedModel,
		"deleteSavedModel": b.deleteSavedModel,
		"runSavedModel":    b.runSavedModel,
		"loadedModelCount": b.loadedModelCount,
		"createTensor":     b.createTensor,
		"deleteTensor":     b.deleteTensor,
		"tensorData":       b.tensorData,
		"tensorShape":      b.tensorShape,
		"graphOpAttr":      b.graphOpAttr,
		"runtimeVersion":   b.runtimeVersion,
	}
	for name, fn := range entries {
		if st := env.Define(name, fn); st != script.OK {
			return fmt.Errorf("defining %s: %s", name, st)
		}
	}

	ctor, st := env.CreateFunction("SavedModel", b.savedModelCtor)
	if st != script.OK {
		return fmt.Errorf("creating SavedModel constructor: %s", st)
	}
	if st := env.SetProperty(env.Global(), "SavedModel", ctor); st != script.OK {
		return fmt.Errorf("installing SavedModel constructor: %s", st)
	}
	return nil
}

// --- property plumbing ---

func setProp(env *script.Env, obj script.Value, name string, v script.Value) bool {
	return bridge.EnsureCallOK(env, env.SetProperty(obj, name, v))
}

func setStringProp(env *script.Env, obj script.Value, name, s string) bool {
	v, st := env.CreateString(s)
	if !bridge.EnsureCallOK(env, st) {
		return false
	}
	return setProp(env, obj, name, v)
}

func dimsValue(env *script.Env, dims []int64) (script.Value, bool) {
	arr, st := env.CreateArray(len(dims))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}, false
	}
	for i, d := range dims {
		dv, st := env.CreateInt64(d)
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}, false
		}
		if !bridge.EnsureCallOK(env, env.SetElement(arr, uint32(i), dv)) {
			return script.Value{}, false
		}
	}
	return arr, true
}

func endpointsValue(env *script.Env, infos map[string]native.TensorInfo) (script.Value, bool) {
	obj, st := env.CreateObject()
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}, false
	}
	for key, ti := range infos {
		tiObj, st := env.CreateObject()
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}, false
		}
		if !setStringProp(env, tiObj, "name", ti.Name) {
			return script.Value{}, false
		}
		dt, st := env.CreateInt32(int32(ti.DType))
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}, false
		}
		if !setProp(env, tiObj, "dtype", dt) {
			return script.Value{}, false
		}
		shape, ok := dimsValue(env, ti.Shape)
		if !ok {
			return script.Value{}, false
		}
		if !setProp(env, tiObj, "shape", shape) {
			return script.Value{}, false
		}
		if !setProp(env, obj, key, tiObj) {
			return script.Value{}, false
		}
	}
	return obj, true
}

func signaturesValue(env *script.Env, sess *native.Session) (script.Value, bool) {
	root, st := env.CreateObject()
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}, false
	}
	for name, sig := range sess.Signatures {
		sigObj, st := env.CreateObject()
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}, false
		}
		if !setStringProp(env, sigObj, "method", sig.MethodName) {
			return script.Value{}, false
		}
		inputs, ok := endpointsValue(env, sig.Inputs)
		if !ok {
			return script.Value{}, false
		}
		if !setProp(env, sigObj, "inputs", inputs) {
			return script.Value{}, false
		}
		outputs, ok := endpointsValue(env, sig.Outputs)
		if !ok {
			return script.Value{}, false
		}
		if !setProp(env, sigObj, "outputs", outputs) {
			return script.Value{}, false
		}
		if !setProp(env, root, name, sigObj) {
			return script.Value{}, false
		}
	}
	return root, true
}

// --- model lifecycle ---

// load runs the shared load path of loadSavedModel and the SavedModel
// constructor.
func (b *Binding) load(env *script.Env, info *script.CallbackInfo) (int64, *native.Session, bool) {
	path, ok := bridge.StringParam(env, info.Arg(0))
	if !ok {
		return 0, nil, false
	}
	tags, ok := bridge.StringParam(env, info.Arg(1))
	if !ok {
		return 0, nil, false
	}

	s := native.NewStatus()
	sess := native.LoadSession(path, bridge.Split(tags), s)
	if !bridge.EnsureRuntimeOK(env, s) {
		return 0, nil, false
	}
	if !bridge.EnsureValueIsNotNull(env, sess) {
		return 0, nil, false
	}

	handle := b.store.Put(sess)
	modelsLoaded.Inc()
	modelsActive.Set(float64(b.store.Len()))
	log.Info().Str("path", path).Str("tags", tags).Int64("handle", handle).Msg("Loaded saved model")
	return handle, sess, true
}

func (b *Binding) loadSavedModel(env *script.Env, info *script.CallbackInfo) script.Value {
	_, span := tracer.Start(context.Background(), "loadSavedModel")
	defer span.End()

	handle, sess, ok := b.load(env, info)
	if !ok {
		return script.Value{}
	}
	span.SetAttributes(attribute.Int64("handle", handle))

	obj, st := env.CreateObject()
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	hv, st := env.CreateInt64(handle)
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	if !setProp(env, obj, "handle", hv) {
		return script.Value{}
	}
	sigs, ok := signaturesValue(env, sess)
	if !ok {
		return script.Value{}
	}
	if !setProp(env, obj, "signatures", sigs) {
		return script.Value{}
	}
	return obj
}

// savedModelCtor is the constructor-style form of loadSavedModel. It
// must be invoked with construction semantics; a plain call raises
// before anything is loaded or registered.
func (b *Binding) savedModelCtor(env *script.Env, info *script.CallbackInfo) script.Value {
	if !bridge.EnsureConstructorCall(env, info) {
		return script.Value{}
	}

	handle, sess, ok := b.load(env, info)
	if !ok {
		return script.Value{}
	}

	hv, st := env.CreateInt64(handle)
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	if !setProp(env, info.This, "handle", hv) {
		return script.Value{}
	}
	sigs, ok := signaturesValue(env, sess)
	if !ok {
		return script.Value{}
	}
	if !setProp(env, info.This, "signatures", sigs) {
		return script.Value{}
	}
	return script.Value{}
}

func (b *Binding) sessionArg(env *script.Env, v script.Value) (*native.Session, int64, bool) {
	if !bridge.EnsureValueIsNumber(env, v) {
		return nil, 0, false
	}
	id, st := env.Int64Value(v)
	if !bridge.EnsureCallOK(env, st) {
		return nil, 0, false
	}
	sess, found := b.store.Get(id)
	if !found {
		bridge.ThrowError(env, "No saved model with handle: %d", id)
		return nil, 0, false
	}
	return sess, id, true
}

func (b *Binding) deleteSavedModel(env *script.Env, info *script.CallbackInfo) script.Value {
	if !bridge.EnsureValueIsNumber(env, info.Arg(0)) {
		return script.Value{}
	}
	id, st := env.Int64Value(info.Arg(0))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}

	sess, found := b.store.Delete(id)
	if !found {
		bridge.ThrowError(env, "Delete called on an unknown handle: %d", id)
		return script.Value{}
	}
	if err := sess.Close(); err != nil {
		bridge.ThrowError(env, "Failed to close session %d: %v", id, err)
		return script.Value{}
	}
	modelsActive.Set(float64(b.store.Len()))
	log.Info().Int64("handle", id).Msg("Deleted saved model")
	return script.Value{}
}

func (b *Binding) loadedModelCount(env *script.Env, info *script.CallbackInfo) script.Value {
	v, st := env.CreateInt32(int32(b.store.Len()))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	return v
}

func (b *Binding) runtimeVersion(env *script.Env, info *script.CallbackInfo) script.Value {
	v, st := env.CreateString(native.Version())
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	return v
}

// --- tensors ---

func wrapTensor(env *script.Env, t *native.Tensor) script.Value {
	ext, st := env.CreateExternal(t, func(data any) {
		native.DeleteTensor(data.(*native.Tensor))
	})
	if !bridge.EnsureCallOK(env, st) {
		native.DeleteTensor(t)
		return script.Value{}
	}
	return ext
}

func unwrapTensor(env *script.Env, v script.Value) (*native.Tensor, bool) {
	data, st := env.ExternalValue(v)
	if !bridge.EnsureCallOK(env, st) {
		return nil, false
	}
	tensor, ok := data.(*native.Tensor)
	if !ok {
		bridge.ThrowError(env, "External value does not hold a tensor")
		return nil, false
	}
	if !bridge.EnsureValueIsNotNull(env, tensor) {
		return nil, false
	}
	return tensor, true
}

// createTensor builds a native tensor from (shapeArray, dtypeNumber,
// typedArray). The declared dtype must agree with the typed array's
// element type; Int32 data takes the dedicated integer constructors,
// every other fixed-width dtype goes through the byte-copy path.
func (b *Binding) createTensor(env *script.Env, info *script.CallbackInfo) script.Value {
	if !bridge.EnsureValueIsArray(env, info.Arg(0)) {
		return script.Value{}
	}
	shape, ok := bridge.ExtractArrayShape(env, info.Arg(0))
	if !ok {
		return script.Value{}
	}
	rankVal, st := env.CreateUint32(uint32(len(shape)))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	if !bridge.EnsureValueIsLessThan(env, rankVal, bridge.MaxTensorShape) {
		return script.Value{}
	}

	if !bridge.EnsureValueIsNumber(env, info.Arg(1)) {
		return script.Value{}
	}
	dtNum, st := env.Int32Value(info.Arg(1))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	dtype := native.DataType(dtNum)

	if !bridge.EnsureValueIsTypedArray(env, info.Arg(2)) {
		return script.Value{}
	}
	ta, st := env.TypedArrayData(info.Arg(2))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}

	elemDT, known := dataTypeForElem(ta.Elem)
	if !known {
		bridge.ReportUnknownTypedArrayType(env, ta.Elem)
		return script.Value{}
	}
	if elemDT != dtype {
		bridge.ThrowError(env, "Specified dtype %d does not match the typed array's dtype %d", int(dtype), int(elemDT))
		return script.Value{}
	}

	var tensor *native.Tensor
	var err error
	switch {
	case dtype == native.Int32 && len(shape) == 0:
		values := arrow.Int32Traits.CastFromBytes(ta.Bytes)
		if len(values) != 1 {
			bridge.ThrowError(env, "Scalar tensor wants 1 value, got %d", len(values))
			return script.Value{}
		}
		tensor, err = bridge.Int32Scalar(values[0])
	case dtype == native.Int32:
		tensor, err = bridge.Int32Tensor(shape, arrow.Int32Traits.CastFromBytes(ta.Bytes))
	default:
		tensor, err = bridge.TensorFromBytes(dtype, shape, ta.Bytes)
	}
	if err != nil {
		bridge.ThrowError(env, "Failed to create tensor: %v", err)
		return script.Value{}
	}
	if !bridge.EnsureValueIsNotNull(env, tensor) {
		return script.Value{}
	}
	return wrapTensor(env, tensor)
}

func (b *Binding) deleteTensor(env *script.Env, info *script.CallbackInfo) script.Value {
	if _, ok := unwrapTensor(env, info.Arg(0)); !ok {
		return script.Value{}
	}
	if !bridge.EnsureCallOK(env, env.ReleaseExternal(info.Arg(0))) {
		return script.Value{}
	}
	return script.Value{}
}

func (b *Binding) tensorData(env *script.Env, info *script.CallbackInfo) script.Value {
	tensor, ok := unwrapTensor(env, info.Arg(0))
	if !ok {
		return script.Value{}
	}
	elem, known := elemForDataType(tensor.Type())
	if !known {
		bridge.ReportUnknownDataType(env, tensor.Type())
		return script.Value{}
	}
	ta, st := env.CreateTypedArrayFromBytes(elem, tensor.Data())
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}
	return ta
}

func (b *Binding) tensorShape(env *script.Env, info *script.CallbackInfo) script.Value {
	tensor, ok := unwrapTensor(env, info.Arg(0))
	if !ok {
		return script.Value{}
	}
	dims := make([]int64, tensor.NumDims())
	for i := range dims {
		dims[i] = tensor.Dim(i)
	}
	arr, ok := dimsValue(env, dims)
	if !ok {
		return script.Value{}
	}
	return arr
}

// --- runs ---

func (b *Binding) runSavedModel(env *script.Env, info *script.CallbackInfo) script.Value {
	_, span := tracer.Start(context.Background(), "runSavedModel")
	defer span.End()

	sess, id, ok := b.sessionArg(env, info.Arg(0))
	if !ok {
		return script.Value{}
	}
	span.SetAttributes(attribute.Int64("handle", id))

	sigName, ok := bridge.StringParam(env, info.Arg(1))
	if !ok {
		return script.Value{}
	}
	sig, found := sess.Signatures[sigName]
	if !found {
		bridge.ThrowError(env, "Signature %q is not in the loaded model", sigName)
		return script.Value{}
	}

	if !bridge.EnsureValueIsObject(env, info.Arg(2)) {
		return script.Value{}
	}
	keys, st := env.PropertyNames(info.Arg(2))
	if !bridge.EnsureCallOK(env, st) {
		return script.Value{}
	}

	feeds := make(map[string]*native.Tensor, len(keys))
	for _, key := range keys {
		input, found := sig.Inputs[key]
		if !found {
			bridge.ThrowError(env, "Signature %q has no input named %q", sigName, key)
			return script.Value{}
		}
		v, st := env.Property(info.Arg(2), key)
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}
		}
		tensor, ok := unwrapTensor(env, v)
		if !ok {
			return script.Value{}
		}
		feeds[input.Name] = tensor
	}

	outKeys := make([]string, 0, len(sig.Outputs))
	for k := range sig.Outputs {
		outKeys = append(outKeys, k)
	}
	sort.Strings(outKeys)
	fetches := make([]string, len(outKeys))
	for i, k := range outKeys {
		fetches[i] = sig.Outputs[k].Name
	}

	s := native.NewStatus()
	results := sess.Run(feeds, fetches, s)
	if !bridge.EnsureRuntimeOK(env, s) {
		return script.Value{}
	}
	modelRuns.Inc()

	out, st := env.CreateObject()
	if !bridge.EnsureCallOK(env, st) {
		for _, t := range results {
			native.DeleteTensor(t)
		}
		return script.Value{}
	}
	for i, k := range outKeys {
		ext := wrapTensor(env, results[i])
		if env.IsExceptionPending() {
			for _, t := range results[i+1:] {
				native.DeleteTensor(t)
			}
			return script.Value{}
		}
		if !setProp(env, out, k, ext) {
			for _, t := range results[i:] {
				native.DeleteTensor(t)
			}
			return script.Value{}
		}
	}
	return out
}

// --- graph inspection ---

func (b *Binding) graphOpAttr(env *script.Env, info *script.CallbackInfo) script.Value {
	sess, _, ok := b.sessionArg(env, info.Arg(0))
	if !ok {
		return script.Value{}
	}
	opName, ok := bridge.StringParam(env, info.Arg(1))
	if !ok {
		return script.Value{}
	}
	attrName, ok := bridge.StringParam(env, info.Arg(2))
	if !ok {
		return script.Value{}
	}

	op := sess.Graph.Operation(opName)
	if op == nil {
		bridge.ThrowError(env, "No operation named %q in the graph", opName)
		return script.Value{}
	}
	attr, found := op.Attr(attrName)
	if !found {
		bridge.ThrowError(env, "Operation %q has no attr %q", opName, attrName)
		return script.Value{}
	}

	switch a := attr.(type) {
	case native.DataType:
		v, st := env.CreateInt32(int32(a))
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}
		}
		return v
	case []int64:
		arr, ok := dimsValue(env, a)
		if !ok {
			return script.Value{}
		}
		return arr
	case int64:
		v, st := env.CreateInt64(a)
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}
		}
		return v
	case string:
		v, st := env.CreateString(a)
		if !bridge.EnsureCallOK(env, st) {
			return script.Value{}
		}
		return v
	default:
		bridge.ReportUnknownAttrType(env, attr)
		return script.Value{}
	}
}
