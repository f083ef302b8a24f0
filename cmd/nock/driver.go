package main

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/savedmodel"
	"github.com/23skdu/longbow-nock/internal/script"
)

// driver calls the installed saved-model API the way an embedding
// script would, surfacing raised exceptions as Go errors.
type driver struct {
	env *script.Env
}

func newDriver(store savedmodel.SessionStore) (*driver, error) {
	env := script.NewEnv()
	if err := savedmodel.NewBinding(store).Install(env); err != nil {
		return nil, err
	}
	return &driver{env: env}, nil
}

type loadedModel struct {
	value  script.Value
	handle script.Value
}

type tensorResult struct {
	Key    string
	Dims   []int64
	Values []int32
}

func (d *driver) call(name string, args ...script.Value) (script.Value, error) {
	fn, st := d.env.Property(d.env.Global(), name)
	if st != script.OK {
		return script.Value{}, fmt.Errorf("looking up %s: %s", name, st)
	}
	res, st := d.env.CallFunction(fn, d.env.Global(), args...)
	if st == script.PendingException {
		return script.Value{}, fmt.Errorf("%s: %s", name, d.takeException())
	}
	if st != script.OK {
		return script.Value{}, fmt.Errorf("calling %s: %s", name, st)
	}
	return res, nil
}

func (d *driver) takeException() string {
	exc, ok := d.env.PendingException()
	if !ok {
		return "unknown failure"
	}
	msg, st := d.env.Property(exc, "message")
	if st != script.OK {
		return "unknown failure"
	}
	s, err := d.stringOf(msg)
	if err != nil {
		return "unknown failure"
	}
	return s
}

func (d *driver) stringOf(v script.Value) (string, error) {
	n, st := d.env.StringLen(v)
	if st != script.OK {
		return "", fmt.Errorf("reading string: %s", st)
	}
	buf := make([]byte, n+1)
	if _, st := d.env.CopyString(v, buf); st != script.OK {
		return "", fmt.Errorf("copying string: %s", st)
	}
	return string(buf[:n]), nil
}

// newString builds a string value. The env is never pending between
// calls, so construction cannot fail here.
func (d *driver) newString(s string) script.Value {
	v, _ := d.env.CreateString(s)
	return v
}

func (d *driver) loadModel(path, tags string) (*loadedModel, error) {
	model, err := d.call("loadSavedModel", d.newString(path), d.newString(tags))
	if err != nil {
		return nil, err
	}
	handle, st := d.env.Property(model, "handle")
	if st != script.OK {
		return nil, fmt.Errorf("reading model handle: %s", st)
	}
	return &loadedModel{value: model, handle: handle}, nil
}

func (d *driver) deleteModel(model *loadedModel) error {
	_, err := d.call("deleteSavedModel", model.handle)
	return err
}

// soleInputKey resolves the feed key when the caller did not name one.
// It refuses to guess between multiple inputs.
func (d *driver) soleInputKey(model *loadedModel, signature string) (string, error) {
	sigs, st := d.env.Property(model.value, "signatures")
	if st != script.OK {
		return "", fmt.Errorf("reading signatures: %s", st)
	}
	sig, st := d.env.Property(sigs, signature)
	if st != script.OK {
		return "", fmt.Errorf("reading signature %q: %s", signature, st)
	}
	kind, st := d.env.TypeOf(sig)
	if st != script.OK {
		return "", fmt.Errorf("inspecting signature %q: %s", signature, st)
	}
	if kind != script.Object {
		return "", fmt.Errorf("signature %q is not in the loaded model", signature)
	}
	inputs, st := d.env.Property(sig, "inputs")
	if st != script.OK {
		return "", fmt.Errorf("reading inputs of %q: %s", signature, st)
	}
	keys, st := d.env.PropertyNames(inputs)
	if st != script.OK {
		return "", fmt.Errorf("listing inputs of %q: %s", signature, st)
	}
	if len(keys) != 1 {
		return "", fmt.Errorf("signature %q has %d inputs; pass -input to pick one", signature, len(keys))
	}
	return keys[0], nil
}

func (d *driver) buildTensor(dims []int64, values []int32) (script.Value, error) {
	shape, st := d.env.CreateArray(len(dims))
	if st != script.OK {
		return script.Value{}, fmt.Errorf("building shape array: %s", st)
	}
	for i, dim := range dims {
		dv, _ := d.env.CreateInt64(dim)
		if st := d.env.SetElement(shape, uint32(i), dv); st != script.OK {
			return script.Value{}, fmt.Errorf("building shape array: %s", st)
		}
	}
	dt, _ := d.env.CreateInt32(int32(native.Int32))
	data, st := d.env.CreateTypedArrayFromBytes(script.ElemInt32, arrow.Int32Traits.CastToBytes(values))
	if st != script.OK {
		return script.Value{}, fmt.Errorf("building values: %s", st)
	}
	return d.call("createTensor", shape, dt, data)
}

func (d *driver) runOnce(model *loadedModel, signature, inputKey string, tensor script.Value) ([]tensorResult, error) {
	feeds, st := d.env.CreateObject()
	if st != script.OK {
		return nil, fmt.Errorf("staging feeds: %s", st)
	}
	if st := d.env.SetProperty(feeds, inputKey, tensor); st != script.OK {
		return nil, fmt.Errorf("staging feeds: %s", st)
	}

	out, err := d.call("runSavedModel", model.handle, d.newString(signature), feeds)
	if err != nil {
		return nil, err
	}
	keys, st := d.env.PropertyNames(out)
	if st != script.OK {
		return nil, fmt.Errorf("listing outputs: %s", st)
	}

	results := make([]tensorResult, 0, len(keys))
	for _, key := range keys {
		ext, st := d.env.Property(out, key)
		if st != script.OK {
			return nil, fmt.Errorf("reading output %q: %s", key, st)
		}
		res, err := d.readTensor(key, ext)
		if err != nil {
			return nil, err
		}
		if _, err := d.call("deleteTensor", ext); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *driver) readTensor(key string, ext script.Value) (tensorResult, error) {
	shape, err := d.call("tensorShape", ext)
	if err != nil {
		return tensorResult{}, err
	}
	n, st := d.env.ArrayLength(shape)
	if st != script.OK {
		return tensorResult{}, fmt.Errorf("reading shape of %q: %s", key, st)
	}
	dims := make([]int64, n)
	for i := range dims {
		el, st := d.env.Element(shape, uint32(i))
		if st != script.OK {
			return tensorResult{}, fmt.Errorf("reading dim %d of %q: %s", i, key, st)
		}
		dim, st := d.env.Int64Value(el)
		if st != script.OK {
			return tensorResult{}, fmt.Errorf("reading dim %d of %q: %s", i, key, st)
		}
		dims[i] = dim
	}

	data, err := d.call("tensorData", ext)
	if err != nil {
		return tensorResult{}, err
	}
	info, st := d.env.TypedArrayData(data)
	if st != script.OK {
		return tensorResult{}, fmt.Errorf("reading values of %q: %s", key, st)
	}
	if info.Elem != script.ElemInt32 {
		return tensorResult{}, fmt.Errorf("output %q is %s data, wanted int32", key, info.Elem)
	}
	values := make([]int32, info.Length)
	copy(values, arrow.Int32Traits.CastFromBytes(info.Bytes))

	return tensorResult{Key: key, Dims: dims, Values: values}, nil
}

func (d *driver) version() (string, error) {
	v, err := d.call("runtimeVersion")
	if err != nil {
		return "", err
	}
	return d.stringOf(v)
}

func (d *driver) modelCount() (int, error) {
	v, err := d.call("loadedModelCount")
	if err != nil {
		return 0, err
	}
	n, st := d.env.Int32Value(v)
	if st != script.OK {
		return 0, fmt.Errorf("reading count: %s", st)
	}
	return int(n), nil
}
