package script

// Kind identifies the runtime type of a Value, in the same spirit as a
// dynamic language's typeof.
type Kind uint8

const (
	Undefined Kind = iota
	Null
	Boolean
	Number
	String
	Object
	Array
	TypedArray
	External
	Function
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	case TypedArray:
		return "typedarray"
	case External:
		return "external"
	case Function:
		return "function"
	}
	return "unknown"
}

// ElemType is the element type of a typed array.
type ElemType uint8

const (
	ElemInt8 ElemType = iota
	ElemUint8
	ElemUint8Clamped
	ElemInt16
	ElemUint16
	ElemInt32
	ElemUint32
	ElemFloat32
	ElemFloat64
	ElemBigInt64
	ElemBigUint64
)

// Size returns the element width in bytes.
func (t ElemType) Size() int {
	switch t {
	case ElemInt8, ElemUint8, ElemUint8Clamped:
		return 1
	case ElemInt16, ElemUint16:
		return 2
	case ElemInt32, ElemUint32, ElemFloat32:
		return 4
	case ElemFloat64, ElemBigInt64, ElemBigUint64:
		return 8
	}
	return 0
}

func (t ElemType) String() string {
	switch t {
	case ElemInt8:
		return "Int8Array"
	case ElemUint8:
		return "Uint8Array"
	case ElemUint8Clamped:
		return "Uint8ClampedArray"
	case ElemInt16:
		return "Int16Array"
	case ElemUint16:
		return "Uint16Array"
	case ElemInt32:
		return "Int32Array"
	case ElemUint32:
		return "Uint32Array"
	case ElemFloat32:
		return "Float32Array"
	case ElemFloat64:
		return "Float64Array"
	case ElemBigInt64:
		return "BigInt64Array"
	case ElemBigUint64:
		return "BigUint64Array"
	}
	return "unknown"
}

// Value is a handle to a value living inside an Env. The zero Value is
// undefined. Values are only meaningful with the Env that created them;
// all inspection goes through Env methods so that call-status reporting
// and pending-exception short-circuiting stay uniform.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  *arrayData
	obj  *objectData
	ta   *typedArrayData
	ext  *externalData
	fn   *functionData
}

type arrayData struct {
	elems []Value
}

type objectData struct {
	props map[string]Value
}

type typedArrayData struct {
	elem ElemType
	data []byte
}

type externalData struct {
	data     any
	finalize func(any)
	released bool
}

type functionData struct {
	name   string
	impl   Func
	native bool
}

// TypedArrayInfo describes a typed array's element type and backing storage.
// Bytes aliases the array's buffer; callers that hold onto it copy first.
type TypedArrayInfo struct {
	Elem   ElemType
	Length int
	Bytes  []byte
}
