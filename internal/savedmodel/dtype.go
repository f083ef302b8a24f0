package savedmodel

import (
	"github.com/23skdu/longbow-nock/internal/native"
	"github.com/23skdu/longbow-nock/internal/script"
)

// dataTypeForElem maps a typed array element type to the runtime data
// type with the same width and signedness.
func dataTypeForElem(elem script.ElemType) (native.DataType, bool) {
	switch elem {
	case script.ElemInt8:
		return native.Int8, true
	case script.ElemUint8, script.ElemUint8Clamped:
		return native.Uint8, true
	case script.ElemInt16:
		return native.Int16, true
	case script.ElemUint16:
		return native.Uint16, true
	case script.ElemInt32:
		return native.Int32, true
	case script.ElemUint32:
		return native.Uint32, true
	case script.ElemFloat32:
		return native.Float, true
	case script.ElemFloat64:
		return native.Double, true
	case script.ElemBigInt64:
		return native.Int64, true
	case script.ElemBigUint64:
		return native.Uint64, true
	}
	return 0, false
}

func elemForDataType(dt native.DataType) (script.ElemType, bool) {
	switch dt {
	case native.Int8:
		return script.ElemInt8, true
	case native.Uint8:
		return script.ElemUint8, true
	case native.Int16:
		return script.ElemInt16, true
	case native.Uint16:
		return script.ElemUint16, true
	case native.Int32:
		return script.ElemInt32, true
	case native.Uint32:
		return script.ElemUint32, true
	case native.Float:
		return script.ElemFloat32, true
	case native.Double:
		return script.ElemFloat64, true
	case native.Int64:
		return script.ElemBigInt64, true
	case native.Uint64:
		return script.ElemBigUint64, true
	}
	return 0, false
}
