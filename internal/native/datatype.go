package native

// DataType holds the type for a scalar value. The values here are
// identical to the wrapped runtime's wire numbering, so they can be
// passed through the boundary unconverted.
type DataType int

const (
	Float      DataType = 1
	Double     DataType = 2
	Int32      DataType = 3
	Uint8      DataType = 4
	Int16      DataType = 5
	Int8       DataType = 6
	String     DataType = 7
	Complex64  DataType = 8
	Int64      DataType = 9
	Bool       DataType = 10
	Qint8      DataType = 11
	Quint8     DataType = 12
	Qint32     DataType = 13
	Bfloat16   DataType = 14
	Qint16     DataType = 15
	Quint16    DataType = 16
	Uint16     DataType = 17
	Complex128 DataType = 18
	Half       DataType = 19
	Resource   DataType = 20
	Variant    DataType = 21
	Uint32     DataType = 22
	Uint64     DataType = 23
)

// Size returns the byte width of one element, or 0 for variable-width
// and opaque types.
func (dt DataType) Size() int {
	switch dt {
	case Bool, Int8, Uint8, Qint8, Quint8:
		return 1
	case Int16, Uint16, Qint16, Quint16, Half, Bfloat16:
		return 2
	case Float, Int32, Uint32, Qint32:
		return 4
	case Double, Int64, Uint64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

func (dt DataType) String() string {
	switch dt {
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Int32:
		return "INT32"
	case Uint8:
		return "UINT8"
	case Int16:
		return "INT16"
	case Int8:
		return "INT8"
	case String:
		return "STRING"
	case Complex64:
		return "COMPLEX64"
	case Int64:
		return "INT64"
	case Bool:
		return "BOOL"
	case Qint8:
		return "QINT8"
	case Quint8:
		return "QUINT8"
	case Qint32:
		return "QINT32"
	case Bfloat16:
		return "BFLOAT16"
	case Qint16:
		return "QINT16"
	case Quint16:
		return "QUINT16"
	case Uint16:
		return "UINT16"
	case Complex128:
		return "COMPLEX128"
	case Half:
		return "HALF"
	case Resource:
		return "RESOURCE"
	case Variant:
		return "VARIANT"
	case Uint32:
		return "UINT32"
	case Uint64:
		return "UINT64"
	}
	return "UNKNOWN"
}
