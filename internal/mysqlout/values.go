package mysqlout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

// DataType is the declared type of a result column, reduced to the
// protocol-agnostic vocabulary guests see.
type DataType int

const (
	TypeOther DataType = iota
	TypeBoolean
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBinary
)

func (t DataType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	default:
		return "other"
	}
}

// Column describes one column of a result set.
type Column struct {
	Name     string
	DataType DataType
}

// ValueKind tags a Value variant.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBoolean
	ValueInt
	ValueUint
	ValueFloat
	ValueString
	ValueBinary
)

// Value is one typed cell of a result row. Kind selects the populated field;
// Type carries the column's declared width so guests can narrow integers.
type Value struct {
	Kind  ValueKind
	Type  DataType
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Bytes []byte
}

// NullValue returns the SQL NULL cell.
func NullValue() Value { return Value{Kind: ValueNull} }

// BoolValue returns a boolean cell.
func BoolValue(v bool) Value { return Value{Kind: ValueBoolean, Type: TypeBoolean, Bool: v} }

// IntValue returns a signed integer cell of the given declared width.
func IntValue(t DataType, v int64) Value { return Value{Kind: ValueInt, Type: t, Int: v} }

// UintValue returns an unsigned integer cell of the given declared width.
func UintValue(t DataType, v uint64) Value { return Value{Kind: ValueUint, Type: t, Uint: v} }

// FloatValue returns a floating-point cell of the given declared width.
func FloatValue(t DataType, v float64) Value { return Value{Kind: ValueFloat, Type: t, Float: v} }

// StringValue returns a text cell.
func StringValue(v string) Value { return Value{Kind: ValueString, Type: TypeString, Str: v} }

// BinaryValue returns a byte-string cell.
func BinaryValue(v []byte) Value { return Value{Kind: ValueBinary, Type: TypeBinary, Bytes: v} }

// RowSet is the result of a query: column metadata plus typed rows.
type RowSet struct {
	Columns []Column
	Rows    [][]Value
}

// Parameter is a typed statement argument.
type Parameter interface {
	isParameter()
	arg() interface{}
}

// NullParameter is the SQL NULL argument.
type NullParameter struct{}

// BoolParameter is a boolean argument.
type BoolParameter bool

// Int64Parameter is a signed integer argument.
type Int64Parameter int64

// Uint64Parameter is an unsigned integer argument.
type Uint64Parameter uint64

// Float64Parameter is a floating-point argument.
type Float64Parameter float64

// StringParameter is a text argument.
type StringParameter string

// BinaryParameter is a byte-string argument.
type BinaryParameter []byte

func (NullParameter) isParameter()    {}
func (BoolParameter) isParameter()    {}
func (Int64Parameter) isParameter()   {}
func (Uint64Parameter) isParameter()  {}
func (Float64Parameter) isParameter() {}
func (StringParameter) isParameter()  {}
func (BinaryParameter) isParameter()  {}

func (NullParameter) arg() interface{}      { return nil }
func (p BoolParameter) arg() interface{}    { return bool(p) }
func (p Int64Parameter) arg() interface{}   { return int64(p) }
func (p Uint64Parameter) arg() interface{}  { return uint64(p) }
func (p Float64Parameter) arg() interface{} { return float64(p) }
func (p StringParameter) arg() interface{}  { return string(p) }
func (p BinaryParameter) arg() interface{}  { return []byte(p) }

func sqlArgs(params []Parameter) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		args[i] = p.arg()
	}
	return args
}

// columnDataType reduces the driver's declared type name to the guest-facing
// vocabulary. The driver reports unsigned integers with an "UNSIGNED" prefix
// and distinguishes text from binary blob types by character set.
func columnDataType(declared string) DataType {
	name := strings.ToUpper(declared)
	unsigned := strings.HasPrefix(name, "UNSIGNED ")
	name = strings.TrimPrefix(name, "UNSIGNED ")

	switch name {
	case "TINYINT":
		if unsigned {
			return TypeUint8
		}
		return TypeInt8
	case "SMALLINT", "YEAR":
		if unsigned {
			return TypeUint16
		}
		return TypeInt16
	case "MEDIUMINT", "INT":
		if unsigned {
			return TypeUint32
		}
		return TypeInt32
	case "BIGINT":
		if unsigned {
			return TypeUint64
		}
		return TypeInt64
	case "FLOAT":
		return TypeFloat32
	case "DOUBLE":
		return TypeFloat64
	case "CHAR", "VARCHAR", "TINYTEXT", "TEXT", "MEDIUMTEXT", "LONGTEXT":
		return TypeString
	case "BINARY", "VARBINARY", "TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB":
		return TypeBinary
	default:
		return TypeOther
	}
}

// convertValue converts one scanned cell per the column's declared type.
// Non-prepared statements deliver every cell as bytes; prepared statements
// deliver native integers and floats, so both arrival shapes are accepted.
func convertValue(raw interface{}, column Column) (Value, error) {
	if raw == nil {
		return NullValue(), nil
	}
	switch column.DataType {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		v, err := toInt64(raw)
		if err != nil {
			return Value{}, conversionError(raw, column, err)
		}
		return IntValue(column.DataType, v), nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		v, err := toUint64(raw)
		if err != nil {
			return Value{}, conversionError(raw, column, err)
		}
		return UintValue(column.DataType, v), nil
	case TypeFloat32, TypeFloat64:
		v, err := toFloat64(raw)
		if err != nil {
			return Value{}, conversionError(raw, column, err)
		}
		return FloatValue(column.DataType, v), nil
	case TypeBoolean:
		v, err := toInt64(raw)
		if err != nil {
			return Value{}, conversionError(raw, column, err)
		}
		return BoolValue(v != 0), nil
	case TypeString:
		switch v := raw.(type) {
		case []byte:
			return StringValue(string(v)), nil
		case string:
			return StringValue(v), nil
		}
		return Value{}, conversionError(raw, column, nil)
	case TypeBinary:
		switch v := raw.(type) {
		case []byte:
			out := make([]byte, len(v))
			copy(out, v)
			return BinaryValue(out), nil
		case string:
			return BinaryValue([]byte(v)), nil
		}
		return Value{}, conversionError(raw, column, nil)
	default:
		return Value{}, conversionError(raw, column, nil)
	}
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected driver type %T", raw)
	}
}

func toUint64(raw interface{}) (uint64, error) {
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d in unsigned column", v)
		}
		return uint64(v), nil
	case []byte:
		return strconv.ParseUint(string(v), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected driver type %T", raw)
	}
}

func toFloat64(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected driver type %T", raw)
	}
}

func conversionError(raw interface{}, column Column, cause error) error {
	msg := fmt.Sprintf("cannot convert value of type %T in column %q (declared %s)",
		raw, column.Name, column.DataType)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return outbound.Errf(outbound.CodeTypeError, "%s", msg)
}
