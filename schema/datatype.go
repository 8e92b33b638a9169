package schema

import (
	"fmt"
	"strings"
)

// DataType is the scalar element type of a variable or attribute.
type DataType int

const (
	Invalid DataType = iota
	Byte             // unsigned 8 bit
	Int8
	Char
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	String
)

var dataTypeNames = map[DataType]string{
	Byte:    "Byte",
	Int8:    "Int8",
	Char:    "Char",
	Int16:   "Int16",
	UInt16:  "UInt16",
	Int32:   "Int32",
	UInt32:  "UInt32",
	Int64:   "Int64",
	UInt64:  "UInt64",
	Float32: "Float32",
	Float64: "Float64",
	String:  "String",
}

func (t DataType) String() string {
	if n, ok := dataTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// Size is the width of one element in bytes. String has no fixed width and
// reports 0.
func (t DataType) Size() int {
	switch t {
	case Byte, Int8, Char:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	}
	return 0
}

func (t DataType) Valid() bool {
	return t > Invalid && t <= String
}

func (t DataType) IsFloat() bool {
	return t == Float32 || t == Float64
}

func (t DataType) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// ParseDataType accepts both the names above and the CDL spelling used by
// netCDF ("float", "short", "ubyte", ...).
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "byte", "uint8", "ubyte", "uchar":
		return Byte, nil
	case "int8", "schar":
		return Int8, nil
	case "char":
		return Char, nil
	case "int16", "short":
		return Int16, nil
	case "uint16", "ushort":
		return UInt16, nil
	case "int32", "int":
		return Int32, nil
	case "uint32", "uint":
		return UInt32, nil
	case "int64":
		return Int64, nil
	case "uint64":
		return UInt64, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	case "string":
		return String, nil
	}
	return Invalid, fmt.Errorf("unknown data type %q", s)
}
