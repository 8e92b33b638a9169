package schema

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gigapi/gigapi-dars/core"
)

// Range is the half-open index interval [Lo, Hi).
type Range struct {
	Lo int
	Hi int
}

func Full(size int) Range {
	return Range{Lo: 0, Hi: size}
}

func (r Range) Len() int {
	if r.Hi < r.Lo {
		return 0
	}
	return r.Hi - r.Lo
}

func (r Range) Empty() bool {
	return r.Hi <= r.Lo
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Lo, r.Hi)
}

// FullRanges covers every index of shape.
func FullRanges(shape []int) []Range {
	out := make([]Range, len(shape))
	for i, s := range shape {
		out[i] = Full(s)
	}
	return out
}

// CheckRanges validates one range per axis against shape. Count mismatch is
// a ParseError, bounds outside [0, size] or Lo > Hi are OutOfRange.
func CheckRanges(variable string, shape []int, ranges []Range) error {
	if len(ranges) != len(shape) {
		return core.NewError(core.KindParse, "variable %q has %d dimensions, got %d ranges", variable, len(shape), len(ranges))
	}
	for i, r := range ranges {
		if r.Lo < 0 || r.Hi > shape[i] || r.Lo > r.Hi {
			return core.NewError(core.KindOutOfRange, "variable %q: range %s outside dimension %d of size %d", variable, r, i, shape[i])
		}
	}
	return nil
}

// Count is the number of elements selected by ranges.
func Count(ranges []Range) int {
	n := 1
	for _, r := range ranges {
		n *= r.Len()
	}
	return n
}

// Array is a dense row-major block of values. Fixed width types are stored
// big-endian at native width in Data; String arrays use Strings.
type Array struct {
	Type    DataType
	Shape   []int
	Data    []byte
	Strings []string
}

// NewArray allocates a zeroed array.
func NewArray(t DataType, shape []int) *Array {
	a := &Array{Type: t, Shape: append([]int(nil), shape...)}
	n := a.Len()
	if t == String {
		a.Strings = make([]string, n)
	} else {
		a.Data = make([]byte, n*t.Size())
	}
	return a
}

// Len is the element count.
func (a *Array) Len() int {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

// Validate checks that the backing storage matches the shape.
func (a *Array) Validate() error {
	n := a.Len()
	if a.Type == String {
		if len(a.Strings) != n {
			return fmt.Errorf("string array holds %d values, shape %v needs %d", len(a.Strings), a.Shape, n)
		}
		return nil
	}
	if want := n * a.Type.Size(); len(a.Data) != want {
		return fmt.Errorf("%s array holds %d bytes, shape %v needs %d", a.Type, len(a.Data), a.Shape, want)
	}
	return nil
}

// Slice copies the hyperslab selected by ranges into a new array.
func (a *Array) Slice(ranges []Range) (*Array, error) {
	if err := CheckRanges("array", a.Shape, ranges); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	shape := make([]int, len(ranges))
	for i, r := range ranges {
		shape[i] = r.Len()
	}
	out := NewArray(a.Type, shape)
	if out.Len() == 0 {
		return out, nil
	}
	if len(a.Shape) == 0 {
		copy(out.Data, a.Data)
		copy(out.Strings, a.Strings)
		return out, nil
	}
	strides := make([]int, len(a.Shape))
	stride := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= a.Shape[i]
	}
	pos := 0
	var walk func(axis, base int)
	walk = func(axis, base int) {
		r := ranges[axis]
		if axis == len(ranges)-1 {
			from, n := base+r.Lo, r.Len()
			a.copyElems(out, pos, from, n)
			pos += n
			return
		}
		for i := r.Lo; i < r.Hi; i++ {
			walk(axis+1, base+i*strides[axis])
		}
	}
	walk(0, 0)
	return out, nil
}

func (a *Array) copyElems(dst *Array, at, from, n int) {
	if a.Type == String {
		copy(dst.Strings[at:at+n], a.Strings[from:from+n])
		return
	}
	sz := a.Type.Size()
	copy(dst.Data[at*sz:(at+n)*sz], a.Data[from*sz:(from+n)*sz])
}

// Concat joins parts along axis. All parts must share type, rank and every
// extent except axis. Axis 0 is a plain append; other axes interleave rows.
func Concat(axis int, parts ...*Array) (*Array, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat: no parts")
	}
	first := parts[0]
	if axis < 0 || axis >= len(first.Shape) {
		return nil, fmt.Errorf("concat: axis %d out of rank %d", axis, len(first.Shape))
	}
	shape := append([]int(nil), first.Shape...)
	shape[axis] = 0
	for i, p := range parts {
		if p.Type != first.Type || len(p.Shape) != len(first.Shape) {
			return nil, fmt.Errorf("concat: part %d is %s%v, expected %s rank %d", i, p.Type, p.Shape, first.Type, len(first.Shape))
		}
		for k := range p.Shape {
			if k != axis && p.Shape[k] != first.Shape[k] {
				return nil, fmt.Errorf("concat: part %d has shape %v, expected %v off axis %d", i, p.Shape, first.Shape, axis)
			}
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("concat: part %d: %w", i, err)
		}
		shape[axis] += p.Shape[axis]
	}
	out := NewArray(first.Type, shape)
	// outer is the number of rows above axis, inner the element count of one
	// slab below it.
	outer, inner := 1, 1
	for k := 0; k < axis; k++ {
		outer *= shape[k]
	}
	for k := axis + 1; k < len(shape); k++ {
		inner *= shape[k]
	}
	pos := 0
	for row := 0; row < outer; row++ {
		for _, p := range parts {
			n := p.Shape[axis] * inner
			p.copyElems(out, pos, row*n, n)
			pos += n
		}
	}
	return out, nil
}

// FromValues builds an array from a typed Go slice. The slice element type
// must match t: uint8 for Byte and Char, int8, int16, uint16, int32,
// uint32, int64, uint64, float32, float64 or string.
func FromValues(t DataType, shape []int, values any) (*Array, error) {
	a := NewArray(t, shape)
	n := a.Len()
	sz := t.Size()
	mismatch := func(got int) error {
		return fmt.Errorf("%s values: got %d, shape %v needs %d", t, got, shape, n)
	}
	switch v := values.(type) {
	case []uint8:
		if t != Byte && t != Char {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		copy(a.Data, v)
		return a, nil
	case []int8:
		if t != Int8 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			a.Data[i] = byte(x)
		}
		return a, nil
	case []int16:
		if t != Int16 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint16(a.Data[i*sz:], uint16(x))
		}
		return a, nil
	case []uint16:
		if t != UInt16 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint16(a.Data[i*sz:], x)
		}
		return a, nil
	case []int32:
		if t != Int32 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint32(a.Data[i*sz:], uint32(x))
		}
		return a, nil
	case []uint32:
		if t != UInt32 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint32(a.Data[i*sz:], x)
		}
		return a, nil
	case []int64:
		if t != Int64 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint64(a.Data[i*sz:], uint64(x))
		}
		return a, nil
	case []uint64:
		if t != UInt64 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint64(a.Data[i*sz:], x)
		}
		return a, nil
	case []float32:
		if t != Float32 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint32(a.Data[i*sz:], math.Float32bits(x))
		}
		return a, nil
	case []float64:
		if t != Float64 {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		for i, x := range v {
			binary.BigEndian.PutUint64(a.Data[i*sz:], math.Float64bits(x))
		}
		return a, nil
	case []string:
		if t != String {
			break
		}
		if len(v) != n {
			return nil, mismatch(len(v))
		}
		copy(a.Strings, v)
		return a, nil
	}
	return nil, fmt.Errorf("cannot store %T as %s", values, t)
}

// Values decodes the array into the typed slice FromValues accepts.
func (a *Array) Values() any {
	n := a.Len()
	sz := a.Type.Size()
	switch a.Type {
	case Byte, Char:
		return append([]uint8(nil), a.Data...)
	case Int8:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(a.Data[i])
		}
		return out
	case Int16:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.BigEndian.Uint16(a.Data[i*sz:]))
		}
		return out
	case UInt16:
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.BigEndian.Uint16(a.Data[i*sz:])
		}
		return out
	case Int32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.BigEndian.Uint32(a.Data[i*sz:]))
		}
		return out
	case UInt32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.BigEndian.Uint32(a.Data[i*sz:])
		}
		return out
	case Int64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.BigEndian.Uint64(a.Data[i*sz:]))
		}
		return out
	case UInt64:
		out := make([]uint64, n)
		for i := range out {
			out[i] = binary.BigEndian.Uint64(a.Data[i*sz:])
		}
		return out
	case Float32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(a.Data[i*sz:]))
		}
		return out
	case Float64:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(a.Data[i*sz:]))
		}
		return out
	case String:
		return append([]string(nil), a.Strings...)
	}
	return nil
}
