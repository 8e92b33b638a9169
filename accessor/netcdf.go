package accessor

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/schema"
)

// NetCDF opens netCDF classic and netCDF-4 (HDF5) files.
type NetCDF struct{}

// CDL type names as reported by the reader.
var cdlTypes = map[string]schema.DataType{
	"byte":   schema.Int8,
	"ubyte":  schema.Byte,
	"char":   schema.Char,
	"short":  schema.Int16,
	"ushort": schema.UInt16,
	"int":    schema.Int32,
	"uint":   schema.UInt32,
	"int64":  schema.Int64,
	"uint64": schema.UInt64,
	"float":  schema.Float32,
	"double": schema.Float64,
	"string": schema.String,
}

func (NetCDF) Open(path string) (File, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f := &ncFile{group: g, getters: map[string]api.VarGetter{}}
	if err := f.describe(); err != nil {
		g.Close()
		return nil, fmt.Errorf("describe %s: %w", path, err)
	}
	return f, nil
}

type ncFile struct {
	group   api.Group
	getters map[string]api.VarGetter
	dims    []schema.Dimension
	vars    []schema.Variable
	attrs   schema.Attributes
}

// describe collects variables and derives dimension sizes from variable
// shapes. The reader has no dimension listing, so dimensions appear in the
// order variables first use them and unused dimensions are not reported.
func (f *ncFile) describe() error {
	var shapes []variableShape
	for _, name := range f.group.ListVariables() {
		vg, err := f.group.GetVarGetter(name)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		t, ok := cdlTypes[vg.Type()]
		if !ok {
			// compound and other user types are not served
			continue
		}
		dims := vg.Dimensions()
		shape, err := getterShape(vg, len(dims), t)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		shapes = append(shapes, variableShape{name: name, dims: dims, shape: shape})
		f.getters[name] = vg
		f.vars = append(f.vars, schema.Variable{
			Name:       name,
			Dims:       dims,
			Type:       t,
			Attributes: convertAttributes(vg.Attributes()),
		})
	}
	dims, err := dimensionSizes(shapes)
	if err != nil {
		return err
	}
	f.dims = dims
	f.attrs = convertAttributes(f.group.Attributes())
	return nil
}

// unmeasured marks an axis whose size could not be read, because an outer
// axis is empty.
const unmeasured = -1

type variableShape struct {
	name  string
	dims  []string
	shape []int
}

// dimensionSizes reconciles the sizes every variable reports for its
// dimensions. Unmeasured axes defer to other variables; two measured sizes
// that disagree are a SchemaError. A dimension nobody measured is empty.
func dimensionSizes(shapes []variableShape) ([]schema.Dimension, error) {
	sizes := map[string]int{}
	seenIn := map[string]string{}
	var order []string
	for _, vs := range shapes {
		for i, d := range vs.dims {
			size := vs.shape[i]
			prev, seen := sizes[d]
			if !seen {
				order = append(order, d)
				sizes[d] = size
				seenIn[d] = vs.name
				continue
			}
			switch {
			case size == unmeasured:
			case prev == unmeasured:
				sizes[d] = size
				seenIn[d] = vs.name
			case prev != size:
				return nil, core.NewError(core.KindSchema, "dimension %q: variable %s has size %d, variable %s has size %d",
					d, seenIn[d], prev, vs.name, size)
			}
		}
	}
	out := make([]schema.Dimension, len(order))
	for i, d := range order {
		size := sizes[d]
		if size == unmeasured {
			size = 0
		}
		out[i] = schema.Dimension{Name: d, Size: size}
	}
	return out, nil
}

// getterShape reads the first outer element and measures the nested slice
// lengths below it. Char variables come back as strings, the last axis is
// the string length. Inner axes of an empty variable are unmeasured.
func getterShape(vg api.VarGetter, rank int, t schema.DataType) ([]int, error) {
	shape := make([]int, rank)
	if rank == 0 {
		return shape, nil
	}
	for i := range shape {
		shape[i] = unmeasured
	}
	shape[0] = int(vg.Len())
	if rank == 1 || shape[0] == 0 {
		return shape, nil
	}
	v, err := vg.GetSlice(0, 1)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	for axis := 1; axis < rank; axis++ {
		if rv.Kind() != reflect.Slice || rv.Len() == 0 {
			if t == schema.Char && rv.Kind() == reflect.String && axis == rank-1 {
				shape[axis] = rv.Len()
				continue
			}
			break
		}
		rv = rv.Index(0)
		switch {
		case rv.Kind() == reflect.Slice:
			shape[axis] = rv.Len()
		case rv.Kind() == reflect.String && t == schema.Char:
			shape[axis] = rv.Len()
		}
	}
	return shape, nil
}

func (f *ncFile) Dimensions() []schema.Dimension { return f.dims }
func (f *ncFile) Variables() []schema.Variable   { return f.vars }
func (f *ncFile) Attributes() schema.Attributes  { return f.attrs }

func (f *ncFile) Read(variable string, ranges []schema.Range) (*schema.Array, error) {
	vg, ok := f.getters[variable]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", variable)
	}
	var t schema.DataType
	for _, v := range f.vars {
		if v.Name == variable {
			t = v.Type
		}
	}
	shape := make([]int, len(ranges))
	for i, r := range ranges {
		shape[i] = r.Len()
	}
	if schema.Count(ranges) == 0 && len(ranges) > 0 {
		return schema.NewArray(t, shape), nil
	}
	var raw interface{}
	var err error
	if len(ranges) == 0 {
		raw, err = vg.Values()
	} else {
		raw, err = vg.GetSlice(int64(ranges[0].Lo), int64(ranges[0].Hi))
	}
	if err != nil {
		return nil, err
	}
	flat, err := flatten(raw, ranges, t)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	return schema.FromValues(t, shape, flat)
}

func (f *ncFile) Close() error {
	f.group.Close()
	return nil
}

// flatten walks the nested slices returned by the reader, applies the
// inner ranges and returns a flat typed slice. The outer range has already
// been applied by GetSlice.
func flatten(raw interface{}, ranges []schema.Range, t schema.DataType) (interface{}, error) {
	rv := reflect.ValueOf(raw)
	if len(ranges) == 0 {
		out := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		out.Index(0).Set(rv)
		return out.Interface(), nil
	}
	leaf := rv.Type()
	for leaf.Kind() == reflect.Slice {
		leaf = leaf.Elem()
	}
	if t == schema.Char {
		leaf = reflect.TypeOf(uint8(0))
	}
	out := reflect.MakeSlice(reflect.SliceOf(leaf), 0, schema.Count(ranges))

	var walk func(v reflect.Value, axis int) error
	walk = func(v reflect.Value, axis int) error {
		r := ranges[axis]
		lo, hi := r.Lo, r.Hi
		if axis == 0 {
			// GetSlice already cut the outer axis
			lo, hi = 0, r.Len()
		}
		if t == schema.Char && axis == len(ranges)-1 && v.Kind() == reflect.String {
			s := v.String()
			for i := lo; i < hi; i++ {
				var b uint8
				if i < len(s) {
					b = s[i]
				}
				out = reflect.Append(out, reflect.ValueOf(b))
			}
			return nil
		}
		if v.Kind() != reflect.Slice {
			return fmt.Errorf("axis %d: expected slice, got %s", axis, v.Kind())
		}
		if hi > v.Len() {
			return fmt.Errorf("axis %d: range %s beyond length %d", axis, r, v.Len())
		}
		if axis == len(ranges)-1 {
			out = reflect.AppendSlice(out, v.Slice(lo, hi))
			return nil
		}
		for i := lo; i < hi; i++ {
			if err := walk(v.Index(i), axis+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func convertAttributes(am api.AttributeMap) schema.Attributes {
	if am == nil {
		return nil
	}
	var out schema.Attributes
	for _, key := range am.Keys() {
		val, ok := am.Get(key)
		if !ok {
			continue
		}
		if a, ok := convertAttribute(key, val); ok {
			out = append(out, a)
		}
	}
	return out
}

func convertAttribute(name string, val interface{}) (schema.Attribute, bool) {
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.String {
		return schema.TextAttr(name, rv.String()), true
	}
	elem := rv.Type()
	if rv.Kind() == reflect.Slice {
		elem = elem.Elem()
	} else {
		wrapped := reflect.MakeSlice(reflect.SliceOf(elem), 1, 1)
		wrapped.Index(0).Set(rv)
		rv = wrapped
	}
	t, ok := goKindTypes[elem.Kind()]
	if !ok {
		return schema.Attribute{}, false
	}
	n := rv.Len()
	switch {
	case t.IsFloat():
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = rv.Index(i).Float()
		}
		return schema.FloatAttr(name, t, vals...), true
	case t.IsSigned():
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = rv.Index(i).Int()
		}
		return schema.IntAttr(name, t, vals...), true
	default:
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = int64(rv.Index(i).Uint())
		}
		return schema.IntAttr(name, t, vals...), true
	}
}

var goKindTypes = map[reflect.Kind]schema.DataType{
	reflect.Int8:    schema.Int8,
	reflect.Uint8:   schema.Byte,
	reflect.Int16:   schema.Int16,
	reflect.Uint16:  schema.UInt16,
	reflect.Int32:   schema.Int32,
	reflect.Uint32:  schema.UInt32,
	reflect.Int64:   schema.Int64,
	reflect.Uint64:  schema.UInt64,
	reflect.Float32: schema.Float32,
	reflect.Float64: schema.Float64,
}
