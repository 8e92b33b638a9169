package schema

import (
	"fmt"

	"github.com/gigapi/gigapi-dars/core"
)

// Dimension is a named axis. Size is always concrete; Unlimited only
// records how the source file declared it.
type Dimension struct {
	Name      string
	Size      int
	Unlimited bool
}

// Variable is an n-dimensional array declared over named dimensions.
type Variable struct {
	Name       string
	Dims       []string
	Type       DataType
	Attributes Attributes
}

// Rank is the number of dimensions of the variable.
func (v *Variable) Rank() int {
	return len(v.Dims)
}

// Axis returns the position of dim in v.Dims, or -1.
func (v *Variable) Axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Dataset is an immutable schema: dimensions, variables and global
// attributes in declaration order. Build one with New.
type Dataset struct {
	name   string
	dims   []Dimension
	vars   []Variable
	attrs  Attributes
	dimIdx map[string]int
	varIdx map[string]int
}

// New validates and freezes a dataset. The slices are copied.
func New(name string, dims []Dimension, vars []Variable, attrs Attributes) (*Dataset, error) {
	ds := &Dataset{
		name:   name,
		dims:   make([]Dimension, len(dims)),
		vars:   make([]Variable, len(vars)),
		attrs:  attrs.clone(),
		dimIdx: make(map[string]int, len(dims)),
		varIdx: make(map[string]int, len(vars)),
	}
	copy(ds.dims, dims)
	for i, d := range ds.dims {
		if d.Name == "" {
			return nil, core.NewError(core.KindSchema, "dataset %q: dimension %d has no name", name, i)
		}
		if d.Size < 0 {
			return nil, core.NewError(core.KindSchema, "dataset %q: dimension %q has negative size %d", name, d.Name, d.Size)
		}
		if _, dup := ds.dimIdx[d.Name]; dup {
			return nil, core.NewError(core.KindSchema, "dataset %q: duplicate dimension %q", name, d.Name)
		}
		ds.dimIdx[d.Name] = i
	}
	for i, v := range vars {
		if v.Name == "" {
			return nil, core.NewError(core.KindSchema, "dataset %q: variable %d has no name", name, i)
		}
		if _, dup := ds.varIdx[v.Name]; dup {
			return nil, core.NewError(core.KindSchema, "dataset %q: duplicate variable %q", name, v.Name)
		}
		if !v.Type.Valid() {
			return nil, core.NewError(core.KindSchema, "dataset %q: variable %q has invalid type", name, v.Name)
		}
		for _, d := range v.Dims {
			if _, ok := ds.dimIdx[d]; !ok {
				return nil, core.NewError(core.KindSchema, "dataset %q: variable %q references undeclared dimension %q", name, v.Name, d)
			}
		}
		// A variable named like a dimension is its coordinate variable and
		// must be 1-D over exactly that dimension.
		if _, ok := ds.dimIdx[v.Name]; ok && len(v.Dims) > 0 {
			if len(v.Dims) != 1 || v.Dims[0] != v.Name {
				return nil, core.NewError(core.KindSchema, "dataset %q: coordinate variable %q must have shape [%s], got %v", name, v.Name, v.Name, v.Dims)
			}
		}
		v.Dims = append([]string(nil), v.Dims...)
		v.Attributes = v.Attributes.clone()
		ds.vars[i] = v
		ds.varIdx[v.Name] = i
	}
	return ds, nil
}

func (d *Dataset) Name() string {
	return d.name
}

// Dimensions returns a copy of the dimension list.
func (d *Dataset) Dimensions() []Dimension {
	return append([]Dimension(nil), d.dims...)
}

func (d *Dataset) Dimension(name string) (Dimension, bool) {
	i, ok := d.dimIdx[name]
	if !ok {
		return Dimension{}, false
	}
	return d.dims[i], true
}

// Variables returns the variables in declaration order. The returned
// values share their Dims and Attributes slices with the dataset and must
// not be modified.
func (d *Dataset) Variables() []Variable {
	return append([]Variable(nil), d.vars...)
}

func (d *Dataset) Variable(name string) (*Variable, bool) {
	i, ok := d.varIdx[name]
	if !ok {
		return nil, false
	}
	v := d.vars[i]
	return &v, true
}

// Position is the declaration index of a variable, or -1.
func (d *Dataset) Position(name string) int {
	if i, ok := d.varIdx[name]; ok {
		return i
	}
	return -1
}

func (d *Dataset) Attributes() Attributes {
	return d.attrs
}

// Shape returns the sizes of a variable's dimensions.
func (d *Dataset) Shape(variable string) ([]int, error) {
	v, ok := d.Variable(variable)
	if !ok {
		return nil, core.NewError(core.KindNotFound, "variable %q not found in %q", variable, d.name)
	}
	return d.shapeOf(v), nil
}

func (d *Dataset) shapeOf(v *Variable) []int {
	shape := make([]int, len(v.Dims))
	for i, name := range v.Dims {
		shape[i] = d.dims[d.dimIdx[name]].Size
	}
	return shape
}

// IsCoordinate reports whether dim has a 1-D variable of the same name.
func (d *Dataset) IsCoordinate(dim string) bool {
	if _, ok := d.dimIdx[dim]; !ok {
		return false
	}
	v, ok := d.Variable(dim)
	return ok && len(v.Dims) == 1 && v.Dims[0] == dim
}

// WithName returns a shallow copy of d published under another name.
func (d *Dataset) WithName(name string) *Dataset {
	out := *d
	out.name = name
	return &out
}

// WithDimensionSize returns a copy of d where dim has the given size and a
// new name. Attributes and variables are shared.
func (d *Dataset) WithDimensionSize(name, dim string, size int) (*Dataset, error) {
	i, ok := d.dimIdx[dim]
	if !ok {
		return nil, core.NewError(core.KindSchema, "dataset %q: no dimension %q", d.name, dim)
	}
	out := *d
	out.name = name
	out.dims = append([]Dimension(nil), d.dims...)
	out.dims[i].Size = size
	return &out, nil
}

// JoinError names the field that prevents two datasets from being joined.
type JoinError struct {
	Field  string
	Reason string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// JoinableAlong reports whether d and other can be concatenated along dim.
// Both must declare dim, all other dimensions must have the same size, and
// every variable must exist in both with the same type and the same shape
// outside dim.
func (d *Dataset) JoinableAlong(other *Dataset, dim string) error {
	if _, ok := d.dimIdx[dim]; !ok {
		return &JoinError{Field: dim, Reason: "aggregation dimension missing in reference"}
	}
	if _, ok := other.dimIdx[dim]; !ok {
		return &JoinError{Field: dim, Reason: "aggregation dimension missing"}
	}
	for _, a := range d.dims {
		if a.Name == dim {
			continue
		}
		b, ok := other.Dimension(a.Name)
		if !ok {
			return &JoinError{Field: a.Name, Reason: "dimension missing"}
		}
		if a.Size != b.Size {
			return &JoinError{Field: a.Name, Reason: fmt.Sprintf("dimension size %d, expected %d", b.Size, a.Size)}
		}
	}
	for _, b := range other.dims {
		if _, ok := d.dimIdx[b.Name]; !ok {
			return &JoinError{Field: b.Name, Reason: "unexpected dimension"}
		}
	}
	if len(d.vars) != len(other.vars) {
		for _, b := range other.vars {
			if _, ok := d.varIdx[b.Name]; !ok {
				return &JoinError{Field: b.Name, Reason: "unexpected variable"}
			}
		}
	}
	for i := range d.vars {
		a := &d.vars[i]
		b, ok := other.Variable(a.Name)
		if !ok {
			return &JoinError{Field: a.Name, Reason: "variable missing"}
		}
		if a.Type != b.Type {
			return &JoinError{Field: a.Name, Reason: fmt.Sprintf("datatype %s, expected %s", b.Type, a.Type)}
		}
		if len(a.Dims) != len(b.Dims) {
			return &JoinError{Field: a.Name, Reason: fmt.Sprintf("rank %d, expected %d", len(b.Dims), len(a.Dims))}
		}
		as, bs := d.shapeOf(a), other.shapeOf(b)
		for k := range a.Dims {
			if a.Dims[k] != b.Dims[k] {
				return &JoinError{Field: a.Name, Reason: fmt.Sprintf("dimension %d is %q, expected %q", k, b.Dims[k], a.Dims[k])}
			}
			if a.Dims[k] != dim && as[k] != bs[k] {
				return &JoinError{Field: a.Name, Reason: fmt.Sprintf("shape %v, expected %v", bs, as)}
			}
		}
	}
	return nil
}
