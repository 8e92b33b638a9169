package dap

import (
	"fmt"
	"strings"

	"github.com/gigapi/gigapi-dars/schema"
)

// Part is one array in the response: a plain variable, a grid array or a
// grid map.
type Part struct {
	Name   string
	Type   schema.DataType
	Dims   []string
	Ranges []schema.Range
}

func (p Part) Shape() []int {
	out := make([]int, len(p.Ranges))
	for i, r := range p.Ranges {
		out[i] = r.Len()
	}
	return out
}

func (p Part) declaration() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", TypeName(p.Type), p.Name)
	for i, d := range p.Dims {
		fmt.Fprintf(&b, "[%s = %d]", d, p.Ranges[i].Len())
	}
	b.WriteByte(';')
	return b.String()
}

// Entry is a selected variable with, for grids, its maps.
type Entry struct {
	Array Part
	Maps  []Part
}

func (e Entry) IsGrid() bool {
	return len(e.Maps) > 0
}

// Parts lists the array followed by its maps, the order they are sent in.
func (e Entry) Parts() []Part {
	return append([]Part{e.Array}, e.Maps...)
}

// Layout expands selections into response entries. A variable of rank two
// or more whose every dimension has a coordinate variable is a grid; its
// maps are the coordinate variables constrained like the matching axis.
func Layout(ds *schema.Dataset, sels []Selection) []Entry {
	out := make([]Entry, 0, len(sels))
	for _, s := range sels {
		v := s.Variable
		e := Entry{Array: Part{Name: v.Name, Type: v.Type, Dims: v.Dims, Ranges: s.Ranges}}
		if isGrid(ds, &v) {
			for i, d := range v.Dims {
				cv, _ := ds.Variable(d)
				e.Maps = append(e.Maps, Part{Name: d, Type: cv.Type, Dims: []string{d}, Ranges: []schema.Range{s.Ranges[i]}})
			}
		}
		out = append(out, e)
	}
	return out
}

func isGrid(ds *schema.Dataset, v *schema.Variable) bool {
	if len(v.Dims) < 2 {
		return false
	}
	for _, d := range v.Dims {
		if !ds.IsCoordinate(d) {
			return false
		}
	}
	return true
}

// DDS renders the structure response for the given entries.
func DDS(name string, entries []Entry) string {
	var b strings.Builder
	b.WriteString("Dataset {\n")
	for _, e := range entries {
		if !e.IsGrid() {
			b.WriteString(indent + e.Array.declaration() + "\n")
			continue
		}
		b.WriteString(indent + "Grid {\n")
		b.WriteString(indent + " ARRAY:\n")
		b.WriteString(indent + indent + e.Array.declaration() + "\n")
		b.WriteString(indent + " MAPS:\n")
		for _, m := range e.Maps {
			b.WriteString(indent + indent + m.declaration() + "\n")
		}
		fmt.Fprintf(&b, "%s} %s;\n", indent, e.Array.Name)
	}
	fmt.Fprintf(&b, "} %s;", name)
	return b.String()
}
