// Package aggregate joins several datasets along one dimension into a
// virtual dataset and maps global index ranges back to member ranges.
package aggregate

import (
	"errors"

	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/schema"
)

// Member is one file of an aggregation with its already described schema.
type Member struct {
	Path    string
	Dataset *schema.Dataset
}

// Spec lists the members in join order.
type Spec struct {
	Name      string
	Dimension string
	Members   []Member
}

// Piece is the part of a global range served by one member, in member
// local indices.
type Piece struct {
	Member int
	Range  schema.Range
}

// Virtual is an immutable joined dataset.
type Virtual struct {
	name    string
	dim     string
	schema  *schema.Dataset
	members []Member
	offsets []int
	sizes   []int
	total   int
}

// Build checks every member against the first one and computes offsets.
// It does no I/O.
func Build(spec Spec) (*Virtual, error) {
	if len(spec.Members) == 0 {
		return nil, core.NewError(core.KindEmptyAggregation, "aggregation %q has no members", spec.Name)
	}
	ref := spec.Members[0].Dataset
	if ref == nil {
		return nil, core.NewError(core.KindSchemaMismatch, "aggregation %q: member 0 (%s) has no schema", spec.Name, spec.Members[0].Path)
	}
	v := &Virtual{
		name:    spec.Name,
		dim:     spec.Dimension,
		members: append([]Member(nil), spec.Members...),
		offsets: make([]int, len(spec.Members)),
		sizes:   make([]int, len(spec.Members)),
	}
	for i, m := range spec.Members {
		if m.Dataset == nil {
			return nil, core.NewError(core.KindSchemaMismatch, "aggregation %q: member %d (%s) has no schema", spec.Name, i, m.Path)
		}
		if err := ref.JoinableAlong(m.Dataset, spec.Dimension); err != nil {
			var je *schema.JoinError
			if errors.As(err, &je) {
				return nil, core.NewError(core.KindSchemaMismatch, "aggregation %q: member %d (%s): %s: %s", spec.Name, i, m.Path, je.Field, je.Reason)
			}
			return nil, core.WrapError(core.KindSchemaMismatch, err, "aggregation %q: member %d (%s)", spec.Name, i, m.Path)
		}
		d, _ := m.Dataset.Dimension(spec.Dimension)
		v.offsets[i] = v.total
		v.sizes[i] = d.Size
		v.total += d.Size
	}
	s, err := ref.WithDimensionSize(spec.Name, spec.Dimension, v.total)
	if err != nil {
		return nil, core.WrapError(core.KindSchemaMismatch, err, "aggregation %q", spec.Name)
	}
	v.schema = s
	return v, nil
}

func (v *Virtual) Name() string { return v.name }

// Schema is member 0's schema with the aggregation dimension resized to
// the total.
func (v *Virtual) Schema() *schema.Dataset { return v.schema }

func (v *Virtual) Dimension() string { return v.dim }

func (v *Virtual) Members() []Member { return append([]Member(nil), v.members...) }

func (v *Virtual) Member(i int) Member { return v.members[i] }

func (v *Virtual) Len() int { return len(v.members) }

func (v *Virtual) Offset(i int) int { return v.offsets[i] }

func (v *Virtual) Size(i int) int { return v.sizes[i] }

func (v *Virtual) Total() int { return v.total }

// Resolve splits the global range r on the aggregation dimension into
// member local pieces, in member order. Offsetting every piece back and
// concatenating reproduces r exactly.
func (v *Virtual) Resolve(r schema.Range) ([]Piece, error) {
	if r.Lo < 0 || r.Hi > v.total || r.Lo > r.Hi {
		return nil, core.NewError(core.KindOutOfRange, "range %s outside %s of size %d", r, v.dim, v.total)
	}
	if r.Lo == r.Hi {
		return nil, nil
	}
	var pieces []Piece
	for m := range v.members {
		o, s := v.offsets[m], v.sizes[m]
		lo, hi := max(r.Lo, o), min(r.Hi, o+s)
		if lo >= hi {
			continue
		}
		pieces = append(pieces, Piece{Member: m, Range: schema.Range{Lo: lo - o, Hi: hi - o}})
	}
	return pieces, nil
}
