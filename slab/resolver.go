// Package slab reads hyperslabs of a variable from a plain file or from a
// virtual aggregation.
package slab

import (
	"context"
	"fmt"

	"github.com/gigapi/gigapi-dars/accessor"
	"github.com/gigapi/gigapi-dars/aggregate"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/schema"
	"golang.org/x/sync/errgroup"
)

// Source is anything a variable can be read from.
type Source interface {
	Schema() *schema.Dataset
}

// File is a dataset backed by exactly one file.
type File struct {
	Path    string
	Dataset *schema.Dataset
}

func (f *File) Schema() *schema.Dataset { return f.Dataset }

var (
	_ Source = (*File)(nil)
	_ Source = (*aggregate.Virtual)(nil)
)

const DefaultParallelism = 4

// Resolver turns a variable read into accessor reads.
type Resolver struct {
	acc         accessor.Accessor
	parallelism int
}

func NewResolver(acc accessor.Accessor, parallelism int) *Resolver {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Resolver{acc: acc, parallelism: parallelism}
}

// Read returns the hyperslab of variable selected by one half-open range
// per dimension. Plain and virtual sources reject the same requests.
func (r *Resolver) Read(ctx context.Context, src Source, variable string, ranges []schema.Range) (*schema.Array, error) {
	ds := src.Schema()
	v, ok := ds.Variable(variable)
	if !ok {
		return nil, core.NewError(core.KindNotFound, "variable %q not found in %q", variable, ds.Name())
	}
	shape, _ := ds.Shape(variable)
	if err := schema.CheckRanges(variable, shape, ranges); err != nil {
		return nil, err
	}
	if schema.Count(ranges) == 0 && len(ranges) > 0 {
		out := make([]int, len(ranges))
		for i, rg := range ranges {
			out[i] = rg.Len()
		}
		return schema.NewArray(v.Type, out), nil
	}

	switch s := src.(type) {
	case *File:
		return r.acc.Read(ctx, s.Path, variable, ranges)
	case *aggregate.Virtual:
		return r.readVirtual(ctx, s, v, ranges)
	}
	return nil, fmt.Errorf("unsupported source %T", src)
}

func (r *Resolver) readVirtual(ctx context.Context, vd *aggregate.Virtual, v *schema.Variable, ranges []schema.Range) (*schema.Array, error) {
	axis := v.Axis(vd.Dimension())
	if axis < 0 {
		m := vd.Member(0)
		out, err := r.acc.Read(ctx, m.Path, v.Name, ranges)
		if err != nil {
			return nil, memberError(0, m.Path, err)
		}
		return out, nil
	}

	pieces, err := vd.Resolve(ranges[axis])
	if err != nil {
		return nil, err
	}
	core.Debugf(ctx, "%s[%s] %s resolves to %d pieces", vd.Name(), v.Name, ranges[axis], len(pieces))

	// parts is indexed by emission order so the join does not depend on
	// which read finishes first.
	parts := make([]*schema.Array, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, p := range pieces {
		i, p := i, p
		g.Go(func() error {
			m := vd.Member(p.Member)
			local := append([]schema.Range(nil), ranges...)
			local[axis] = p.Range
			a, err := r.acc.Read(gctx, m.Path, v.Name, local)
			if err != nil {
				return memberError(p.Member, m.Path, err)
			}
			parts[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	out, err := schema.Concat(axis, parts...)
	if err != nil {
		return nil, core.WrapError(core.KindAccess, err, "joining %s of %s", v.Name, vd.Name())
	}
	return out, nil
}

func memberError(idx int, path string, err error) error {
	return core.WrapError(core.KindAccess, err, "member %d (%s)", idx, path)
}
