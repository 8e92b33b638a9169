// Package dap implements the DAP2 wire formats: constraint expressions,
// DAS and DDS text, and the XDR encoded DODS data response.
package dap

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/schema"
)

// Selector is one bracketed index expression. A missing bound means the
// extreme of the dimension.
type Selector struct {
	Start    int
	Stop     int
	HasStart bool
	HasStop  bool
	// Index is set for [i], meaning [i, i+1).
	Index bool
}

// Projection is a variable name with its selectors in dimension order.
type Projection struct {
	Name      string
	Selectors []Selector
}

// Constraint is a parsed constraint expression. Empty means every variable
// in full.
type Constraint []Projection

// ParseConstraint parses the (percent encoded) query part of a request:
// comma separated projections of the form name[sel][sel]... where each
// selector is i, start:stop, start:, :stop, : or empty. Ranges are
// half-open.
func ParseConstraint(query string) (Constraint, error) {
	q, err := url.PathUnescape(query)
	if err != nil {
		return nil, core.WrapError(core.KindParse, err, "bad escape in constraint")
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if strings.Contains(q, "&") {
		return nil, core.NewError(core.KindParse, "selection clauses are not supported: %q", q)
	}
	var c Constraint
	for _, term := range strings.Split(q, ",") {
		p, err := parseProjection(strings.TrimSpace(term))
		if err != nil {
			return nil, err
		}
		c = append(c, p)
	}
	return c, nil
}

func parseProjection(term string) (Projection, error) {
	if term == "" {
		return Projection{}, core.NewError(core.KindParse, "empty projection")
	}
	i := strings.IndexByte(term, '[')
	if i < 0 {
		if strings.ContainsAny(term, "]:") {
			return Projection{}, core.NewError(core.KindParse, "malformed projection %q", term)
		}
		return Projection{Name: term}, nil
	}
	p := Projection{Name: term[:i]}
	if p.Name == "" {
		return Projection{}, core.NewError(core.KindParse, "projection %q has no variable name", term)
	}
	rest := term[i:]
	for rest != "" {
		if rest[0] != '[' {
			return Projection{}, core.NewError(core.KindParse, "malformed projection %q", term)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Projection{}, core.NewError(core.KindParse, "unterminated selector in %q", term)
		}
		sel, err := parseSelector(rest[1:end])
		if err != nil {
			return Projection{}, err
		}
		p.Selectors = append(p.Selectors, sel)
		rest = rest[end+1:]
	}
	return p, nil
}

func parseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, nil
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		n, err := parseIndex(parts[0])
		if err != nil {
			return Selector{}, err
		}
		return Selector{Start: n, Stop: n + 1, HasStart: true, HasStop: true, Index: true}, nil
	case 2:
		var sel Selector
		var err error
		if parts[0] != "" {
			if sel.Start, err = parseIndex(parts[0]); err != nil {
				return Selector{}, err
			}
			sel.HasStart = true
		}
		if parts[1] != "" {
			if sel.Stop, err = parseIndex(parts[1]); err != nil {
				return Selector{}, err
			}
			sel.HasStop = true
		}
		if sel.HasStart && sel.HasStop && sel.Start > sel.Stop {
			return Selector{}, core.NewError(core.KindParse, "selector [%s]: start after stop", s)
		}
		return sel, nil
	}
	return Selector{}, core.NewError(core.KindParse, "selector [%s]: strides are not supported", s)
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, core.NewError(core.KindParse, "bad index %q", s)
	}
	return n, nil
}

// Range applies the selector to a dimension of the given size.
func (s Selector) Range(size int) schema.Range {
	r := schema.Range{Lo: 0, Hi: size}
	if s.HasStart {
		r.Lo = s.Start
	}
	if s.HasStop {
		r.Hi = s.Stop
	}
	return r
}

// Selection is a resolved projection.
type Selection struct {
	Variable schema.Variable
	Ranges   []schema.Range
}

// Shape is the constrained shape.
func (s Selection) Shape() []int {
	out := make([]int, len(s.Ranges))
	for i, r := range s.Ranges {
		out[i] = r.Len()
	}
	return out
}

// Select resolves c against ds. Variables come back in declaration order,
// each once. Missing trailing selectors select the whole dimension.
func Select(ds *schema.Dataset, c Constraint) ([]Selection, error) {
	if len(c) == 0 {
		vars := ds.Variables()
		out := make([]Selection, len(vars))
		for i, v := range vars {
			shape, _ := ds.Shape(v.Name)
			out[i] = Selection{Variable: v, Ranges: schema.FullRanges(shape)}
		}
		return out, nil
	}
	seen := map[string]bool{}
	var out []Selection
	for _, p := range c {
		if seen[p.Name] {
			continue
		}
		v, ok := ds.Variable(p.Name)
		if !ok {
			return nil, core.NewError(core.KindNotFound, "variable %q not found in %q", p.Name, ds.Name())
		}
		shape, _ := ds.Shape(p.Name)
		if len(p.Selectors) > len(shape) {
			return nil, core.NewError(core.KindParse, "variable %q has %d dimensions, got %d selectors", p.Name, len(shape), len(p.Selectors))
		}
		ranges := schema.FullRanges(shape)
		for i, sel := range p.Selectors {
			ranges[i] = sel.Range(shape[i])
		}
		if err := schema.CheckRanges(p.Name, shape, ranges); err != nil {
			return nil, err
		}
		seen[p.Name] = true
		out = append(out, Selection{Variable: *v, Ranges: ranges})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ds.Position(out[i].Variable.Name) < ds.Position(out[j].Variable.Name)
	})
	return out, nil
}
