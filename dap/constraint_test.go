package dap

import (
	"errors"
	"testing"

	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/internal/fixtures"
	"github.com/gigapi/gigapi-dars/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Constraint
	}{
		{"empty", "", nil},
		{"bare names", "time,temp", Constraint{{Name: "time"}, {Name: "temp"}}},
		{"index", "time[3]", Constraint{{Name: "time", Selectors: []Selector{{Start: 3, Stop: 4, HasStart: true, HasStop: true, Index: true}}}}},
		{"half open", "time[3:40]", Constraint{{Name: "time", Selectors: []Selector{{Start: 3, Stop: 40, HasStart: true, HasStop: true}}}}},
		{"open start", "time[:5]", Constraint{{Name: "time", Selectors: []Selector{{Stop: 5, HasStop: true}}}}},
		{"open stop", "time[5:]", Constraint{{Name: "time", Selectors: []Selector{{Start: 5, HasStart: true}}}}},
		{"colon", "time[:]", Constraint{{Name: "time", Selectors: []Selector{{}}}}},
		{"omitted", "temp[][1][0:2]", Constraint{{Name: "temp", Selectors: []Selector{
			{},
			{Start: 1, Stop: 2, HasStart: true, HasStop: true, Index: true},
			{Start: 0, Stop: 2, HasStart: true, HasStop: true},
		}}}},
		{"percent encoded", "temp%5B0:2%5D", Constraint{{Name: "temp", Selectors: []Selector{{Start: 0, Stop: 2, HasStart: true, HasStop: true}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConstraint(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConstraintErrors(t *testing.T) {
	for _, q := range []string{
		"time[0:2:10]",
		"time[5:3]",
		"time[a]",
		"time[1",
		"time[1]x",
		"[1]",
		"time,,temp",
		"time]",
		"temp&temp>3",
		"time%zz",
	} {
		_, err := ParseConstraint(q)
		assert.True(t, errors.Is(err, core.ErrParse), q)
	}
}

func TestSelect(t *testing.T) {
	ds := fixtures.Dataset("month", fixtures.Month(0, 31))

	t.Run("all", func(t *testing.T) {
		sels, err := Select(ds, nil)
		require.NoError(t, err)
		assert.Len(t, sels, len(ds.Variables()))
		assert.Equal(t, []schema.Range{{Lo: 0, Hi: 31}, {Lo: 0, Hi: 2}, {Lo: 0, Hi: 3}}, sels[3].Ranges)
	})

	t.Run("declaration order and defaults", func(t *testing.T) {
		c, err := ParseConstraint("temp[2:5],time[0],temp")
		require.NoError(t, err)
		sels, err := Select(ds, c)
		require.NoError(t, err)
		require.Len(t, sels, 2)
		assert.Equal(t, "time", sels[0].Variable.Name)
		assert.Equal(t, []schema.Range{{Lo: 0, Hi: 1}}, sels[0].Ranges)
		assert.Equal(t, "temp", sels[1].Variable.Name)
		assert.Equal(t, []schema.Range{{Lo: 2, Hi: 5}, {Lo: 0, Hi: 2}, {Lo: 0, Hi: 3}}, sels[1].Ranges)
		assert.Equal(t, []int{3, 2, 3}, sels[1].Shape())
	})

	tests := []struct {
		query string
		kind  error
	}{
		{"nope", core.ErrNotFound},
		{"time[0:32]", core.ErrOutOfRange},
		{"time[31]", core.ErrOutOfRange},
		{"time[40:]", core.ErrOutOfRange},
		{"time[-1:3]", core.ErrOutOfRange},
		{"time[0][0]", core.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, err := ParseConstraint(tt.query)
			require.NoError(t, err)
			_, err = Select(ds, c)
			assert.True(t, errors.Is(err, tt.kind), "%v", err)
		})
	}

	t.Run("empty range is valid", func(t *testing.T) {
		c, _ := ParseConstraint("time[31:31]")
		sels, err := Select(ds, c)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, sels[0].Shape())
	})
}
