package schema

import (
	"errors"
	"testing"

	"github.com/gigapi/gigapi-dars/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func TestArraySlice(t *testing.T) {
	a, err := FromValues(Int32, []int{3, 4}, seq(12))
	require.NoError(t, err)

	tests := []struct {
		name   string
		ranges []Range
		shape  []int
		want   []int32
	}{
		{"full", FullRanges([]int{3, 4}), []int{3, 4}, seq(12)},
		{"row", []Range{{1, 2}, {0, 4}}, []int{1, 4}, []int32{4, 5, 6, 7}},
		{"column", []Range{{0, 3}, {2, 3}}, []int{3, 1}, []int32{2, 6, 10}},
		{"block", []Range{{1, 3}, {1, 3}}, []int{2, 2}, []int32{5, 6, 9, 10}},
		{"empty", []Range{{2, 2}, {0, 4}}, []int{0, 4}, []int32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := a.Slice(tt.ranges)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, out.Shape)
			assert.Equal(t, tt.want, out.Values())
		})
	}
}

func TestArraySliceErrors(t *testing.T) {
	a, err := FromValues(Float64, []int{4}, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = a.Slice([]Range{{0, 5}})
	assert.True(t, errors.Is(err, core.ErrOutOfRange))

	_, err = a.Slice([]Range{{3, 2}})
	assert.True(t, errors.Is(err, core.ErrOutOfRange))

	_, err = a.Slice([]Range{{0, 1}, {0, 1}})
	assert.True(t, errors.Is(err, core.ErrParse))
}

func TestConcat(t *testing.T) {
	a, _ := FromValues(Int32, []int{2, 3}, []int32{0, 1, 2, 3, 4, 5})
	b, _ := FromValues(Int32, []int{2, 1}, []int32{10, 11})

	t.Run("axis 0", func(t *testing.T) {
		c, _ := FromValues(Int32, []int{1, 3}, []int32{6, 7, 8})
		out, err := Concat(0, a, c)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 3}, out.Shape)
		assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8}, out.Values())
	})

	t.Run("axis 1 interleaves rows", func(t *testing.T) {
		out, err := Concat(1, a, b)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4}, out.Shape)
		assert.Equal(t, []int32{0, 1, 2, 10, 3, 4, 5, 11}, out.Values())
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := Concat(0, a, b)
		assert.Error(t, err)
	})

	t.Run("strings", func(t *testing.T) {
		x, _ := FromValues(String, []int{2}, []string{"a", "b"})
		y, _ := FromValues(String, []int{1}, []string{"c"})
		out, err := Concat(0, x, y)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, out.Strings)
	})
}

func TestConcatMatchesSlices(t *testing.T) {
	// Splitting along any axis and joining back gives the original.
	a, _ := FromValues(Int32, []int{3, 4, 2}, seq(24))
	for axis := 0; axis < 3; axis++ {
		ranges := FullRanges(a.Shape)
		lo, hi := ranges, FullRanges(a.Shape)
		lo[axis] = Range{0, 1}
		hi[axis] = Range{1, a.Shape[axis]}
		p1, err := a.Slice(lo)
		require.NoError(t, err)
		p2, err := a.Slice(hi)
		require.NoError(t, err)
		out, err := Concat(axis, p1, p2)
		require.NoError(t, err)
		assert.Equal(t, a.Data, out.Data, "axis %d", axis)
	}
}

func TestFromValuesRoundTrip(t *testing.T) {
	tests := []struct {
		t      DataType
		values any
	}{
		{Byte, []uint8{1, 255}},
		{Int8, []int8{-1, 7}},
		{Int16, []int16{-300, 300}},
		{UInt16, []uint16{1, 65535}},
		{UInt32, []uint32{1, 1 << 31}},
		{Int64, []int64{-1 << 40, 5}},
		{UInt64, []uint64{1, 1 << 63}},
		{Float32, []float32{-1.5, 3.25}},
	}
	for _, tt := range tests {
		t.Run(tt.t.String(), func(t *testing.T) {
			a, err := FromValues(tt.t, []int{2}, tt.values)
			require.NoError(t, err)
			assert.Len(t, a.Data, 2*tt.t.Size())
			assert.Equal(t, tt.values, a.Values())
		})
	}

	_, err := FromValues(Int32, []int{2}, []float32{1, 2})
	assert.Error(t, err)
	_, err = FromValues(Int32, []int{3}, []int32{1, 2})
	assert.Error(t, err)
}

func TestInt16IsBigEndian(t *testing.T) {
	a, err := FromValues(Int16, []int{1}, []int16{0x0102})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, a.Data)
}
