package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gigapi/gigapi-dars/accessor"
	"github.com/gigapi/gigapi-dars/aggregate"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/internal/fixtures"
	"github.com/gigapi/gigapi-dars/slab"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aggNcML = `<?xml version="1.0" encoding="UTF-8"?>
<netcdf xmlns="http://www.unidata.ucar.edu/namespaces/netcdf/ncml-2.2">
  <aggregation dimName="time" type="joinExisting">
    <netcdf location="monthly/jan.nc"/>
    <netcdf location="monthly/feb.nc"/>
  </aggregation>
</netcdf>`

const scanNcML = `<netcdf xmlns="http://www.unidata.ucar.edu/namespaces/netcdf/ncml-2.2">
  <aggregation dimName="time" type="joinExisting">
    <scan location="monthly/" suffix=".nc" ignore="broken"/>
  </aggregation>
</netcdf>`

// env has a data dir with two monthly files, one whole file, two NcML
// aggregations and files the scan must skip.
func env(t *testing.T) (afero.Fs, *accessor.Memory, *Catalog) {
	t.Helper()
	fs := afero.NewMemMapFs()
	mem := accessor.NewMemory()
	put := func(p string, f *accessor.MemFile) {
		require.NoError(t, afero.WriteFile(fs, p, []byte("CDF"), 0o644))
		if f != nil {
			mem.Put(p, f)
		}
	}
	put("/data/monthly/jan.nc", fixtures.Month(0, 31))
	put("/data/monthly/feb.nc", fixtures.Month(31, 28))
	put("/data/monthly/broken.nc", nil)
	put("/data/whole.nc4", fixtures.Month(0, 59))
	put("/data/notes.txt", nil)
	put("/data/.hidden/x.nc", nil)
	require.NoError(t, afero.WriteFile(fs, "/data/agg.ncml", []byte(aggNcML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/scan.ncml", []byte(scanNcML), 0o644))

	pool, err := accessor.NewPool(mem, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Purge)
	return fs, mem, New(fs, pool, 2)
}

func TestLoadScansDataDir(t *testing.T) {
	_, _, c := env(t)
	require.NoError(t, c.Load(context.Background(), nil, "/data"))

	assert.Equal(t, []string{
		"agg.ncml",
		"monthly/broken.nc",
		"monthly/feb.nc",
		"monthly/jan.nc",
		"scan.ncml",
		"whole.nc4",
	}, c.Names())

	e, ok := c.Entry("agg.ncml")
	require.True(t, ok)
	assert.Equal(t, "aggregation", e.Kind())
	assert.Equal(t, []string{"/data/monthly/jan.nc", "/data/monthly/feb.nc"}, e.Aggregation.Members)
}

func TestGetAggregation(t *testing.T) {
	_, _, c := env(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, nil, "/data"))

	ds, err := c.Get(ctx, "agg.ncml")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Members)
	assert.Empty(t, ds.Path)
	v, ok := ds.Source.(*aggregate.Virtual)
	require.True(t, ok)
	assert.Equal(t, 59, v.Total())
	assert.Equal(t, "agg.ncml", ds.Schema().Name())

	single, err := c.Get(ctx, "whole.nc4")
	require.NoError(t, err)
	assert.Equal(t, "/data/whole.nc4", single.Path)
	_, ok = single.Source.(*slab.File)
	assert.True(t, ok)
}

func TestScanMembersAreSortedAndFiltered(t *testing.T) {
	_, _, c := env(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, nil, "/data"))

	ds, err := c.Get(ctx, "scan.ncml")
	require.NoError(t, err)
	v := ds.Source.(*aggregate.Virtual)
	require.Equal(t, 2, v.Len())
	// feb sorts before jan; declared order is path order, not time order
	assert.Equal(t, "/data/monthly/feb.nc", v.Member(0).Path)
	assert.Equal(t, "/data/monthly/jan.nc", v.Member(1).Path)
}

func TestGetErrors(t *testing.T) {
	_, _, c := env(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, []Entry{
		{Name: "bad-agg", Aggregation: &Aggregation{Dimension: "time", Members: []string{"monthly/jan.nc", "monthly/missing.nc"}}},
		{Name: "empty-agg", Aggregation: &Aggregation{Dimension: "time", Scan: []Scan{{Location: "monthly", Suffix: ".nc4"}}}},
		{Name: "no-path"},
	}, "/data"))

	_, err := c.Get(ctx, "nope")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = c.Get(ctx, "bad-agg")
	assert.True(t, errors.Is(err, core.ErrAccess))
	assert.Contains(t, err.Error(), "member 1")

	_, err = c.Get(ctx, "empty-agg")
	assert.True(t, errors.Is(err, core.ErrEmptyAggregation))

	_, ok := c.Entry("no-path")
	assert.False(t, ok, "invalid entries are not published")

	// other datasets stay servable
	_, err = c.Get(ctx, "agg.ncml")
	assert.NoError(t, err)
}

func TestGetBuildsOnce(t *testing.T) {
	_, mem, c := env(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, nil, "/data"))

	var wg sync.WaitGroup
	results := make([]*Dataset, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Get(ctx, "agg.ncml")
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.EqualValues(t, 2, mem.Opens())
}

func TestGetRetriesAccessErrors(t *testing.T) {
	fs, mem, c := env(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(fs, "/data/late.nc", []byte("CDF"), 0o644))
	require.NoError(t, c.Load(ctx, []Entry{
		{Name: "empty-agg", Aggregation: &Aggregation{Dimension: "time", Scan: []Scan{{Location: "monthly", Suffix: ".nc4"}}}},
	}, "/data"))

	// the file is not readable yet
	_, err := c.Get(ctx, "late.nc")
	require.True(t, errors.Is(err, core.ErrAccess), "%v", err)
	_, err = c.Get(ctx, "empty-agg")
	require.True(t, errors.Is(err, core.ErrEmptyAggregation), "%v", err)

	mem.Put("/data/late.nc", fixtures.Month(0, 3))
	require.NoError(t, afero.WriteFile(fs, "/data/monthly/mar.nc4", []byte("CDF"), 0o644))
	mem.Put("/data/monthly/mar.nc4", fixtures.Month(59, 31))

	ds, err := c.Get(ctx, "late.nc")
	require.NoError(t, err)
	assert.Equal(t, "late.nc", ds.Name)
	again, err := c.Get(ctx, "late.nc")
	require.NoError(t, err)
	assert.Same(t, ds, again)

	// only read failures are retried
	_, err = c.Get(ctx, "empty-agg")
	assert.True(t, errors.Is(err, core.ErrEmptyAggregation), "%v", err)
}

func TestWarmDropsBrokenDatasets(t *testing.T) {
	_, _, c := env(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, nil, "/data"))
	require.NoError(t, c.Warm(ctx))

	names := c.Names()
	assert.NotContains(t, names, "monthly/broken.nc")
	assert.Contains(t, names, "agg.ncml")
	// scan.ncml ignores broken.nc so it survives
	assert.Contains(t, names, "scan.ncml")
}

func TestReloadSwapsSnapshot(t *testing.T) {
	fs, mem, c := env(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, nil, "/data"))
	before, err := c.Get(ctx, "whole.nc4")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/data/extra.nc", []byte("CDF"), 0o644))
	mem.Put("/data/extra.nc", fixtures.Month(0, 3))
	require.NoError(t, c.Load(ctx, nil, "/data"))

	assert.Contains(t, c.Names(), "extra.nc")
	after, err := c.Get(ctx, "whole.nc4")
	require.NoError(t, err)
	assert.NotSame(t, before, after, "reload rebuilds datasets")
	// the old dataset value is untouched
	assert.Equal(t, "whole.nc4", before.Name)
}

func TestLoadMissingDataDir(t *testing.T) {
	_, _, c := env(t)
	err := c.Load(context.Background(), nil, "/nowhere")
	require.Error(t, err)
}

func TestParseNcML(t *testing.T) {
	e, err := ParseNcML(strings.NewReader(aggNcML), "agg", "/base")
	require.NoError(t, err)
	assert.Equal(t, "time", e.Aggregation.Dimension)
	assert.Equal(t, []string{"/base/monthly/jan.nc", "/base/monthly/feb.nc"}, e.Aggregation.Members)

	e, err = ParseNcML(strings.NewReader(scanNcML), "scan", "/base")
	require.NoError(t, err)
	assert.Equal(t, []Scan{{Location: "/base/monthly", Suffix: ".nc", Ignore: "broken"}}, e.Aggregation.Scan)

	for name, doc := range map[string]string{
		"union":       `<netcdf><aggregation dimName="time" type="union"/></netcdf>`,
		"no dim":      `<netcdf><aggregation type="joinExisting"/></netcdf>`,
		"no agg":      `<netcdf/>`,
		"bad xml":     `<netcdf>`,
		"no location": `<netcdf><aggregation dimName="t" type="joinExisting"><netcdf/></aggregation></netcdf>`,
	} {
		_, err := ParseNcML(strings.NewReader(doc), name, "/")
		assert.Error(t, err, name)
	}
}
