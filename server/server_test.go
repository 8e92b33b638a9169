package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gigapi/gigapi-dars/accessor"
	"github.com/gigapi/gigapi-dars/catalog"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/dap"
	"github.com/gigapi/gigapi-dars/internal/fixtures"
	"github.com/gigapi/gigapi-dars/slab"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aggNcML = `<netcdf xmlns="http://www.unidata.ucar.edu/namespaces/netcdf/ncml-2.2">
  <aggregation dimName="time" type="joinExisting">
    <netcdf location="monthly/jan.nc"/>
    <netcdf location="monthly/feb.nc"/>
  </aggregation>
</netcdf>`

type testEnv struct {
	server *Server
	cat    *catalog.Catalog
	mem    *accessor.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	mem := accessor.NewMemory()
	put := func(p, content string, f *accessor.MemFile) {
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
		if f != nil {
			mem.Put(p, f)
		}
	}
	put("/data/monthly/jan.nc", "CDF-jan", fixtures.Month(0, 31))
	put("/data/monthly/feb.nc", "CDF-feb", fixtures.Month(31, 28))
	put("/data/monthly/broken.nc", "CDF-broken", nil)
	put("/data/whole.nc4", "CDF-whole", fixtures.Month(0, 59))
	put("/data/agg.ncml", aggNcML, nil)

	pool, err := accessor.NewPool(mem, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Purge)
	cat := catalog.New(fs, pool, 2)
	require.NoError(t, cat.Load(context.Background(), nil, "/data"))
	s := NewServer(cat, slab.NewResolver(pool, 2), time.Second)
	s.RootURL = "http://dars.test/"
	return &testEnv{server: s, cat: cat, mem: mem}
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 5, body["datasets"])
}

func TestHandleList(t *testing.T) {
	e := newTestEnv(t)

	t.Run("json", func(t *testing.T) {
		rec := e.get("/data")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var list ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list.Datasets, 5)
		assert.Equal(t, DatasetInfo{
			Name: "agg.ncml",
			Kind: "aggregation",
			DAS:  "http://dars.test/data/agg.ncml.das",
			DDS:  "http://dars.test/data/agg.ncml.dds",
			DODS: "http://dars.test/data/agg.ncml.dods",
		}, list.Datasets[0])
		assert.Equal(t, "http://dars.test/data/whole.nc4", list.Datasets[4].Raw)
	})

	t.Run("ndjson", func(t *testing.T) {
		rec := e.get("/data?format=ndjson")
		require.Equal(t, http.StatusOK, rec.Code)
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		assert.Len(t, lines, 5)
		var first DatasetInfo
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, "agg.ncml", first.Name)
	})

	t.Run("html", func(t *testing.T) {
		rec := e.get("/data?format=html")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `<a href="http://dars.test/data/whole.nc4.dds">dds</a>`)
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := e.get("/data?format=xml")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDatasetResponses(t *testing.T) {
	e := newTestEnv(t)
	ds, err := e.cat.Get(context.Background(), "agg.ncml")
	require.NoError(t, err)

	rec := e.get("/data/agg.ncml.das")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dap.DAS(ds.Schema()), rec.Body.String())
	assert.Equal(t, "dods-das", rec.Header().Get("Content-Description"))

	rec = e.get("/data/agg.ncml.dds?temp[0:2][0][0]")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Float32 temp[time = 2][lat = 1][lon = 1];")
	assert.True(t, strings.HasSuffix(rec.Body.String(), "} agg.ncml;"))

	rec = e.get("/data/agg.ncml.dds")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Float64 time[time = 59];")
}

func payload(t *testing.T, body []byte) []byte {
	t.Helper()
	i := bytes.Index(body, []byte(dap.DataSeparator))
	require.Positive(t, i)
	return body[i+len(dap.DataSeparator):]
}

func TestDODSMatchesWholeFile(t *testing.T) {
	e := newTestEnv(t)
	for _, ce := range []string{"time[30:32]", "temp%5B29:33%5D%5B1%5D%5B0:3%5D", "anom,station"} {
		agg := e.get("/data/agg.ncml.dods?" + ce)
		require.Equal(t, http.StatusOK, agg.Code, ce)
		whole := e.get("/data/whole.nc4.dods?" + ce)
		require.Equal(t, http.StatusOK, whole.Code, ce)

		assert.Equal(t, "application/octet-stream", agg.Header().Get("Content-Type"))
		assert.Equal(t, payload(t, whole.Body.Bytes()), payload(t, agg.Body.Bytes()), ce)
	}
}

func TestRawDownload(t *testing.T) {
	e := newTestEnv(t)

	rec := e.get("/data/whole.nc4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CDF-whole", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "whole.nc4")

	rec = e.get("/data/agg.ncml")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	e := newTestEnv(t)
	e.mem.FailReads("/data/monthly/feb.nc", errors.New("disk gone"))

	tests := []struct {
		target string
		code   int
		kind   core.Kind
	}{
		{"/data/nope.das", http.StatusNotFound, core.KindNotFound},
		{"/data/agg.ncml.dds?nope", http.StatusNotFound, core.KindNotFound},
		{"/data/agg.ncml.dds?time[0:100]", http.StatusBadRequest, core.KindOutOfRange},
		{"/data/agg.ncml.dods?time[0:2:9]", http.StatusBadRequest, core.KindParse},
		{"/data/agg.ncml.dods?time[5:3]", http.StatusBadRequest, core.KindParse},
		{"/data/monthly/broken.nc.das", http.StatusInternalServerError, core.KindAccess},
		{"/data/agg.ncml.dods?time", http.StatusInternalServerError, core.KindAccess},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := e.get(tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, string(tt.kind), rec.Header().Get("X-DAP-Error-Kind"))
			body := rec.Body.String()
			assert.True(t, strings.HasPrefix(body, "Error {\n"), body)
			assert.Contains(t, body, "code = ")
			assert.Contains(t, body, `message = "`+string(tt.kind)+": ")
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.NewError(core.KindNotFound, "x"), http.StatusNotFound},
		{core.NewError(core.KindParse, "x"), http.StatusBadRequest},
		{core.NewError(core.KindOutOfRange, "x"), http.StatusBadRequest},
		{core.NewError(core.KindSchemaMismatch, "x"), http.StatusInternalServerError},
		{core.NewError(core.KindSchema, "x"), http.StatusInternalServerError},
		{core.WrapError(core.KindAccess, context.DeadlineExceeded, "read"), http.StatusGatewayTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
