// Package server exposes the catalog over DAP2 HTTP and Arrow Flight.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gigapi/gigapi-dars/catalog"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/dap"
	"github.com/gigapi/gigapi-dars/slab"
	"github.com/husobee/vestigo"
	"github.com/urfave/negroni"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a data query when none is configured.
const DefaultTimeout = 30 * time.Second

// Server represents the DAP2 HTTP server
type Server struct {
	Catalog  *catalog.Catalog
	Resolver *slab.Resolver
	// Timeout is applied to every data query.
	Timeout time.Duration
	// RootURL prefixes the links of the dataset list.
	RootURL string
}

// NewServer creates a new server instance
func NewServer(cat *catalog.Catalog, resolver *slab.Resolver, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Server{Catalog: cat, Resolver: resolver, Timeout: timeout}
}

// ErrorResponse represents a JSON API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

var reqId int32

// Handler assembles the middleware stack and the routes.
func (s *Server) Handler() http.Handler {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.HandlerFunc(requestLogger))

	router := vestigo.NewRouter()
	s.setupRoutes(router)
	n.UseHandler(router)
	return n
}

func (s *Server) setupRoutes(router *vestigo.Router) {
	router.SetGlobalCors(&vestigo.CorsAccessControl{
		AllowOrigin:  []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		MaxAge:       3600 * time.Second,
		AllowHeaders: []string{"Content-Type"},
	})

	router.Get("/health", s.HandleHealth)
	router.Get("/data", s.HandleList)
	router.Get("/data/*", s.HandleDataset)
}

// requestLogger attaches a request scoped logger and logs every request
// once it is served.
func requestLogger(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqId, 1)))
	start := time.Now()
	next(w, r.WithContext(ctx))

	status := 0
	if rw, ok := w.(negroni.ResponseWriter); ok {
		status = rw.Status()
	}
	core.Logger(ctx).Desugar().Info("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)))
}

// HandleHealth handles the /health endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"datasets":  len(s.Catalog.Names()),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleList lists the published datasets in the format named by the
// format query parameter.
func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	fn, ok := formatters[format]
	if !ok {
		sendErrorResponse(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}

	names := s.Catalog.Names()
	list := make([]DatasetInfo, 0, len(names))
	for _, name := range names {
		e, ok := s.Catalog.Entry(name)
		if !ok {
			continue
		}
		base := strings.TrimSuffix(s.RootURL, "/") + "/data/" + name
		info := DatasetInfo{Name: name, Kind: e.Kind(), DAS: base + ".das", DDS: base + ".dds", DODS: base + ".dods"}
		if e.Aggregation == nil {
			info.Raw = base
		}
		list = append(list, info)
	}
	if err := fn(list, w); err != nil {
		core.Errorf(r.Context(), "failed to write dataset list: %v", err)
	}
}

type datasetHandler func(w http.ResponseWriter, r *http.Request, ds *catalog.Dataset) error

func (s *Server) responses() map[string]datasetHandler {
	return map[string]datasetHandler{
		".das":  s.das,
		".dds":  s.dds,
		".dods": s.dods,
	}
}

// HandleDataset dispatches /data/{name}[.das|.dds|.dods]. Without a
// response suffix the backing file is downloaded.
func (s *Server) HandleDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := strings.TrimPrefix(r.URL.Path, "/data/")

	handle := datasetHandler(s.raw)
	ext := path.Ext(name)
	if h, ok := s.responses()[ext]; ok {
		handle = h
		name = strings.TrimSuffix(name, ext)
	}

	ds, err := s.Catalog.Get(ctx, name)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	w.Header().Set("XDODS-Server", "gigapi-dars")
	if err := handle(w, r, ds); err != nil {
		s.writeError(ctx, w, err)
	}
}

func (s *Server) das(w http.ResponseWriter, r *http.Request, ds *catalog.Dataset) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Description", "dods-das")
	_, err := w.Write([]byte(dap.DAS(ds.Schema())))
	return err
}

func (s *Server) dds(w http.ResponseWriter, r *http.Request, ds *catalog.Dataset) error {
	c, err := dap.ParseConstraint(r.URL.RawQuery)
	if err != nil {
		return err
	}
	sels, err := dap.Select(ds.Schema(), c)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Description", "dods-dds")
	_, err = w.Write([]byte(dap.DDS(ds.Name, dap.Layout(ds.Schema(), sels))))
	return err
}

func (s *Server) dods(w http.ResponseWriter, r *http.Request, ds *catalog.Dataset) error {
	c, err := dap.ParseConstraint(r.URL.RawQuery)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()

	start := time.Now()
	body, err := dap.DODS(ctx, s.Resolver, ds.Source, c)
	if err != nil {
		return err
	}
	core.Debugf(ctx, "dods %s: %d bytes from %d members in %v", ds.Name, len(body), ds.Members, time.Since(start))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Description", "dods-data")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, err = w.Write(body)
	return err
}

// raw serves the backing file of a single file dataset.
func (s *Server) raw(w http.ResponseWriter, r *http.Request, ds *catalog.Dataset) error {
	if ds.Path == "" {
		return core.NewError(core.KindNotFound, "dataset %q has no single backing file", ds.Name)
	}
	f, err := s.Catalog.Fs().Open(ds.Path)
	if err != nil {
		return core.WrapError(core.KindAccess, err, "open %s", ds.Path)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return core.WrapError(core.KindAccess, err, "stat %s", ds.Path)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(ds.Path)))
	http.ServeContent(w, r, path.Base(ds.Path), st.ModTime(), f)
	return nil
}

// StatusCode maps an error kind to its HTTP status.
func StatusCode(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch core.KindOf(err) {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindParse, core.KindOutOfRange:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var dapQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// writeError sends a DAP2 error object. The kind is repeated in the
// X-DAP-Error-Kind header.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := StatusCode(err)
	kind := core.KindOf(err)
	if kind == "" {
		kind = core.KindAccess
	}
	if code >= http.StatusInternalServerError {
		core.Errorf(ctx, "request failed: %v", err)
	} else {
		core.Debugf(ctx, "request rejected: %v", err)
	}
	msg := fmt.Sprintf("%s: %s", kind, core.Message(err))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Description", "dods-error")
	w.Header().Set("X-DAP-Error-Kind", string(kind))
	w.WriteHeader(code)
	fmt.Fprintf(w, "Error {\n    code = %d;\n    message = \"%s\";\n};", code, dapQuoter.Replace(msg))
}

// sendErrorResponse sends a JSON error response
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
