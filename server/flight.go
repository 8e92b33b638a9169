package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/flight"
	flightgen "github.com/apache/arrow/go/v14/arrow/flight/gen/flight"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/gigapi/gigapi-dars/catalog"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/dap"
	"github.com/gigapi/gigapi-dars/schema"
	"github.com/gigapi/gigapi-dars/slab"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Schema metadata keys of a flight record.
const (
	MetaDataset = "dataset"
	MetaDims    = "dims"
	MetaShape   = "shape"
	MetaDAPType = "dap_type"
)

// FlightServer streams hyperslabs as single column Arrow records. A
// ticket is "dataset?variable[sel]..." with the same constraint syntax as
// a data query.
type FlightServer struct {
	flightgen.UnimplementedFlightServiceServer
	catalog  *catalog.Catalog
	resolver *slab.Resolver
	timeout  time.Duration
	mem      memory.Allocator
	// Location is advertised in flight endpoints, empty for "this server".
	Location string
}

var flightReqId int32

// NewFlightServer creates a new flight server instance
func NewFlightServer(cat *catalog.Catalog, resolver *slab.Resolver, timeout time.Duration) *FlightServer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FlightServer{
		catalog:  cat,
		resolver: resolver,
		timeout:  timeout,
		mem:      memory.DefaultAllocator,
	}
}

func flightContext(parent context.Context) context.Context {
	return core.WithDefaultLogger(parent, fmt.Sprintf("flight-%d", atomic.AddInt32(&flightReqId, 1)))
}

// grpcError maps an error kind to a gRPC status.
func grpcError(err error) error {
	switch StatusCode(err) {
	case http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	case http.StatusGatewayTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// Ticket builds the ticket of a constrained variable.
func Ticket(dataset, ce string) *flight.Ticket {
	return &flight.Ticket{Ticket: []byte(dataset + "?" + ce)}
}

func (s *FlightServer) endpoint(dataset, ce string) *flight.FlightEndpoint {
	ep := &flight.FlightEndpoint{Ticket: Ticket(dataset, ce)}
	if s.Location != "" {
		ep.Location = []*flight.Location{{Uri: s.Location}}
	}
	return ep
}

// selection resolves a dataset and a constraint naming exactly one
// variable.
func (s *FlightServer) selection(ctx context.Context, dataset, ce string) (*catalog.Dataset, dap.Selection, error) {
	ds, err := s.catalog.Get(ctx, dataset)
	if err != nil {
		return nil, dap.Selection{}, err
	}
	c, err := dap.ParseConstraint(ce)
	if err != nil {
		return nil, dap.Selection{}, err
	}
	if len(c) != 1 {
		return nil, dap.Selection{}, core.NewError(core.KindParse, "a flight selects exactly one variable, got %d", len(c))
	}
	sels, err := dap.Select(ds.Schema(), c)
	if err != nil {
		return nil, dap.Selection{}, err
	}
	return ds, sels[0], nil
}

// ListFlights announces one flight per dataset with one endpoint per
// variable.
func (s *FlightServer) ListFlights(criteria *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	ctx := flightContext(stream.Context())
	for _, name := range s.catalog.Names() {
		ds, err := s.catalog.Get(ctx, name)
		if err != nil {
			core.Warnf(ctx, "ListFlights: skipping %s: %v", name, err)
			continue
		}
		info := &flight.FlightInfo{
			FlightDescriptor: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{name}},
			TotalRecords:     -1,
			TotalBytes:       -1,
		}
		for _, v := range ds.Schema().Variables() {
			info.Endpoint = append(info.Endpoint, s.endpoint(name, v.Name))
		}
		if err := stream.Send(info); err != nil {
			return err
		}
	}
	return nil
}

// GetFlightInfo describes the flight of a path descriptor
// [dataset, variable[sel]...].
func (s *FlightServer) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	ctx = flightContext(ctx)
	if desc.Type != flight.DescriptorPATH || len(desc.Path) != 2 {
		return nil, status.Errorf(codes.InvalidArgument, "expected a path descriptor [dataset, variable], got %v %v", desc.Type, desc.Path)
	}
	ds, sel, err := s.selection(ctx, desc.Path[0], desc.Path[1])
	if err != nil {
		core.Debugf(ctx, "GetFlightInfo %v: %v", desc.Path, err)
		return nil, grpcError(err)
	}
	sc, err := arrowSchema(ds.Name, sel.Variable, sel.Shape())
	if err != nil {
		return nil, grpcError(err)
	}
	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(sc, s.mem),
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{s.endpoint(ds.Name, desc.Path[1])},
		TotalRecords:     int64(schema.Count(sel.Ranges)),
		TotalBytes:       -1,
	}, nil
}

// DoGet streams the hyperslab named by the ticket.
func (s *FlightServer) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := flightContext(stream.Context())
	name, ce, ok := strings.Cut(string(ticket.Ticket), "?")
	if !ok {
		return status.Errorf(codes.InvalidArgument, "malformed ticket %q", ticket.Ticket)
	}
	ds, sel, err := s.selection(ctx, name, ce)
	if err != nil {
		return grpcError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	a, err := s.resolver.Read(ctx, ds.Source, sel.Variable.Name, sel.Ranges)
	if err != nil {
		core.Errorf(ctx, "DoGet %s: %v", ticket.Ticket, err)
		return grpcError(err)
	}
	rec, err := convertArrayToArrow(s.mem, ds.Name, sel.Variable, a)
	if err != nil {
		return grpcError(err)
	}
	defer rec.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	core.Debugf(ctx, "DoGet %s: %d values", ticket.Ticket, rec.NumRows())
	return writer.Close()
}

var arrowTypes = map[schema.DataType]arrow.DataType{
	schema.Byte:    arrow.PrimitiveTypes.Uint8,
	schema.Char:    arrow.PrimitiveTypes.Uint8,
	schema.Int8:    arrow.PrimitiveTypes.Int8,
	schema.Int16:   arrow.PrimitiveTypes.Int16,
	schema.UInt16:  arrow.PrimitiveTypes.Uint16,
	schema.Int32:   arrow.PrimitiveTypes.Int32,
	schema.UInt32:  arrow.PrimitiveTypes.Uint32,
	schema.Int64:   arrow.PrimitiveTypes.Int64,
	schema.UInt64:  arrow.PrimitiveTypes.Uint64,
	schema.Float32: arrow.PrimitiveTypes.Float32,
	schema.Float64: arrow.PrimitiveTypes.Float64,
	schema.String:  arrow.BinaryTypes.String,
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// arrowSchema is the one column schema of a variable. The hyperslab is
// flattened in row-major order; its dimensions and shape are metadata.
func arrowSchema(dataset string, v schema.Variable, shape []int) (*arrow.Schema, error) {
	dt, ok := arrowTypes[v.Type]
	if !ok {
		return nil, fmt.Errorf("no arrow type for %s", v.Type)
	}
	md := arrow.NewMetadata(
		[]string{MetaDataset, MetaDims, MetaShape, MetaDAPType},
		[]string{dataset, strings.Join(v.Dims, ","), joinInts(shape), dap.TypeName(v.Type)},
	)
	return arrow.NewSchema([]arrow.Field{{Name: v.Name, Type: dt}}, &md), nil
}

// convertArrayToArrow copies a hyperslab into an Arrow record.
func convertArrayToArrow(mem memory.Allocator, dataset string, v schema.Variable, a *schema.Array) (arrow.Record, error) {
	sc, err := arrowSchema(dataset, v, a.Shape)
	if err != nil {
		return nil, err
	}
	b := array.NewBuilder(mem, sc.Field(0).Type)
	defer b.Release()

	switch builder := b.(type) {
	case *array.Uint8Builder:
		builder.AppendValues(a.Values().([]uint8), nil)
	case *array.Int8Builder:
		builder.AppendValues(a.Values().([]int8), nil)
	case *array.Int16Builder:
		builder.AppendValues(a.Values().([]int16), nil)
	case *array.Uint16Builder:
		builder.AppendValues(a.Values().([]uint16), nil)
	case *array.Int32Builder:
		builder.AppendValues(a.Values().([]int32), nil)
	case *array.Uint32Builder:
		builder.AppendValues(a.Values().([]uint32), nil)
	case *array.Int64Builder:
		builder.AppendValues(a.Values().([]int64), nil)
	case *array.Uint64Builder:
		builder.AppendValues(a.Values().([]uint64), nil)
	case *array.Float32Builder:
		builder.AppendValues(a.Values().([]float32), nil)
	case *array.Float64Builder:
		builder.AppendValues(a.Values().([]float64), nil)
	case *array.StringBuilder:
		builder.AppendValues(a.Values().([]string), nil)
	default:
		return nil, fmt.Errorf("unsupported builder %T for %s", b, a.Type)
	}

	col := b.NewArray()
	defer col.Release()
	return array.NewRecord(sc, []arrow.Array{col}, int64(col.Len())), nil
}

// RegisterFlightServer registers the flight service and reflection.
func RegisterFlightServer(s *grpc.Server, fs *FlightServer) {
	flightgen.RegisterFlightServiceServer(s, fs)
	reflection.Register(s)
}

// StartFlightServer serves flights on port until the listener fails.
func StartFlightServer(ctx context.Context, port int, fs *FlightServer) error {
	s := grpc.NewServer()
	RegisterFlightServer(s, fs)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	core.Infof(ctx, "Flight server listening on port %d", port)
	return s.Serve(lis)
}
