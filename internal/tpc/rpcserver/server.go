package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
)

// Page sizes.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
	streamBatch     = 256
)

// ClusterStore is the read side of the results database.
type ClusterStore interface {
	ListRuns(ctx context.Context) ([]*sqlite.Run, error)
	ListClusters(ctx context.Context, f sqlite.ClusterFilter) ([]*sqlite.StoredCluster, error)
}

var _ ClusterStore = (*sqlite.Store)(nil)

// Service implements ClusterServiceServer over a ClusterStore.
type Service struct {
	store ClusterStore
}

var _ ClusterServiceServer = (*Service)(nil)

// NewService returns a service reading from store.
func NewService(store ClusterStore) *Service {
	return &Service{store: store}
}

// ListRuns implements ClusterServiceServer.
func (s *Service) ListRuns(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list runs: %v", err)
	}
	list := make([]any, 0, len(runs))
	for _, r := range runs {
		m, err := toMap(r)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode run %s: %v", r.RunID, err)
		}
		list = append(list, m)
	}
	out, err := structpb.NewStruct(map[string]any{"runs": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode runs: %v", err)
	}
	return out, nil
}

// ListClusters implements ClusterServiceServer. The limit defaults to
// DefaultPageSize and is capped at MaxPageSize; next_after_id is set when a
// full page was returned.
func (s *Service) ListClusters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := FilterFromRequest(req)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}

	clusters, err := s.store.ListClusters(ctx, f)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list clusters: %v", err)
	}
	list := make([]any, 0, len(clusters))
	for _, c := range clusters {
		m, err := toMap(c)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode cluster %d: %v", c.ClusterID, err)
		}
		list = append(list, m)
	}
	resp := map[string]any{"clusters": list}
	if len(clusters) == f.Limit {
		resp["next_after_id"] = float64(clusters[len(clusters)-1].ClusterID)
	}
	out, err := structpb.NewStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode clusters: %v", err)
	}
	return out, nil
}

// StreamClusters implements ClusterServiceServer. It pages through the
// store until the filter is exhausted or the request limit is reached.
func (s *Service) StreamClusters(req *structpb.Struct, stream ClusterService_StreamClustersServer) error {
	f, err := FilterFromRequest(req)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	total := f.Limit
	sent := 0
	monitoring.Logf("[gRPC] StreamClusters started: run=%q view=%q label=%q limit=%d", f.RunID, f.View, f.Label, total)

	for {
		page := f
		page.Limit = streamBatch
		if total > 0 && total-sent < page.Limit {
			page.Limit = total - sent
		}
		clusters, err := s.store.ListClusters(ctx, page)
		if err != nil {
			return status.Errorf(codes.Internal, "list clusters: %v", err)
		}
		for _, c := range clusters {
			if err := ctx.Err(); err != nil {
				return status.FromContextError(err).Err()
			}
			m, err := toMap(c)
			if err != nil {
				return status.Errorf(codes.Internal, "encode cluster %d: %v", c.ClusterID, err)
			}
			msg, err := structpb.NewStruct(m)
			if err != nil {
				return status.Errorf(codes.Internal, "encode cluster %d: %v", c.ClusterID, err)
			}
			if err := stream.Send(msg); err != nil {
				monitoring.Logf("[gRPC] Send error: %v", err)
				return err
			}
			sent++
		}
		if len(clusters) < page.Limit || (total > 0 && sent >= total) {
			break
		}
		f.AfterID = clusters[len(clusters)-1].ClusterID
	}
	monitoring.Logf("[gRPC] StreamClusters finished: %d clusters", sent)
	return nil
}

// FilterFromRequest reads run_id, event, view, label, limit and after_id
// from a request struct. Missing fields match everything.
func FilterFromRequest(req *structpb.Struct) (sqlite.ClusterFilter, error) {
	var f sqlite.ClusterFilter
	fields := req.GetFields()

	strField := func(name string, dst *string) error {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return status.Errorf(codes.InvalidArgument, "%s must be a string", name)
		}
		*dst = sv.StringValue
		return nil
	}
	intField := func(name string) (int64, bool, error) {
		v, ok := fields[name]
		if !ok {
			return 0, false, nil
		}
		nv, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, false, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
		}
		n := nv.NumberValue
		if n != math.Trunc(n) || n < 0 {
			return 0, false, status.Errorf(codes.InvalidArgument, "%s must be a non-negative integer, got %v", name, n)
		}
		return int64(n), true, nil
	}

	for name, dst := range map[string]*string{"run_id": &f.RunID, "view": &f.View, "label": &f.Label} {
		if err := strField(name, dst); err != nil {
			return f, err
		}
	}
	if ev, ok, err := intField("event"); err != nil {
		return f, err
	} else if ok {
		f.Event = &ev
	}
	limit, _, err := intField("limit")
	if err != nil {
		return f, err
	}
	f.Limit = int(limit)
	if f.AfterID, _, err = intField("after_id"); err != nil {
		return f, err
	}
	return f, nil
}

// toMap converts v to the generic form accepted by structpb.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Server owns the gRPC listener for a Service.
type Server struct {
	addr     string
	svc      *Service
	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewServer returns a server for store that will listen on addr.
func NewServer(store ClusterStore, addr string) *Server {
	return &Server{addr: addr, svc: NewService(store)}
}

// Start binds addr and serves in the background.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(lis net.Listener) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}
	s.listener = lis
	s.server = grpc.NewServer()
	RegisterClusterServiceServer(s.server, s.svc)
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[gRPC] cluster service listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	s.server.GracefulStop()
	s.wg.Wait()
	monitoring.Logf("[gRPC] cluster service stopped")
}
