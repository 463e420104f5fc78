// Package rpcserver serves stored cluster records over gRPC.
//
// The service has no generated stubs: messages are google.protobuf.Struct
// values holding the same snake_case fields as the JSON form of the records,
// and the service descriptor is registered by hand.
package rpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "tpc.clusters.v1.ClusterService"

	listRunsMethod       = "/" + serviceName + "/ListRuns"
	listClustersMethod   = "/" + serviceName + "/ListClusters"
	streamClustersMethod = "/" + serviceName + "/StreamClusters"
)

// ClusterServiceServer is the server API of the cluster service.
type ClusterServiceServer interface {
	// ListRuns returns {"runs": [...]}, newest first.
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListClusters returns one page {"clusters": [...], "next_after_id": n}.
	ListClusters(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// StreamClusters sends every matching cluster as its own message.
	StreamClusters(*structpb.Struct, ClusterService_StreamClustersServer) error
}

// ClusterService_StreamClustersServer is the server side of StreamClusters.
type ClusterService_StreamClustersServer = grpc.ServerStreamingServer[structpb.Struct]

// ClusterService_StreamClustersClient is the client side of StreamClusters.
type ClusterService_StreamClustersClient = grpc.ServerStreamingClient[structpb.Struct]

// RegisterClusterServiceServer registers srv on s.
func RegisterClusterServiceServer(s grpc.ServiceRegistrar, srv ClusterServiceServer) {
	s.RegisterService(&ClusterService_ServiceDesc, srv)
}

// ClusterService_ServiceDesc describes the cluster service to grpc.
var ClusterService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ClusterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRuns", Handler: listRunsHandler},
		{MethodName: "ListClusters", Handler: listClustersHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamClusters", Handler: streamClustersHandler, ServerStreams: true},
	},
	Metadata: "tpc/clusters/v1/clusters.proto",
}

func listRunsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterServiceServer).ListRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRunsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClusterServiceServer).ListRuns(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listClustersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterServiceServer).ListClusters(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listClustersMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClusterServiceServer).ListClusters(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamClustersHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ClusterServiceServer).StreamClusters(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ClusterServiceClient is the client API of the cluster service.
type ClusterServiceClient interface {
	ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListClusters(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	StreamClusters(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (ClusterService_StreamClustersClient, error)
}

type clusterServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewClusterServiceClient returns a client over cc.
func NewClusterServiceClient(cc grpc.ClientConnInterface) ClusterServiceClient {
	return &clusterServiceClient{cc}
}

func (c *clusterServiceClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listRunsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterServiceClient) ListClusters(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listClustersMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterServiceClient) StreamClusters(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (ClusterService_StreamClustersClient, error) {
	stream, err := c.cc.NewStream(ctx, &ClusterService_ServiceDesc.Streams[0], streamClustersMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
