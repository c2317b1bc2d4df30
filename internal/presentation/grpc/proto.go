package grpc

// proto.go hand-writes the service descriptor of anomaly/v1/anomaly.proto. Messages are
// plain Go structs carried by the JSON codec registered in codec.go.

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "anomaly.v1.AnomalyService"

// Full method names, as seen by interceptors.
const (
	MethodScoreBatch         = "/" + ServiceName + "/ScoreBatch"
	MethodGetBatchAssessment = "/" + ServiceName + "/GetBatchAssessment"
	MethodGetInvoiceVerdict  = "/" + ServiceName + "/GetInvoiceVerdict"
)

// AnomalyServiceServer is the server API for AnomalyService.
type AnomalyServiceServer interface {
	ScoreBatch(context.Context, *ScoreBatchRequest) (*ScoreBatchResponse, error)
	GetBatchAssessment(context.Context, *GetBatchAssessmentRequest) (*GetBatchAssessmentResponse, error)
	GetInvoiceVerdict(context.Context, *GetInvoiceVerdictRequest) (*GetInvoiceVerdictResponse, error)
	mustEmbedUnimplementedAnomalyServiceServer()
}

// UnimplementedAnomalyServiceServer provides forward-compatible default implementations.
type UnimplementedAnomalyServiceServer struct{}

func (UnimplementedAnomalyServiceServer) ScoreBatch(context.Context, *ScoreBatchRequest) (*ScoreBatchResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ScoreBatch not implemented")
}
func (UnimplementedAnomalyServiceServer) GetBatchAssessment(context.Context, *GetBatchAssessmentRequest) (*GetBatchAssessmentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetBatchAssessment not implemented")
}
func (UnimplementedAnomalyServiceServer) GetInvoiceVerdict(context.Context, *GetInvoiceVerdictRequest) (*GetInvoiceVerdictResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetInvoiceVerdict not implemented")
}
func (UnimplementedAnomalyServiceServer) mustEmbedUnimplementedAnomalyServiceServer() {}

// RegisterAnomalyServiceServer registers srv with the gRPC server.
func RegisterAnomalyServiceServer(s grpclib.ServiceRegistrar, srv AnomalyServiceServer) {
	s.RegisterService(&anomalyServiceDesc, srv)
}

var anomalyServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnomalyServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "ScoreBatch", Handler: scoreBatchHandler},
		{MethodName: "GetBatchAssessment", Handler: getBatchAssessmentHandler},
		{MethodName: "GetInvoiceVerdict", Handler: getInvoiceVerdictHandler},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "anomaly/v1/anomaly.proto",
}

func scoreBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(ScoreBatchRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnomalyServiceServer).ScoreBatch(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodScoreBatch}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnomalyServiceServer).ScoreBatch(ctx, req.(*ScoreBatchRequest))
	})
}

func getBatchAssessmentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(GetBatchAssessmentRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnomalyServiceServer).GetBatchAssessment(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodGetBatchAssessment}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnomalyServiceServer).GetBatchAssessment(ctx, req.(*GetBatchAssessmentRequest))
	})
}

func getInvoiceVerdictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(GetInvoiceVerdictRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnomalyServiceServer).GetInvoiceVerdict(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodGetInvoiceVerdict}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnomalyServiceServer).GetInvoiceVerdict(ctx, req.(*GetInvoiceVerdictRequest))
	})
}
