package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/bibbank/invoice-anomaly/pkg/auth"
)

// AccessPolicy lists who may call each AnomalyService method. Health checks are public.
func AccessPolicy() auth.Policy {
	return auth.Policy{
		Public: []string{
			healthpb.Health_Check_FullMethodName,
			healthpb.Health_Watch_FullMethodName,
		},
		Methods: map[string][]string{
			MethodScoreBatch:         {auth.RoleIngest},
			MethodGetBatchAssessment: {auth.RoleReviewer, auth.RoleIngest},
			MethodGetInvoiceVerdict:  {auth.RoleReviewer, auth.RoleIngest},
		},
	}
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// Creds enables TLS when non-nil.
	Creds      credentials.TransportCredentials
	JWT        *auth.JWTService
	Reflection bool
}

// Server wraps the gRPC server with the anomaly service handlers.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
	address    string
}

// NewServer creates a new gRPC server for the anomaly service.
func NewServer(handler *AnomalyServiceHandler, address string, logger *slog.Logger, opts ServerOptions) *Server {
	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(auth.UnaryAuthInterceptor(opts.JWT, AccessPolicy())),
	}
	if opts.Creds != nil {
		serverOpts = append(serverOpts, grpc.Creds(opts.Creds))
		logger.Info("gRPC TLS enabled")
	} else {
		logger.Info("gRPC TLS not configured, running without TLS")
	}

	grpcServer := grpc.NewServer(serverOpts...)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	RegisterAnomalyServiceServer(grpcServer, handler)

	if opts.Reflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
		address:    address,
	}
}

// Start begins listening and serving gRPC requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("gRPC server starting", slog.String("address", listener.Addr().String()))
	return s.grpcServer.Serve(listener)
}

// Stop marks the service as not serving and gracefully stops the server.
func (s *Server) Stop() {
	s.logger.Info("gRPC server shutting down")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
