package database

import (
	"fmt"
	"net"

	"video_processor_worker/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCHealthServer create grpc server with the standard health service registered
func NewGRPCHealthServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return grpcServer, healthServer
}

// ServeGRPC listen addr and serve, blocks until Stop
func ServeGRPC(grpcServer *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen [%s]: %w", addr, err)
	}
	logger.Log.Info(fmt.Sprintf("gRPC health server listening on : %s", addr))
	return grpcServer.Serve(lis)
}
