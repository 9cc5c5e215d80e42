// Package grpc hosts the admin gRPC endpoint: health checking and reflection.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type AdminServer struct {
	server *grpc.Server
	logger *slog.Logger
}

func NewAdminServer(hs *health.Server, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(s)

	return &AdminServer{server: s, logger: logger}
}

func (a *AdminServer) Serve(lis net.Listener) error {
	a.logger.Info("admin gRPC listening", slog.String("addr", lis.Addr().String()))
	if err := a.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("admin gRPC serve: %w", err)
	}
	return nil
}

// Stop drains in-flight RPCs until ctx expires, then forces the stop.
func (a *AdminServer) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.server.Stop()
	}
}
