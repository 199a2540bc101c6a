package grpc

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// ServiceName is the health check service name of the messaging gateway.
const ServiceName = "autoschool.chat.Messaging"

type Server struct {
	*grpc.Server
	Health *health.Server
	addr   net.Addr
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.addr.String()
}

// SetServing flips the reported status of the messaging service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus(ServiceName, status)
	s.Health.SetServingStatus("", status)
}

// Shutdown reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) Shutdown() {
	s.Health.Shutdown()
	s.GracefulStop()
}

func StartGRPCServer(addr string, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	srv := &Server{Server: s, Health: hs, addr: lis.Addr()}
	srv.SetServing(true)

	go func() {
		l := log.L()
		l.Info().Str("address", lis.Addr().String()).Msg("health grpc server listening")
		if err := s.Serve(lis); err != nil {
			l.Error().Err(err).Msg("grpc server error")
		}
	}()

	return srv, nil
}
