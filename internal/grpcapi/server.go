// Package grpcapi provides the wlanmigrate relay: a gRPC endpoint that exposes
// a migration backend to remote wizard clients, over a unix socket, plain TCP
// for local use, or TCP with mutual TLS.
package grpcapi

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/pki"
)

// Server wraps the gRPC server and the relay handler.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	handler    *Handler
}

// ServerOptions returns the options every relay server needs.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(backend.JSONCodec{})}
}

// NewServer creates a relay bound to a unix socket.
func NewServer(socketPath string, svc *Service) (*Server, error) {
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	return NewServerWithListener(lis, svc), nil
}

// NewTCPServer creates a plaintext relay (for local/dev use only).
func NewTCPServer(addr string, svc *Service) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return NewServerWithListener(lis, svc), nil
}

// TLSConfig holds the mTLS configuration for the relay.
type TLSConfig struct {
	ServerCert *pki.CertBundle
	CACertPEM  []byte
}

// NewMTLSServer creates a relay with mutual TLS authentication.
// Client certificates must be signed by the same CA.
func NewMTLSServer(addr string, svc *Service, tlsCfg *TLSConfig) (*Server, error) {
	creds, err := pki.ServerTransportCredentials(tlsCfg.ServerCert, tlsCfg.CACertPEM)
	if err != nil {
		return nil, fmt.Errorf("configuring mTLS: %w", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return newServer(lis, svc, creds), nil
}

// NewServerWithListener serves on an existing listener without TLS.
func NewServerWithListener(lis net.Listener, svc *Service) *Server {
	return newServer(lis, svc, nil)
}

func newServer(lis net.Listener, svc *Service, creds credentials.TransportCredentials) *Server {
	opts := ServerOptions()
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}

	s := grpc.NewServer(opts...)
	h := NewHandler(svc)
	h.RegisterWithGRPC(s)

	return &Server{
		grpcServer: s,
		listener:   lis,
		handler:    h,
	}
}

// Serve starts serving gRPC requests.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Handler returns the JSON-RPC handler for direct access.
func (s *Server) Handler() *Handler {
	return s.handler
}
