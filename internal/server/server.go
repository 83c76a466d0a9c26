// Package server serves the HTTP API and the gRPC admin service on a single
// port, routing connections by protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// ShutdownTimeout bounds the graceful stop of both servers.
const ShutdownTimeout = 10 * time.Second

// Server multiplexes HTTP/1.1 and gRPC connections from one listener.
type Server struct {
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New returns a stopped server. hs may be nil.
func New(handler http.Handler, gs *grpc.Server, hs *health.Server, log *zap.Logger) *Server {
	return &Server{
		http: &http.Server{
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      2 * time.Minute, // manual ingestion runs inside the request
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		grpc:   gs,
		health: hs,
		log:    log.Named("server"),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled, then
// shuts both servers down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve routes connections accepted on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	m := cmux.New(lis)
	// gRPC clients wait for the server SETTINGS frame before sending headers.
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	errCh := make(chan error, 3)
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.grpc.Serve(grpcL); err != nil && !closed(err) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !closed(err) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := m.Serve(); err != nil && !closed(err) {
			errCh <- fmt.Errorf("multiplexer: %w", err)
		}
	}()
	s.log.Info("listening", zap.String("address", lis.Addr().String()))

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.log.Error("server failed", zap.Error(serveErr))
	}
	s.shutdown()
	return serveErr
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) shutdown() {
	s.log.Info("shutting down")
	if s.health != nil {
		s.health.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.log.Warn("grpc graceful stop timed out")
		s.grpc.Stop()
	}

	if err := s.listener.Close(); err != nil && !closed(err) {
		s.log.Warn("close listener", zap.Error(err))
	}
	s.wg.Wait()
	s.log.Info("stopped")
}

func closed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, cmux.ErrListenerClosed) || errors.Is(err, cmux.ErrServerClosed) || errors.Is(err, grpc.ErrServerStopped)
}
