package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricsPath = "/metrics"

// Server exposes the default prometheus registry over HTTP.
type Server struct {
	addr   string
	log    *zap.Logger
	srv    *http.Server
	ln     net.Listener
	doneCh chan struct{}
}

// NewServer returns a server for addr. An empty addr yields a server whose
// Start and Stop do nothing.
func NewServer(addr string, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	handler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
	mux.Handle(metricsPath, Middleware(handler, metricsPath))
	return &Server{
		addr: addr,
		log:  log.Named("metrics"),
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Enabled reports whether a listen address was configured.
func (s *Server) Enabled() bool {
	return s.addr != ""
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if !s.Enabled() {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	s.log.Info("Serving metrics", zap.String("address", s.Addr()), zap.String("path", metricsPath))
	return nil
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.doneCh
	return err
}
