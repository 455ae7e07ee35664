// Package httpserver exposes metrics, health and optional pprof over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "botmon/internal/runtime/supervisor"
	logx "botmon/pkg/logx"
)

// Config controls the operator HTTP server.
//
// A non-loopback Addr with Pprof enabled requires a Token.
type Config struct {
	Enabled     bool
	Addr        string
	MetricsPath string
	Pprof       bool
	Token       string
}

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return "127.0.0.1:9464"
}

func (c Config) metricsPath() string {
	p := strings.TrimSpace(c.MetricsPath)
	if p == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	cfg     Config
	metrics http.Handler
	ready   ReadyFunc

	srv *http.Server
	ln  net.Listener
	sup *rtsup.Supervisor
}

func New(cfg Config, metrics http.Handler, ready ReadyFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, metrics: metrics, ready: ready, log: log.With(logx.String("comp", "httpserver"))}
}

// Addr is the bound listener address, empty when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Apply reconfigures the server, restarting it when the listener or routes change.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		if err := s.Start(ctx); err != nil {
			s.log.Error("http server start failed", logx.Err(err))
		}
	case prev != cfg:
		s.Stop(ctx)
		if err := s.Start(ctx); err != nil {
			s.log.Error("http server restart failed", logx.Err(err))
		}
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil || !s.cfg.Enabled {
		return nil
	}
	cfg := s.cfg
	addr := cfg.addr()
	if cfg.Pprof && cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("pprof on a non-loopback address requires metrics.token")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           NewRouter(cfg, s.metrics, s.ready),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.ln, s.srv = ln, srv
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go("http.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	s.log.Info("http server started",
		logx.String("addr", ln.Addr().String()),
		logx.String("metrics", cfg.metricsPath()),
		logx.Bool("pprof", cfg.Pprof),
	)
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.ln, s.sup = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("http server stopped")
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
