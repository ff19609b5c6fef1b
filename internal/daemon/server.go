package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/gitops"
	"github.com/patchpilot/patchpilot/internal/llm/configbuilder"
	"github.com/patchpilot/patchpilot/internal/observability"
	"github.com/patchpilot/patchpilot/internal/orchestrator"
	coderpc "github.com/patchpilot/patchpilot/internal/rpc/code"
	toolrpc "github.com/patchpilot/patchpilot/internal/rpc/tools"
	"github.com/patchpilot/patchpilot/internal/sandbox"
	"github.com/patchpilot/patchpilot/internal/semantic"
	"github.com/patchpilot/patchpilot/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the coding-session endpoint plus health and metrics.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  coderpc.Runner
	metrics *observability.Metrics
}

// NewServer constructs a daemon instance with all session collaborators.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	factory, err := sandbox.NewFactory(cfg.Sandbox, logger)
	if err != nil {
		return nil, fmt.Errorf("build sandbox factory: %w", err)
	}

	metrics := observability.NewMetrics()
	orch := orchestrator.New(orchestrator.Options{
		Config:    cfg.Orchestrator,
		Factory:   factory,
		Registry:  registry,
		Publisher: gitops.NewPublisher(cfg.Git, logger),
		Engine:    semantic.NewEngine(cfg.Orchestrator.MaxContextFiles*10, cfg.Orchestrator.MaxFileBytes),
		Sink:      telemetry.NewZapSink(logger),
		Metrics:   metrics,
		Logger:    logger,
	})

	runner := &coderpc.SessionRunner{Orchestrator: orch}

	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics}, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// fatal error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/tools/schemas", toolrpc.SchemaHandler{})

	transport := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	switch transport {
	case "ndjson":
		mux.Handle("/code", coderpc.NewHandler(s.runner, coderpc.FramingNDJSON, s.metrics))
	case "connect":
		path, handler := coderpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
		// Plain SSE stays available alongside the Connect procedure.
		mux.Handle("/code", coderpc.NewHandler(s.runner, coderpc.FramingSSE, s.metrics))
	default:
		mux.Handle("/code", coderpc.NewHandler(s.runner, coderpc.FramingSSE, s.metrics))
	}

	handler := http.Handler(mux)
	if transport == "connect" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting patchpilot daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.cfg.Server.Transport))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down patchpilot daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
