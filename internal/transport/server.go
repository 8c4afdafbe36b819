// Package transport exposes the dispatcher as MCP tools over stdio, SSE or
// streamable HTTP. The HTTP transports share one chi router that also serves
// /metrics and /healthz.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/insights-mcp/internal/config"
	"github.com/ggonzalez94/insights-mcp/internal/dispatch"
	"github.com/ggonzalez94/insights-mcp/internal/metrics"
	"github.com/ggonzalez94/insights-mcp/internal/version"
)

// MCPPath is where the SSE and streamable HTTP transports are mounted.
const MCPPath = "/mcp"

type Options struct {
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// CallTimeout bounds each invoke_resource_action call; zero leaves it unbounded.
	CallTimeout time.Duration
}

type Server struct {
	dispatcher  *dispatch.Dispatcher
	mcp         *server.MCPServer
	metrics     *metrics.Metrics
	log         zerolog.Logger
	callTimeout time.Duration
}

func New(d *dispatch.Dispatcher, opts Options) *Server {
	s := &Server{
		dispatcher:  d,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		callTimeout: opts.CallTimeout,
	}
	s.mcp = server.NewMCPServer(
		version.CLIName,
		version.CLIVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler builds the HTTP router for the sse or http transport.
func (s *Server) Handler(transport string) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	switch transport {
	case config.TransportSSE:
		sse := server.NewSSEServer(s.mcp, server.WithStaticBasePath(MCPPath))
		r.Handle(MCPPath+"/*", sse)
	case config.TransportHTTP:
		streamable := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(MCPPath))
		r.Handle(MCPPath, streamable)
	default:
		return nil, fmt.Errorf("transport %q has no HTTP handler", transport)
	}
	return r, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Serve runs the selected transport until ctx is cancelled or the transport fails.
func (s *Server) Serve(ctx context.Context, transport, addr string, stdin io.Reader, stdout io.Writer) error {
	if transport == config.TransportStdio {
		s.log.Info().Msg("serving MCP over stdio")
		stdio := server.NewStdioServer(s.mcp)
		err := stdio.Listen(ctx, stdin, stdout)
		if err != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	handler, err := s.Handler(transport)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("transport", transport).Str("addr", addr).Str("path", MCPPath).Msg("serving MCP over HTTP")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
