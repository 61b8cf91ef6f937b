// Package server exposes the conversational pipeline over HTTP: an
// authenticated, rate-limited SSE chat endpoint plus health and metrics.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsight-core/server/internal/assistant/graph"
	"github.com/finsight-core/server/internal/core"
	"github.com/finsight-core/server/internal/ratelimit"
	logx "github.com/finsight-core/server/pkg/logger"
)

// Config holds HTTP server settings, sourced from environment variables.
type Config struct {
	Addr string `envconfig:"SERVER_ADDR" default:":8080"`
	// AuthTokens is a comma separated list of token:identity pairs.
	AuthTokens string `envconfig:"AUTH_TOKENS"`
}

type Server struct {
	router  *chi.Mux
	runner  graph.Runner
	limiter *ratelimit.Limiter
	auth    IdentityProvider
	env     core.Environment
}

func New(runner graph.Runner, limiter *ratelimit.Limiter, auth IdentityProvider, env core.Environment) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		runner:  runner,
		limiter: limiter,
		auth:    auth,
		env:     env,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.auth))
		r.Post("/chat", s.handleChat)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// accessLogger logs one line per request.
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logx.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("access")
		}()

		next.ServeHTTP(ww, r)
	})
}
