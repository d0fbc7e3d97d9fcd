// Package server exposes the integrations API, the OAuth callback and operational
// endpoints over net/http.
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-integrations-server/identity"
	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	service  *integrations.Service
	verifier identity.Verifier
	metrics  http.Handler
	limit    RateLimitConfig

	rateLimit func(http.HandlerFunc) http.HandlerFunc
}

type Option func(*Server)

// WithMetrics serves gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
}

func WithRateLimit(limit RateLimitConfig) Option {
	return func(s *Server) {
		s.limit = limit
	}
}

func New(cfg config.Config, service *integrations.Service, verifier identity.Verifier, opts ...Option) (*Server, error) {
	if service == nil || verifier == nil {
		return nil, errors.New("[Server New] integrations service and identity verifier are required")
	}
	requests, window := cfg.GetRateLimit()
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		service:  service,
		verifier: verifier,
		limit:    RateLimitConfig{RequestsPerWindow: requests, Window: window, Burst: requests},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rateLimit = RateLimitByIP(s.limit)

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Info().Str("method", method).Msg(path)
	}
}
