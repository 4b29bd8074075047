package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// APIPrefix is the mount point of the resource routes.
const APIPrefix = "/api/v1"

// Config holds everything the HTTP layer serves.
type Config struct {
	// Services are mounted under APIPrefix by collection name.
	Services map[string]simplelisting.Service
	Media    *simplelisting.MediaResolver
	Auth     *Authenticator
	Metrics  *PrometheusCollector
	Logger   *slog.Logger

	MaxUploadBytes int64
	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string
	// Ready backs /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter returns a router serving cfg, including health routes.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()
	RoutesHealth(r, cfg.Ready)
	Mount(r, cfg)
	return r
}

// Mount registers the media, metrics and resource routes on r. Middleware is
// scoped to a group so r may already carry routes.
func Mount(r chi.Router, cfg Config) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator("", logger)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(LoggingMiddleware(logger))
		r.Use(RecoveryMiddleware(logger))
		if cfg.Metrics != nil {
			r.Use(MetricsMiddleware(cfg.Metrics))
		}
		if len(cfg.AllowedOrigins) > 0 {
			r.Use(CORSMiddleware(cfg.AllowedOrigins))
		}

		if cfg.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
		}
		if cfg.Media != nil {
			NewFilesHandler(cfg.Media, logger).Register(r)
		}

		r.Route(APIPrefix, func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Use(RequestSizeLimitMiddleware(cfg.MaxUploadBytes))

			collections := make([]string, 0, len(cfg.Services))
			for name := range cfg.Services {
				collections = append(collections, name)
			}
			sort.Strings(collections)
			for _, name := range collections {
				r.Mount("/"+name, NewResourceHandler(cfg.Services[name], logger).Routes())
				logger.Debug("mounted resource routes", "path", APIPrefix+"/"+name)
			}
		})
	})
}

// RoutesHealth registers /healthz and /readyz.
func RoutesHealth(r chi.Router, ready func(ctx context.Context) error) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
	RoutesReady(r, ready)
}

// RoutesReady registers /readyz, failing with 503 while ready reports an error.
func RoutesReady(r chi.Router, ready func(ctx context.Context) error) {
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				render.Status(r, http.StatusServiceUnavailable)
				render.PlainText(w, r, err.Error())
				return
			}
		}
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
}
