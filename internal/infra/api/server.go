package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"formative-compliance/internal/catalog"
	"formative-compliance/internal/usecase"
)

// CatalogReader is the read-only catalog surface served to the pricing page.
type CatalogReader interface {
	Industries() []catalog.Industry
	Stats() catalog.Stats
}

// Pinger is a readiness dependency such as the database or Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Entitlements usecase.EntitlementUseCase
	Generation   usecase.GenerationUseCase
	Documents    usecase.DocumentUseCase
	Checkout     usecase.CheckoutUseCase
	Billing      usecase.BillingUseCase
	Catalog      CatalogReader
	Auth         *AuthManager
	Limiter      Limiter
	Probes       map[string]Pinger
}

type Options struct {
	Port            int
	RequestTimeout  time.Duration
	GenerateTimeout time.Duration
	TrustProxy      bool
	AllowedOrigins  []string
}

// Server exposes the document API over HTTP.
type Server struct {
	entitlements usecase.EntitlementUseCase
	generation   usecase.GenerationUseCase
	documents    usecase.DocumentUseCase
	checkout     usecase.CheckoutUseCase
	billing      usecase.BillingUseCase
	catalog      CatalogReader
	auth         *AuthManager
	limiter      Limiter
	probes       map[string]Pinger
	opts         Options
	log          *zerolog.Logger
	server       *http.Server
}

func NewServer(d Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 5 * time.Minute
	}
	s := &Server{
		entitlements: d.Entitlements,
		generation:   d.Generation,
		documents:    d.Documents,
		checkout:     d.Checkout,
		billing:      d.Billing,
		catalog:      d.Catalog,
		auth:         d.Auth,
		limiter:      d.Limiter,
		probes:       d.Probes,
		opts:         opts,
		log:          logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Every /api/v1 route except the catalog and the payment
// webhook requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), ClientIP(s.opts.TrustProxy), RequestLog(s.log), Recover(s.log))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", traceHeader},
			ExposedHeaders:   []string{traceHeader, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	short := Timeout(s.opts.RequestTimeout)
	r.Route("/api/v1", func(r chi.Router) {
		r.With(short).Get("/catalog", s.handleCatalog)
		r.With(short).Post("/webhooks/stripe", s.handleStripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser(s.log))

			r.With(short).Get("/entitlements/status", s.handleEntitlementStatus)
			r.With(RateLimit(s.limiter, "generate", s.log), Timeout(s.opts.GenerateTimeout)).
				Post("/documents/generate", s.handleGenerate)
			r.With(short).Get("/documents", s.handleListDocuments)
			r.With(short).Get("/documents/stats", s.handleDocumentStats)
			r.With(short).Get("/documents/{id}/download", s.handleDownload)
			r.With(short).Delete("/documents/{id}", s.handleDeleteDocument)
			r.With(short).Get("/activity", s.handleActivity)
			r.With(RateLimit(s.limiter, "checkout", s.log), short).Post("/checkout", s.handleCheckout)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
