package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-payments/internal/usecase"
)

// JobRunner triggers scheduled jobs on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
	Jobs() []string
}

// Deps are the collaborators behind the HTTP surface. Jobs and Ready are optional.
type Deps struct {
	Payments usecase.PaymentUseCase
	Stats    usecase.StatsUseCase
	Auth     *AuthManager
	Jobs     JobRunner
	Ready    func(ctx context.Context) error
}

type Options struct {
	FrontendURL    string
	RequestTimeout time.Duration
}

// Server exposes the payment engine over HTTP.
type Server struct {
	Deps
	opts     Options
	validate *validator.Validate
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		Deps:     deps,
		opts:     opts,
		validate: newValidator(),
		logger:   &l,
		now:      time.Now,
	}
}

// Routes builds the router. Middleware order: trace, log, recover, timeout.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.logger), Recover(s.logger), Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/initiate-payment", s.handleInitiate)
	r.Get("/verify", s.handleVerify)
	r.Get("/payment/callback", s.handleCallback)
	r.Post("/payment/webhook", s.handleWebhook)
	r.Get("/payment-status", s.handlePaymentStatus)
	r.Get("/payment-link", s.handlePaymentLink)
	r.Get("/purchase-status", s.handlePurchaseStatus)

	r.Route("/admin", func(r chi.Router) {
		r.With(s.Auth.RequireAdmin("payments")).Get("/payments", s.handleAdminPayments)
		r.With(s.Auth.RequireAdmin("stats")).Get("/payments/stats", s.handleAdminStats)
		r.With(s.Auth.RequireAdmin("jobs")).Get("/jobs", s.handleAdminJobs)
		r.With(s.Auth.RequireAdmin("jobs")).Post("/jobs/{name}/run", s.handleAdminRunJob)
	})
	return r
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewHTTPServer wraps the router with the listener timeouts used in production.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
