// Package api exposes the funnel over HTTP next to the ops endpoints.
package api

import (
	"context"
	"errors"
	"net/http"

	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/emi"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/verification"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

// StepPublisher is told about every transition made over HTTP.
type StepPublisher interface {
	PublishStep(ctx context.Context, applicationID string, tr *flow.Transition) error
}

type Options struct {
	Controller   *flow.Controller
	Verification *verification.Service
	Calculator   emi.Product
	Publisher    StepPublisher
	Checks       map[string]CheckFunc
	Logger       logger.Logger
}

type Handler struct {
	ctrl       *flow.Controller
	verify     *verification.Service
	calculator emi.Product
	publisher  StepPublisher
	checks     map[string]CheckFunc
	logger     logger.Logger
}

func NewHandler(opts Options) (*Handler, error) {
	if opts.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if opts.Verification == nil {
		return nil, errors.New("verification service is required")
	}
	if opts.Calculator.MaxAmount == 0 {
		opts.Calculator = emi.FreeCalculator
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Handler{
		ctrl:       opts.Controller,
		verify:     opts.Verification,
		calculator: opts.Calculator,
		publisher:  opts.Publisher,
		checks:     opts.Checks,
		logger:     opts.Logger,
	}, nil
}

// NewRouter registers the ops and funnel routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/flows/{flow}/sessions", h.startSession)
		r.Get("/emi", h.calculateEMI)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.enter)
			r.Patch("/draft", h.edit)
			r.Post("/continue", h.continueStep)
			r.Post("/back", h.back)
			r.Get("/otp", h.otpStatus)
			r.Post("/otp", h.issueOTP)
			r.Post("/otp/verify", h.verifyOTP)
			r.Post("/permissions", h.reportPermissions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "The page you are looking for does not exist")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
	return r
}
