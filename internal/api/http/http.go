package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pharmadash/pharmadash-manager/internal/apisrv/dashboard"
	"github.com/pharmadash/pharmadash-manager/internal/dependency"
	"github.com/pharmadash/pharmadash-manager/internal/dto"
	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
	"github.com/pharmadash/pharmadash-manager/internal/ratelimit"
)

// Config is the configuration for the http server
type Config struct {
	Port           string   `mapstructure:"port"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RefreshPerMinute caps full dashboard refreshes per client; zero
	// disables the limit.
	RefreshPerMinute int `mapstructure:"refresh_per_minute"`
}

// Server is the http server
type Server struct {
	hs   *http.Server
	c    *Config
	done chan struct{}
}

// New creates a new server
func New(config *Config) *Server {
	return &Server{
		c:    config,
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the http server exits
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Start serves the dashboard API until the context is cancelled.
func (s *Server) Start(ctx context.Context, ds *dashboard.Server, repo dependency.Repository) error {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.c.AllowedOrigins,
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	h := &handlers{ds: ds, repo: repo}

	r.Get("/health", h.health)
	r.Route("/api/dashboard", func(r chi.Router) {
		if s.c.RefreshPerMinute > 0 {
			limiter := ratelimit.NewLimiter(time.Minute, s.c.RefreshPerMinute)
			r.With(ratelimit.Middleware(limiter)).Post("/refresh", h.refresh)
		} else {
			r.Post("/refresh", h.refresh)
		}
		r.Post("/summary", h.summary)
		r.Post("/stock", h.stock)
		r.Post("/margins", h.margins)
		r.Post("/price-deviation", h.priceDeviation)
		r.Post("/evolution", h.evolution)
	})
	r.Get("/api/pharmacies", h.pharmacies)

	addr := net.JoinHostPort(s.c.Address, s.c.Port)
	s.hs = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(s.done)
		slog.Default().InfoContext(ctx, "http server listening", slog.String("addr", addr))
		if err := s.hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().ErrorContext(ctx, "http server exited", slog.String("err", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.hs.Shutdown(shutdownCtx)
	}()

	return nil
}

type handlers struct {
	ds   *dashboard.Server
	repo dependency.Repository
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		respondError(w, r, gerr.ExecutionFailed("ping", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) pharmacies(w http.ResponseWriter, r *http.Request) {
	pharmacies, err := h.repo.Analytics().Pharmacies(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pharmacies)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	criteria, ok := h.criteria(w, r)
	if !ok {
		return
	}
	d, err := h.ds.Refresh(r.Context(), criteria)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	h.widget(w, r, func(ctx context.Context, c entity.FilterCriteria) (any, error) {
		return h.ds.Summary(ctx, c)
	})
}

func (h *handlers) stock(w http.ResponseWriter, r *http.Request) {
	h.widget(w, r, func(ctx context.Context, c entity.FilterCriteria) (any, error) {
		return h.ds.StockTiers(ctx, c)
	})
}

func (h *handlers) margins(w http.ResponseWriter, r *http.Request) {
	h.widget(w, r, func(ctx context.Context, c entity.FilterCriteria) (any, error) {
		return h.ds.MarginTiers(ctx, c)
	})
}

func (h *handlers) priceDeviation(w http.ResponseWriter, r *http.Request) {
	h.widget(w, r, func(ctx context.Context, c entity.FilterCriteria) (any, error) {
		return h.ds.PriceDeviationTiers(ctx, c)
	})
}

func (h *handlers) evolution(w http.ResponseWriter, r *http.Request) {
	h.widget(w, r, func(ctx context.Context, c entity.FilterCriteria) (any, error) {
		return h.ds.EvolutionTiers(ctx, c)
	})
}

func (h *handlers) widget(w http.ResponseWriter, r *http.Request, fn func(context.Context, entity.FilterCriteria) (any, error)) {
	criteria, ok := h.criteria(w, r)
	if !ok {
		return
	}
	res, err := fn(r.Context(), criteria)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// criteria decodes and validates the filter input. Validation failures stop
// here, before any query construction.
func (h *handlers) criteria(w http.ResponseWriter, r *http.Request) (entity.FilterCriteria, bool) {
	var req dto.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", gerr.ErrInvalidCriteria, err))
		return entity.FilterCriteria{}, false
	}
	criteria, err := req.ToCriteria()
	if err != nil {
		respondError(w, r, err)
		return entity.FilterCriteria{}, false
	}
	return criteria, true
}

type errResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// superseded run: silent, no result
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, gerr.ErrInvalidCriteria):
		respondJSON(w, http.StatusBadRequest, errResponse{Status: "invalid request", Error: err.Error()})
	case gerr.IsExecutionError(err):
		respondJSON(w, http.StatusServiceUnavailable, errResponse{Status: "data unavailable", Error: err.Error()})
	default:
		slog.Default().ErrorContext(r.Context(), "internal error", slog.String("err", err.Error()))
		respondJSON(w, http.StatusInternalServerError, errResponse{Status: http.StatusText(http.StatusInternalServerError)})
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
