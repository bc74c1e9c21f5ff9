// Package api serves a read-only JSON view of the metadata catalog.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mdstore/internal/domain"
	"mdstore/internal/metrics"
	"mdstore/internal/middleware"
	"mdstore/internal/service/catalog"
)

// Catalog is the read side of the metadata store used by the handlers.
type Catalog interface {
	Schemas(ctx context.Context) ([]*domain.Target, error)
	SchemaByID(ctx context.Context, id domain.ID) (*domain.Target, error)
	TargetByID(ctx context.Context, id domain.ID) (*domain.Target, error)
	Tables(ctx context.Context, schemaID domain.ID) ([]*domain.Target, error)
	Columns(ctx context.Context, tableID domain.ID) ([]*domain.Target, error)
	SchemasByName(ctx context.Context, name string) ([]*domain.Target, error)
	FindTablesByName(ctx context.Context, name string) ([]*domain.Target, error)
	FindColumnsByName(ctx context.Context, name string) ([]*domain.Target, error)
	ConstraintCollections() []*domain.ConstraintCollection
	ConstraintCollection(id domain.ID) (*domain.ConstraintCollection, error)
	Constraints(collectionID domain.ID) ([]domain.ConstraintRecord, error)
	EncodeConstraint(c domain.Constraint) ([]byte, error)
	Stats() catalog.Stats
	LocationTypes(ctx context.Context) ([]string, error)
}

var _ Catalog = (*catalog.Store)(nil)

// Handler implements the catalog endpoints.
type Handler struct {
	cat    Catalog
	logger *slog.Logger
}

// NewHandler creates a handler over cat.
func NewHandler(cat Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cat: cat, logger: logger}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics // nil disables /metrics and request metrics
	RateLimit middleware.RateLimitConfig
}

// NewRouter mounts the API under /api/v1 together with /healthz and /metrics.
// Background work of the rate limiter stops when ctx is done.
func NewRouter(ctx context.Context, cat Catalog, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(cat, logger)

	var rec middleware.RequestRecorder
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger, rec))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))
		}
		r.Get("/stats", h.GetStats)
		r.Get("/location-types", h.ListLocationTypes)
		r.Get("/schemas", h.ListSchemas)
		r.Get("/schemas/{id}", h.GetSchema)
		r.Get("/schemas/{id}/tables", h.ListTables)
		r.Get("/tables/{id}/columns", h.ListColumns)
		r.Get("/targets", h.FindTargets)
		r.Get("/targets/{id}", h.GetTarget)
		r.Get("/collections", h.ListCollections)
		r.Get("/collections/{id}", h.GetCollection)
	})
	return r
}

// Health reports liveness with the catalog size.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stats":  h.cat.Stats(),
	})
}

// GetStats returns the catalog size.
func (h *Handler) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cat.Stats())
}

// ListLocationTypes handles GET /api/v1/location-types.
func (h *Handler) ListLocationTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.cat.LocationTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := listPage(r, types)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func pathID(r *http.Request) (domain.ID, error) {
	raw := chi.URLParam(r, "id")
	id, err := domain.ParseID(raw)
	if err != nil {
		return 0, domain.ErrValidation("invalid identifier %q", raw)
	}
	return id, nil
}
