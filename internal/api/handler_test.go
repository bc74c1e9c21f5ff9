package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/constraints"
	"mdstore/internal/domain"
	"mdstore/internal/metrics"
	"mdstore/internal/middleware"
	"mdstore/internal/service/catalog"
)

type fixture struct {
	store                  *catalog.Store
	schema, orders, amount *domain.Target
	coll                   *domain.ConstraintCollection
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store, err := catalog.New(catalog.Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	var f fixture
	f.store = store
	f.schema, err = store.AddSchema(ctx, "sales", "sales data", domain.NewLocation("csv", "/data/sales"))
	require.NoError(t, err)
	f.orders, err = store.AddTable(ctx, f.schema.ID(), "orders", "", domain.Location{})
	require.NoError(t, err)
	_, err = store.AddTable(ctx, f.schema.ID(), "id", "", domain.Location{})
	require.NoError(t, err)
	_, err = store.AddColumn(ctx, f.orders.ID(), "id", "", domain.Location{})
	require.NoError(t, err)
	f.amount, err = store.AddColumn(ctx, f.orders.ID(), "amount", "", domain.Location{})
	require.NoError(t, err)

	f.coll, err = store.CreateConstraintCollection(ctx, "profiling run", f.orders.ID())
	require.NoError(t, err)
	_, err = store.AddConstraint(ctx, f.coll.ID(), constraints.TupleCount{Table: f.orders.ID(), Count: 42})
	require.NoError(t, err)
	return f
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRouter_Targets(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{Logger: slog.New(slog.DiscardHandler)})

	rec := serve(t, h, "/api/v1/schemas")
	require.Equal(t, http.StatusOK, rec.Code)
	schemas := decode[List[Target]](t, rec)
	require.Equal(t, 1, schemas.Count)
	assert.Equal(t, "sales", schemas.Items[0].Name)
	assert.Equal(t, "csv", schemas.Items[0].Location[domain.LocationTypeKey])
	assert.Nil(t, schemas.Items[0].Parent)

	rec = serve(t, h, fmt.Sprintf("/api/v1/schemas/%d", f.schema.ID()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sales data", decode[Target](t, rec).Description)

	rec = serve(t, h, fmt.Sprintf("/api/v1/schemas/%d/tables", f.schema.ID()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[List[Target]](t, rec).Count)

	rec = serve(t, h, fmt.Sprintf("/api/v1/tables/%d/columns", f.orders.ID()))
	require.Equal(t, http.StatusOK, rec.Code)
	cols := decode[List[Target]](t, rec)
	require.Equal(t, 2, cols.Count)
	require.NotNil(t, cols.Items[0].Parent)
	assert.Equal(t, f.orders.ID(), *cols.Items[0].Parent)

	rec = serve(t, h, fmt.Sprintf("/api/v1/targets/%d", f.amount.ID()))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[Target](t, rec)
	assert.Equal(t, "column", got.Kind)
	assert.Equal(t, "amount", got.Name)
}

func TestRouter_Pagination(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{Logger: slog.New(slog.DiscardHandler)})
	base := fmt.Sprintf("/api/v1/tables/%d/columns", f.orders.ID())

	rec := serve(t, h, base+"?max_results=1")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[List[Target]](t, rec)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 2, first.Total)
	require.NotEmpty(t, first.NextPageToken)

	rec = serve(t, h, base+"?max_results=1&page_token="+first.NextPageToken)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[List[Target]](t, rec)
	require.Len(t, second.Items, 1)
	assert.NotEqual(t, first.Items[0].ID, second.Items[0].ID)
	assert.Empty(t, second.NextPageToken)

	assert.Equal(t, http.StatusBadRequest, serve(t, h, base+"?max_results=x").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, base+"?page_token=!!").Code)
}

func TestRouter_FindTargets(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{})

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"all kinds", "name=id", http.StatusOK, 2},
		{"one kind", "name=id&kind=column", http.StatusOK, 1},
		{"no match", "name=nope", http.StatusOK, 0},
		{"unique match", "name=amount&unique=true", http.StatusOK, -1},
		{"unique ambiguous", "name=id&unique=true", http.StatusConflict, -1},
		{"unique missing", "name=nope&unique=1", http.StatusNotFound, -1},
		{"missing name", "kind=table", http.StatusBadRequest, -1},
		{"bad kind", "name=id&kind=view", http.StatusBadRequest, -1},
		{"bad unique", "name=id&unique=maybe", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, "/api/v1/targets?"+tt.query)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.count >= 0 {
				assert.Equal(t, tt.count, decode[List[Target]](t, rec).Count)
			}
		})
	}
}

func TestRouter_Errors(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{})

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/schemas/abc", http.StatusBadRequest},
		{"/api/v1/schemas/-3", http.StatusBadRequest},
		{"/api/v1/schemas/77", http.StatusNotFound},
		{fmt.Sprintf("/api/v1/schemas/%d", f.orders.ID()), http.StatusNotFound},
		{fmt.Sprintf("/api/v1/tables/%d/columns", f.schema.ID()), http.StatusNotFound},
		{"/api/v1/collections/5", http.StatusNotFound},
		{"/api/v1/nothing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(t, h, tt.path)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusNotFound || strings.Contains(tt.path, "/schemas/") {
				body := decode[Error](t, rec)
				assert.Equal(t, tt.code, body.Code)
				assert.NotEmpty(t, body.Message)
			}
		})
	}
}

func TestRouter_Collections(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{})

	rec := serve(t, h, "/api/v1/collections")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[List[Collection]](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, f.coll.ID(), list.Items[0].ID)
	assert.Equal(t, 1, list.Items[0].Size)
	assert.Empty(t, list.Items[0].Constraints)

	rec = serve(t, h, fmt.Sprintf("/api/v1/collections/%d", f.coll.ID()))
	require.Equal(t, http.StatusOK, rec.Code)
	var raw struct {
		Scope       []domain.ID `json:"scope"`
		Constraints []struct {
			Kind    string          `json:"kind"`
			Targets []domain.ID     `json:"targets"`
			Payload json.RawMessage `json:"payload"`
		} `json:"constraints"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, []domain.ID{f.orders.ID()}, raw.Scope)
	require.Len(t, raw.Constraints, 1)
	assert.Equal(t, constraints.KindTupleCount, raw.Constraints[0].Kind)
	assert.Equal(t, []domain.ID{f.orders.ID()}, raw.Constraints[0].Targets)
	assert.JSONEq(t, `{"count":42}`, string(raw.Constraints[0].Payload))
}

func TestRouter_HealthStatsAndMetrics(t *testing.T) {
	f := setup(t)
	m := metrics.New()
	h := NewRouter(t.Context(), f.store, RouterConfig{Metrics: m})

	rec := serve(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = serve(t, h, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, catalog.Stats{Schemas: 1, Tables: 2, Columns: 2, Collections: 1}, decode[catalog.Stats](t, rec))

	rec = serve(t, h, "/api/v1/location-types")
	require.Equal(t, http.StatusOK, rec.Code)
	types := decode[List[string]](t, rec)
	assert.Equal(t, []string{"csv"}, types.Items)

	serve(t, h, "/api/v1/schemas/77")
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/v1/schemas/{id}", "404")), 0)

	rec = serve(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mdstore_http_requests_total")
}

func TestRouter_WithoutMetrics(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{})
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/metrics").Code)
}

func TestRouter_RateLimited(t *testing.T) {
	f := setup(t)
	h := NewRouter(t.Context(), f.store, RouterConfig{
		RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
	})
	require.Equal(t, http.StatusOK, serve(t, h, "/api/v1/schemas").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, h, "/api/v1/schemas").Code)
	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, serve(t, h, "/healthz").Code)
}

func TestRouter_RequestIDInLog(t *testing.T) {
	f := setup(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewRouter(t.Context(), f.store, RouterConfig{Logger: logger})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/schemas/%d/tables", f.schema.ID()), nil)
	req.Header.Set("X-Request-ID", "nightly-sync-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nightly-sync-7", rec.Header().Get("X-Request-ID"))
	line := buf.String()
	assert.Contains(t, line, "request_id=nightly-sync-7")
	assert.Contains(t, line, "route=/api/v1/schemas/{id}/tables")
	assert.Contains(t, line, "status=200")

	// Forged ids are replaced before they reach the log.
	buf.Reset()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Request-ID", "x\nlevel=ERROR")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assigned := rec.Header().Get("X-Request-ID")
	require.NotEqual(t, "x\nlevel=ERROR", assigned)
	assert.Contains(t, buf.String(), "request_id="+assigned)
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound("x"), http.StatusNotFound},
		{&domain.KeyNotFoundError{Key: "PATH"}, http.StatusNotFound},
		{domain.ErrValidation("x"), http.StatusBadRequest},
		{domain.ErrConflict("x"), http.StatusConflict},
		{&domain.AmbiguousNameError{Kind: domain.KindTable, Name: "t", Count: 2}, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", &domain.DuplicateIdentifierError{ID: 1}), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err), tt.err.Error())
	}
}

type failingCatalog struct {
	Catalog
}

func (failingCatalog) Schemas(context.Context) ([]*domain.Target, error) { return nil, nil }

func (failingCatalog) SchemaByID(context.Context, domain.ID) (*domain.Target, error) {
	return nil, errors.New("connection refused to 10.0.0.5")
}

func TestRouter_InternalErrorsAreNotLeaked(t *testing.T) {
	h := NewRouter(t.Context(), failingCatalog{}, RouterConfig{Logger: slog.New(slog.DiscardHandler)})

	rec := serve(t, h, "/api/v1/schemas/1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[Error](t, rec)
	assert.Equal(t, "Internal Server Error", body.Message)

	rec = serve(t, h, "/api/v1/schemas")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"count":0}`, rec.Body.String())
}
