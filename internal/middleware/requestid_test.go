package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogRouter mounts a stand-in target route behind the request id and
// logging middleware and returns the ids the handler saw.
func catalogRouter(buf *bytes.Buffer) (http.Handler, *[]string) {
	var seen []string
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := chi.NewRouter()
	r.Use(RequestID, RequestLogger(logger, nil))
	r.Get("/api/v1/targets/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	return r, &seen
}

func getTarget(h http.Handler, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets/4096", nil)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID_AssignedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	h, seen := catalogRouter(&buf)

	rec := getTarget(h, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *seen, 1)
	id := (*seen)[0]
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "request_id="+id)
	assert.Contains(t, buf.String(), "route=/api/v1/targets/{id}")

	// Every request gets its own id.
	getTarget(h, "")
	require.Len(t, *seen, 2)
	assert.NotEqual(t, (*seen)[0], (*seen)[1])
}

func TestRequestID_ClientIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
		kept bool
	}{
		{"letters digits dash underscore", "cli-run_42", true},
		{"uuid", "0b5d3a3e-6f2c-4f0e-9a7e-3c1d2b4a5f60", true},
		{"longest accepted", strings.Repeat("x", maxRequestIDLen), true},
		{"one too long", strings.Repeat("x", maxRequestIDLen+1), false},
		{"newline", "run-1\nlevel=ERROR msg=forged", false},
		{"carriage return", "run-1\rforged", false},
		{"space", "run 1", false},
		{"dotted target reference", "sales.orders", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h, seen := catalogRouter(&buf)
			rec := getTarget(h, tt.id)

			require.Len(t, *seen, 1)
			got := (*seen)[0]
			assert.Equal(t, got, rec.Header().Get("X-Request-ID"))
			if tt.kept {
				assert.Equal(t, tt.id, got)
				return
			}
			assert.NotEqual(t, tt.id, got)
			_, err := uuid.Parse(got)
			require.NoError(t, err)
			assert.NotContains(t, buf.String(), "forged")
		})
	}
}

func TestRequestIDFromContext_Unset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	assert.Empty(t, RequestIDFromContext(req.Context()))
}
