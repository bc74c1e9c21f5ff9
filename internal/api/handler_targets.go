package api

import (
	"context"
	"net/http"
	"strconv"

	"mdstore/internal/domain"
)

// ListSchemas handles GET /api/v1/schemas.
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.cat.Schemas(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTargets(w, r, schemas)
}

// GetSchema handles GET /api/v1/schemas/{id}.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	schema, err := h.cat.SchemaByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, targetToAPI(schema))
}

// ListTables handles GET /api/v1/schemas/{id}/tables.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tables, err := h.cat.Tables(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTargets(w, r, tables)
}

// ListColumns handles GET /api/v1/tables/{id}/columns.
func (h *Handler) ListColumns(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cols, err := h.cat.Columns(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTargets(w, r, cols)
}

// GetTarget handles GET /api/v1/targets/{id}.
func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.cat.TargetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, targetToAPI(t))
}

// FindTargets handles GET /api/v1/targets?name=&kind=&unique=. Without kind
// every level is searched. With unique=true exactly one match is returned,
// and more than one is a conflict.
func (h *Handler) FindTargets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		h.writeError(w, r, domain.ErrValidation("query parameter name is required"))
		return
	}
	unique := false
	if v := q.Get("unique"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, domain.ErrValidation("invalid unique %q", v))
			return
		}
		unique = b
	}

	var matches []*domain.Target
	kinds := []domain.TargetKind{domain.KindSchema, domain.KindTable, domain.KindColumn}
	if v := q.Get("kind"); v != "" {
		kind, err := domain.ParseTargetKind(v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		kinds = []domain.TargetKind{kind}
	}
	for _, kind := range kinds {
		found, err := h.byName(r.Context(), kind, name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		matches = append(matches, found...)
	}

	if !unique {
		h.writeTargets(w, r, matches)
		return
	}
	switch len(matches) {
	case 0:
		h.writeError(w, r, domain.ErrNotFound("no target named %q", name))
	case 1:
		writeJSON(w, http.StatusOK, targetToAPI(matches[0]))
	default:
		h.writeError(w, r, &domain.AmbiguousNameError{Kind: matches[0].Kind(), Name: name, Count: len(matches)})
	}
}

func (h *Handler) byName(ctx context.Context, kind domain.TargetKind, name string) ([]*domain.Target, error) {
	switch kind {
	case domain.KindSchema:
		return h.cat.SchemasByName(ctx, name)
	case domain.KindTable:
		return h.cat.FindTablesByName(ctx, name)
	default:
		return h.cat.FindColumnsByName(ctx, name)
	}
}

func (h *Handler) writeTargets(w http.ResponseWriter, r *http.Request, ts []*domain.Target) {
	list, err := listPage(r, targetsToAPI(ts))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
