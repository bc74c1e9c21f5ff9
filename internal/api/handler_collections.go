package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mdstore/internal/domain"
)

// ListCollections handles GET /api/v1/collections.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	colls := h.cat.ConstraintCollections()
	out := make([]Collection, len(colls))
	for i, c := range colls {
		out[i] = collectionToAPI(c)
	}
	list, err := listPage(r, out)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCollection handles GET /api/v1/collections/{id}, constraints included.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	coll, err := h.cat.ConstraintCollection(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.cat.Constraints(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := collectionToAPI(coll)
	out.Constraints = make([]Constraint, 0, len(recs))
	for _, rec := range recs {
		c, err := h.constraintToAPI(rec)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out.Constraints = append(out.Constraints, c)
	}
	out.Size = len(out.Constraints)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) constraintToAPI(rec domain.ConstraintRecord) (Constraint, error) {
	payload, err := h.cat.EncodeConstraint(rec.Constraint)
	if err != nil {
		return Constraint{}, fmt.Errorf("encode constraint %s: %w", rec.ID, err)
	}
	out := Constraint{
		ID:      rec.ID,
		Kind:    rec.Constraint.Kind(),
		Targets: rec.Constraint.TargetIDs(),
	}
	if json.Valid(payload) {
		out.Payload = json.RawMessage(payload)
	} else {
		out.Payload = string(payload)
	}
	return out, nil
}
