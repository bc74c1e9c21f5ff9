package api

import (
	"net/http"
	"strconv"

	"mdstore/internal/domain"
)

// Target is the API form of a schema, table or column.
type Target struct {
	ID          domain.ID         `json:"id"`
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parent      *domain.ID        `json:"parent,omitempty"`
	Location    map[string]string `json:"location,omitempty"`
}

// Collection is the API form of a constraint collection.
type Collection struct {
	ID          domain.ID    `json:"id"`
	Description string       `json:"description,omitempty"`
	Scope       []domain.ID  `json:"scope"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Size        int          `json:"size"`
}

// Constraint is the API form of a stored constraint. Payload holds the
// serialized form: embedded JSON when it is JSON, a string otherwise.
type Constraint struct {
	ID      string      `json:"id"`
	Kind    string      `json:"kind"`
	Targets []domain.ID `json:"targets"`
	Payload interface{} `json:"payload,omitempty"`
}

// List wraps collection responses. Count is the size of this page, Total
// the size of the whole listing.
type List[T any] struct {
	Items         []T    `json:"items"`
	Count         int    `json:"count"`
	Total         int    `json:"total"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// listPage returns the page of items selected by the max_results and
// page_token query parameters.
func listPage[T any](r *http.Request, items []T) (List[T], error) {
	var p domain.PageRequest
	q := r.URL.Query()
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return List[T]{}, domain.ErrValidation("invalid max_results %q", v)
		}
		p.MaxResults = n
	}
	p.PageToken = q.Get("page_token")

	page, next, err := domain.Paginate(items, p)
	if err != nil {
		return List[T]{}, err
	}
	if page == nil {
		page = []T{}
	}
	return List[T]{Items: page, Count: len(page), Total: len(items), NextPageToken: next}, nil
}

func targetToAPI(t *domain.Target) Target {
	out := Target{
		ID:          t.ID(),
		Kind:        t.Kind().String(),
		Name:        t.Name(),
		Description: t.Description(),
	}
	if p, ok := t.Parent(); ok {
		out.Parent = &p
	}
	if loc := t.Location(); loc.Len() > 0 {
		out.Location = loc.Properties()
	}
	return out
}

func targetsToAPI(ts []*domain.Target) []Target {
	out := make([]Target, len(ts))
	for i, t := range ts {
		out[i] = targetToAPI(t)
	}
	return out
}

func collectionToAPI(c *domain.ConstraintCollection) Collection {
	return Collection{
		ID:          c.ID(),
		Description: c.Description(),
		Scope:       c.Scope(),
		Size:        c.Len(),
	}
}
