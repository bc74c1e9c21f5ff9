package domain

import (
	"encoding/base64"
	"strconv"
)

// Page size bounds for list operations.
const (
	DefaultMaxResults = 100
	MaxMaxResults     = 1000
)

// PageRequest selects one page of an ordered listing.
type PageRequest struct {
	MaxResults int
	PageToken  string // opaque, as returned by Paginate
}

// Offset decodes the page token into a position in the listing.
func (p PageRequest) Offset() (int, error) {
	if p.PageToken == "" {
		return 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(p.PageToken)
	if err != nil {
		return 0, ErrValidation("malformed page token")
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0, ErrValidation("malformed page token")
	}
	return offset, nil
}

// Limit returns the effective page size, clamped to [1, MaxMaxResults].
func (p PageRequest) Limit() int {
	if p.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return min(p.MaxResults, MaxMaxResults)
}

// Paginate cuts the page selected by p out of items and returns it with the
// token of the following page, which is empty on the last page.
func Paginate[T any](items []T, p PageRequest) ([]T, string, error) {
	offset, err := p.Offset()
	if err != nil {
		return nil, "", err
	}
	start := min(offset, len(items))
	end := min(start+p.Limit(), len(items))
	next := ""
	if end < len(items) {
		next = base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	}
	return items[start:end], next, nil
}
