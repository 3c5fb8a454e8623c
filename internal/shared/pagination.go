package shared

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PageFromQuery reads limit and offset query parameters, clamping them to sane bounds.
func PageFromQuery(q url.Values) Page {
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
