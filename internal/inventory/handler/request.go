package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/httputil"
)

const (
	dateLayout     = "2006-01-02"
	defaultPerPage = 20
	maxPerPage     = 100
)

// decode reads the body into v and runs the struct's validate tags.
func decode(r *http.Request, v interface{}) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}

// pageParams reads page/per_page and turns them into a store window.
func pageParams(r *http.Request) (domain.Page, int, int, error) {
	page, perPage, err := httputil.Pagination(r, defaultPerPage, maxPerPage)
	if err != nil {
		return domain.Page{}, 0, 0, err
	}
	return domain.Page{Limit: perPage, Offset: (page - 1) * perPage}, page, perPage, nil
}

// parseDate parses an optional calendar date. Callers validate the layout
// with the datetime tag, so an error here only covers query parameters.
func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, errors.Validation(map[string]string{field: "must be a date in " + dateLayout + " format"})
	}
	return &t, nil
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	return parseDate(name, r.URL.Query().Get(name))
}

// endOfDay widens a date-only upper bound to cover the whole day.
func endOfDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &end
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.BadRequest(name + " must be true or false")
	}
	return &b, nil
}

func mustDate(raw string) *time.Time {
	t, _ := parseDate("", raw)
	return t
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decode(r, v)
}
