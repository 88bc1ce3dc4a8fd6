// Package pagination reads list parameters from requests and shapes list
// responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset. A 1-based page may be given instead of
// offset; an explicit offset wins.
func FromContext(c echo.Context) Params {
	limit := clamp(atoi(c.QueryParam("limit")), DefaultLimit)

	offset := atoi(c.QueryParam("offset"))
	if c.QueryParam("offset") == "" {
		if page := atoi(c.QueryParam("page")); page > 1 {
			offset = (page - 1) * limit
		}
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func clamp(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Response is the envelope of every list endpoint.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Page    int         `json:"page"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	page := 1
	if limit > 0 {
		page = offset/limit + 1
	}
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Page:    page,
		HasMore: offset+limit < total,
	}
}

// Filters collects the named query parameters that are present and non-empty.
func Filters(c echo.Context, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		if v := c.QueryParam(n); v != "" {
			out[n] = v
		}
	}
	return out
}
