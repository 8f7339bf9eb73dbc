// Package pagination reads list windows from query strings and wraps the
// resulting page for the JSON API.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext accepts limit/offset or the 1-based pagina/por_pagina pair the
// bed board sends. Missing, malformed or negative values fall back to the
// first page of DefaultLimit items.
func FromContext(c echo.Context) Params {
	p := Params{Limit: positiveParam(c, "limit", "por_pagina")}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	p.Limit = min(p.Limit, MaxLimit)

	if off := positiveParam(c, "offset"); off > 0 {
		p.Offset = off
	} else if pg := positiveParam(c, "pagina"); pg > 1 {
		p.Offset = (pg - 1) * p.Limit
	}
	return p
}

func positiveParam(c echo.Context, names ...string) int {
	for _, name := range names {
		if v, err := strconv.Atoi(c.QueryParam(name)); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

// Page is the 1-based page number the window starts on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Slice cuts items down to the window. A non-positive limit keeps everything
// after offset; an offset past the end yields an empty, non-nil slice.
func Slice[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Page    int         `json:"pagina"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Success: true,
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Page:    p.Page(),
		HasMore: p.Offset+p.Limit < total,
	}
}
