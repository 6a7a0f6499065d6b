package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the largest page Canvas serves.
	DefaultPageSize = 100
	// DefaultMaxPages guards against servers that never return a short page.
	DefaultMaxPages = 1000
)

// Paginator drives page-numbered list endpoints to completion.
type Paginator struct {
	fetcher  Fetcher
	pageSize int
	maxPages int
	logger   zerolog.Logger
}

// NewPaginator builds a paginator; non-positive sizes fall back to the defaults.
func NewPaginator(fetcher Fetcher, pageSize, maxPages int, logger zerolog.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	return &Paginator{
		fetcher:  fetcher,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger.With().Str("component", "canvas_paginator").Logger(),
	}
}

// PageSize reports the per_page value sent with every request.
func (p *Paginator) PageSize() int {
	return p.pageSize
}

// FetchAll walks pages 1..N of path until an empty or short page is observed. A failure on any
// page discards everything accumulated so far.
func FetchAll[T any](ctx context.Context, p *Paginator, path string, query url.Values) ([]T, error) {
	items := make([]T, 0, p.pageSize)

	for page := 1; page <= p.maxPages; page++ {
		pageQuery := cloneQuery(query)
		pageQuery.Set("page", strconv.Itoa(page))
		pageQuery.Set("per_page", strconv.Itoa(p.pageSize))

		body, status, err := p.fetcher.Fetch(ctx, Request{Method: http.MethodGet, Path: path, Query: pageQuery})
		if err != nil {
			return nil, err
		}

		var batch []T
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, newAPIError(ErrDecoding, status, path, fmt.Errorf("page %d: %w", page, err))
		}

		items = append(items, batch...)

		p.logger.Debug().Str("path", path).Int("page", page).Int("count", len(batch)).Msg("fetched page")

		if len(batch) < p.pageSize {
			return items, nil
		}
	}

	return nil, newAPIError(ErrPaginationOverrun, 0, path, fmt.Errorf("no terminating page after %d pages", p.maxPages))
}

func cloneQuery(query url.Values) url.Values {
	cloned := url.Values{}
	for key, values := range query {
		cloned[key] = append([]string(nil), values...)
	}
	return cloned
}
