package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type pageFetcher struct {
	sizes    []int
	failPage int
	calls    atomic.Int32
	forever  bool
}

func (f *pageFetcher) Fetch(_ context.Context, req Request) ([]byte, int, error) {
	f.calls.Add(1)
	page, _ := strconv.Atoi(req.Query.Get("page"))
	perPage, _ := strconv.Atoi(req.Query.Get("per_page"))

	if page == f.failPage {
		return nil, http.StatusInternalServerError, &APIError{Kind: ErrServerError, StatusCode: http.StatusInternalServerError, Path: req.Path}
	}

	size := 0
	switch {
	case f.forever:
		size = perPage
	case page-1 < len(f.sizes):
		size = f.sizes[page-1]
	}

	items := make([]map[string]string, 0, size)
	for i := 0; i < size; i++ {
		items = append(items, map[string]string{"id": fmt.Sprintf("%d-%d", page, i)})
	}
	body, err := json.Marshal(items)
	return body, http.StatusOK, err
}

type idOnly struct {
	ID FlexibleID `json:"id"`
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	fetcher := &pageFetcher{sizes: []int{100, 100, 37}}
	paginator := NewPaginator(fetcher, 100, 1000, zerolog.Nop())

	items, err := FetchAll[idOnly](context.Background(), paginator, "api/v1/courses", nil)
	require.NoError(t, err)
	require.Len(t, items, 237)
	require.EqualValues(t, 3, fetcher.calls.Load())
	require.Equal(t, FlexibleID("1-0"), items[0].ID)
	require.Equal(t, FlexibleID("3-36"), items[236].ID)
}

func TestFetchAllStopsOnEmptyPage(t *testing.T) {
	fetcher := &pageFetcher{sizes: []int{100, 100, 100, 0}}
	paginator := NewPaginator(fetcher, 100, 1000, zerolog.Nop())

	items, err := FetchAll[idOnly](context.Background(), paginator, "api/v1/courses", nil)
	require.NoError(t, err)
	require.Len(t, items, 300)
	require.EqualValues(t, 4, fetcher.calls.Load())
}

func TestFetchAllOverrunGuard(t *testing.T) {
	fetcher := &pageFetcher{forever: true}
	paginator := NewPaginator(fetcher, 10, 25, zerolog.Nop())

	items, err := FetchAll[idOnly](context.Background(), paginator, "api/v1/courses", nil)
	require.ErrorIs(t, err, ErrPaginationOverrun)
	require.Nil(t, items)
	require.EqualValues(t, 25, fetcher.calls.Load())
}

func TestFetchAllDiscardsPartialResultsOnError(t *testing.T) {
	fetcher := &pageFetcher{sizes: []int{100, 100, 100}, failPage: 2}
	paginator := NewPaginator(fetcher, 100, 1000, zerolog.Nop())

	items, err := FetchAll[idOnly](context.Background(), paginator, "api/v1/courses", nil)
	require.ErrorIs(t, err, ErrServerError)
	require.Nil(t, items)
	require.EqualValues(t, 2, fetcher.calls.Load())
}

type rawFetcher struct{ body string }

func (f rawFetcher) Fetch(context.Context, Request) ([]byte, int, error) {
	return []byte(f.body), http.StatusOK, nil
}

func TestFetchAllDecodingError(t *testing.T) {
	paginator := NewPaginator(rawFetcher{body: `{"not":"a list"}`}, 100, 10, zerolog.Nop())

	_, err := FetchAll[idOnly](context.Background(), paginator, "api/v1/courses", nil)
	require.ErrorIs(t, err, ErrDecoding)
}
