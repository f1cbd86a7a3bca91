package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iPromKnight/riven/internal/content"
	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/registry"
	"github.com/iPromKnight/riven/internal/store"
	"github.com/iPromKnight/riven/internal/testutil"
	"github.com/iPromKnight/riven/internal/websocket"
	"github.com/iPromKnight/riven/internal/workflow"
)

type noopIndexer struct{}

func (noopIndexer) ShouldSubmit(*media.Item) bool { return false }
func (noopIndexer) Run(_ context.Context, item *media.Item) (*media.Item, error) {
	return item, nil
}

type noopScraper struct{}

func (noopScraper) CanWeScrape(*media.Item) bool { return false }
func (noopScraper) Run(_ context.Context, item *media.Item) (*media.Item, error) {
	return item, nil
}

type noopDownloader struct{}

func (noopDownloader) Run(context.Context, *media.Item) (bool, error) { return false, nil }

type noopSymlinker struct{}

func (noopSymlinker) ShouldSubmit(*media.Item) bool          { return false }
func (noopSymlinker) Run(context.Context, *media.Item) error { return nil }

type noopUpdater struct{}

func (noopUpdater) Run(context.Context, *media.Item) error { return nil }

func newTestServer(t *testing.T, opts Options) (*Server, *store.Store) {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	st := store.New(tdb.DB, tdb.Logger)

	reg := registry.New(tdb.Logger)
	reg.Indexer = noopIndexer{}
	reg.Scraper = noopScraper{}
	reg.Downloader = noopDownloader{}
	reg.Symlinker = noopSymlinker{}
	reg.Updater = noopUpdater{}

	engine := workflow.New(st, reg, workflow.Config{}, tdb.Logger)
	t.Cleanup(engine.Stop)

	hub := websocket.NewHub()
	go hub.Run()

	return NewServer(st, engine, hub, opts, tdb.Logger), st
}

func seedMovie(t *testing.T, st *store.Store, imdbID string) *media.Item {
	t.Helper()
	item := media.NewMovie(imdbID, "Overseerr")
	item.Title = "The Matrix"
	item.Year = 1999
	require.NoError(t, st.Upsert(context.Background(), item))
	return item
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := doRequest(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListItems(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	seedMovie(t, st, "tt0133093")
	seedMovie(t, st, "tt1375666")

	rec := doRequest(srv, http.MethodGet, "/api/v1/items?page=1&page_size=1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
	assert.Contains(t, rec.Body.String(), `"page_size":1`)
}

func TestListItemsFilteredByState(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	seedMovie(t, st, "tt0133093")

	rec := doRequest(srv, http.MethodGet, "/api/v1/items?state=Completed", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestGetItem(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	seedMovie(t, st, "tt0133093")

	rec := doRequest(srv, http.MethodGet, "/api/v1/items/tt0133093", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The Matrix")

	rec = doRequest(srv, http.MethodGet, "/api/v1/items/tt9999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteItem(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	seedMovie(t, st, "tt0133093")

	rec := doRequest(srv, http.MethodDelete, "/api/v1/items/tt0133093", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := st.GetByIMDB(context.Background(), "tt0133093", nil, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec = doRequest(srv, http.MethodDelete, "/api/v1/items/tt0133093", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryItem(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	item := seedMovie(t, st, "tt0133093")
	item.File = "matrix.mkv"
	item.Folder = "dl"
	require.NoError(t, st.Upsert(context.Background(), item))

	rec := doRequest(srv, http.MethodPost, "/api/v1/items/tt0133093/retry", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workflow"`)

	got, err := st.GetByIMDB(context.Background(), "tt0133093", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got.File)
}

func TestStats(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	seedMovie(t, st, "tt0133093")

	rec := doRequest(srv, http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestListTasksWithoutScheduler(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestOverseerrWebhookUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/webhook/overseerr",
		`{"notification_type":"MEDIA_APPROVED"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOverseerrWebhook(t *testing.T) {
	overseerr := content.NewOverseerr("http://overseerr", "key", time.Minute, nil, testutil.NopLogger())
	srv, _ := newTestServer(t, Options{Overseerr: overseerr})

	rec := doRequest(srv, http.MethodPost, "/api/v1/webhook/overseerr",
		`{"notification_type":"MEDIA_PENDING","media":{"media_type":"movie","tmdbId":603,"imdbId":"tt0133093"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")

	rec = doRequest(srv, http.MethodPost, "/api/v1/webhook/overseerr",
		`{"notification_type":"MEDIA_APPROVED","media":{"media_type":"movie","tmdbId":603,"imdbId":"tt0133093"},"request":{"request_id":7}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workflow":"tt0133093"`)
}
