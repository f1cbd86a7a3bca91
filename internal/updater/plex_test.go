package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/testutil"
)

func newTestUpdater(t *testing.T, handler http.HandlerFunc) *PlexUpdater {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	upd, err := New(Config{URL: srv.URL, Token: "token"}, testutil.NopLogger())
	require.NoError(t, err)
	return upd
}

func TestNewRequiresURLAndToken(t *testing.T) {
	_, err := New(Config{}, testutil.NopLogger())
	assert.Error(t, err)
	_, err = New(Config{URL: "http://plex:32400"}, testutil.NopLogger())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	upd := newTestUpdater(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections", r.URL.Path)
		assert.Equal(t, "token", r.URL.Query().Get("X-Plex-Token"))
		w.Write([]byte(`<MediaContainer size="2"></MediaContainer>`))
	})

	assert.NoError(t, upd.Validate(context.Background()))
}

func TestRunRefreshesAndMarksLeaves(t *testing.T) {
	var paths []string
	upd := newTestUpdater(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections/all/refresh", r.URL.Path)
		paths = append(paths, r.URL.Query().Get("path"))
	})

	show := media.NewShow("tt0903747", "Overseerr")
	season := &media.Item{Type: media.TypeSeason, Number: 1}
	e1 := &media.Item{Type: media.TypeEpisode, Number: 1,
		Symlinked: true, UpdateFolder: "/library/shows/Breaking Bad/Season 01"}
	e2 := &media.Item{Type: media.TypeEpisode, Number: 2,
		Symlinked: true, UpdateFolder: "/library/shows/Breaking Bad/Season 01"}
	notReady := &media.Item{Type: media.TypeEpisode, Number: 3}
	season.AddEpisode(e1)
	season.AddEpisode(e2)
	season.AddEpisode(notReady)
	show.AddSeason(season)

	require.NoError(t, upd.Run(context.Background(), show))

	// The shared folder is refreshed once.
	assert.Equal(t, []string{"/library/shows/Breaking Bad/Season 01"}, paths)
	assert.Equal(t, "updated", e1.UpdateFolder)
	assert.Equal(t, "updated", e2.UpdateFolder)
	assert.Empty(t, notReady.UpdateFolder)
	assert.Equal(t, media.StatePartiallyCompleted, show.State())
}

func TestRunWithoutFoldersFails(t *testing.T) {
	upd := newTestUpdater(t, nil)

	item := media.NewMovie("tt0133093", "Overseerr")
	assert.Error(t, upd.Run(context.Background(), item))
}

func TestRunSkipsAlreadyUpdated(t *testing.T) {
	var calls int
	upd := newTestUpdater(t, func(http.ResponseWriter, *http.Request) {
		calls++
	})

	item := media.NewMovie("tt0133093", "Overseerr")
	item.Symlinked = true
	item.UpdateFolder = "updated"

	assert.Error(t, upd.Run(context.Background(), item))
	assert.Zero(t, calls)
}

func TestRunPropagatesRefreshFailure(t *testing.T) {
	upd := newTestUpdater(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	item := media.NewMovie("tt0133093", "Overseerr")
	item.Symlinked = true
	item.UpdateFolder = "/library/movies/The Matrix"

	assert.Error(t, upd.Run(context.Background(), item))
	// Not marked updated on failure.
	assert.Equal(t, "/library/movies/The Matrix", item.UpdateFolder)
}
