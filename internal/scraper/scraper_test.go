package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/testutil"
)

func torrentioServer(t *testing.T, handler http.HandlerFunc) *TorrentioClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := testutil.NopLogger()
	client, err := NewTorrentioClient(TorrentioConfig{URL: srv.URL, Logger: &logger})
	require.NoError(t, err)
	return client
}

func newTestScraper(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	return New(torrentioServer(t, handler), testutil.NopLogger())
}

func releasedMovie() *media.Item {
	item := media.NewMovie("tt0133093", "Overseerr")
	item.Title = "The Matrix"
	item.Year = 1999
	past := time.Now().UTC().Add(-30 * 24 * time.Hour)
	item.AiredAt = &past
	return item
}

func TestCanWeScrapeUnreleased(t *testing.T) {
	svc := newTestScraper(t, nil)

	item := media.NewMovie("tt0133093", "Overseerr")
	assert.False(t, svc.CanWeScrape(item))

	future := time.Now().UTC().Add(24 * time.Hour)
	item.AiredAt = &future
	assert.False(t, svc.CanWeScrape(item))
}

func TestCanWeScrapeBackoffLadder(t *testing.T) {
	svc := newTestScraper(t, nil)

	tests := []struct {
		name  string
		times int
		since time.Duration
		want  bool
	}{
		{"first attempt always allowed", 0, 0, true},
		{"within first window", 1, time.Minute, false},
		{"past first window", 1, 6 * time.Minute, true},
		{"within second window", 2, 10 * time.Minute, false},
		{"past second window", 2, 31 * time.Minute, true},
		{"within fifth window", 5, 5 * time.Hour, false},
		{"past fifth window", 5, 7 * time.Hour, true},
		{"count past ladder clamps to last rung", 12, 7 * time.Hour, true},
		{"count past ladder still backed off", 12, 5 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := releasedMovie()
			item.ScrapedTimes = tt.times
			if tt.times > 0 {
				at := time.Now().UTC().Add(-tt.since)
				item.ScrapedAt = &at
			}
			assert.Equal(t, tt.want, svc.CanWeScrape(item))
		})
	}
}

func TestRunAttachesRankedStreams(t *testing.T) {
	var gotPath string
	svc := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"streams":[
			{"infoHash":"AAA111","title":"The.Matrix.1999.2160p.BluRay.REMUX\n👤 50 💾 60 GB"},
			{"infoHash":"bbb222","title":"The.Matrix.1999.1080p.WEBRip\n👤 12 💾 8 GB"},
			{"infoHash":"","title":"no hash"},
			{"infoHash":"bbb222","title":"duplicate"}
		]}`)
	})

	item := releasedMovie()
	out, err := svc.Run(context.Background(), item)
	require.NoError(t, err)
	assert.Same(t, item, out)

	assert.Equal(t, "/stream/movie/tt0133093.json", gotPath)
	require.Len(t, item.Streams, 2)

	remux := item.GetStream("aaa111")
	require.NotNil(t, remux)
	assert.Equal(t, "The.Matrix.1999.2160p.BluRay.REMUX", remux.RawTitle)
	assert.Equal(t, "The Matrix", remux.ParsedTitle)
	assert.InDelta(t, 1.0, remux.LevRatio, 1e-9)

	webrip := item.GetStream("bbb222")
	require.NotNil(t, webrip)
	assert.Greater(t, remux.Rank, webrip.Rank)

	assert.Equal(t, 1, item.ScrapedTimes)
	require.NotNil(t, item.ScrapedAt)
}

func TestRunAdvancesCountersOnEmptyResult(t *testing.T) {
	svc := newTestScraper(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"streams":[]}`)
	})

	item := releasedMovie()
	_, err := svc.Run(context.Background(), item)
	require.NoError(t, err)

	assert.Empty(t, item.Streams)
	assert.Equal(t, 1, item.ScrapedTimes)
	assert.NotNil(t, item.ScrapedAt)
}

func TestRunAdvancesCountersOnError(t *testing.T) {
	svc := newTestScraper(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	item := releasedMovie()
	_, err := svc.Run(context.Background(), item)
	require.Error(t, err)

	assert.Equal(t, 1, item.ScrapedTimes)
	assert.NotNil(t, item.ScrapedAt)
}

func TestRunDoesNotReattachBlacklisted(t *testing.T) {
	svc := newTestScraper(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"streams":[{"infoHash":"aaa111","title":"The.Matrix.1999.CAM"}]}`)
	})

	item := releasedMovie()
	bad := &media.Stream{Infohash: "aaa111"}
	item.AttachStream(bad)
	item.BlacklistStream(bad)

	_, err := svc.Run(context.Background(), item)
	require.NoError(t, err)
	assert.Empty(t, item.Streams)
}

func TestEpisodeScrapeUsesShowIdentifier(t *testing.T) {
	var gotPath string
	svc := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"streams":[]}`)
	})

	show := media.NewShow("tt0903747", "Overseerr")
	show.Title = "Breaking Bad"
	season := &media.Item{Type: media.TypeSeason, Number: 2}
	past := time.Now().UTC().Add(-time.Hour)
	episode := &media.Item{Type: media.TypeEpisode, Number: 5, Title: "Breakage", AiredAt: &past}
	season.AddEpisode(episode)
	show.AddSeason(season)

	_, err := svc.Run(context.Background(), episode)
	require.NoError(t, err)
	assert.Equal(t, "/stream/series/tt0903747:2:5.json", gotPath)
}

func TestTorrentioFilterPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"streams":[]}`)
	}))
	t.Cleanup(srv.Close)

	logger := testutil.NopLogger()
	client, err := NewTorrentioClient(TorrentioConfig{
		URL:    srv.URL,
		Filter: "sort=qualitysize|qualityfilter=480p,scr,cam",
		Logger: &logger,
	})
	require.NoError(t, err)

	_, err = client.Streams(context.Background(), "movie", "tt0133093", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "/sort=qualitysize|qualityfilter=480p,scr,cam/stream/movie/tt0133093.json", gotPath)
}
