package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/testutil"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	return New(tdb.DB, tdb.Logger, opts...)
}

func testMovie(imdbID string) *media.Item {
	item := media.NewMovie(imdbID, "Overseerr")
	item.Title = "The Matrix"
	item.Year = 1999
	item.Genres = []string{"action", "sci-fi"}
	return item
}

func testShow(imdbID string) *media.Item {
	show := media.NewShow(imdbID, "Overseerr")
	show.Title = "Breaking Bad"
	show.Year = 2008

	for s := 1; s <= 2; s++ {
		season := &media.Item{
			Type:   media.TypeSeason,
			ItemID: show.IMDbID + "_" + string(rune('0'+s)),
			IMDbID: show.IMDbID,
			Number: s,
			Title:  show.Title,
		}
		for e := 1; e <= 3; e++ {
			season.AddEpisode(&media.Item{
				Type:   media.TypeEpisode,
				IMDbID: show.IMDbID,
				Number: e,
				Title:  "Episode",
			})
		}
		show.AddSeason(season)
	}
	return show
}

func TestUpsertAndGetMovie(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	movie := testMovie("tt0133093")
	movie.Streams = []*media.Stream{
		{Infohash: "aaa", RawTitle: "The.Matrix.1999.1080p", ParsedTitle: "The Matrix", Rank: 1380, LevRatio: 1},
	}
	require.NoError(t, st.Upsert(ctx, movie))
	assert.NotZero(t, movie.ID)

	got, err := st.GetByIMDB(ctx, "tt0133093", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, movie.ID, got.ID)
	assert.Equal(t, "The Matrix", got.Title)
	assert.Equal(t, 1999, got.Year)
	assert.Equal(t, []string{"action", "sci-fi"}, got.Genres)
	assert.Equal(t, media.StateScraped, got.LastState)
	require.Len(t, got.Streams, 1)
	assert.Equal(t, "aaa", got.Streams[0].Infohash)
	assert.Equal(t, 1380, got.Streams[0].Rank)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetByIMDB(context.Background(), "tt9999999", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertShowTreeAndVariantLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	show := testShow("tt0903747")
	require.NoError(t, st.Upsert(ctx, show))

	got, err := st.GetByIMDB(ctx, "tt0903747", nil, nil)
	require.NoError(t, err)
	require.Len(t, got.Seasons, 2)
	require.Len(t, got.Seasons[0].Episodes, 3)
	assert.Same(t, got, got.Seasons[0].Parent)

	season := 2
	gotSeason, err := st.GetByIMDB(ctx, "tt0903747", &season, nil)
	require.NoError(t, err)
	assert.Equal(t, media.TypeSeason, gotSeason.Type)
	assert.Equal(t, 2, gotSeason.Number)

	episode := 3
	gotEpisode, err := st.GetByIMDB(ctx, "tt0903747", &season, &episode)
	require.NoError(t, err)
	assert.Equal(t, media.TypeEpisode, gotEpisode.Type)
	assert.Equal(t, 3, gotEpisode.Number)
	require.NotNil(t, gotEpisode.Parent)
	assert.Equal(t, 2, gotEpisode.Parent.Number)
}

func TestUpsertAdoptsExistingRoot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := testMovie("tt0133093")
	require.NoError(t, st.Upsert(ctx, first))

	second := testMovie("tt0133093")
	second.File = "matrix.mkv"
	second.Folder = "dl"
	require.NoError(t, st.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	got, err := st.GetByIMDB(ctx, "tt0133093", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "matrix.mkv", got.File)
	assert.Equal(t, media.StateDownloaded, got.LastState)
}

func TestUpsertAdoptsExistingChildren(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := testShow("tt0903747")
	require.NoError(t, st.Upsert(ctx, first))

	// A re-index builds a fresh tree carrying no row ids.
	second := testShow("tt0903747")
	second.Seasons[0].Episodes[0].File = "s01e01.mkv"
	second.Seasons[0].Episodes[0].Folder = "dl"
	require.NoError(t, st.Upsert(ctx, second))

	assert.Equal(t, first.Seasons[0].ID, second.Seasons[0].ID)
	assert.Equal(t, first.Seasons[0].Episodes[0].ID, second.Seasons[0].Episodes[0].ID)

	// One show, two seasons, six episodes; no duplicate rows.
	var rows int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE imdb_id = ?`, "tt0903747").Scan(&rows))
	assert.Equal(t, 9, rows)

	got, err := st.GetByIMDB(ctx, "tt0903747", nil, nil)
	require.NoError(t, err)
	require.Len(t, got.Seasons, 2)
	assert.Equal(t, "s01e01.mkv", got.Seasons[0].Episodes[0].File)
}

func TestUpsertPersistsBlacklist(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	movie := testMovie("tt0133093")
	stream := &media.Stream{Infohash: "bbb", RawTitle: "The.Matrix.1999.CAM"}
	movie.AttachStream(stream)
	movie.BlacklistStream(stream)
	require.NoError(t, st.Upsert(ctx, movie))

	got, err := st.GetByIMDB(ctx, "tt0133093", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Streams)
	assert.True(t, got.IsBlacklisted("bbb"))
}

type captureNotifier struct {
	items []*media.Item
}

func (c *captureNotifier) ItemUpdate(item *media.Item) {
	c.items = append(c.items, item)
}

func TestUpsertNotifiesOnStateChange(t *testing.T) {
	notifier := &captureNotifier{}
	st := newTestStore(t, WithNotifier(notifier))
	ctx := context.Background()

	movie := testMovie("tt0133093")
	require.NoError(t, st.Upsert(ctx, movie))
	require.Len(t, notifier.items, 1)

	// No state change, no notification.
	require.NoError(t, st.Upsert(ctx, movie))
	assert.Len(t, notifier.items, 1)

	movie.File = "matrix.mkv"
	movie.Folder = "dl"
	require.NoError(t, st.Upsert(ctx, movie))
	require.Len(t, notifier.items, 2)
	assert.Equal(t, media.StateDownloaded, notifier.items[1].LastState)
}

func TestListIncompleteExcludesCompleted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	done := testMovie("tt0000001")
	done.UpdateFolder = "updated"
	require.NoError(t, st.Upsert(ctx, done))

	pending := testMovie("tt0000002")
	require.NoError(t, st.Upsert(ctx, pending))

	items, err := st.ListIncomplete(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "tt0000002", items[0].IMDbID)

	count, err := st.CountIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListIncompletePaging(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		movie := testMovie("tt000000" + string(rune('1'+i)))
		requested := time.Now().UTC().Add(time.Duration(-i) * time.Hour)
		movie.RequestedAt = &requested
		require.NoError(t, st.Upsert(ctx, movie))
	}

	page1, err := st.ListIncomplete(ctx, 1, 2)
	require.NoError(t, err)
	page2, err := st.ListIncomplete(ctx, 2, 2)
	require.NoError(t, err)
	page3, err := st.ListIncomplete(ctx, 3, 2)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page2, 2)
	assert.Len(t, page3, 1)

	// Most recently requested first, no overlap between pages.
	seen := map[string]bool{}
	for _, items := range [][]*media.Item{page1, page2, page3} {
		for _, item := range items {
			assert.False(t, seen[item.IMDbID])
			seen[item.IMDbID] = true
		}
	}
}

func TestDeleteCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	show := testShow("tt0903747")
	show.Seasons[0].Episodes[0].Streams = []*media.Stream{{Infohash: "ccc", RawTitle: "pack"}}
	require.NoError(t, st.Upsert(ctx, show))

	deleted, err := st.DeleteByIMDB(ctx, "tt0903747")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = st.GetByIMDB(ctx, "tt0903747", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = st.DeleteByIMDB(ctx, "tt0903747")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	movie := testMovie("tt0000010")
	movie.UpdateFolder = "updated"
	require.NoError(t, st.Upsert(ctx, movie))
	require.NoError(t, st.Upsert(ctx, testShow("tt0903747")))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ByType["movie"])
	assert.Equal(t, 1, stats.ByType["show"])
	assert.Equal(t, 1, stats.ByState[string(media.StateCompleted)])
}

func TestIsEmpty(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	empty, err := st.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, st.Upsert(ctx, testMovie("tt0133093")))

	empty, err = st.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestResetByIMDB(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	movie := testMovie("tt0133093")
	movie.File = "matrix.mkv"
	movie.Folder = "dl"
	movie.Symlinked = true
	movie.SymlinkPath = "/library/matrix.mkv"
	require.NoError(t, st.Upsert(ctx, movie))

	reset, err := st.ResetByIMDB(ctx, "tt0133093")
	require.NoError(t, err)

	assert.Empty(t, reset.File)
	assert.False(t, reset.Symlinked)

	got, err := st.GetByIMDB(ctx, "tt0133093", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got.File)
	assert.Equal(t, media.StateIndexed, got.LastState)
}
