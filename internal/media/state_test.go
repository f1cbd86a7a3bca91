package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeafStateDerivation(t *testing.T) {
	tests := []struct {
		name string
		item *Item
		want State
	}{
		{"empty", &Item{Type: TypeMovie}, StateUnknown},
		{"requested", &Item{Type: TypeMovie, IMDbID: "tt1", RequestedBy: "Overseerr"}, StateRequested},
		{"indexed", &Item{Type: TypeMovie, IMDbID: "tt1", RequestedBy: "Overseerr", Title: "Movie"}, StateIndexed},
		{"scraped", &Item{Type: TypeMovie, Title: "Movie", Streams: []*Stream{{Infohash: "a"}}}, StateScraped},
		{"downloaded", &Item{Type: TypeMovie, Title: "Movie", File: "f.mkv", Folder: "d"}, StateDownloaded},
		{"symlinked", &Item{Type: TypeMovie, File: "f.mkv", Folder: "d", Symlinked: true}, StateSymlinked},
		{"completed by key", &Item{Type: TypeMovie, Key: "/library/metadata/1"}, StateCompleted},
		{"completed by update marker", &Item{Type: TypeMovie, UpdateFolder: "updated"}, StateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.State())
		})
	}
}

func episodeInState(number int, state State) *Item {
	e := &Item{Type: TypeEpisode, Number: number}
	switch state {
	case StateCompleted:
		e.UpdateFolder = "updated"
	case StateSymlinked:
		e.Symlinked = true
	case StateDownloaded:
		e.File = "f.mkv"
		e.Folder = "d"
	case StateScraped:
		e.Streams = []*Stream{{Infohash: "a"}}
	case StateIndexed:
		e.Title = "Episode"
	case StateRequested:
		e.IMDbID = "tt1"
		e.RequestedBy = "Overseerr"
	}
	return e
}

func seasonWith(states ...State) *Item {
	season := &Item{Type: TypeSeason, Number: 1}
	for n, st := range states {
		season.AddEpisode(episodeInState(n+1, st))
	}
	return season
}

func TestAggregateState(t *testing.T) {
	tests := []struct {
		name   string
		states []State
		want   State
	}{
		{"all completed", []State{StateCompleted, StateCompleted}, StateCompleted},
		{"one completed", []State{StateCompleted, StateScraped}, StatePartiallyCompleted},
		{"all symlinked", []State{StateSymlinked, StateSymlinked}, StateSymlinked},
		{"all downloaded", []State{StateDownloaded, StateDownloaded}, StateDownloaded},
		{"any indexed", []State{StateIndexed, StateRequested}, StateIndexed},
		{"any requested", []State{StateRequested, StateUnknown}, StateRequested},
		{"mixed incomplete", []State{StateDownloaded, StateScraped}, StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seasonWith(tt.states...).State())
		})
	}
}

func TestAggregateScrapedUsesOwnStreams(t *testing.T) {
	season := seasonWith(StateIndexed, StateIndexed)
	season.Streams = []*Stream{{Infohash: "pack"}}
	assert.Equal(t, StateScraped, season.State())
}

func TestEmptyContainerFallsBackToLeafState(t *testing.T) {
	show := &Item{Type: TypeShow, IMDbID: "tt1", RequestedBy: "Overseerr"}
	assert.Equal(t, StateRequested, show.State())
}

func TestShowAggregatesOverSeasons(t *testing.T) {
	show := &Item{Type: TypeShow}
	show.AddSeason(seasonWith(StateCompleted, StateCompleted))
	show.AddSeason(seasonWith(StateScraped, StateScraped))
	assert.Equal(t, StatePartiallyCompleted, show.State())
}

func TestRefreshStateCachesLastState(t *testing.T) {
	show := &Item{Type: TypeShow}
	season := seasonWith(StateDownloaded, StateDownloaded)
	show.AddSeason(season)

	got := show.RefreshState()

	assert.Equal(t, StateDownloaded, got)
	assert.Equal(t, StateDownloaded, show.LastState)
	assert.Equal(t, StateDownloaded, season.LastState)
	assert.Equal(t, StateDownloaded, season.Episodes[0].LastState)
}

func TestStateIncomplete(t *testing.T) {
	assert.False(t, StateCompleted.Incomplete())
	assert.True(t, StateDownloaded.Incomplete())
	assert.True(t, StateFailed.Incomplete())
}
