// Package media defines the item model shared by every pipeline component:
// the polymorphic MediaItem (movie, show, season, episode), its candidate
// streams, and the state derivation rules.
package media

import (
	"fmt"
	"sort"
	"time"
)

// Type discriminates the four item variants.
type Type string

const (
	TypeMovie   Type = "movie"
	TypeShow    Type = "show"
	TypeSeason  Type = "season"
	TypeEpisode Type = "episode"
)

// ContainerFile is a single file inside a provider-side container.
type ContainerFile struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// ActiveStream records the stream chosen by the selector together with
// the provider torrent it resolved to. Stored as JSON on the item row.
type ActiveStream struct {
	Hash            string                   `json:"hash,omitempty"`
	Files           map[string]ContainerFile `json:"files,omitempty"`
	ID              string                   `json:"id,omitempty"`
	Name            string                   `json:"name,omitempty"`
	AlternativeName string                   `json:"alternative_name,omitempty"`
}

// Item is the base media entity. Exactly one of the four variants applies,
// selected by Type; Seasons is populated for shows and Episodes for seasons.
// Parent back-references are in-memory only and reconstructed on load.
type Item struct {
	ID     int64  `json:"id,omitempty"`
	ItemID string `json:"item_id,omitempty"`
	Type   Type   `json:"type"`
	Number int    `json:"number,omitempty"` // season or episode number

	IMDbID string `json:"imdb_id,omitempty"`
	TVDBID string `json:"tvdb_id,omitempty"`
	TMDBID string `json:"tmdb_id,omitempty"`

	Title    string     `json:"title,omitempty"`
	Year     int        `json:"year,omitempty"`
	AiredAt  *time.Time `json:"aired_at,omitempty"`
	Language string     `json:"language,omitempty"`
	Country  string     `json:"country,omitempty"`
	Network  string     `json:"network,omitempty"`
	Genres   []string   `json:"genres,omitempty"`
	IsAnime  bool       `json:"is_anime,omitempty"`

	RequestedAt *time.Time `json:"requested_at,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	OverseerrID int64      `json:"overseerr_id,omitempty"`

	IndexedAt    *time.Time `json:"indexed_at,omitempty"`
	ScrapedAt    *time.Time `json:"scraped_at,omitempty"`
	ScrapedTimes int        `json:"scraped_times,omitempty"`

	Streams     []*Stream     `json:"streams,omitempty"`
	Blacklisted []*Stream     `json:"blacklisted_streams,omitempty"`
	ActiveStream *ActiveStream `json:"active_stream,omitempty"`

	File              string `json:"file,omitempty"`
	Folder            string `json:"folder,omitempty"`
	AlternativeFolder string `json:"alternative_folder,omitempty"`

	Symlinked      bool       `json:"symlinked,omitempty"`
	SymlinkedAt    *time.Time `json:"symlinked_at,omitempty"`
	SymlinkedTimes int        `json:"symlinked_times,omitempty"`
	SymlinkPath    string     `json:"symlink_path,omitempty"`

	Key          string `json:"key,omitempty"`
	GUID         string `json:"guid,omitempty"`
	UpdateFolder string `json:"update_folder,omitempty"`

	LastState State `json:"last_state,omitempty"`

	Subtitles []*Subtitle `json:"subtitles,omitempty"`

	Parent   *Item   `json:"-"`
	Seasons  []*Item `json:"seasons,omitempty"`
	Episodes []*Item `json:"episodes,omitempty"`
}

// Subtitle is a sidecar subtitle owned by a movie or episode.
type Subtitle struct {
	ID       int64  `json:"id,omitempty"`
	Language string `json:"language"`
	File     string `json:"file,omitempty"`
}

// NewMovie creates a requested movie from an external id.
func NewMovie(imdbID, requestedBy string) *Item {
	now := time.Now().UTC()
	return &Item{
		Type:        TypeMovie,
		IMDbID:      imdbID,
		ItemID:      imdbID,
		RequestedAt: &now,
		RequestedBy: requestedBy,
	}
}

// NewShow creates a requested show from an external id.
func NewShow(imdbID, requestedBy string) *Item {
	now := time.Now().UTC()
	return &Item{
		Type:        TypeShow,
		IMDbID:      imdbID,
		ItemID:      imdbID,
		RequestedAt: &now,
		RequestedBy: requestedBy,
	}
}

// IsLeaf reports whether the item is a movie or episode.
func (i *Item) IsLeaf() bool {
	return i.Type == TypeMovie || i.Type == TypeEpisode
}

// IsScraped reports whether the item has at least one attached,
// non-blacklisted stream.
func (i *Item) IsScraped() bool {
	return len(i.Streams) > 0
}

// IsReleased reports whether the item's air date has passed.
func (i *Item) IsReleased() bool {
	return i.AiredAt != nil && i.AiredAt.Before(time.Now().UTC())
}

// TopTitle walks parents to the show (or self) title.
func (i *Item) TopTitle() string {
	top := i
	for top.Parent != nil {
		top = top.Parent
	}
	return top.Title
}

// Show returns the owning show for a season or episode, or the item itself.
func (i *Item) Show() *Item {
	top := i
	for top.Parent != nil {
		top = top.Parent
	}
	return top
}

// AddSeason inserts a season keeping the sequence sorted by number.
// A season with a duplicate number is ignored.
func (i *Item) AddSeason(season *Item) {
	for _, s := range i.Seasons {
		if s.Number == season.Number {
			return
		}
	}
	season.Parent = i
	i.Seasons = append(i.Seasons, season)
	sort.Slice(i.Seasons, func(a, b int) bool {
		return i.Seasons[a].Number < i.Seasons[b].Number
	})
}

// AddEpisode inserts an episode keeping the sequence sorted by number.
// An episode with a duplicate number is ignored.
func (i *Item) AddEpisode(episode *Item) {
	for _, e := range i.Episodes {
		if e.Number == episode.Number {
			return
		}
	}
	episode.Parent = i
	i.Episodes = append(i.Episodes, episode)
	sort.Slice(i.Episodes, func(a, b int) bool {
		return i.Episodes[a].Number < i.Episodes[b].Number
	})
}

// Season returns the season with the given number, or nil.
func (i *Item) Season(number int) *Item {
	for _, s := range i.Seasons {
		if s.Number == number {
			return s
		}
	}
	return nil
}

// Episode returns the episode with the given number, or nil.
func (i *Item) Episode(number int) *Item {
	for _, e := range i.Episodes {
		if e.Number == number {
			return e
		}
	}
	return nil
}

// FillInMissingChildren adds children present on other but absent here.
// Existing children are left untouched.
func (i *Item) FillInMissingChildren(other *Item) {
	switch i.Type {
	case TypeShow:
		for _, season := range other.Seasons {
			existing := i.Season(season.Number)
			if existing == nil {
				i.AddSeason(season)
				continue
			}
			existing.FillInMissingChildren(season)
		}
	case TypeSeason:
		for _, episode := range other.Episodes {
			if i.Episode(episode.Number) == nil {
				i.AddEpisode(episode)
			}
		}
	}
}

// CopyMediaAttrs copies descriptive metadata from other onto the item.
// Request and download state are not touched.
func (i *Item) CopyMediaAttrs(other *Item) {
	i.Title = other.Title
	i.Year = other.Year
	i.AiredAt = other.AiredAt
	i.Language = other.Language
	i.Country = other.Country
	i.Network = other.Network
	i.IsAnime = other.IsAnime
	if len(other.Genres) > 0 {
		i.Genres = other.Genres
	}
	if other.TVDBID != "" {
		i.TVDBID = other.TVDBID
	}
	if other.TMDBID != "" {
		i.TMDBID = other.TMDBID
	}
}

// GetStream returns the attached stream with the given infohash, or nil.
func (i *Item) GetStream(infohash string) *Stream {
	for _, s := range i.Streams {
		if s.Infohash == infohash {
			return s
		}
	}
	return nil
}

// IsBlacklisted reports whether the infohash is on the item's blacklist.
func (i *Item) IsBlacklisted(infohash string) bool {
	for _, s := range i.Blacklisted {
		if s.Infohash == infohash {
			return true
		}
	}
	return false
}

// AttachStream adds a stream unless its infohash is already attached
// or blacklisted.
func (i *Item) AttachStream(stream *Stream) {
	if stream.Infohash == "" || i.GetStream(stream.Infohash) != nil || i.IsBlacklisted(stream.Infohash) {
		return
	}
	i.Streams = append(i.Streams, stream)
}

// BlacklistStream moves a stream from the attached set to the blacklist.
// A stream is never simultaneously attached and blacklisted.
func (i *Item) BlacklistStream(stream *Stream) {
	if i.IsBlacklisted(stream.Infohash) {
		return
	}
	for idx, s := range i.Streams {
		if s.Infohash == stream.Infohash {
			i.Streams = append(i.Streams[:idx], i.Streams[idx+1:]...)
			break
		}
	}
	i.Blacklisted = append(i.Blacklisted, stream)
	if i.ActiveStream != nil && i.ActiveStream.Hash == stream.Infohash {
		i.ActiveStream = nil
	}
}

// BlacklistActiveStream blacklists the currently selected stream, if any.
func (i *Item) BlacklistActiveStream() {
	if i.ActiveStream == nil || i.ActiveStream.Hash == "" {
		return
	}
	if s := i.GetStream(i.ActiveStream.Hash); s != nil {
		i.BlacklistStream(s)
		return
	}
	i.Blacklisted = append(i.Blacklisted, &Stream{Infohash: i.ActiveStream.Hash})
	i.ActiveStream = nil
}

// Reset clears download and library state so the item can be rescraped.
// Recurses into children.
func (i *Item) Reset() {
	i.File = ""
	i.Folder = ""
	i.AlternativeFolder = ""
	i.ActiveStream = nil
	i.Symlinked = false
	i.SymlinkedAt = nil
	i.SymlinkedTimes = 0
	i.SymlinkPath = ""
	i.Key = ""
	i.GUID = ""
	i.UpdateFolder = ""
	for _, s := range i.Seasons {
		s.Reset()
	}
	for _, e := range i.Episodes {
		e.Reset()
	}
}

// PropagateFolder fills the folder on descendants whose own folder is empty.
func (i *Item) PropagateFolder(folder string) {
	for _, s := range i.Seasons {
		if s.Folder == "" {
			s.Folder = folder
		}
		s.PropagateFolder(folder)
	}
	for _, e := range i.Episodes {
		if e.Folder == "" {
			e.Folder = folder
		}
	}
}

// WorkflowID returns the identity used to key the item's workflow.
func (i *Item) WorkflowID() string {
	if i.ItemID != "" {
		return i.ItemID
	}
	if i.ID != 0 {
		return fmt.Sprintf("%d", i.ID)
	}
	return i.IMDbID
}

// LogString renders a short human-readable identity for log lines.
func (i *Item) LogString() string {
	switch i.Type {
	case TypeSeason:
		return fmt.Sprintf("%s S%02d", i.TopTitle(), i.Number)
	case TypeEpisode:
		season := 0
		if i.Parent != nil {
			season = i.Parent.Number
		}
		return fmt.Sprintf("%s S%02dE%02d", i.TopTitle(), season, i.Number)
	default:
		if i.Title != "" {
			return fmt.Sprintf("%s (%s)", i.Title, i.IMDbID)
		}
		return i.IMDbID
	}
}
