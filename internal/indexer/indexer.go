// Package indexer enriches requested items with metadata from trakt:
// titles, years, air dates, external ids, and for shows the full
// season/episode tree.
package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/indexer/trakt"
	"github.com/iPromKnight/riven/internal/media"
)

// TraktIndexer is the metadata indexing capability.
type TraktIndexer struct {
	client         *trakt.Client
	updateInterval time.Duration
	logger         zerolog.Logger
}

// New creates a TraktIndexer. updateInterval governs how often an
// already-indexed item is refreshed.
func New(client *trakt.Client, updateInterval time.Duration, logger zerolog.Logger) *TraktIndexer {
	if updateInterval <= 0 {
		updateInterval = time.Hour
	}
	return &TraktIndexer{
		client:         client,
		updateInterval: updateInterval,
		logger:         logger.With().Str("component", "indexer").Logger(),
	}
}

// ShouldSubmit reports whether the item needs (re-)indexing: never
// indexed, missing a title, or stale past the refresh interval.
func (t *TraktIndexer) ShouldSubmit(item *media.Item) bool {
	if item.IndexedAt == nil || item.Title == "" {
		return true
	}
	return time.Since(*item.IndexedAt) > t.updateInterval
}

// Run builds the enriched item from trakt metadata. Download and
// symlink attributes already present on the incoming item are carried
// over so a library-scanned item keeps its files.
func (t *TraktIndexer) Run(ctx context.Context, in *media.Item) (*media.Item, error) {
	if in.IMDbID == "" {
		return nil, fmt.Errorf("index %s: no imdb id", in.LogString())
	}

	results, err := t.client.SearchIMDB(ctx, in.IMDbID)
	if err != nil {
		return nil, err
	}

	var item *media.Item
	for _, r := range results {
		switch {
		case r.Movie != nil:
			item = movieFromTrakt(r.Movie)
		case r.Show != nil:
			item, err = t.showFromTrakt(ctx, r.Show)
			if err != nil {
				return nil, err
			}
		}
		if item != nil {
			break
		}
	}
	if item == nil {
		return nil, fmt.Errorf("index %s: no trakt match", in.IMDbID)
	}

	item.RequestedAt = in.RequestedAt
	item.RequestedBy = in.RequestedBy
	item.OverseerrID = in.OverseerrID
	copyDownloadAttrs(item, in)

	now := time.Now().UTC()
	item.IndexedAt = &now

	t.logger.Debug().Str("item", item.LogString()).Msg("indexed")
	return item, nil
}

func movieFromTrakt(m *trakt.Movie) *media.Item {
	item := &media.Item{
		Type:     media.TypeMovie,
		ItemID:   m.IDs.IMDB,
		IMDbID:   m.IDs.IMDB,
		Title:    m.Title,
		Year:     m.Year,
		Language: m.Language,
		Country:  m.Country,
		Genres:   m.Genres,
		IsAnime:  isAnime(m.Genres, m.Country),
	}
	if m.IDs.TMDB != 0 {
		item.TMDBID = strconv.Itoa(m.IDs.TMDB)
	}
	if m.Released != "" {
		if aired, err := time.Parse("2006-01-02", m.Released); err == nil {
			item.AiredAt = &aired
		}
	}
	return item
}

func (t *TraktIndexer) showFromTrakt(ctx context.Context, sh *trakt.Show) (*media.Item, error) {
	item := &media.Item{
		Type:     media.TypeShow,
		ItemID:   sh.IDs.IMDB,
		IMDbID:   sh.IDs.IMDB,
		Title:    sh.Title,
		Year:     sh.Year,
		Language: sh.Language,
		Country:  sh.Country,
		Network:  sh.Network,
		Genres:   sh.Genres,
		IsAnime:  isAnime(sh.Genres, sh.Country),
	}
	if sh.IDs.TMDB != 0 {
		item.TMDBID = strconv.Itoa(sh.IDs.TMDB)
	}
	if sh.IDs.TVDB != 0 {
		item.TVDBID = strconv.Itoa(sh.IDs.TVDB)
	}
	if sh.FirstAired != "" {
		if aired, err := time.Parse(time.RFC3339, sh.FirstAired); err == nil {
			item.AiredAt = &aired
		}
	}

	seasons, err := t.client.Seasons(ctx, sh.IDs.IMDB)
	if err != nil {
		return nil, err
	}

	for _, sn := range seasons {
		// Specials are not tracked.
		if sn.Number == 0 {
			continue
		}
		season := &media.Item{
			Type:    media.TypeSeason,
			ItemID:  fmt.Sprintf("%s_%d", sh.IDs.IMDB, sn.Number),
			IMDbID:  sh.IDs.IMDB,
			Number:  sn.Number,
			Title:   item.Title,
			Year:    item.Year,
			Genres:  item.Genres,
			IsAnime: item.IsAnime,
		}
		for _, ep := range sn.Episodes {
			episode := &media.Item{
				Type:    media.TypeEpisode,
				ItemID:  fmt.Sprintf("%s_%d_%d", sh.IDs.IMDB, sn.Number, ep.Number),
				IMDbID:  sh.IDs.IMDB,
				Number:  ep.Number,
				Title:   ep.Title,
				Genres:  item.Genres,
				IsAnime: item.IsAnime,
			}
			if ep.FirstAired != "" {
				if aired, err := time.Parse(time.RFC3339, ep.FirstAired); err == nil {
					episode.AiredAt = &aired
				}
			}
			season.AddEpisode(episode)
		}
		if len(season.Episodes) > 0 {
			if first := season.Episodes[0].AiredAt; first != nil {
				season.AiredAt = first
			}
		}
		item.AddSeason(season)
	}
	return item, nil
}

// copyDownloadAttrs carries file and symlink state from the incoming
// item tree onto the freshly indexed tree by season/episode number.
func copyDownloadAttrs(dst, src *media.Item) {
	copyLeafAttrs(dst, src)
	for _, srcSeason := range src.Seasons {
		dstSeason := dst.Season(srcSeason.Number)
		if dstSeason == nil {
			continue
		}
		copyLeafAttrs(dstSeason, srcSeason)
		for _, srcEpisode := range srcSeason.Episodes {
			if dstEpisode := dstSeason.Episode(srcEpisode.Number); dstEpisode != nil {
				copyLeafAttrs(dstEpisode, srcEpisode)
			}
		}
	}
}

func copyLeafAttrs(dst, src *media.Item) {
	if src.File != "" {
		dst.File = src.File
	}
	if src.Folder != "" {
		dst.Folder = src.Folder
	}
	if src.AlternativeFolder != "" {
		dst.AlternativeFolder = src.AlternativeFolder
	}
	if src.ActiveStream != nil {
		dst.ActiveStream = src.ActiveStream
	}
	if src.Symlinked {
		dst.Symlinked = true
		dst.SymlinkedAt = src.SymlinkedAt
		dst.SymlinkPath = src.SymlinkPath
	}
	if src.ID != 0 {
		dst.ID = src.ID
	}
}

func isAnime(genres []string, country string) bool {
	for _, g := range genres {
		if strings.EqualFold(g, "anime") {
			return true
		}
	}
	country = strings.ToLower(country)
	if country == "jp" || country == "kr" {
		for _, g := range genres {
			if strings.EqualFold(g, "animation") {
				return true
			}
		}
	}
	return false
}

// ResolveIMDB maps a tmdb id to an imdb id for request sources that
// only know the tmdb id.
func (t *TraktIndexer) ResolveIMDB(ctx context.Context, tmdbID, mediaType string) (string, error) {
	return t.client.SearchTMDB(ctx, tmdbID, mediaType)
}
