// Package scraper discovers candidate download sources for an item and
// attaches them as ranked streams.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/scanner"
)

// Backoff between scrape attempts, indexed by how often the item has
// been scraped already.
var scrapeBackoff = []time.Duration{
	5 * time.Minute,
	30 * time.Minute,
	time.Hour,
	3 * time.Hour,
	6 * time.Hour,
}

// Service is the scraping capability.
type Service struct {
	torrentio *TorrentioClient
	logger    zerolog.Logger
}

// New creates a scraper service.
func New(torrentio *TorrentioClient, logger zerolog.Logger) *Service {
	return &Service{
		torrentio: torrentio,
		logger:    logger.With().Str("component", "scraper").Logger(),
	}
}

// CanWeScrape reports whether the item is eligible: released, and past
// the backoff window for its attempt count.
func (s *Service) CanWeScrape(item *media.Item) bool {
	if !item.IsReleased() {
		return false
	}
	if item.ScrapedAt == nil || item.ScrapedTimes == 0 {
		return true
	}
	idx := item.ScrapedTimes - 1
	if idx >= len(scrapeBackoff) {
		idx = len(scrapeBackoff) - 1
	}
	return time.Since(*item.ScrapedAt) > scrapeBackoff[idx]
}

// Run queries the backends and attaches deduplicated ranked streams.
// The scrape counters advance even when nothing was found, so the
// backoff ladder applies.
func (s *Service) Run(ctx context.Context, item *media.Item) (*media.Item, error) {
	streams, err := s.scrape(ctx, item)

	now := time.Now().UTC()
	item.ScrapedAt = &now
	item.ScrapedTimes++

	if err != nil {
		return item, err
	}

	added := 0
	for _, stream := range streams {
		before := len(item.Streams)
		item.AttachStream(stream)
		if len(item.Streams) > before {
			added++
		}
	}

	s.logger.Info().
		Str("item", item.LogString()).
		Int("found", len(streams)).
		Int("added", added).
		Msg("scraped")
	return item, nil
}

func (s *Service) scrape(ctx context.Context, item *media.Item) ([]*media.Stream, error) {
	imdbID := item.Show().IMDbID
	if imdbID == "" {
		imdbID = item.IMDbID
	}

	mediaType := "movie"
	season, episode := 0, 0
	switch item.Type {
	case media.TypeShow:
		mediaType = "series"
		season, episode = 1, 1
	case media.TypeSeason:
		mediaType = "series"
		season, episode = item.Number, 1
	case media.TypeEpisode:
		mediaType = "series"
		if item.Parent != nil {
			season = item.Parent.Number
		}
		episode = item.Number
	}

	raw, err := s.torrentio.Streams(ctx, mediaType, imdbID, season, episode)
	if err != nil {
		return nil, err
	}

	title := item.TopTitle()
	var streams []*media.Stream
	for _, t := range raw {
		if t.InfoHash == "" {
			continue
		}
		rawTitle := releaseTitle(t)
		parsed := scanner.Parse(rawTitle)
		streams = append(streams, &media.Stream{
			Infohash:    strings.ToLower(t.InfoHash),
			RawTitle:    rawTitle,
			ParsedTitle: parsed.Title,
			Rank:        rank(parsed),
			LevRatio:    scanner.SimilarityRatio(title, parsed.Title),
		})
	}
	return streams, nil
}

// rank scores a parsed release name so higher quality sorts first.
func rank(p *scanner.Parsed) int {
	score := p.Resolution
	switch p.Source {
	case "Remux":
		score += 500
	case "BluRay":
		score += 300
	case "WEB-DL":
		score += 200
	case "WEBRip":
		score += 100
	case "CAM":
		score -= 1000
	}
	if p.Codec == "x265" {
		score += 50
	}
	return score
}
