package content

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

// PlexWatchlist polls a Plex watchlist RSS feed.
type PlexWatchlist struct {
	rssURL     string
	interval   time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewPlexWatchlist creates a Plex watchlist source from an RSS feed URL.
func NewPlexWatchlist(rssURL string, interval time.Duration, logger zerolog.Logger) *PlexWatchlist {
	return &PlexWatchlist{
		rssURL:     rssURL,
		interval:   interval,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "plex-watchlist").Logger(),
	}
}

func (p *PlexWatchlist) Name() string                  { return "PlexWatchlist" }
func (p *PlexWatchlist) UpdateInterval() time.Duration { return p.interval }

// Validate fetches the feed once.
func (p *PlexWatchlist) Validate(ctx context.Context) error {
	_, err := p.fetch(ctx)
	if err != nil {
		return fmt.Errorf("validate plex watchlist: %w", err)
	}
	return nil
}

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Items   []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title    string   `xml:"title"`
	Category string   `xml:"category"`
	GUIDs    []string `xml:"guid"`
}

// Run parses the feed and emits one item per entry with an imdb guid.
func (p *PlexWatchlist) Run(ctx context.Context) ([]*media.Item, error) {
	feed, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var items []*media.Item
	for _, entry := range feed.Items {
		imdbID := imdbGUID(entry.GUIDs)
		if imdbID == "" {
			p.logger.Debug().Str("title", entry.Title).Msg("watchlist entry without imdb guid")
			continue
		}
		if strings.EqualFold(entry.Category, "show") {
			items = append(items, media.NewShow(imdbID, p.Name()))
		} else {
			items = append(items, media.NewMovie(imdbID, p.Name()))
		}
	}

	p.logger.Debug().Int("items", len(items)).Msg("watchlist poll complete")
	return items, nil
}

func (p *PlexWatchlist) fetch(ctx context.Context) (*rssFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.rssURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("plex watchlist rss: status %d", resp.StatusCode)
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode rss: %w", err)
	}
	return &feed, nil
}

// imdbGUID finds an imdb:// guid among a feed entry's guids.
func imdbGUID(guids []string) string {
	for _, g := range guids {
		if strings.HasPrefix(g, "imdb://") {
			return strings.TrimPrefix(g, "imdb://")
		}
	}
	return ""
}
