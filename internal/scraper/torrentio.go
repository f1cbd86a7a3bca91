package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const torrentioTimeout = 30 * time.Second

// torrentioStream is one stream entry of a torrentio response.
type torrentioStream struct {
	InfoHash string `json:"infoHash"`
	Title    string `json:"title"`
	Name     string `json:"name"`
}

// TorrentioClient queries the torrentio stream catalogue.
type TorrentioClient struct {
	baseURL    string
	filter     string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// TorrentioConfig contains configuration for creating a torrentio client.
type TorrentioConfig struct {
	URL    string
	Filter string
	Logger *zerolog.Logger
}

// NewTorrentioClient creates a torrentio client.
func NewTorrentioClient(cfg TorrentioConfig) (*TorrentioClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("torrentio URL is required")
	}

	logger := cfg.Logger.With().Str("component", "torrentio-client").Logger()

	return &TorrentioClient{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		filter:     cfg.Filter,
		httpClient: &http.Client{Timeout: torrentioTimeout},
		logger:     &logger,
	}, nil
}

// Streams fetches candidate streams for an imdb id. Season and episode
// are zero for movies.
func (c *TorrentioClient) Streams(ctx context.Context, mediaType, imdbID string, season, episode int) ([]torrentioStream, error) {
	identifier := imdbID
	if mediaType == "series" {
		identifier = fmt.Sprintf("%s:%d:%d", imdbID, season, episode)
	}

	path := fmt.Sprintf("/stream/%s/%s.json", mediaType, identifier)
	if c.filter != "" {
		path = fmt.Sprintf("/%s%s", c.filter, path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Streams []torrentioStream `json:"streams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Streams, nil
}

var releaseTitlePattern = regexp.MustCompile(`^[^\n]+`)

// releaseTitle extracts the release name from a torrentio title blob,
// which stacks the release name, file name and seeder info on separate
// lines.
func releaseTitle(t torrentioStream) string {
	if m := releaseTitlePattern.FindString(t.Title); m != "" {
		return strings.TrimSpace(m)
	}
	return strings.TrimSpace(t.Title)
}
