// Package trakt is the HTTP client for the trakt.tv API v2.
package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.trakt.tv"
	defaultTimeout = 30 * time.Second
	apiVersion     = "2"
)

// IDs holds the external identifiers trakt knows for an entity.
type IDs struct {
	Trakt int    `json:"trakt"`
	Slug  string `json:"slug"`
	IMDB  string `json:"imdb"`
	TMDB  int    `json:"tmdb"`
	TVDB  int    `json:"tvdb"`
}

// Movie is a trakt movie with extended info.
type Movie struct {
	Title    string   `json:"title"`
	Year     int      `json:"year"`
	IDs      IDs      `json:"ids"`
	Released string   `json:"released"` // YYYY-MM-DD
	Language string   `json:"language"`
	Country  string   `json:"country"`
	Genres   []string `json:"genres"`
}

// Show is a trakt show with extended info.
type Show struct {
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	IDs        IDs      `json:"ids"`
	FirstAired string   `json:"first_aired"` // RFC3339
	Language   string   `json:"language"`
	Country    string   `json:"country"`
	Network    string   `json:"network"`
	Genres     []string `json:"genres"`
}

// Episode is one episode of a season listing.
type Episode struct {
	Season     int    `json:"season"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	IDs        IDs    `json:"ids"`
	FirstAired string `json:"first_aired"`
}

// Season is one season with its episodes.
type Season struct {
	Number   int       `json:"number"`
	IDs      IDs       `json:"ids"`
	Episodes []Episode `json:"episodes"`
}

// SearchResult is one hit of an id lookup.
type SearchResult struct {
	Type  string `json:"type"`
	Movie *Movie `json:"movie,omitempty"`
	Show  *Show  `json:"show,omitempty"`
}

// Client talks to trakt with the api key header pair.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// ClientConfig contains configuration for creating a trakt client.
type ClientConfig struct {
	URL    string
	APIKey string
	Logger *zerolog.Logger
}

// NewClient creates a trakt client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("trakt API key is required")
	}
	baseURL := defaultBaseURL
	if cfg.URL != "" {
		baseURL = strings.TrimSuffix(cfg.URL, "/")
	}

	logger := cfg.Logger.With().Str("component", "trakt-client").Logger()

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     &logger,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.apiKey)

	c.logger.Debug().Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// SearchIMDB resolves an imdb id to its movie or show.
func (c *Client) SearchIMDB(ctx context.Context, imdbID string) ([]SearchResult, error) {
	var results []SearchResult
	path := fmt.Sprintf("/search/imdb/%s?extended=full", imdbID)
	if err := c.doJSON(ctx, path, &results); err != nil {
		return nil, fmt.Errorf("search imdb %s: %w", imdbID, err)
	}
	return results, nil
}

// SearchTMDB resolves a tmdb id, constrained to the given type
// ("movie" or "show"), to an imdb id.
func (c *Client) SearchTMDB(ctx context.Context, tmdbID, mediaType string) (string, error) {
	var results []SearchResult
	path := fmt.Sprintf("/search/tmdb/%s?type=%s", tmdbID, mediaType)
	if err := c.doJSON(ctx, path, &results); err != nil {
		return "", fmt.Errorf("search tmdb %s: %w", tmdbID, err)
	}
	for _, r := range results {
		if r.Movie != nil && r.Movie.IDs.IMDB != "" {
			return r.Movie.IDs.IMDB, nil
		}
		if r.Show != nil && r.Show.IDs.IMDB != "" {
			return r.Show.IDs.IMDB, nil
		}
	}
	return "", fmt.Errorf("search tmdb %s: no imdb id", tmdbID)
}

// Seasons lists a show's seasons with their episodes.
func (c *Client) Seasons(ctx context.Context, imdbID string) ([]Season, error) {
	var seasons []Season
	path := fmt.Sprintf("/shows/%s/seasons?extended=episodes,full", imdbID)
	if err := c.doJSON(ctx, path, &seasons); err != nil {
		return nil, fmt.Errorf("seasons %s: %w", imdbID, err)
	}
	return seasons, nil
}

// Validate checks connectivity and credentials with a cheap lookup.
func (c *Client) Validate(ctx context.Context) error {
	var results []SearchResult
	if err := c.doJSON(ctx, "/search/imdb/tt0133093", &results); err != nil {
		return fmt.Errorf("validate trakt: %w", err)
	}
	return nil
}
