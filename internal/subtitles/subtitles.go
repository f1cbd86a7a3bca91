// Package subtitles fetches missing subtitles for completed movies and
// episodes and writes them beside the library symlink.
package subtitles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

const fetchTimeout = 30 * time.Second

// Provider fetches subtitle content for one leaf and language.
type Provider interface {
	Fetch(ctx context.Context, imdbID, language string, season, episode int) ([]byte, error)
}

// Service is the post-processing capability.
type Service struct {
	provider  Provider
	languages []string
	logger    zerolog.Logger
}

// New creates a subtitles service.
func New(provider Provider, languages []string, logger zerolog.Logger) *Service {
	return &Service{
		provider:  provider,
		languages: languages,
		logger:    logger.With().Str("component", "subtitles").Logger(),
	}
}

// ShouldSubmit reports whether a symlinked leaf is missing any
// configured language.
func (s *Service) ShouldSubmit(item *media.Item) bool {
	if !item.IsLeaf() || item.SymlinkPath == "" {
		return false
	}
	return len(s.missingLanguages(item)) > 0
}

// Run fetches the missing languages and writes sidecar .srt files.
func (s *Service) Run(ctx context.Context, item *media.Item) error {
	base := strings.TrimSuffix(item.SymlinkPath, filepath.Ext(item.SymlinkPath))

	season, episode := 0, 0
	if item.Type == media.TypeEpisode {
		if item.Parent != nil {
			season = item.Parent.Number
		}
		episode = item.Number
	}

	for _, lang := range s.missingLanguages(item) {
		content, err := s.provider.Fetch(ctx, item.Show().IMDbID, lang, season, episode)
		if err != nil {
			s.logger.Warn().Err(err).Str("item", item.LogString()).Str("language", lang).Msg("subtitle fetch failed")
			continue
		}

		path := fmt.Sprintf("%s.%s.srt", base, lang)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("write subtitle: %w", err)
		}
		item.Subtitles = append(item.Subtitles, &media.Subtitle{
			Language: lang,
			File:     path,
		})
		s.logger.Info().Str("item", item.LogString()).Str("language", lang).Msg("subtitle written")
	}
	return nil
}

func (s *Service) missingLanguages(item *media.Item) []string {
	var missing []string
	for _, lang := range s.languages {
		found := false
		for _, sub := range item.Subtitles {
			if sub.Language == lang {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, lang)
		}
	}
	return missing
}

// HTTPProvider fetches subtitles from an OpenSubtitles-compatible
// download endpoint.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider against the configured endpoint.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch downloads one subtitle file.
func (p *HTTPProvider) Fetch(ctx context.Context, imdbID, language string, season, episode int) ([]byte, error) {
	q := url.Values{}
	q.Set("imdb", imdbID)
	q.Set("language", language)
	if episode > 0 {
		q.Set("season", fmt.Sprintf("%d", season))
		q.Set("episode", fmt.Sprintf("%d", episode))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/download?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("subtitle download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
