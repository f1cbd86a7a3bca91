package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

const mdblistBaseURL = "https://api.mdblist.com"

// Mdblist polls configured mdblist.com lists.
type Mdblist struct {
	baseURL    string
	apiKey     string
	lists      []string
	interval   time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewMdblist creates an mdblist source. Each list is a "user/list" path.
func NewMdblist(apiKey string, lists []string, interval time.Duration, logger zerolog.Logger) *Mdblist {
	return &Mdblist{
		baseURL:    mdblistBaseURL,
		apiKey:     apiKey,
		lists:      lists,
		interval:   interval,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "mdblist").Logger(),
	}
}

func (m *Mdblist) Name() string                  { return "Mdblist" }
func (m *Mdblist) UpdateInterval() time.Duration { return m.interval }

// Validate checks the API key.
func (m *Mdblist) Validate(ctx context.Context) error {
	var out struct {
		LimitsUser int `json:"limits_user"`
	}
	url := m.baseURL + "/user?apikey=" + m.apiKey
	if err := m.getJSON(ctx, url, &out); err != nil {
		return fmt.Errorf("validate mdblist: %w", err)
	}
	return nil
}

type mdblistEntry struct {
	ImdbID    string `json:"imdb_id"`
	MediaType string `json:"mediatype"`
	Title     string `json:"title"`
}

// Run fetches every configured list and emits its entries.
func (m *Mdblist) Run(ctx context.Context) ([]*media.Item, error) {
	var items []*media.Item
	seen := make(map[string]bool)

	for _, list := range m.lists {
		url := fmt.Sprintf("%s/lists/%s/items?apikey=%s", m.baseURL, strings.Trim(list, "/"), m.apiKey)
		var entries []mdblistEntry
		if err := m.getJSON(ctx, url, &entries); err != nil {
			return nil, fmt.Errorf("mdblist %s: %w", list, err)
		}

		for _, entry := range entries {
			if entry.ImdbID == "" || seen[entry.ImdbID] {
				continue
			}
			seen[entry.ImdbID] = true
			if entry.MediaType == "show" {
				items = append(items, media.NewShow(entry.ImdbID, m.Name()))
			} else {
				items = append(items, media.NewMovie(entry.ImdbID, m.Name()))
			}
		}
	}

	m.logger.Debug().Int("items", len(items)).Msg("mdblist poll complete")
	return items, nil
}

func (m *Mdblist) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
