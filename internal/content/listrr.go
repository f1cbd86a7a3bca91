package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

const listrrBaseURL = "https://listrr.pro/api"

// Listrr polls listrr.pro movie and show lists.
type Listrr struct {
	baseURL    string
	apiKey     string
	movieLists []string
	showLists  []string
	interval   time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewListrr creates a listrr source.
func NewListrr(apiKey string, movieLists, showLists []string, interval time.Duration, logger zerolog.Logger) *Listrr {
	return &Listrr{
		baseURL:    listrrBaseURL,
		apiKey:     apiKey,
		movieLists: movieLists,
		showLists:  showLists,
		interval:   interval,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "listrr").Logger(),
	}
}

func (l *Listrr) Name() string                  { return "Listrr" }
func (l *Listrr) UpdateInterval() time.Duration { return l.interval }

// Validate checks the API key against the account endpoint.
func (l *Listrr) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/List/My", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", l.apiKey)
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("validate listrr: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("validate listrr: status %d", resp.StatusCode)
	}
	return nil
}

type listrrEntry struct {
	ImdbID string `json:"imDbId"`
}

type listrrPage struct {
	Items []listrrEntry `json:"items"`
	Pages int           `json:"pages"`
}

// Run fetches all configured lists and emits their entries.
func (l *Listrr) Run(ctx context.Context) ([]*media.Item, error) {
	var items []*media.Item
	seen := make(map[string]bool)

	emit := func(ids []string, mediaType media.Type) {
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if mediaType == media.TypeShow {
				items = append(items, media.NewShow(id, l.Name()))
			} else {
				items = append(items, media.NewMovie(id, l.Name()))
			}
		}
	}

	for _, list := range l.movieLists {
		ids, err := l.listIDs(ctx, "List/Movies", list)
		if err != nil {
			return nil, err
		}
		emit(ids, media.TypeMovie)
	}
	for _, list := range l.showLists {
		ids, err := l.listIDs(ctx, "List/Shows", list)
		if err != nil {
			return nil, err
		}
		emit(ids, media.TypeShow)
	}

	l.logger.Debug().Int("items", len(items)).Msg("listrr poll complete")
	return items, nil
}

func (l *Listrr) listIDs(ctx context.Context, kind, list string) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/%s/%s/ReleaseDate/Descending/%d", l.baseURL, kind, list, page)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", l.apiKey)

		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("listrr %s/%s: status %d", kind, list, resp.StatusCode)
		}

		var out listrrPage
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, entry := range out.Items {
			ids = append(ids, entry.ImdbID)
		}
		if page >= out.Pages || len(out.Items) == 0 {
			break
		}
	}
	return ids, nil
}
