package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

// Overseerr polls an Overseerr instance for approved requests.
type Overseerr struct {
	baseURL    string
	apiKey     string
	interval   time.Duration
	resolver   IMDBResolver
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewOverseerr creates an Overseerr source.
func NewOverseerr(baseURL, apiKey string, interval time.Duration, resolver IMDBResolver, logger zerolog.Logger) *Overseerr {
	return &Overseerr{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		interval:   interval,
		resolver:   resolver,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "overseerr").Logger(),
	}
}

func (o *Overseerr) Name() string                  { return "Overseerr" }
func (o *Overseerr) UpdateInterval() time.Duration { return o.interval }

// Validate checks the API key against the status endpoint.
func (o *Overseerr) Validate(ctx context.Context) error {
	var status struct {
		Version string `json:"version"`
	}
	if err := o.getJSON(ctx, "/api/v1/status", &status); err != nil {
		return fmt.Errorf("validate overseerr: %w", err)
	}
	return nil
}

type overseerrRequest struct {
	ID    int `json:"id"`
	Media struct {
		MediaType string `json:"mediaType"`
		TMDBID    int    `json:"tmdbId"`
		ImdbID    string `json:"imdbId"`
	} `json:"media"`
}

type overseerrRequestsPage struct {
	PageInfo struct {
		Pages   int `json:"pages"`
		Page    int `json:"page"`
		Results int `json:"results"`
	} `json:"pageInfo"`
	Results []overseerrRequest `json:"results"`
}

// Run lists approved requests and emits one requested item per request
// with a resolvable imdb id.
func (o *Overseerr) Run(ctx context.Context) ([]*media.Item, error) {
	var items []*media.Item
	page := 1
	for {
		var resp overseerrRequestsPage
		path := fmt.Sprintf("/api/v1/request?take=50&skip=%d&filter=approved", (page-1)*50)
		if err := o.getJSON(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, req := range resp.Results {
			item, err := o.itemFromRequest(ctx, req)
			if err != nil {
				o.logger.Debug().Err(err).Int("request", req.ID).Msg("skipping request")
				continue
			}
			items = append(items, item)
		}

		if page >= resp.PageInfo.Pages || len(resp.Results) == 0 {
			break
		}
		page++
	}

	o.logger.Debug().Int("items", len(items)).Msg("overseerr poll complete")
	return items, nil
}

// ItemFromWebhook builds a requested item from a webhook notification
// payload. Shared with the API webhook endpoint.
func (o *Overseerr) ItemFromWebhook(ctx context.Context, mediaType, tmdbID, imdbID string, requestID int) (*media.Item, error) {
	if imdbID == "" {
		resolved, err := o.resolver.ResolveIMDB(ctx, tmdbID, mediaType)
		if err != nil {
			return nil, fmt.Errorf("resolve tmdb %s: %w", tmdbID, err)
		}
		imdbID = resolved
	}
	if imdbID == "" {
		return nil, fmt.Errorf("no imdb id for tmdb %s", tmdbID)
	}

	var item *media.Item
	if mediaType == "movie" {
		item = media.NewMovie(imdbID, o.Name())
	} else {
		item = media.NewShow(imdbID, o.Name())
	}
	item.OverseerrID = int64(requestID)
	return item, nil
}

func (o *Overseerr) itemFromRequest(ctx context.Context, req overseerrRequest) (*media.Item, error) {
	return o.ItemFromWebhook(ctx, req.Media.MediaType, strconv.Itoa(req.Media.TMDBID), req.Media.ImdbID, req.ID)
}

func (o *Overseerr) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", o.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("overseerr %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
