// Package updater triggers media server library refreshes after new
// files are symlinked into the library.
package updater

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

const plexTimeout = 30 * time.Second

// PlexUpdater refreshes the Plex section containing an item's folder
// and marks the item updated.
type PlexUpdater struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds Plex connection settings.
type Config struct {
	URL   string
	Token string
}

// New creates a Plex updater.
func New(cfg Config, logger zerolog.Logger) (*PlexUpdater, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("plex url and token are required")
	}
	return &PlexUpdater{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: plexTimeout},
		logger:     logger.With().Str("component", "plex-updater").Logger(),
	}, nil
}

// Validate checks connectivity and the token.
func (p *PlexUpdater) Validate(ctx context.Context) error {
	resp, err := p.get(ctx, "/library/sections")
	if err != nil {
		return fmt.Errorf("validate plex: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Run asks Plex to scan the folder holding the item's new files, then
// marks the item (and its symlinked leaves) updated. The updated
// marker is what completes a leaf.
func (p *PlexUpdater) Run(ctx context.Context, item *media.Item) error {
	folders := updateFolders(item)
	if len(folders) == 0 {
		return fmt.Errorf("update %s: no folder to refresh", item.LogString())
	}

	for _, folder := range folders {
		path := "/library/sections/all/refresh?path=" + url.QueryEscape(folder)
		resp, err := p.get(ctx, path)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", folder, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("refresh %s: status %d", folder, resp.StatusCode)
		}
	}

	markUpdated(item)
	p.logger.Info().Str("item", item.LogString()).Int("folders", len(folders)).Msg("library refresh requested")
	return nil
}

func (p *PlexUpdater) get(ctx context.Context, path string) (*http.Response, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+sep+"X-Plex-Token="+p.token, nil)
	if err != nil {
		return nil, err
	}
	return p.httpClient.Do(req)
}

// updateFolders gathers the distinct library folders of symlinked,
// not-yet-updated leaves.
func updateFolders(item *media.Item) []string {
	seen := make(map[string]bool)
	var folders []string
	var walk func(*media.Item)
	walk = func(i *media.Item) {
		if i.IsLeaf() && i.Symlinked && i.UpdateFolder != "" && i.UpdateFolder != "updated" && !seen[i.UpdateFolder] {
			seen[i.UpdateFolder] = true
			folders = append(folders, i.UpdateFolder)
		}
		for _, s := range i.Seasons {
			walk(s)
		}
		for _, e := range i.Episodes {
			walk(e)
		}
	}
	walk(item)
	return folders
}

func markUpdated(item *media.Item) {
	if item.IsLeaf() && item.Symlinked {
		item.UpdateFolder = "updated"
	}
	for _, s := range item.Seasons {
		markUpdated(s)
	}
	for _, e := range item.Episodes {
		markUpdated(e)
	}
}

// sectionsResponse exists for the validate call's XML payload.
type sectionsResponse struct {
	XMLName xml.Name `xml:"MediaContainer"`
	Size    int      `xml:"size,attr"`
}
