// Package realdebrid is the HTTP client for the Real-Debrid REST API.
package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.real-debrid.com/rest/1.0"
	defaultTimeout = 60 * time.Second
)

// File is a single file inside a cached container.
type File struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// Container groups the files the provider exposes for one variant of a
// cached torrent, keyed by provider file id.
type Container map[string]File

// Availability maps a provider tag ("rd") to its cached containers.
type Availability map[string][]Container

// TorrentFile is one file of a provider torrent.
type TorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// TorrentInfo is the provider's view of one torrent.
type TorrentInfo struct {
	ID               string        `json:"id"`
	Hash             string        `json:"hash"`
	Filename         string        `json:"filename"`
	OriginalFilename string        `json:"original_filename"`
	Status           string        `json:"status"`
	Bytes            int64         `json:"bytes"`
	Files            []TorrentFile `json:"files"`
}

// Torrent is one entry of the torrent list.
type Torrent struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// Client talks to the Real-Debrid API with bearer auth and two token
// buckets: the torrents endpoints allow one call per second, and the
// whole API allows sixty calls per minute. Both are acquired on every
// call.
type Client struct {
	baseURL         string
	token           string
	httpClient      *http.Client
	torrentsLimiter *rate.Limiter
	globalLimiter   *rate.Limiter
	logger          *zerolog.Logger
}

// ClientConfig contains configuration for creating a client.
type ClientConfig struct {
	URL      string // defaults to the public API
	APIKey   string
	ProxyURL string
	Timeout  int // seconds
	Logger   *zerolog.Logger
}

// NewClient creates a Real-Debrid client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("real-debrid API key is required")
	}

	baseURL := defaultBaseURL
	if cfg.URL != "" {
		baseURL = strings.TrimSuffix(cfg.URL, "/")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	logger := cfg.Logger.With().Str("component", "realdebrid-client").Logger()

	return &Client{
		baseURL: baseURL,
		token:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		// Burst 1 keeps any 60-second window under the documented
		// sixty-calls-per-minute account limit even from a cold start.
		torrentsLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		globalLimiter:   rate.NewLimiter(rate.Every(time.Minute/60), 1),
		logger:          &logger,
	}, nil
}

// wait acquires the limiters governing the call.
func (c *Client) wait(ctx context.Context, torrentsEndpoint bool) error {
	if torrentsEndpoint {
		if err := c.torrentsLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.globalLimiter.Wait(ctx)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*http.Response, error) {
	if err := c.wait(ctx, strings.HasPrefix(path, "/torrents")); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, form url.Values, result interface{}) error {
	resp, err := c.do(ctx, method, path, form)
	if err != nil {
		return err
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

// InstantAvailability probes cached availability for a batch of
// infohashes. Callers chunk the hash list; the full batch travels in
// one request path.
func (c *Client) InstantAvailability(ctx context.Context, hashes []string) (map[string]Availability, error) {
	if len(hashes) == 0 {
		return map[string]Availability{}, nil
	}

	raw := make(map[string]json.RawMessage)
	path := "/torrents/instantAvailability/" + strings.Join(hashes, "/")
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("instant availability: %w", err)
	}

	out := make(map[string]Availability, len(raw))
	for hash, msg := range raw {
		var avail Availability
		// The API returns an empty array instead of an object for
		// hashes with no cached variants.
		if err := json.Unmarshal(msg, &avail); err != nil {
			out[strings.ToLower(hash)] = Availability{}
			continue
		}
		out[strings.ToLower(hash)] = avail
	}
	return out, nil
}

// AddMagnet adds a magnet built from the bare infohash URN (no
// trackers) and returns the new torrent id.
func (c *Client) AddMagnet(ctx context.Context, infohash string) (string, error) {
	form := url.Values{}
	form.Set("magnet", "magnet:?xt=urn:btih:"+infohash)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/torrents/addMagnet", form, &result); err != nil {
		return "", fmt.Errorf("add magnet: %w", err)
	}
	return result.ID, nil
}

// TorrentInfo fetches torrent details by provider id.
func (c *Client) TorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	var info TorrentInfo
	if err := c.doJSON(ctx, http.MethodGet, "/torrents/info/"+id, nil, &info); err != nil {
		return nil, fmt.Errorf("torrent info: %w", err)
	}
	return &info, nil
}

// SelectFiles instructs the provider to materialize only the given file ids.
func (c *Client) SelectFiles(ctx context.Context, id string, fileIDs []string) error {
	form := url.Values{}
	form.Set("files", strings.Join(fileIDs, ","))

	resp, err := c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+id, form)
	if err != nil {
		return fmt.Errorf("select files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("select files failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Torrents lists up to limit torrents on the account.
func (c *Client) Torrents(ctx context.Context, limit int) ([]Torrent, error) {
	var torrents []Torrent
	path := "/torrents?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &torrents); err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}
	return torrents, nil
}

// Validate checks the credentials by fetching the account profile.
func (c *Client) Validate(ctx context.Context) error {
	var user struct {
		Username string `json:"username"`
		Premium  int    `json:"premium"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}
	c.logger.Info().Str("username", user.Username).Msg("real-debrid account validated")
	return nil
}
