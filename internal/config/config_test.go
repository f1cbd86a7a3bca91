package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "./data/riven.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.False(t, cfg.Content.Overseerr.Enabled)
	assert.Equal(t, 60, cfg.Content.Overseerr.UpdateInterval)
	assert.Equal(t, 300, cfg.Content.Mdblist.UpdateInterval)

	assert.Equal(t, "https://api.trakt.tv", cfg.Indexer.URL)
	assert.True(t, cfg.Scraping.TorrentioEnabled)
	assert.Equal(t, int64(200), cfg.Downloader.MovieFilesizeMin)
	assert.Equal(t, int64(-1), cfg.Downloader.MovieFilesizeMax)
	assert.Equal(t, []string{"en"}, cfg.PostProcessing.Languages)

	assert.Equal(t, 120, cfg.Workflow.ActivityTimeout)
	assert.Equal(t, 10, cfg.Workflow.MaxWorkflows)
	assert.Equal(t, 10, cfg.Workflow.RetryPageSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
content:
  overseerr:
    enabled: true
    url: http://overseerr:5055
    api_key: secret
  listrr:
    enabled: true
    api_key: lk
    movie_lists:
      - abc
      - def
downloader:
  movie_filesize_max: 20000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults survive partial files.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.True(t, cfg.Content.Overseerr.Enabled)
	assert.Equal(t, "http://overseerr:5055", cfg.Content.Overseerr.URL)
	assert.Equal(t, "secret", cfg.Content.Overseerr.APIKey)

	assert.True(t, cfg.Content.Listrr.Enabled)
	assert.Equal(t, "lk", cfg.Content.Listrr.APIKey)
	assert.Equal(t, []string{"abc", "def"}, cfg.Content.Listrr.MovieLists)

	assert.Equal(t, int64(20000), cfg.Downloader.MovieFilesizeMax)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RIVEN_SERVER_PORT", "7070")
	t.Setenv("RIVEN_INDEXER_API_KEY", "trakt-key")
	t.Setenv("RIVEN_SYMLINK_RCLONE_PATH", "/mnt/rclone")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "trakt-key", cfg.Indexer.APIKey)
	assert.Equal(t, "/mnt/rclone", cfg.Symlink.RclonePath)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
