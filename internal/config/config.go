package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Content        ContentConfig        `mapstructure:"content"`
	Indexer        IndexerConfig        `mapstructure:"indexer"`
	Scraping       ScrapingConfig       `mapstructure:"scraping"`
	Downloader     DownloaderConfig     `mapstructure:"downloader"`
	Symlink        SymlinkConfig        `mapstructure:"symlink"`
	Updater        UpdaterConfig        `mapstructure:"updater"`
	PostProcessing PostProcessingConfig `mapstructure:"post_processing"`
	Workflow       WorkflowConfig       `mapstructure:"workflow"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// SourceConfig is shared by all external request sources.
type SourceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	UpdateInterval int    `mapstructure:"update_interval"` // seconds
}

// ContentConfig holds the external request source configuration.
type ContentConfig struct {
	Overseerr     SourceConfig  `mapstructure:"overseerr"`
	PlexWatchlist SourceConfig  `mapstructure:"plex_watchlist"`
	Listrr        ListrrConfig  `mapstructure:"listrr"`
	Mdblist       MdblistConfig `mapstructure:"mdblist"`
}

// MdblistConfig extends SourceConfig with the lists to poll.
type MdblistConfig struct {
	SourceConfig `mapstructure:",squash"`
	Lists        []string `mapstructure:"lists"`
}

// ListrrConfig extends SourceConfig with movie and show lists.
type ListrrConfig struct {
	SourceConfig `mapstructure:",squash"`
	MovieLists   []string `mapstructure:"movie_lists"`
	ShowLists    []string `mapstructure:"show_lists"`
}

// IndexerConfig holds metadata indexer configuration.
type IndexerConfig struct {
	APIKey         string `mapstructure:"api_key"`
	URL            string `mapstructure:"url"`
	UpdateInterval int    `mapstructure:"update_interval"` // seconds between re-index
}

// ScrapingConfig holds scraper configuration.
type ScrapingConfig struct {
	TorrentioEnabled bool   `mapstructure:"torrentio_enabled"`
	TorrentioURL     string `mapstructure:"torrentio_url"`
	TorrentioFilter  string `mapstructure:"torrentio_filter"`
}

// DownloaderConfig holds the download provider configuration.
type DownloaderConfig struct {
	RealDebridAPIKey   string `mapstructure:"real_debrid_api_key"`
	RealDebridProxy    string `mapstructure:"real_debrid_proxy"`
	MovieFilesizeMin   int64  `mapstructure:"movie_filesize_min"` // MB
	MovieFilesizeMax   int64  `mapstructure:"movie_filesize_max"` // MB, -1 for unbounded
	EpisodeFilesizeMin int64  `mapstructure:"episode_filesize_min"`
	EpisodeFilesizeMax int64  `mapstructure:"episode_filesize_max"`
}

// SymlinkConfig holds symlinker configuration.
type SymlinkConfig struct {
	RclonePath        string `mapstructure:"rclone_path"`
	LibraryPath       string `mapstructure:"library_path"`
	SeparateAnimeDirs bool   `mapstructure:"separate_anime_dirs"`
}

// UpdaterConfig holds media server updater configuration.
type UpdaterConfig struct {
	PlexURL   string `mapstructure:"plex_url"`
	PlexToken string `mapstructure:"plex_token"`
}

// PostProcessingConfig holds subtitle post-processing configuration.
type PostProcessingConfig struct {
	SubliminalEnabled bool     `mapstructure:"subliminal_enabled"`
	ProviderURL       string   `mapstructure:"provider_url"`
	Languages         []string `mapstructure:"languages"`
}

// WorkflowConfig holds workflow engine tuning.
type WorkflowConfig struct {
	ActivityTimeout int `mapstructure:"activity_timeout"` // seconds
	WorkflowTimeout int `mapstructure:"workflow_timeout"` // seconds
	MaxActivities   int `mapstructure:"max_activities"`   // parallel activity executions
	MaxWorkflows    int `mapstructure:"max_workflows"`    // concurrent workflow evaluations
	RetryInterval   int `mapstructure:"retry_interval"`   // seconds between sweeper runs
	RetryPageSize   int `mapstructure:"retry_page_size"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.riven")
	}

	v.SetEnvPrefix("RIVEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./data/riven.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "./data/logs")

	v.SetDefault("content.overseerr.enabled", false)
	v.SetDefault("content.overseerr.url", "")
	v.SetDefault("content.overseerr.api_key", "")
	v.SetDefault("content.overseerr.update_interval", 60)
	v.SetDefault("content.plex_watchlist.enabled", false)
	v.SetDefault("content.plex_watchlist.url", "")
	v.SetDefault("content.plex_watchlist.update_interval", 60)
	v.SetDefault("content.listrr.enabled", false)
	v.SetDefault("content.listrr.api_key", "")
	v.SetDefault("content.listrr.update_interval", 300)
	v.SetDefault("content.mdblist.enabled", false)
	v.SetDefault("content.mdblist.api_key", "")
	v.SetDefault("content.mdblist.update_interval", 300)

	v.SetDefault("indexer.url", "https://api.trakt.tv")
	v.SetDefault("indexer.api_key", "")
	v.SetDefault("indexer.update_interval", 3600)

	v.SetDefault("scraping.torrentio_enabled", true)
	v.SetDefault("scraping.torrentio_url", "https://torrentio.strem.fun")
	v.SetDefault("scraping.torrentio_filter", "sort=qualitysize%7Cqualityfilter:480p,scr,cam")

	v.SetDefault("downloader.real_debrid_api_key", "")
	v.SetDefault("downloader.real_debrid_proxy", "")
	v.SetDefault("downloader.movie_filesize_min", 200)
	v.SetDefault("downloader.movie_filesize_max", -1)
	v.SetDefault("downloader.episode_filesize_min", 40)
	v.SetDefault("downloader.episode_filesize_max", -1)

	v.SetDefault("symlink.rclone_path", "")
	v.SetDefault("symlink.library_path", "")
	v.SetDefault("symlink.separate_anime_dirs", false)

	v.SetDefault("updater.plex_url", "")
	v.SetDefault("updater.plex_token", "")

	v.SetDefault("post_processing.subliminal_enabled", false)
	v.SetDefault("post_processing.provider_url", "")
	v.SetDefault("post_processing.languages", []string{"en"})

	v.SetDefault("workflow.activity_timeout", 120)
	v.SetDefault("workflow.workflow_timeout", 600)
	v.SetDefault("workflow.max_activities", 100)
	v.SetDefault("workflow.max_workflows", 10)
	v.SetDefault("workflow.retry_interval", 600)
	v.SetDefault("workflow.retry_page_size", 10)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
