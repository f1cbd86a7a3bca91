package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iPromKnight/riven/internal/api"
	"github.com/iPromKnight/riven/internal/config"
	"github.com/iPromKnight/riven/internal/content"
	"github.com/iPromKnight/riven/internal/database"
	"github.com/iPromKnight/riven/internal/downloader"
	"github.com/iPromKnight/riven/internal/downloader/realdebrid"
	"github.com/iPromKnight/riven/internal/indexer"
	"github.com/iPromKnight/riven/internal/indexer/trakt"
	"github.com/iPromKnight/riven/internal/logger"
	"github.com/iPromKnight/riven/internal/program"
	"github.com/iPromKnight/riven/internal/registry"
	"github.com/iPromKnight/riven/internal/scheduler"
	"github.com/iPromKnight/riven/internal/scraper"
	"github.com/iPromKnight/riven/internal/startup"
	"github.com/iPromKnight/riven/internal/store"
	"github.com/iPromKnight/riven/internal/subtitles"
	"github.com/iPromKnight/riven/internal/symlinker"
	"github.com/iPromKnight/riven/internal/updater"
	"github.com/iPromKnight/riven/internal/websocket"
	"github.com/iPromKnight/riven/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().Str("logLevel", cfg.Logging.Level).Msg("starting riven")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if os.Getenv("HARD_RESET") == "1" {
		log.Warn().Msg("HARD_RESET requested, dropping and recreating schema")
		if err := db.HardReset(); err != nil {
			log.Fatal().Err(err).Msg("hard reset failed")
		}
	} else {
		log.Info().Msg("running database migrations")
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	hub := websocket.NewHub()
	go hub.Run()

	st := store.New(db, log.Logger, store.WithNotifier(hub))

	reg, err := buildRegistry(cfg, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}
	if err := reg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("service validation failed")
	}

	validateExternalServices(cfg, reg, log)

	engine := workflow.New(st, reg, workflow.Config{
		ActivityTimeout: time.Duration(cfg.Workflow.ActivityTimeout) * time.Second,
		WorkflowTimeout: time.Duration(cfg.Workflow.WorkflowTimeout) * time.Second,
		MaxActivities:   int64(cfg.Workflow.MaxActivities),
		MaxWorkflows:    int64(cfg.Workflow.MaxWorkflows),
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	prog := program.New(st, reg, engine, sched, program.RetryConfig{
		Interval: time.Duration(cfg.Workflow.RetryInterval) * time.Second,
		PageSize: cfg.Workflow.RetryPageSize,
	}, log.Logger)

	if err := prog.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start program")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	var overseerr *content.Overseerr
	for _, src := range reg.Sources {
		if o, ok := src.(*content.Overseerr); ok {
			overseerr = o
		}
	}

	server := api.NewServer(st, engine, hub, api.Options{
		Symlinker: symlinkService(reg),
		Overseerr: overseerr,
		Scheduler: sched,
	}, log.Logger)

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil {
			log.Info().Msg("server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	engine.Stop()

	log.Info().Msg("riven stopped")
}

// buildRegistry wires every configured service.
func buildRegistry(cfg *config.Config, st *store.Store, log *logger.Logger) (*registry.Registry, error) {
	reg := registry.New(log.Logger)

	traktClient, err := trakt.NewClient(trakt.ClientConfig{
		URL:    cfg.Indexer.URL,
		APIKey: cfg.Indexer.APIKey,
		Logger: &log.Logger,
	})
	if err != nil {
		return nil, err
	}
	traktIndexer := indexer.New(traktClient, time.Duration(cfg.Indexer.UpdateInterval)*time.Second, log.Logger)
	reg.Indexer = traktIndexer

	if cfg.Scraping.TorrentioEnabled {
		torrentio, err := scraper.NewTorrentioClient(scraper.TorrentioConfig{
			URL:    cfg.Scraping.TorrentioURL,
			Filter: cfg.Scraping.TorrentioFilter,
			Logger: &log.Logger,
		})
		if err != nil {
			return nil, err
		}
		reg.Scraper = scraper.New(torrentio, log.Logger)
	}

	rd, err := realdebrid.NewClient(realdebrid.ClientConfig{
		APIKey:   cfg.Downloader.RealDebridAPIKey,
		ProxyURL: cfg.Downloader.RealDebridProxy,
		Logger:   &log.Logger,
	})
	if err != nil {
		return nil, err
	}
	reg.Downloader = downloader.New(rd, downloader.SettingsFromMB(
		cfg.Downloader.MovieFilesizeMin,
		cfg.Downloader.MovieFilesizeMax,
		cfg.Downloader.EpisodeFilesizeMin,
		cfg.Downloader.EpisodeFilesizeMax,
	), log.Logger)

	sym := symlinker.New(symlinker.Config{
		RclonePath:        cfg.Symlink.RclonePath,
		LibraryPath:       cfg.Symlink.LibraryPath,
		SeparateAnimeDirs: cfg.Symlink.SeparateAnimeDirs,
	}, log.Logger)
	if err := sym.Validate(); err != nil {
		return nil, err
	}
	reg.Symlinker = sym
	reg.Library = symlinker.NewLibrary(cfg.Symlink.LibraryPath, log.Logger)

	plex, err := updater.New(updater.Config{
		URL:   cfg.Updater.PlexURL,
		Token: cfg.Updater.PlexToken,
	}, log.Logger)
	if err != nil {
		return nil, err
	}
	reg.Updater = plex

	if cfg.PostProcessing.SubliminalEnabled {
		provider := subtitles.NewHTTPProvider(cfg.PostProcessing.ProviderURL)
		reg.PostProcessor = subtitles.New(provider, cfg.PostProcessing.Languages, log.Logger)
	}

	if cfg.Content.Overseerr.Enabled {
		reg.Sources = append(reg.Sources, content.NewOverseerr(
			cfg.Content.Overseerr.URL,
			cfg.Content.Overseerr.APIKey,
			time.Duration(cfg.Content.Overseerr.UpdateInterval)*time.Second,
			traktIndexer,
			log.Logger,
		))
	}
	if cfg.Content.PlexWatchlist.Enabled {
		reg.Sources = append(reg.Sources, content.NewPlexWatchlist(
			cfg.Content.PlexWatchlist.URL,
			time.Duration(cfg.Content.PlexWatchlist.UpdateInterval)*time.Second,
			log.Logger,
		))
	}
	if cfg.Content.Mdblist.Enabled {
		reg.Sources = append(reg.Sources, content.NewMdblist(
			cfg.Content.Mdblist.APIKey,
			cfg.Content.Mdblist.Lists,
			time.Duration(cfg.Content.Mdblist.UpdateInterval)*time.Second,
			log.Logger,
		))
	}
	if cfg.Content.Listrr.Enabled {
		reg.Sources = append(reg.Sources, content.NewListrr(
			cfg.Content.Listrr.APIKey,
			cfg.Content.Listrr.MovieLists,
			cfg.Content.Listrr.ShowLists,
			time.Duration(cfg.Content.Listrr.UpdateInterval)*time.Second,
			log.Logger,
		))
	}

	return reg, nil
}

// validateExternalServices checks connectivity with retry so a slow
// network at boot does not kill the process.
func validateExternalServices(cfg *config.Config, reg *registry.Registry, log *logger.Logger) {
	retryCfg := startup.DefaultRetryConfig()
	ctx := context.Background()

	checks := []struct {
		name string
		fn   func() error
	}{}

	if v, ok := reg.Updater.(interface {
		Validate(ctx context.Context) error
	}); ok {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"plex", func() error { return v.Validate(ctx) }})
	}
	for _, src := range reg.Sources {
		s := src
		checks = append(checks, struct {
			name string
			fn   func() error
		}{s.Name(), func() error { return s.Validate(ctx) }})
	}

	for _, check := range checks {
		if err := startup.WithRetry(ctx, check.name+" validation", retryCfg, check.fn, &log.Logger); err != nil {
			log.Warn().Err(err).Str("service", check.name).Msg("service validation failed, continuing")
		}
	}
}

func symlinkService(reg *registry.Registry) *symlinker.Service {
	if s, ok := reg.Symlinker.(*symlinker.Service); ok {
		return s
	}
	return nil
}
