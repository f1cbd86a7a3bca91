// Package registry wires the capability services together and exposes
// them to the workflow engine and the state machine under their
// capability names.
package registry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/content"
	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/statemachine"
)

// Indexer enriches requested items with metadata.
type Indexer interface {
	ShouldSubmit(item *media.Item) bool
	Run(ctx context.Context, item *media.Item) (*media.Item, error)
}

// Scraper discovers streams for an item.
type Scraper interface {
	CanWeScrape(item *media.Item) bool
	Run(ctx context.Context, item *media.Item) (*media.Item, error)
}

// Downloader selects a cached stream and prepares the files.
type Downloader interface {
	Run(ctx context.Context, item *media.Item) (bool, error)
}

// Symlinker installs downloaded files into the library.
type Symlinker interface {
	ShouldSubmit(item *media.Item) bool
	Run(ctx context.Context, item *media.Item) error
}

// Updater tells the media server about new library files.
type Updater interface {
	Run(ctx context.Context, item *media.Item) error
}

// PostProcessor runs optional work on completed leaves.
type PostProcessor interface {
	ShouldSubmit(item *media.Item) bool
	Run(ctx context.Context, item *media.Item) error
}

// Library scans an existing symlink library into stub items.
type Library interface {
	Run(ctx context.Context) ([]*media.Item, error)
}

// Registry holds every wired service. Optional capabilities may be nil.
type Registry struct {
	Indexer       Indexer
	Scraper       Scraper
	Downloader    Downloader
	Symlinker     Symlinker
	Updater       Updater
	PostProcessor PostProcessor
	Library       Library
	Sources       []content.Source

	logger zerolog.Logger
}

// New creates a registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{logger: logger.With().Str("component", "registry").Logger()}
}

// Validate fails when a required capability is missing. Post-processing
// is the only optional capability.
func (r *Registry) Validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("no request source is enabled")
	}
	if r.Indexer == nil {
		return fmt.Errorf("indexer is not configured")
	}
	if r.Scraper == nil {
		return fmt.Errorf("scraper is not configured")
	}
	if r.Downloader == nil {
		return fmt.Errorf("downloader is not configured")
	}
	if r.Symlinker == nil {
		return fmt.Errorf("symlinker is not configured")
	}
	if r.Updater == nil {
		return fmt.Errorf("updater is not configured")
	}
	if r.Library == nil {
		return fmt.Errorf("library scanner is not configured")
	}
	return nil
}

// RunCapability executes the named capability against one item and
// returns the (possibly replaced) item.
func (r *Registry) RunCapability(ctx context.Context, name string, item *media.Item) (*media.Item, error) {
	switch name {
	case statemachine.CapabilityIndexer:
		return r.Indexer.Run(ctx, item)
	case statemachine.CapabilityScraping:
		return r.Scraper.Run(ctx, item)
	case statemachine.CapabilityDownloader:
		if _, err := r.Downloader.Run(ctx, item); err != nil {
			return item, err
		}
		return item, nil
	case statemachine.CapabilitySymlinker:
		return item, r.Symlinker.Run(ctx, item)
	case statemachine.CapabilityUpdater:
		return item, r.Updater.Run(ctx, item)
	case statemachine.CapabilityPostProcessing:
		if r.PostProcessor == nil {
			return item, nil
		}
		return item, r.PostProcessor.Run(ctx, item)
	default:
		return item, fmt.Errorf("unknown capability %q", name)
	}
}

// The registry is the state machine's eligibility oracle.
var _ statemachine.Capabilities = (*Registry)(nil)

func (r *Registry) IndexerShouldSubmit(item *media.Item) bool {
	return r.Indexer.ShouldSubmit(item)
}

func (r *Registry) CanWeScrape(item *media.Item) bool {
	return r.Scraper.CanWeScrape(item)
}

func (r *Registry) SymlinkerShouldSubmit(item *media.Item) bool {
	return r.Symlinker.ShouldSubmit(item)
}

func (r *Registry) PostProcessingEnabled() bool {
	return r.PostProcessor != nil
}

func (r *Registry) NeedsPostProcessing(item *media.Item) bool {
	return r.PostProcessor != nil && r.PostProcessor.ShouldSubmit(item)
}
