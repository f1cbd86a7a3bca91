// Package content discovers requested media from external services
// and emits requested items for the workflow engine.
package content

import (
	"context"
	"time"

	"github.com/iPromKnight/riven/internal/media"
)

const requestTimeout = 30 * time.Second

// Source is an external request source polled on its own interval.
type Source interface {
	// Name is the started_by label stamped on emitted items.
	Name() string
	// UpdateInterval is the polling cadence.
	UpdateInterval() time.Duration
	// Validate checks connectivity and credentials.
	Validate(ctx context.Context) error
	// Run returns the currently requested items.
	Run(ctx context.Context) ([]*media.Item, error)
}

// IMDBResolver maps a tmdb id to an imdb id for sources that only
// carry tmdb ids.
type IMDBResolver interface {
	ResolveIMDB(ctx context.Context, tmdbID, mediaType string) (string, error)
}
