// Package program composes the request sources, the retry sweeper, and
// the library bootstrap on top of the scheduler and workflow engine.
package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/content"
	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/registry"
	"github.com/iPromKnight/riven/internal/scheduler"
	"github.com/iPromKnight/riven/internal/store"
	"github.com/iPromKnight/riven/internal/workflow"
)

// RetryConfig tunes the incomplete-item sweeper.
type RetryConfig struct {
	Interval time.Duration
	PageSize int
}

// Program owns the background production of workflows.
type Program struct {
	store     *store.Store
	registry  *registry.Registry
	engine    *workflow.Engine
	scheduler *scheduler.Scheduler
	retry     RetryConfig
	logger    zerolog.Logger
}

// New creates the program.
func New(st *store.Store, reg *registry.Registry, engine *workflow.Engine, sched *scheduler.Scheduler, retry RetryConfig, logger zerolog.Logger) *Program {
	if retry.Interval <= 0 {
		retry.Interval = 10 * time.Minute
	}
	if retry.PageSize <= 0 {
		retry.PageSize = 10
	}
	return &Program{
		store:     st,
		registry:  reg,
		engine:    engine,
		scheduler: sched,
		retry:     retry,
		logger:    logger.With().Str("component", "program").Logger(),
	}
}

// Start registers the scheduled tasks and, when the database is empty,
// bootstraps it from the existing symlink library.
func (p *Program) Start(ctx context.Context) error {
	if err := p.bootstrapLibrary(ctx); err != nil {
		p.logger.Error().Err(err).Msg("library bootstrap failed")
	}

	for _, source := range p.registry.Sources {
		src := source
		task := scheduler.TaskConfig{
			ID:          "source-" + src.Name(),
			Name:        src.Name() + " poller",
			Description: fmt.Sprintf("Polls %s for requested media", src.Name()),
			Interval:    src.UpdateInterval(),
			RunOnStart:  true,
			Func: func(tctx context.Context) error {
				return p.pollSource(tctx, src)
			},
		}
		if err := p.scheduler.RegisterTask(task); err != nil {
			return err
		}
	}

	return p.scheduler.RegisterTask(scheduler.TaskConfig{
		ID:          "retry-library",
		Name:        "Retry sweeper",
		Description: "Re-submits incomplete items to the workflow engine",
		Interval:    p.retry.Interval,
		Func:        p.sweepIncomplete,
	})
}

// pollSource fetches the source's requests and starts a workflow for
// each one not already tracked.
func (p *Program) pollSource(ctx context.Context, src content.Source) error {
	items, err := src.Run(ctx)
	if err != nil {
		return fmt.Errorf("poll %s: %w", src.Name(), err)
	}

	started := 0
	for _, item := range items {
		known, err := p.store.GetByIMDB(ctx, item.IMDbID, nil, nil)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if known != nil && known.State() != media.StateFailed {
			continue
		}
		p.engine.Start(item, src.Name())
		started++
	}

	if started > 0 {
		p.logger.Info().Str("source", src.Name()).Int("started", started).Msg("new requests submitted")
	}
	return nil
}

// sweepIncomplete pages through incomplete items and re-enters them
// into the workflow engine.
func (p *Program) sweepIncomplete(ctx context.Context) error {
	page := 1
	swept := 0
	for {
		items, err := p.store.ListIncomplete(ctx, page, p.retry.PageSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			p.engine.Start(item, "RetryLibrary")
			swept++
		}
		if len(items) < p.retry.PageSize {
			break
		}
		page++
	}

	if swept > 0 {
		p.logger.Debug().Int("items", swept).Msg("incomplete items re-submitted")
	}
	return nil
}

// bootstrapLibrary seeds an empty database from the on-disk symlink
// library so an existing installation is picked up.
func (p *Program) bootstrapLibrary(ctx context.Context) error {
	if p.registry.Library == nil {
		return nil
	}
	empty, err := p.store.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	items, err := p.registry.Library.Run(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		p.engine.Start(item, "SymlinkLibrary")
	}

	p.logger.Info().Int("items", len(items)).Msg("library bootstrap submitted")
	return nil
}
