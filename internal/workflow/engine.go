// Package workflow drives items through the state machine. Each item
// gets at most one running workflow, identified by the item's stable
// id; starting a new workflow for the same id terminates the old one.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/registry"
	"github.com/iPromKnight/riven/internal/statemachine"
	"github.com/iPromKnight/riven/internal/store"
)

// A run that makes progress never needs more transitions than the
// pipeline has stages; anything past this is a loop.
const maxTransitions = 7

// Store is the persistence surface the engine needs.
type Store interface {
	GetByIMDB(ctx context.Context, imdbID string, season, episode *int) (*media.Item, error)
	Upsert(ctx context.Context, item *media.Item) error
}

// Status of a finished workflow.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Result is what a workflow leaves behind.
type Result struct {
	Status Status
	State  media.State
}

// Config tunes the engine.
type Config struct {
	ActivityTimeout time.Duration
	WorkflowTimeout time.Duration
	MaxActivities   int64
	MaxWorkflows    int64
}

// Handle tracks one workflow run.
type Handle struct {
	ID    string
	RunID string

	done   chan struct{}
	result Result
	err    error
}

// Wait blocks until the workflow finishes.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	return h.result, h.err
}

type run struct {
	cancel context.CancelFunc
	handle *Handle
}

// Engine executes workflows with bounded concurrency.
type Engine struct {
	store    Store
	registry *registry.Registry
	cfg      Config
	logger   zerolog.Logger

	workflowSem *semaphore.Weighted
	activitySem *semaphore.Weighted

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates an engine.
func New(st Store, reg *registry.Registry, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = 2 * time.Minute
	}
	if cfg.WorkflowTimeout <= 0 {
		cfg.WorkflowTimeout = 10 * time.Minute
	}
	if cfg.MaxActivities <= 0 {
		cfg.MaxActivities = 100
	}
	if cfg.MaxWorkflows <= 0 {
		cfg.MaxWorkflows = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:       st,
		registry:    reg,
		cfg:         cfg,
		logger:      logger.With().Str("component", "workflow").Logger(),
		workflowSem: semaphore.NewWeighted(cfg.MaxWorkflows),
		activitySem: semaphore.NewWeighted(cfg.MaxActivities),
		runs:        make(map[string]*run),
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
}

// Start launches a workflow for the item. A running workflow with the
// same id is terminated first; the new run waits for it to wind down
// before its first activity.
func (e *Engine) Start(item *media.Item, startedBy string) *Handle {
	id := item.WorkflowID()
	handle := &Handle{
		ID:    id,
		RunID: uuid.NewString(),
		done:  make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.WorkflowTimeout)

	e.mu.Lock()
	prior := e.runs[id]
	e.runs[id] = &run{cancel: cancel, handle: handle}
	e.mu.Unlock()

	if prior != nil {
		e.logger.Debug().Str("workflow", id).Msg("terminating running workflow")
		prior.cancel()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		if prior != nil {
			<-prior.handle.done
		}

		result, err := e.execute(ctx, item, startedBy)
		handle.result = result
		handle.err = err

		e.mu.Lock()
		if e.runs[id] != nil && e.runs[id].handle == handle {
			delete(e.runs, id)
		}
		e.mu.Unlock()

		close(handle.done)
	}()

	return handle
}

// Stop terminates all workflows and waits for them to finish.
func (e *Engine) Stop() {
	e.baseCancel()
	e.wg.Wait()
}

// Running reports how many workflows are in flight.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

func (e *Engine) execute(ctx context.Context, item *media.Item, startedBy string) (Result, error) {
	if err := e.workflowSem.Acquire(ctx, 1); err != nil {
		return Result{Status: StatusTerminated}, err
	}
	defer e.workflowSem.Release(1)

	logger := e.logger.With().Str("workflow", item.WorkflowID()).Logger()
	logger.Debug().Str("started_by", startedBy).Msg("workflow started")

	existing, err := e.loadExisting(ctx, item)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}

	incoming := item
	current := item
	var lastNext string
	var lastState media.State
	transitions := 0
	for {
		if err := ctx.Err(); err != nil {
			return Result{Status: e.statusFor(err), State: rootOf(current).State()}, err
		}

		res := statemachine.Process(e.registry, existing, startedBy, incoming)
		current = res.Updated
		if res.FixedPoint() {
			break
		}

		// Siblings beyond the first child are re-derived on the next
		// run; only the first child advances this one.
		child := res.Children[0]
		state := child.State()
		if res.Next == lastNext && state == lastState {
			logger.Debug().Str("capability", res.Next).Str("state", string(state)).
				Msg("capability made no progress, stopping")
			break
		}
		if transitions++; transitions > maxTransitions {
			logger.Warn().Int("transitions", transitions).Msg("transition bound reached, stopping")
			break
		}
		lastNext, lastState = res.Next, state

		out, err := e.runActivity(ctx, res.Next, child)
		if err != nil {
			logger.Error().Err(err).Str("capability", res.Next).Str("item", child.LogString()).Msg("activity failed")
			return Result{Status: e.statusFor(err), State: rootOf(current).State()}, err
		}

		// The loaded tree stays authoritative so the indexed merge
		// lands on it rather than on the raw request.
		if existing == nil {
			existing = current
		}
		incoming = out
		startedBy = res.Next
	}

	root := rootOf(current)
	if err := e.persistActivity(ctx, root); err != nil {
		return Result{Status: StatusFailed, State: root.State()}, err
	}

	state := root.State()
	logger.Info().Str("state", string(state)).Msg("workflow finished")
	return Result{Status: StatusCompleted, State: state}, nil
}

// loadExisting is the first activity: fetch the persisted item tree.
func (e *Engine) loadExisting(ctx context.Context, item *media.Item) (*media.Item, error) {
	var existing *media.Item
	err := e.activity(ctx, func(actx context.Context) error {
		season, episode := variantNumbers(item)
		found, err := e.store.GetByIMDB(actx, item.IMDbID, season, episode)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existing = found
		return nil
	})
	return existing, err
}

func (e *Engine) runActivity(ctx context.Context, capability string, item *media.Item) (*media.Item, error) {
	out := item
	err := e.activity(ctx, func(actx context.Context) error {
		result, err := e.registry.RunCapability(actx, capability, item)
		if err != nil {
			return err
		}
		if result != nil {
			out = result
		}
		return nil
	})
	return out, err
}

func (e *Engine) persistActivity(ctx context.Context, root *media.Item) error {
	return e.activity(ctx, func(actx context.Context) error {
		return e.store.Upsert(actx, root)
	})
}

// activity enforces the shared concurrency cap and per-activity
// timeout. Activities are not retried.
func (e *Engine) activity(ctx context.Context, fn func(context.Context) error) error {
	if err := e.activitySem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.activitySem.Release(1)

	actx, cancel := context.WithTimeout(ctx, e.cfg.ActivityTimeout)
	defer cancel()
	return fn(actx)
}

func (e *Engine) statusFor(err error) Status {
	if errors.Is(err, context.Canceled) {
		return StatusTerminated
	}
	return StatusFailed
}

func rootOf(item *media.Item) *media.Item {
	for item.Parent != nil {
		item = item.Parent
	}
	return item
}

// variantNumbers returns the season/episode coordinates for looking up
// a non-root item.
func variantNumbers(item *media.Item) (season, episode *int) {
	switch item.Type {
	case media.TypeSeason:
		n := item.Number
		return &n, nil
	case media.TypeEpisode:
		ep := item.Number
		if item.Parent != nil {
			sn := item.Parent.Number
			return &sn, &ep
		}
		return nil, &ep
	default:
		return nil, nil
	}
}
