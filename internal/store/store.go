// Package store persists media items, their streams, blacklist relations
// and subtitles in SQLite. The full item tree is written and read as a
// unit inside short transactions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/database"
	"github.com/iPromKnight/riven/internal/media"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on integrity violations.
	ErrConflict = errors.New("conflict")
)

// Notifier receives item updates when a persisted last_state changes.
type Notifier interface {
	ItemUpdate(item *media.Item)
}

// Store is the item repository.
type Store struct {
	db       *sql.DB
	logger   zerolog.Logger
	notifier Notifier
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the outbound notification sink for state changes.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// New creates a Store backed by the given database.
func New(db *database.DB, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db.Conn(),
		logger: logger.With().Str("component", "store").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// wrapErr maps driver errors onto the store error kinds.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
