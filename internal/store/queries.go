package store

import (
	"context"
	"fmt"

	"github.com/iPromKnight/riven/internal/media"
)

// ListIncomplete returns movies and shows whose last_state is not
// Completed, ordered by requested_at descending, with the full tree
// loaded. Pages are 1-based.
func (s *Store) ListIncomplete(ctx context.Context, page, pageSize int) ([]*media.Item, error) {
	if page < 1 {
		page = 1
	}
	return s.listRoots(ctx, `
		SELECT `+itemColumns+itemJoins+`
		WHERE m.type IN ('movie', 'show') AND m.last_state != 'Completed'
		ORDER BY m.requested_at DESC
		LIMIT ? OFFSET ?`, pageSize, (page-1)*pageSize)
}

// CountIncomplete returns the number of incomplete movies and shows.
func (s *Store) CountIncomplete(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM media_items
		WHERE type IN ('movie', 'show') AND last_state != 'Completed'`).Scan(&count)
	if err != nil {
		return 0, wrapErr("count incomplete", err)
	}
	return count, nil
}

// List returns root items filtered by state and type for the API.
func (s *Store) List(ctx context.Context, page, pageSize int, state, mediaType string) ([]*media.Item, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	where := `m.parent_id IS NULL`
	var args []any
	if state != "" {
		where += ` AND m.last_state = ?`
		args = append(args, state)
	}
	if mediaType != "" {
		where += ` AND m.type = ?`
		args = append(args, mediaType)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items m WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("count items", err)
	}

	items, err := s.listRoots(ctx,
		`SELECT `+itemColumns+itemJoins+` WHERE `+where+`
		 ORDER BY m.requested_at DESC LIMIT ? OFFSET ?`,
		append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) listRoots(ctx context.Context, query string, args ...any) ([]*media.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list items", err)
	}
	defer rows.Close()

	var items []*media.Item
	for rows.Next() {
		item, _, err := scanItem(rows)
		if err != nil {
			return nil, wrapErr("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list items", err)
	}

	for _, item := range items {
		if err := s.loadRelations(ctx, item); err != nil {
			return nil, err
		}
		if err := s.loadChildren(ctx, item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Stats summarizes the library.
type Stats struct {
	Total     int            `json:"total"`
	ByType    map[string]int `json:"by_type"`
	ByState   map[string]int `json:"by_state"`
	Symlinked int            `json:"symlinked"`
}

// Stats returns totals by variant, by state, and by symlinked flag.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:  make(map[string]int),
		ByState: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM media_items GROUP BY type`)
	if err != nil {
		return nil, wrapErr("stats by type", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, wrapErr("stats by type", err)
		}
		stats.ByType[typ] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("stats by type", err)
	}

	stateRows, err := s.db.QueryContext(ctx,
		`SELECT last_state, COUNT(*) FROM media_items GROUP BY last_state`)
	if err != nil {
		return nil, wrapErr("stats by state", err)
	}
	defer stateRows.Close()
	for stateRows.Next() {
		var state string
		var count int
		if err := stateRows.Scan(&state, &count); err != nil {
			return nil, wrapErr("stats by state", err)
		}
		stats.ByState[state] = count
	}
	if err := stateRows.Err(); err != nil {
		return nil, wrapErr("stats by state", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE symlinked = 1`).Scan(&stats.Symlinked); err != nil {
		return nil, wrapErr("stats symlinked", err)
	}
	return stats, nil
}

// IsEmpty reports whether no items are persisted yet. Used to decide
// whether a library scan bootstrap should run.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items`).Scan(&count); err != nil {
		return false, wrapErr("count items", err)
	}
	return count == 0, nil
}

// ResetByIMDB clears download and library state on an item tree so it
// will be rescraped, persisting the reset.
func (s *Store) ResetByIMDB(ctx context.Context, imdbID string) (*media.Item, error) {
	item, err := s.GetByIMDB(ctx, imdbID, nil, nil)
	if err != nil {
		return nil, err
	}
	item.Reset()
	if err := s.Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("persist reset: %w", err)
	}
	return item, nil
}
