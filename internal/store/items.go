package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iPromKnight/riven/internal/media"
)

const itemColumns = `m.id, m.item_id, m.type, m.parent_id, m.imdb_id, m.tvdb_id, m.tmdb_id,
	m.title, m.year, m.aired_at, m.language, m.country, m.network, m.genres, m.is_anime,
	m.requested_at, m.requested_by, m.overseerr_id, m.indexed_at, m.scraped_at, m.scraped_times,
	m.active_stream, m.file, m.folder, m.alternative_folder,
	m.symlinked, m.symlinked_at, m.symlinked_times, m.symlink_path,
	m.key, m.guid, m.update_folder, m.last_state,
	COALESCE(s.number, e.number, 0)`

const itemJoins = ` FROM media_items m
	LEFT JOIN seasons s ON s.id = m.id
	LEFT JOIN episodes e ON e.id = m.id`

func scanItem(scanner interface{ Scan(...any) error }) (*media.Item, sql.NullInt64, error) {
	var (
		item         media.Item
		parentID     sql.NullInt64
		itemID       sql.NullString
		imdb, tvdb   sql.NullString
		tmdb         sql.NullString
		title        sql.NullString
		year         sql.NullInt64
		airedAt      sql.NullTime
		lang         sql.NullString
		country      sql.NullString
		network      sql.NullString
		genres       string
		requestedAt  sql.NullTime
		requestedBy  sql.NullString
		overseerrID  sql.NullInt64
		indexedAt    sql.NullTime
		scrapedAt    sql.NullTime
		activeStream sql.NullString
		file         sql.NullString
		folder       sql.NullString
		altFolder    sql.NullString
		symlinkedAt  sql.NullTime
		symlinkPath  sql.NullString
		key          sql.NullString
		guid         sql.NullString
		updateFolder sql.NullString
	)

	err := scanner.Scan(&item.ID, &itemID, &item.Type, &parentID, &imdb, &tvdb, &tmdb,
		&title, &year, &airedAt, &lang, &country, &network, &genres, &item.IsAnime,
		&requestedAt, &requestedBy, &overseerrID, &indexedAt, &scrapedAt, &item.ScrapedTimes,
		&activeStream, &file, &folder, &altFolder,
		&item.Symlinked, &symlinkedAt, &item.SymlinkedTimes, &symlinkPath,
		&key, &guid, &updateFolder, &item.LastState,
		&item.Number)
	if err != nil {
		return nil, parentID, err
	}

	item.ItemID = itemID.String
	item.IMDbID = imdb.String
	item.TVDBID = tvdb.String
	item.TMDBID = tmdb.String
	item.Title = title.String
	item.Year = int(year.Int64)
	item.Language = lang.String
	item.Country = country.String
	item.Network = network.String
	item.RequestedBy = requestedBy.String
	item.OverseerrID = overseerrID.Int64
	item.File = file.String
	item.Folder = folder.String
	item.AlternativeFolder = altFolder.String
	item.SymlinkPath = symlinkPath.String
	item.Key = key.String
	item.GUID = guid.String
	item.UpdateFolder = updateFolder.String

	if airedAt.Valid {
		t := airedAt.Time
		item.AiredAt = &t
	}
	if requestedAt.Valid {
		t := requestedAt.Time
		item.RequestedAt = &t
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		item.IndexedAt = &t
	}
	if scrapedAt.Valid {
		t := scrapedAt.Time
		item.ScrapedAt = &t
	}
	if symlinkedAt.Valid {
		t := symlinkedAt.Time
		item.SymlinkedAt = &t
	}

	if genres != "" && genres != "[]" {
		if err := json.Unmarshal([]byte(genres), &item.Genres); err != nil {
			return nil, parentID, fmt.Errorf("decode genres: %w", err)
		}
	}
	if activeStream.Valid && activeStream.String != "" {
		var as media.ActiveStream
		if err := json.Unmarshal([]byte(activeStream.String), &as); err != nil {
			return nil, parentID, fmt.Errorf("decode active_stream: %w", err)
		}
		item.ActiveStream = &as
	}

	return &item, parentID, nil
}

// GetByID returns the full item tree for the given internal id.
func (s *Store) GetByID(ctx context.Context, id int64) (*media.Item, error) {
	item, _, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+itemJoins+` WHERE m.id = ?`, id))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get item %d", id), err)
	}
	if err := s.loadRelations(ctx, item); err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetByIMDB returns the most specific match for an external id: the
// episode when both season and episode numbers are given, the season
// when only a season number is given, otherwise the root movie or show.
func (s *Store) GetByIMDB(ctx context.Context, imdbID string, season, episode *int) (*media.Item, error) {
	root, _, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+itemJoins+` WHERE m.imdb_id = ? AND m.parent_id IS NULL LIMIT 1`, imdbID))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get item %s", imdbID), err)
	}
	if err := s.loadRelations(ctx, root); err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, root); err != nil {
		return nil, err
	}

	if season == nil {
		return root, nil
	}
	sn := root.Season(*season)
	if sn == nil {
		return nil, fmt.Errorf("get %s season %d: %w", imdbID, *season, ErrNotFound)
	}
	if episode == nil {
		return sn, nil
	}
	ep := sn.Episode(*episode)
	if ep == nil {
		return nil, fmt.Errorf("get %s s%02de%02d: %w", imdbID, *season, *episode, ErrNotFound)
	}
	return ep, nil
}

// loadChildren populates seasons and episodes recursively, wiring parent
// back-references.
func (s *Store) loadChildren(ctx context.Context, parent *media.Item) error {
	if parent.Type == media.TypeMovie || parent.Type == media.TypeEpisode {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+itemJoins+` WHERE m.parent_id = ? ORDER BY COALESCE(s.number, e.number, 0)`,
		parent.ID)
	if err != nil {
		return wrapErr("load children", err)
	}
	defer rows.Close()

	var children []*media.Item
	for rows.Next() {
		child, _, err := scanItem(rows)
		if err != nil {
			return wrapErr("scan child", err)
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return wrapErr("load children", err)
	}

	for _, child := range children {
		if err := s.loadRelations(ctx, child); err != nil {
			return err
		}
		switch child.Type {
		case media.TypeSeason:
			parent.AddSeason(child)
		case media.TypeEpisode:
			parent.AddEpisode(child)
		}
		if err := s.loadChildren(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// loadRelations populates streams, blacklist and subtitles for one node.
func (s *Store) loadRelations(ctx context.Context, item *media.Item) error {
	var err error
	if item.Streams, err = s.loadStreams(ctx, item.ID, "stream_relations"); err != nil {
		return err
	}
	if item.Blacklisted, err = s.loadStreams(ctx, item.ID, "stream_blacklist"); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, language, file FROM subtitles WHERE media_item_id = ?`, item.ID)
	if err != nil {
		return wrapErr("load subtitles", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sub media.Subtitle
		var file sql.NullString
		if err := rows.Scan(&sub.ID, &sub.Language, &file); err != nil {
			return wrapErr("scan subtitle", err)
		}
		sub.File = file.String
		item.Subtitles = append(item.Subtitles, &sub)
	}
	return rows.Err()
}

func (s *Store) loadStreams(ctx context.Context, itemID int64, relation string) ([]*media.Stream, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT st.id, st.infohash, st.raw_title, st.parsed_title, st.rank, st.lev_ratio
		 FROM streams st JOIN `+relation+` r ON r.stream_id = st.id
		 WHERE r.media_item_id = ? ORDER BY st.rank DESC`, itemID)
	if err != nil {
		return nil, wrapErr("load streams", err)
	}
	defer rows.Close()

	var streams []*media.Stream
	for rows.Next() {
		var st media.Stream
		var parsed sql.NullString
		if err := rows.Scan(&st.ID, &st.Infohash, &st.RawTitle, &parsed, &st.Rank, &st.LevRatio); err != nil {
			return nil, wrapErr("scan stream", err)
		}
		st.ParsedTitle = parsed.String
		streams = append(streams, &st)
	}
	return streams, rows.Err()
}

// Upsert persists the full item tree in one transaction. last_state is
// recomputed for every node before writing; when the root's persisted
// state changes, the notifier is informed after commit.
func (s *Store) Upsert(ctx context.Context, item *media.Item) error {
	item.RefreshState()

	var prevState sql.NullString
	if item.ID != 0 {
		_ = s.db.QueryRowContext(ctx,
			`SELECT last_state FROM media_items WHERE id = ?`, item.ID).Scan(&prevState)
	} else if item.IMDbID != "" {
		_ = s.db.QueryRowContext(ctx,
			`SELECT last_state FROM media_items WHERE imdb_id = ? AND parent_id IS NULL`, item.IMDbID).Scan(&prevState)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin upsert", err)
	}
	defer tx.Rollback()

	if item.ID == 0 && item.IMDbID != "" {
		// Adopt the persisted row when a fresh in-memory item shadows one.
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM media_items WHERE imdb_id = ? AND parent_id IS NULL`, item.IMDbID).Scan(&existingID)
		if err == nil {
			item.ID = existingID
		} else if !errors.Is(err, sql.ErrNoRows) {
			return wrapErr("resolve existing", err)
		}
	}

	if err := s.upsertNode(ctx, tx, item, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit upsert", err)
	}

	if s.notifier != nil && (!prevState.Valid || media.State(prevState.String) != item.LastState) {
		s.notifier.ItemUpdate(item)
	}
	return nil
}

func (s *Store) upsertNode(ctx context.Context, tx *sql.Tx, item *media.Item, parentID *int64) error {
	// A freshly indexed tree carries no row ids; adopt the persisted
	// child with the same coordinates instead of inserting a twin.
	if item.ID == 0 && parentID != nil {
		var existingID int64
		err := tx.QueryRowContext(ctx, `
			SELECT m.id FROM media_items m
			LEFT JOIN seasons s ON s.id = m.id
			LEFT JOIN episodes e ON e.id = m.id
			WHERE m.parent_id = ? AND m.type = ? AND COALESCE(s.number, e.number, 0) = ?`,
			*parentID, string(item.Type), item.Number).Scan(&existingID)
		if err == nil {
			item.ID = existingID
		} else if !errors.Is(err, sql.ErrNoRows) {
			return wrapErr("resolve child", err)
		}
	}

	genres, err := json.Marshal(item.Genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	var activeStream any
	if item.ActiveStream != nil {
		raw, err := json.Marshal(item.ActiveStream)
		if err != nil {
			return fmt.Errorf("encode active_stream: %w", err)
		}
		activeStream = string(raw)
	}

	args := []any{
		nullStr(item.ItemID), string(item.Type), parentIDValue(parentID),
		nullStr(item.IMDbID), nullStr(item.TVDBID), nullStr(item.TMDBID),
		nullStr(item.Title), nullInt(int64(item.Year)), nullTime(item.AiredAt),
		nullStr(item.Language), nullStr(item.Country), nullStr(item.Network),
		string(genres), item.IsAnime,
		nullTime(item.RequestedAt), nullStr(item.RequestedBy), nullInt(item.OverseerrID),
		nullTime(item.IndexedAt), nullTime(item.ScrapedAt), item.ScrapedTimes,
		activeStream, nullStr(item.File), nullStr(item.Folder), nullStr(item.AlternativeFolder),
		item.Symlinked, nullTime(item.SymlinkedAt), item.SymlinkedTimes, nullStr(item.SymlinkPath),
		nullStr(item.Key), nullStr(item.GUID), nullStr(item.UpdateFolder), string(item.LastState),
	}

	if item.ID == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_items (item_id, type, parent_id, imdb_id, tvdb_id, tmdb_id,
				title, year, aired_at, language, country, network, genres, is_anime,
				requested_at, requested_by, overseerr_id, indexed_at, scraped_at, scraped_times,
				active_stream, file, folder, alternative_folder,
				symlinked, symlinked_at, symlinked_times, symlink_path,
				key, guid, update_folder, last_state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...)
		if err != nil {
			return wrapErr("insert item", err)
		}
		item.ID, err = res.LastInsertId()
		if err != nil {
			return wrapErr("insert item", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE media_items SET item_id = ?, type = ?, parent_id = ?, imdb_id = ?, tvdb_id = ?, tmdb_id = ?,
				title = ?, year = ?, aired_at = ?, language = ?, country = ?, network = ?, genres = ?, is_anime = ?,
				requested_at = ?, requested_by = ?, overseerr_id = ?, indexed_at = ?, scraped_at = ?, scraped_times = ?,
				active_stream = ?, file = ?, folder = ?, alternative_folder = ?,
				symlinked = ?, symlinked_at = ?, symlinked_times = ?, symlink_path = ?,
				key = ?, guid = ?, update_folder = ?, last_state = ?
			WHERE id = ?`,
			append(args, item.ID)...)
		if err != nil {
			return wrapErr("update item", err)
		}
	}

	if err := s.upsertVariant(ctx, tx, item); err != nil {
		return err
	}
	if err := s.replaceStreams(ctx, tx, item.ID, "stream_relations", item.Streams); err != nil {
		return err
	}
	if err := s.replaceStreams(ctx, tx, item.ID, "stream_blacklist", item.Blacklisted); err != nil {
		return err
	}
	if err := s.replaceSubtitles(ctx, tx, item); err != nil {
		return err
	}

	for _, season := range item.Seasons {
		if err := s.upsertNode(ctx, tx, season, &item.ID); err != nil {
			return err
		}
	}
	for _, episode := range item.Episodes {
		if err := s.upsertNode(ctx, tx, episode, &item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertVariant(ctx context.Context, tx *sql.Tx, item *media.Item) error {
	var err error
	switch item.Type {
	case media.TypeMovie:
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO movies (id) VALUES (?)`, item.ID)
	case media.TypeShow:
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO shows (id) VALUES (?)`, item.ID)
	case media.TypeSeason:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO seasons (id, number) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET number = excluded.number`, item.ID, item.Number)
	case media.TypeEpisode:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO episodes (id, number) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET number = excluded.number`, item.ID, item.Number)
	default:
		return fmt.Errorf("upsert variant: unknown type %q: %w", item.Type, ErrConflict)
	}
	return wrapErr("upsert variant", err)
}

func (s *Store) replaceStreams(ctx context.Context, tx *sql.Tx, itemID int64, relation string, streams []*media.Stream) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+relation+` WHERE media_item_id = ?`, itemID); err != nil {
		return wrapErr("clear "+relation, err)
	}

	for _, st := range streams {
		if st.ID == 0 {
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM streams WHERE infohash = ? AND raw_title = ?`,
				st.Infohash, st.RawTitle).Scan(&st.ID)
			if errors.Is(err, sql.ErrNoRows) {
				res, err := tx.ExecContext(ctx,
					`INSERT INTO streams (infohash, raw_title, parsed_title, rank, lev_ratio) VALUES (?, ?, ?, ?, ?)`,
					st.Infohash, st.RawTitle, nullStr(st.ParsedTitle), st.Rank, st.LevRatio)
				if err != nil {
					return wrapErr("insert stream", err)
				}
				if st.ID, err = res.LastInsertId(); err != nil {
					return wrapErr("insert stream", err)
				}
			} else if err != nil {
				return wrapErr("resolve stream", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+relation+` (media_item_id, stream_id) VALUES (?, ?)`,
			itemID, st.ID); err != nil {
			return wrapErr("relate stream", err)
		}
	}
	return nil
}

func (s *Store) replaceSubtitles(ctx context.Context, tx *sql.Tx, item *media.Item) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subtitles WHERE media_item_id = ?`, item.ID); err != nil {
		return wrapErr("clear subtitles", err)
	}
	for _, sub := range item.Subtitles {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO subtitles (media_item_id, language, file) VALUES (?, ?, ?)`,
			item.ID, sub.Language, nullStr(sub.File))
		if err != nil {
			return wrapErr("insert subtitle", err)
		}
		sub.ID, _ = res.LastInsertId()
	}
	return nil
}

// DeleteByIMDB removes the item tree, its stream relations and any
// streams left orphaned. Returns false when the id matched nothing.
func (s *Store) DeleteByIMDB(ctx context.Context, imdbID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapErr("begin delete", err)
	}
	defer tx.Rollback()

	var rootID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM media_items WHERE imdb_id = ? AND parent_id IS NULL`, imdbID).Scan(&rootID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("resolve delete", err)
	}

	// Children, variant rows, relations and subtitles cascade from the root.
	if _, err := tx.ExecContext(ctx, `DELETE FROM media_items WHERE id = ?`, rootID); err != nil {
		return false, wrapErr("delete item", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM streams WHERE id NOT IN (
			SELECT stream_id FROM stream_relations
			UNION SELECT stream_id FROM stream_blacklist)`); err != nil {
		return false, wrapErr("prune streams", err)
	}

	if err := tx.Commit(); err != nil {
		return false, wrapErr("commit delete", err)
	}
	return true, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func parentIDValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
