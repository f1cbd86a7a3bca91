package symlinker

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/scanner"
)

var imdbTagPattern = regexp.MustCompile(`\{imdb-(tt\d+)\}`)

// Library scans the symlink library back into stub items, used to
// populate an empty database from an existing installation.
type Library struct {
	libraryPath string
	logger      zerolog.Logger
}

// NewLibrary creates a library scanner over the symlinker's library path.
func NewLibrary(libraryPath string, logger zerolog.Logger) *Library {
	return &Library{
		libraryPath: libraryPath,
		logger:      logger.With().Str("component", "symlink-library").Logger(),
	}
}

// Run walks the library and yields one stub item per movie folder and
// per show folder carrying an imdb tag. Existing symlinks are recorded
// on the stubs so indexing preserves them.
func (l *Library) Run(ctx context.Context) ([]*media.Item, error) {
	var items []*media.Item

	for _, dir := range []string{"movies", "anime_movies"} {
		found, err := l.scanMovies(ctx, filepath.Join(l.libraryPath, dir))
		if err != nil {
			return nil, err
		}
		items = append(items, found...)
	}
	for _, dir := range []string{"shows", "anime_shows"} {
		found, err := l.scanShows(ctx, filepath.Join(l.libraryPath, dir))
		if err != nil {
			return nil, err
		}
		items = append(items, found...)
	}

	l.logger.Info().Int("items", len(items)).Msg("library scan complete")
	return items, nil
}

func (l *Library) scanMovies(ctx context.Context, root string) ([]*media.Item, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []*media.Item
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		imdbID := imdbTag(entry.Name())
		if imdbID == "" {
			continue
		}
		item := media.NewMovie(imdbID, "SymlinkLibrary")
		parsed := scanner.Parse(entry.Name())
		item.Title = parsed.Title
		item.Year = parsed.Year
		l.recordSymlink(item, filepath.Join(root, entry.Name()))
		items = append(items, item)
	}
	return items, nil
}

func (l *Library) scanShows(ctx context.Context, root string) ([]*media.Item, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []*media.Item
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		imdbID := imdbTag(entry.Name())
		if imdbID == "" {
			continue
		}
		item := media.NewShow(imdbID, "SymlinkLibrary")
		parsed := scanner.Parse(entry.Name())
		item.Title = parsed.Title
		item.Year = parsed.Year
		l.recordShowSymlinks(item, filepath.Join(root, entry.Name()))
		items = append(items, item)
	}
	return items, nil
}

// recordSymlink marks a movie stub as symlinked when its folder holds a link.
func (l *Library) recordSymlink(item *media.Item, folder string) {
	_ = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		item.Symlinked = true
		item.SymlinkPath = path
		if target, err := os.Readlink(path); err == nil {
			item.File = filepath.Base(target)
			item.Folder = filepath.Base(filepath.Dir(target))
		}
		return fs.SkipAll
	})
}

// recordShowSymlinks builds the season/episode stubs found on disk.
func (l *Library) recordShowSymlinks(show *media.Item, folder string) {
	_ = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		parsed := scanner.Parse(d.Name())
		if len(parsed.Seasons) != 1 || len(parsed.Episodes) == 0 {
			return nil
		}

		seasonNumber := parsed.Seasons[0]
		season := show.Season(seasonNumber)
		if season == nil {
			season = &media.Item{
				Type:   media.TypeSeason,
				IMDbID: show.IMDbID,
				Number: seasonNumber,
			}
			show.AddSeason(season)
		}

		for _, epNumber := range parsed.Episodes {
			episode := season.Episode(epNumber)
			if episode == nil {
				episode = &media.Item{
					Type:   media.TypeEpisode,
					IMDbID: show.IMDbID,
					Number: epNumber,
				}
				season.AddEpisode(episode)
			}
			episode.Symlinked = true
			episode.SymlinkPath = path
			if target, err := os.Readlink(path); err == nil {
				episode.File = filepath.Base(target)
				episode.Folder = filepath.Base(filepath.Dir(target))
			}
		}
		return nil
	})
}

func imdbTag(name string) string {
	if m := imdbTagPattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}
