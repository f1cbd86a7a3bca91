// Package symlinker installs downloaded files into the media library
// as symbolic links with Plex-style folder and file naming, and scans
// an existing library back into stub items.
package symlinker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/media"
)

// A leaf that failed this many symlink attempts gets its active stream
// blacklisted and its download state reset.
const maxSymlinkAttempts = 3

// Service is the symlinking capability.
type Service struct {
	rclonePath        string
	libraryPath       string
	separateAnimeDirs bool
	logger            zerolog.Logger
}

// Config holds symlinker configuration.
type Config struct {
	RclonePath        string
	LibraryPath       string
	SeparateAnimeDirs bool
}

// New creates a symlinker.
func New(cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		rclonePath:        cfg.RclonePath,
		libraryPath:       cfg.LibraryPath,
		separateAnimeDirs: cfg.SeparateAnimeDirs,
		logger:            logger.With().Str("component", "symlinker").Logger(),
	}
}

// Validate ensures both mount points exist.
func (s *Service) Validate() error {
	if s.rclonePath == "" || s.libraryPath == "" {
		return fmt.Errorf("symlink paths are not configured")
	}
	for _, p := range []string{s.rclonePath, s.libraryPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("symlink path %s: %w", p, err)
		}
	}
	return nil
}

// ShouldSubmit reports whether a leaf is ready to be symlinked: it has
// a file and folder, the source exists under the rclone mount, and it
// has not exhausted its attempts. An exhausted leaf gets its active
// stream blacklisted and its download state reset so selection restarts.
func (s *Service) ShouldSubmit(item *media.Item) bool {
	if !item.IsLeaf() && len(item.Seasons) == 0 && len(item.Episodes) == 0 {
		return false
	}
	leaves := collectLeaves(item)
	ready := false
	for _, leaf := range leaves {
		if leaf.Symlinked {
			continue
		}
		if leaf.File == "" || leaf.Folder == "" || leaf.File == "None.mkv" {
			continue
		}
		if leaf.SymlinkedTimes >= maxSymlinkAttempts {
			s.logger.Warn().Str("item", leaf.LogString()).Msg("symlink attempts exhausted, resetting for rescrape")
			leaf.BlacklistActiveStream()
			leaf.Reset()
			continue
		}
		if s.sourcePath(leaf) == "" {
			leaf.SymlinkedTimes++
			continue
		}
		ready = true
	}
	return ready
}

// Run creates the symlinks for the item (or all its ready leaves).
func (s *Service) Run(ctx context.Context, item *media.Item) error {
	for _, leaf := range collectLeaves(item) {
		if leaf.Symlinked || leaf.File == "" || leaf.Folder == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.symlinkLeaf(leaf); err != nil {
			leaf.SymlinkedTimes++
			s.logger.Warn().Err(err).Str("item", leaf.LogString()).Msg("symlink failed")
			continue
		}
	}
	return nil
}

func (s *Service) symlinkLeaf(leaf *media.Item) error {
	source := s.sourcePath(leaf)
	if source == "" {
		return fmt.Errorf("source file not found for %s", leaf.LogString())
	}

	destFolder, destName := s.destination(leaf)
	if err := os.MkdirAll(destFolder, 0o755); err != nil {
		return fmt.Errorf("create library folder: %w", err)
	}

	dest := filepath.Join(destFolder, destName+filepath.Ext(leaf.File))
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("replace existing link: %w", err)
		}
	}
	if err := os.Symlink(source, dest); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}

	now := time.Now().UTC()
	leaf.Symlinked = true
	leaf.SymlinkedAt = &now
	leaf.SymlinkedTimes++
	leaf.SymlinkPath = dest
	leaf.UpdateFolder = destFolder

	s.logger.Info().Str("item", leaf.LogString()).Str("path", dest).Msg("symlinked")
	return nil
}

// sourcePath locates the downloaded file under the rclone mount,
// trying the folder, the alternative folder, and the bare file name.
func (s *Service) sourcePath(leaf *media.Item) string {
	candidates := []string{
		filepath.Join(s.rclonePath, leaf.Folder, leaf.File),
		filepath.Join(s.rclonePath, leaf.AlternativeFolder, leaf.File),
		filepath.Join(s.rclonePath, leaf.File, leaf.File),
		filepath.Join(s.rclonePath, leaf.File),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// destination computes the library folder and file base name.
// Movies: movies/{Title} ({Year}) {imdb-ttX}/
// Episodes: shows/{Show} ({Year}) {imdb-ttX}/Season NN/ with sNNeNN names.
func (s *Service) destination(leaf *media.Item) (folder, name string) {
	if leaf.Type == media.TypeMovie {
		dir := "movies"
		if s.separateAnimeDirs && leaf.IsAnime {
			dir = "anime_movies"
		}
		base := fmt.Sprintf("%s (%d) {imdb-%s}", leaf.Title, leaf.Year, leaf.IMDbID)
		return filepath.Join(s.libraryPath, dir, base), base
	}

	show := leaf.Show()
	season := leaf.Parent
	seasonNumber := 0
	if season != nil {
		seasonNumber = season.Number
	}

	dir := "shows"
	if s.separateAnimeDirs && show.IsAnime {
		dir = "anime_shows"
	}
	showFolder := fmt.Sprintf("%s (%d) {imdb-%s}", show.Title, show.Year, show.IMDbID)
	folder = filepath.Join(s.libraryPath, dir, showFolder, fmt.Sprintf("Season %02d", seasonNumber))
	name = fmt.Sprintf("%s (%d) - s%02de%02d", show.Title, show.Year, seasonNumber, leaf.Number)
	return folder, name
}

// RemoveSymlinks deletes the library links belonging to an item tree.
// Used when an item is deleted.
func (s *Service) RemoveSymlinks(item *media.Item) {
	for _, leaf := range collectLeaves(item) {
		if leaf.SymlinkPath == "" {
			continue
		}
		if err := os.Remove(leaf.SymlinkPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", leaf.SymlinkPath).Msg("remove symlink failed")
		}
	}
}

func collectLeaves(item *media.Item) []*media.Item {
	if item.IsLeaf() {
		return []*media.Item{item}
	}
	var out []*media.Item
	for _, season := range item.Seasons {
		out = append(out, collectLeaves(season)...)
	}
	for _, episode := range item.Episodes {
		out = append(out, episode)
	}
	return out
}
