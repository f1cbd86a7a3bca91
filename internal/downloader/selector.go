package downloader

import (
	"sort"
	"strings"

	"github.com/iPromKnight/riven/internal/downloader/realdebrid"
	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/scanner"
)

// selectContainer sorts containers by descending file count and returns
// the wanted files of the first container that satisfies the item's
// kind predicate, or nil when none does. Matched files are attributed
// to the item (and its episodes for container kinds) as a side effect.
func (s *Service) selectContainer(item *media.Item, containers []realdebrid.Container) map[string]media.ContainerFile {
	sorted := make([]realdebrid.Container, len(containers))
	copy(sorted, containers)
	sort.SliceStable(sorted, func(a, b int) bool {
		return len(sorted[a]) > len(sorted[b])
	})

	for _, container := range sorted {
		var files map[string]media.ContainerFile
		switch item.Type {
		case media.TypeMovie:
			files = s.wantedMovieFiles(item, container)
		case media.TypeEpisode:
			files = s.wantedEpisodeFiles(item, container)
		case media.TypeSeason, media.TypeShow:
			files = s.wantedContainerFiles(item, container)
		}
		if len(files) > 0 {
			return files
		}
	}
	return nil
}

type sizedFile struct {
	id   string
	file realdebrid.File
}

// wantedMovieFiles picks the largest in-window video file whose parsed
// title is non-empty and whose name is not a sample.
func (s *Service) wantedMovieFiles(item *media.Item, container realdebrid.Container) map[string]media.ContainerFile {
	var candidates []sizedFile
	for id, f := range container {
		if !videoFile(f.Filename) {
			continue
		}
		if !sizeInWindow(f.Filesize, s.settings.MovieSizeMin, s.settings.MovieSizeMax) {
			continue
		}
		candidates = append(candidates, sizedFile{id: id, file: f})
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].file.Filesize > candidates[b].file.Filesize
	})

	for _, c := range candidates {
		if isSample(c.file.Filename) {
			continue
		}
		if scanner.Parse(c.file.Filename).Title == "" {
			continue
		}
		item.File = c.file.Filename
		return map[string]media.ContainerFile{
			c.id: {Filename: c.file.Filename, Filesize: c.file.Filesize},
		}
	}
	return nil
}

// wantedEpisodeFiles matches a file parsing to the episode's season and
// number. The season constraint is dropped for single-season shows.
func (s *Service) wantedEpisodeFiles(item *media.Item, container realdebrid.Container) map[string]media.ContainerFile {
	season := 0
	if item.Parent != nil {
		season = item.Parent.Number
	}

	for id, f := range container {
		if !videoFile(f.Filename) || isSample(f.Filename) {
			continue
		}
		if !sizeInWindow(f.Filesize, s.settings.EpisodeSizeMin, s.settings.EpisodeSizeMax) {
			continue
		}
		parsed := scanner.Parse(f.Filename)
		if !parsed.HasEpisode(item.Number) {
			continue
		}
		if !parsed.HasSeason(season) && !singleSeasonShow(item) {
			continue
		}
		item.File = f.Filename
		return map[string]media.ContainerFile{
			id: {Filename: f.Filename, Filesize: f.Filesize},
		}
	}
	return nil
}

// wantedContainerFiles evaluates a container for a season or show: every
// candidate file is parsed once, matched files are attributed to their
// episodes, and the container is accepted when at least one needed
// episode gets a file.
func (s *Service) wantedContainerFiles(item *media.Item, container realdebrid.Container) map[string]media.ContainerFile {
	needed := neededEpisodes(item)
	total := 0
	for _, eps := range needed {
		total += len(eps)
	}
	if total == 0 {
		return nil
	}

	matched := make(map[string]media.ContainerFile)
	assigned := make(map[*media.Item]bool)

	for id, f := range container {
		if !videoFile(f.Filename) || isSample(f.Filename) {
			continue
		}
		if !sizeInWindow(f.Filesize, s.settings.EpisodeSizeMin, s.settings.EpisodeSizeMax) {
			continue
		}
		parsed := scanner.Parse(f.Filename)

		for season, eps := range needed {
			if !parsed.HasSeason(season) && !singleSeasonShow(item) {
				continue
			}
			for ep := range eps {
				if !parsed.HasEpisode(ep) {
					continue
				}
				episode := findEpisode(item, season, ep)
				if episode == nil || assigned[episode] {
					continue
				}
				episode.File = f.Filename
				assigned[episode] = true
				matched[id] = media.ContainerFile{Filename: f.Filename, Filesize: f.Filesize}
			}
		}
	}

	if len(assigned) == 0 {
		return nil
	}
	return matched
}

// reuseSiblingContainer checks whether a sibling season's active stream
// already satisfies this season's needs; if so its hash and files are
// adopted without a fresh probe.
func (s *Service) reuseSiblingContainer(season *media.Item) bool {
	show := season.Parent
	if show == nil {
		return false
	}

	for _, sibling := range show.Seasons {
		if sibling == season || sibling.ActiveStream == nil || len(sibling.ActiveStream.Files) == 0 {
			continue
		}
		container := make(realdebrid.Container, len(sibling.ActiveStream.Files))
		for id, f := range sibling.ActiveStream.Files {
			container[id] = realdebrid.File{Filename: f.Filename, Filesize: f.Filesize}
		}
		files := s.wantedContainerFiles(season, container)
		if len(files) == 0 {
			continue
		}
		season.ActiveStream = &media.ActiveStream{
			Hash:            sibling.ActiveStream.Hash,
			Files:           files,
			ID:              sibling.ActiveStream.ID,
			Name:            sibling.ActiveStream.Name,
			AlternativeName: sibling.ActiveStream.AlternativeName,
		}
		if season.Folder == "" {
			season.Folder = sibling.Folder
		}
		season.PropagateFolder(season.Folder)
		return true
	}
	return false
}

// neededEpisodes collects, per season number, the episode numbers still
// requiring a file: aired episodes whose state is not yet Downloaded or
// beyond.
func neededEpisodes(item *media.Item) map[int]map[int]bool {
	needed := make(map[int]map[int]bool)

	collect := func(season *media.Item) {
		for _, episode := range season.Episodes {
			if !episode.IsReleased() {
				continue
			}
			switch episode.State() {
			case media.StateIndexed, media.StateScraped, media.StateUnknown,
				media.StateFailed, media.StatePartiallyCompleted:
				if needed[season.Number] == nil {
					needed[season.Number] = make(map[int]bool)
				}
				needed[season.Number][episode.Number] = true
			}
		}
	}

	switch item.Type {
	case media.TypeSeason:
		collect(item)
	case media.TypeShow:
		for _, season := range item.Seasons {
			collect(season)
		}
	}
	return needed
}

func findEpisode(item *media.Item, season, episode int) *media.Item {
	switch item.Type {
	case media.TypeSeason:
		if item.Number != season && !singleSeasonShow(item) {
			return nil
		}
		return item.Episode(episode)
	case media.TypeShow:
		if sn := item.Season(season); sn != nil {
			return sn.Episode(episode)
		}
		if singleSeasonShow(item) && len(item.Seasons) == 1 {
			return item.Seasons[0].Episode(episode)
		}
	}
	return nil
}

// coversEpisode reports whether a parsed provider filename covers the
// given season and episode of the item's show.
func coversEpisode(parsed *scanner.Parsed, item *media.Item, season, episode int) bool {
	if !parsed.HasEpisode(episode) {
		return false
	}
	return parsed.HasSeason(season) || singleSeasonShow(item)
}

func singleSeasonShow(item *media.Item) bool {
	show := item.Show()
	return show.Type == media.TypeShow && len(show.Seasons) == 1
}

func videoFile(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	return videoExtensions[strings.ToLower(name[idx:])]
}

func isSample(name string) bool {
	return strings.Contains(strings.ToLower(name), "sample")
}

func sizeInWindow(size, min, max int64) bool {
	if size <= min {
		return false
	}
	if max >= 0 && size > max {
		return false
	}
	return true
}
