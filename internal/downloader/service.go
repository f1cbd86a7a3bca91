// Package downloader selects a cached source for an item at the
// download provider and records the chosen stream on the item.
package downloader

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/downloader/realdebrid"
	"github.com/iPromKnight/riven/internal/media"
	"github.com/iPromKnight/riven/internal/scanner"
)

// Probe batches carry at most this many infohashes.
const probeChunkSize = 5

// The provider lists at most this many torrents per call.
const torrentListLimit = 1000

// Provider is the download provider surface the selector needs.
type Provider interface {
	InstantAvailability(ctx context.Context, hashes []string) (map[string]realdebrid.Availability, error)
	AddMagnet(ctx context.Context, infohash string) (string, error)
	TorrentInfo(ctx context.Context, id string) (*realdebrid.TorrentInfo, error)
	SelectFiles(ctx context.Context, id string, fileIDs []string) error
	Torrents(ctx context.Context, limit int) ([]realdebrid.Torrent, error)
}

// Settings holds the per-kind file size windows in bytes. A max of -1
// means unbounded.
type Settings struct {
	MovieSizeMin   int64
	MovieSizeMax   int64
	EpisodeSizeMin int64
	EpisodeSizeMax int64
}

// SettingsFromMB builds Settings from megabyte-denominated config values.
func SettingsFromMB(movieMin, movieMax, episodeMin, episodeMax int64) Settings {
	toBytes := func(mb int64) int64 {
		if mb < 0 {
			return -1
		}
		return mb * 1024 * 1024
	}
	return Settings{
		MovieSizeMin:   toBytes(movieMin),
		MovieSizeMax:   toBytes(movieMax),
		EpisodeSizeMin: toBytes(episodeMin),
		EpisodeSizeMax: toBytes(episodeMax),
	}
}

var videoExtensions = map[string]bool{
	".mkv": true,
	".mp4": true,
	".avi": true,
}

// Service runs the cached-source selection for items.
type Service struct {
	provider Provider
	settings Settings
	logger   zerolog.Logger
}

// New creates a downloader service.
func New(provider Provider, settings Settings, logger zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		settings: settings,
		logger:   logger.With().Str("component", "downloader").Logger(),
	}
}

// Run selects and initiates a cached download for the item. It returns
// false without error when no wanted cached stream exists; streams that
// cannot serve the item are blacklisted so they are never re-probed.
func (s *Service) Run(ctx context.Context, item *media.Item) (bool, error) {
	if item.ActiveStream != nil && item.ActiveStream.Hash != "" && s.alreadyDownloaded(ctx, item) {
		s.logger.Debug().Str("item", item.LogString()).Msg("already downloaded at provider")
		return true, nil
	}

	if item.Type == media.TypeSeason && s.reuseSiblingContainer(item) {
		s.logger.Debug().Str("item", item.LogString()).Msg("reused sibling season container")
		return true, nil
	}

	hashes, byHash := collectHashes(item)
	if len(hashes) == 0 {
		s.logger.Debug().Str("item", item.LogString()).Msg("no streams to probe")
		return false, nil
	}

	probed := make([]string, 0, len(hashes))
	for _, chunk := range chunkStrings(hashes, probeChunkSize) {
		availability, err := s.provider.InstantAvailability(ctx, chunk)
		if err != nil {
			s.logger.Warn().Err(err).Int("chunk", len(chunk)).Msg("availability probe failed, skipping chunk")
			continue
		}
		probed = append(probed, chunk...)

		for _, hash := range chunk {
			containers := cachedContainers(availability[hash])
			if len(containers) == 0 {
				if stream := byHash[hash]; stream != nil {
					item.BlacklistStream(stream)
				}
				continue
			}

			files := s.selectContainer(item, containers)
			if files == nil {
				// Terminal kinds blacklist streams whose containers all
				// failed; a container may still serve another season.
				if item.IsLeaf() {
					if stream := byHash[hash]; stream != nil {
						item.BlacklistStream(stream)
					}
				}
				continue
			}

			item.ActiveStream = &media.ActiveStream{
				Hash:  hash,
				Files: files,
			}
			if err := s.finalize(ctx, item); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	if item.IsLeaf() {
		for _, hash := range probed {
			if stream := byHash[hash]; stream != nil {
				item.BlacklistStream(stream)
			}
		}
		s.logger.Info().Str("item", item.LogString()).Msg("no wanted cached streams")
	}
	return false, nil
}

// collectHashes enumerates attached streams deduplicated by infohash,
// preserving order. Blacklisted streams are never probed.
func collectHashes(item *media.Item) ([]string, map[string]*media.Stream) {
	var hashes []string
	byHash := make(map[string]*media.Stream)
	for _, stream := range item.Streams {
		hash := strings.ToLower(stream.Infohash)
		if hash == "" || byHash[hash] != nil || item.IsBlacklisted(stream.Infohash) {
			continue
		}
		byHash[hash] = stream
		hashes = append(hashes, hash)
	}
	return hashes, byHash
}

func chunkStrings(list []string, size int) [][]string {
	var chunks [][]string
	for size < len(list) {
		chunks = append(chunks, list[:size])
		list = list[size:]
	}
	if len(list) > 0 {
		chunks = append(chunks, list)
	}
	return chunks
}

// cachedContainers flattens the provider variants into one container list.
func cachedContainers(avail realdebrid.Availability) []realdebrid.Container {
	var containers []realdebrid.Container
	for _, list := range avail {
		for _, c := range list {
			if len(c) > 0 {
				containers = append(containers, c)
			}
		}
	}
	return containers
}

// finalize adds the magnet, refreshes torrent info, selects the video
// files and propagates the folder to descendants.
func (s *Service) finalize(ctx context.Context, item *media.Item) error {
	id, err := s.provider.AddMagnet(ctx, item.ActiveStream.Hash)
	if err != nil {
		return err
	}
	item.ActiveStream.ID = id

	info, err := s.provider.TorrentInfo(ctx, id)
	if err != nil {
		return err
	}
	item.ActiveStream.Name = info.Filename
	item.ActiveStream.AlternativeName = info.OriginalFilename

	var fileIDs []string
	for _, f := range info.Files {
		if videoExtensions[strings.ToLower(filepath.Ext(f.Path))] {
			fileIDs = append(fileIDs, strconv.Itoa(f.ID))
		}
	}
	if len(fileIDs) > 0 {
		if err := s.provider.SelectFiles(ctx, id, fileIDs); err != nil {
			return err
		}
	}

	if item.Folder == "" {
		item.Folder = info.Filename
	}
	if item.AlternativeFolder == "" {
		item.AlternativeFolder = info.OriginalFilename
	}
	item.PropagateFolder(info.Filename)

	s.logger.Info().
		Str("item", item.LogString()).
		Str("hash", item.ActiveStream.Hash).
		Str("torrent_id", id).
		Msg("cached source selected")
	return nil
}

// alreadyDownloaded checks whether the provider already holds a torrent
// for the item's active stream whose selected files satisfy the item.
func (s *Service) alreadyDownloaded(ctx context.Context, item *media.Item) bool {
	torrents, err := s.provider.Torrents(ctx, torrentListLimit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("torrent list failed")
		return false
	}

	hash := strings.ToLower(item.ActiveStream.Hash)
	var match *realdebrid.Torrent
	for i := range torrents {
		if strings.ToLower(torrents[i].Hash) == hash {
			match = &torrents[i]
			break
		}
	}
	if match == nil {
		return false
	}

	info, err := s.provider.TorrentInfo(ctx, match.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("torrent_id", match.ID).Msg("torrent info failed")
		return false
	}

	var selected []realdebrid.TorrentFile
	for _, f := range info.Files {
		if f.Selected == 1 {
			selected = append(selected, f)
		}
	}
	if len(selected) == 0 {
		return false
	}

	switch item.Type {
	case media.TypeMovie:
		for _, f := range selected {
			if f.Bytes > 200*1024*1024 {
				return true
			}
		}
		return false
	case media.TypeEpisode:
		season := 0
		if item.Parent != nil {
			season = item.Parent.Number
		}
		for _, f := range selected {
			parsed := scanner.Parse(filepath.Base(f.Path))
			if parsed.HasSeason(season) && parsed.HasEpisode(item.Number) {
				return true
			}
		}
		return false
	default:
		needed := neededEpisodes(item)
		total := 0
		for _, eps := range needed {
			total += len(eps)
		}
		if total == 0 {
			return false
		}
		covered := 0
		for season, eps := range needed {
			for ep := range eps {
				for _, f := range selected {
					parsed := scanner.Parse(filepath.Base(f.Path))
					if coversEpisode(parsed, item, season, ep) {
						covered++
						break
					}
				}
			}
		}
		return covered >= (total+1)/2
	}
}
