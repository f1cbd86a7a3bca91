// Package statemachine holds the pure transition function that decides,
// from an item's current state, which capability runs next and which
// children are submitted to it. It performs no I/O; capability
// eligibility is consulted through injected predicates.
package statemachine

import (
	"github.com/iPromKnight/riven/internal/media"
)

// Capability keys the state machine can direct control to.
const (
	CapabilityIndexer        = "TraktIndexer"
	CapabilityScraping       = "Scraping"
	CapabilityDownloader     = "Downloader"
	CapabilitySymlinker      = "Symlinker"
	CapabilityUpdater        = "Updater"
	CapabilityPostProcessing = "PostProcessing"
)

// Request sources whose emissions always (re-)enter an item at the
// indexing stage.
var sourceServices = map[string]bool{
	"Overseerr":      true,
	"PlexWatchlist":  true,
	"Listrr":         true,
	"Mdblist":        true,
	"SymlinkLibrary": true,
	"TraktContent":   true,
}

// Capabilities exposes the eligibility predicates the transition
// function consults. Implementations must be side-effect free.
type Capabilities interface {
	IndexerShouldSubmit(item *media.Item) bool
	CanWeScrape(item *media.Item) bool
	SymlinkerShouldSubmit(item *media.Item) bool
	PostProcessingEnabled() bool
	NeedsPostProcessing(item *media.Item) bool
}

// Result is the outcome of one transition. An empty Next or an empty
// Children slice is a fixed point.
type Result struct {
	Updated  *media.Item
	Next     string
	Children []*media.Item
}

// FixedPoint reports whether the workflow should persist and exit.
func (r Result) FixedPoint() bool {
	return r.Next == "" || len(r.Children) == 0
}

// Process maps (existing item, emitting capability, incoming item) to
// the next capability and the children to submit to it.
func Process(caps Capabilities, existing *media.Item, startedBy string, item *media.Item) Result {
	if sourceServices[startedBy] || item.State() == media.StateRequested || item.State() == media.StateUnknown {
		return processRequested(caps, existing, item)
	}

	switch item.State() {
	case media.StateIndexed, media.StatePartiallyCompleted:
		return processIndexed(caps, existing, item)
	case media.StateScraped:
		return processScraped(item)
	case media.StateDownloaded:
		return processDownloaded(caps, item)
	case media.StateSymlinked:
		return Result{Updated: item, Next: CapabilityUpdater, Children: []*media.Item{item}}
	case media.StateCompleted:
		return processCompleted(caps, item)
	default:
		return Result{Updated: item}
	}
}

func processRequested(caps Capabilities, existing *media.Item, item *media.Item) Result {
	// The indexer operates at show granularity.
	if item.Type == media.TypeSeason && item.Parent != nil {
		item = item.Parent
		if existing != nil && existing.Parent != nil {
			existing = existing.Parent
		}
	}
	if existing != nil && !caps.IndexerShouldSubmit(existing) {
		return Result{Updated: item}
	}
	return Result{Updated: item, Next: CapabilityIndexer, Children: []*media.Item{item}}
}

func processIndexed(caps Capabilities, existing *media.Item, item *media.Item) Result {
	if existing != nil {
		if existing.IndexedAt == nil {
			existing.FillInMissingChildren(item)
			existing.CopyMediaAttrs(item)
			existing.IndexedAt = item.IndexedAt
			item = existing
		}
		if existing.State() == media.StateCompleted {
			return Result{Updated: existing}
		}
	}

	next := CapabilityScraping
	var children []*media.Item

	switch item.Type {
	case media.TypeMovie, media.TypeEpisode:
		if caps.CanWeScrape(item) {
			children = []*media.Item{item}
		}
	case media.TypeShow:
		if caps.CanWeScrape(item) {
			children = []*media.Item{item}
			break
		}
		for _, season := range item.Seasons {
			switch {
			case season.State() == media.StateScraped:
				next = CapabilityDownloader
				children = append(children, season)
			case season.State() != media.StateCompleted && caps.CanWeScrape(season):
				children = append(children, season)
			}
		}
	case media.TypeSeason:
		if caps.CanWeScrape(item) {
			children = []*media.Item{item}
			break
		}
		for _, episode := range item.Episodes {
			switch episode.State() {
			case media.StateScraped:
				next = CapabilityDownloader
				children = append(children, episode)
			case media.StateDownloaded:
				next = CapabilitySymlinker
				children = append(children, episode)
			case media.StateCompleted:
			default:
				if caps.CanWeScrape(episode) {
					children = append(children, episode)
				}
			}
		}
	}

	return Result{Updated: item, Next: next, Children: children}
}

func processScraped(item *media.Item) Result {
	children := downloadedDescendants(item)
	children = append(children, item)
	return Result{Updated: item, Next: CapabilityDownloader, Children: children}
}

func downloadedDescendants(item *media.Item) []*media.Item {
	var out []*media.Item
	for _, season := range item.Seasons {
		if season.State() == media.StateDownloaded {
			out = append(out, season)
		}
		out = append(out, downloadedDescendants(season)...)
	}
	for _, episode := range item.Episodes {
		if episode.State() == media.StateDownloaded {
			out = append(out, episode)
		}
	}
	return out
}

func processDownloaded(caps Capabilities, item *media.Item) Result {
	var candidates []*media.Item

	switch item.Type {
	case media.TypeMovie, media.TypeEpisode:
		candidates = []*media.Item{item}
	default:
		leaves := unsymlinkedLeaves(item)
		allReady := true
		for _, leaf := range leaves {
			if leaf.File == "" || leaf.Folder == "" {
				allReady = false
				break
			}
		}
		if allReady && len(leaves) > 0 {
			candidates = []*media.Item{item}
		} else {
			for _, leaf := range leaves {
				if leaf.File != "" && leaf.Folder != "" {
					candidates = append(candidates, leaf)
				}
			}
		}
	}

	var children []*media.Item
	for _, c := range candidates {
		if caps.SymlinkerShouldSubmit(c) {
			children = append(children, c)
		}
	}
	return Result{Updated: item, Next: CapabilitySymlinker, Children: children}
}

func unsymlinkedLeaves(item *media.Item) []*media.Item {
	var out []*media.Item
	for _, season := range item.Seasons {
		out = append(out, unsymlinkedLeaves(season)...)
	}
	for _, episode := range item.Episodes {
		if !episode.Symlinked {
			out = append(out, episode)
		}
	}
	if item.IsLeaf() && !item.Symlinked {
		out = append(out, item)
	}
	return out
}

func processCompleted(caps Capabilities, item *media.Item) Result {
	if !caps.PostProcessingEnabled() {
		return Result{Updated: item}
	}

	var children []*media.Item
	for _, leaf := range leaves(item) {
		if caps.NeedsPostProcessing(leaf) {
			children = append(children, leaf)
		}
	}
	if len(children) == 0 {
		return Result{Updated: item}
	}
	return Result{Updated: item, Next: CapabilityPostProcessing, Children: children}
}

func leaves(item *media.Item) []*media.Item {
	if item.IsLeaf() {
		return []*media.Item{item}
	}
	var out []*media.Item
	for _, season := range item.Seasons {
		out = append(out, leaves(season)...)
	}
	for _, episode := range item.Episodes {
		out = append(out, episode)
	}
	return out
}
