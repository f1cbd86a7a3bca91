// Package scanner parses release and file names into structured media
// info: title, year, the set of seasons and episodes a name covers, and
// quality markers used for stream ranking.
package scanner

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Parsed represents a release or file name parsed into structured data.
type Parsed struct {
	Title            string   `json:"title"`
	Year             int      `json:"year,omitempty"`
	Seasons          []int    `json:"seasons,omitempty"`
	Episodes         []int    `json:"episodes,omitempty"`
	IsCompleteSeries bool     `json:"isCompleteSeries,omitempty"`
	Quality          string   `json:"quality,omitempty"`    // "720p", "1080p", "2160p"
	Resolution       int      `json:"resolution,omitempty"` // 720, 1080, 2160
	Source           string   `json:"source,omitempty"`     // "BluRay", "WEB-DL", "HDTV"
	Codec            string   `json:"codec,omitempty"`      // "x264", "x265"
	Attributes       []string `json:"attributes,omitempty"` // HDR, Atmos, REMUX
	IsTV             bool     `json:"isTv"`
}

var (
	// Show.S01E02, Show.S01E01E02, Show.S01E01-E04
	tvPatternSE = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})[Ee](\d{1,3})((?:[\s_.-]?[Ee]\d{1,3})*)[\.\s_-]*(.*)$`)
	// Show.1x02
	tvPatternX = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+(\d{1,2})[xX](\d{1,3})[\.\s_-]*(.*)$`)
	// trailing episode refs inside a multi-episode run: E02, -E03
	tvEpisodeRef = regexp.MustCompile(`(?i)[Ee](\d{1,3})`)
	// episode range: S01E01-E04 or S01E01-04
	tvPatternRange = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})[Ee](\d{1,3})-[Ee]?(\d{1,3})[\.\s_-]*(.*)$`)

	// Show.S01 (season pack, no episode number)
	tvPatternSeasonPack = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})(?:[\.\s_-]|$)(.*)$`)
	// Show.Season.1
	tvPatternSeasonSpelled = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss]eason[\.\s_-]+(\d{1,2})(?:[\.\s_-]|$)(.*)$`)
	// Show.S01-S04 (multi-season boxset)
	tvPatternSeasonRange = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})-[Ss]?(\d{1,2})[\.\s_-]+(.*)$`)
	// Show.COMPLETE (no season number)
	tvPatternComplete = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+(?:complete[\.\s_-]*(?:series)?|the[\.\s_-]+complete[\.\s_-]+series)[\.\s_-]+(.*)$`)

	moviePatternDot    = regexp.MustCompile(`^(.+?)[\.\s_-]+(\d{4})[\.\s_-]+(.*)$`)
	moviePatternParen  = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)\s*(.*)$`)
	moviePatternSimple = regexp.MustCompile(`^(.+?)[\.\s_-]+(\d{4})$`)

	qualityPatterns = []struct {
		name       string
		resolution int
		pattern    *regexp.Regexp
	}{
		{"2160p", 2160, regexp.MustCompile(`(?i)(2160p|4k|uhd)`)},
		{"1080p", 1080, regexp.MustCompile(`(?i)1080p`)},
		{"720p", 720, regexp.MustCompile(`(?i)720p`)},
		{"480p", 480, regexp.MustCompile(`(?i)(480p|sd)`)},
	}

	sourcePatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"Remux", regexp.MustCompile(`(?i)remux`)},
		{"BluRay", regexp.MustCompile(`(?i)(blu-?ray|bdrip|brrip|bdremux)`)},
		{"WEB-DL", regexp.MustCompile(`(?i)(web-?dl|webdl)`)},
		{"WEBRip", regexp.MustCompile(`(?i)webrip`)},
		{"HDTV", regexp.MustCompile(`(?i)hdtv`)},
		{"DVDRip", regexp.MustCompile(`(?i)(dvdrip|dvd-?r)`)},
		{"CAM", regexp.MustCompile(`(?i)\b(cam|hdcam|ts|telesync)\b`)},
	}

	codecPatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"x265", regexp.MustCompile(`(?i)(x265|h\.?265|hevc)`)},
		{"x264", regexp.MustCompile(`(?i)(x264|h\.?264|avc)`)},
		{"AV1", regexp.MustCompile(`(?i)av1`)},
	}

	hdrPatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"DV", regexp.MustCompile(`(?i)(dolby[\.\s]?vision|dovi|\.dv\.)`)},
		{"HDR10+", regexp.MustCompile(`(?i)hdr10\+`)},
		{"HDR10", regexp.MustCompile(`(?i)hdr10`)},
		{"HDR", regexp.MustCompile(`(?i)[\.\s\-]hdr[\.\s\-]`)},
	}

	cleanupPattern = regexp.MustCompile(`[\.\s_-]+`)
)

// Parse parses a release or file name into structured data.
func Parse(name string) *Parsed {
	name = strings.TrimSuffix(name, filepath.Ext(name))

	parsed := &Parsed{}

	// Episode range must be tried before the plain SxxExx pattern so
	// S01E01-E04 does not collapse into a single episode.
	if match := tvPatternRange.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		season, _ := strconv.Atoi(match[2])
		first, _ := strconv.Atoi(match[3])
		last, _ := strconv.Atoi(match[4])
		parsed.Seasons = []int{season}
		for e := first; e <= last && e-first < 100; e++ {
			parsed.Episodes = append(parsed.Episodes, e)
		}
		parseQualityInfo(match[5], parsed)
		return parsed
	}

	if match := tvPatternSE.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		season, _ := strconv.Atoi(match[2])
		episode, _ := strconv.Atoi(match[3])
		parsed.Seasons = []int{season}
		parsed.Episodes = []int{episode}
		for _, ref := range tvEpisodeRef.FindAllStringSubmatch(match[4], -1) {
			e, _ := strconv.Atoi(ref[1])
			parsed.Episodes = appendUnique(parsed.Episodes, e)
		}
		parseQualityInfo(match[5], parsed)
		return parsed
	}

	if match := tvPatternX.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		season, _ := strconv.Atoi(match[2])
		episode, _ := strconv.Atoi(match[3])
		parsed.Seasons = []int{season}
		parsed.Episodes = []int{episode}
		parseQualityInfo(match[4], parsed)
		return parsed
	}

	if match := tvPatternSeasonRange.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.IsCompleteSeries = true
		parsed.Title = cleanTitle(match[1])
		first, _ := strconv.Atoi(match[2])
		last, _ := strconv.Atoi(match[3])
		for s := first; s <= last && s-first < 50; s++ {
			parsed.Seasons = append(parsed.Seasons, s)
		}
		parseQualityInfo(match[4], parsed)
		return parsed
	}

	if match := tvPatternSeasonPack.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		season, _ := strconv.Atoi(match[2])
		parsed.Seasons = []int{season}
		parseQualityInfo(match[3], parsed)
		return parsed
	}

	if match := tvPatternSeasonSpelled.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		season, _ := strconv.Atoi(match[2])
		parsed.Seasons = []int{season}
		parseQualityInfo(match[3], parsed)
		return parsed
	}

	if match := tvPatternComplete.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.IsCompleteSeries = true
		parsed.Title = cleanTitle(match[1])
		parseQualityInfo(match[2], parsed)
		return parsed
	}

	if match := moviePatternParen.FindStringSubmatch(name); match != nil {
		parsed.Title = cleanTitle(match[1])
		parsed.Year, _ = strconv.Atoi(match[2])
		parseQualityInfo(match[3], parsed)
		return parsed
	}

	if match := moviePatternDot.FindStringSubmatch(name); match != nil {
		year, _ := strconv.Atoi(match[2])
		if year >= 1900 && year <= 2100 {
			parsed.Title = cleanTitle(match[1])
			parsed.Year = year
			parseQualityInfo(match[3], parsed)
			return parsed
		}
	}

	if match := moviePatternSimple.FindStringSubmatch(name); match != nil {
		year, _ := strconv.Atoi(match[2])
		if year >= 1900 && year <= 2100 {
			parsed.Title = cleanTitle(match[1])
			parsed.Year = year
			return parsed
		}
	}

	parsed.Title = cleanTitle(name)
	parseQualityInfo(name, parsed)
	return parsed
}

// HasSeason reports whether the parsed name covers the given season.
func (p *Parsed) HasSeason(season int) bool {
	if p.IsCompleteSeries && len(p.Seasons) == 0 {
		return true
	}
	for _, s := range p.Seasons {
		if s == season {
			return true
		}
	}
	return false
}

// HasEpisode reports whether the parsed name covers the given episode.
func (p *Parsed) HasEpisode(episode int) bool {
	for _, e := range p.Episodes {
		if e == episode {
			return true
		}
	}
	return false
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// cleanTitle replaces separators with spaces and trims.
func cleanTitle(title string) string {
	return strings.TrimSpace(cleanupPattern.ReplaceAllString(title, " "))
}

func parseQualityInfo(text string, parsed *Parsed) {
	for _, q := range qualityPatterns {
		if q.pattern.MatchString(text) {
			parsed.Quality = q.name
			parsed.Resolution = q.resolution
			break
		}
	}

	for _, s := range sourcePatterns {
		if s.pattern.MatchString(text) {
			parsed.Source = s.name
			break
		}
	}

	for _, c := range codecPatterns {
		if c.pattern.MatchString(text) {
			parsed.Codec = c.name
			break
		}
	}

	var attributes []string
	if parsed.Source == "Remux" {
		attributes = append(attributes, "REMUX")
	}
	for _, h := range hdrPatterns {
		if h.pattern.MatchString(text) {
			attributes = append(attributes, h.name)
			break
		}
	}
	if len(attributes) > 0 {
		parsed.Attributes = attributes
	}
}
