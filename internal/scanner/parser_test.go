package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMovie(t *testing.T) {
	p := Parse("The.Matrix.1999.1080p.BluRay.x264-GROUP.mkv")

	assert.False(t, p.IsTV)
	assert.Equal(t, "The Matrix", p.Title)
	assert.Equal(t, 1999, p.Year)
	assert.Equal(t, "1080p", p.Quality)
	assert.Equal(t, 1080, p.Resolution)
	assert.Equal(t, "BluRay", p.Source)
	assert.Equal(t, "x264", p.Codec)
}

func TestParseMovieParenYear(t *testing.T) {
	p := Parse("Inception (2010) 2160p WEB-DL HEVC HDR10")

	assert.Equal(t, "Inception", p.Title)
	assert.Equal(t, 2010, p.Year)
	assert.Equal(t, "2160p", p.Quality)
	assert.Equal(t, "WEB-DL", p.Source)
	assert.Equal(t, "x265", p.Codec)
	assert.Contains(t, p.Attributes, "HDR10")
}

func TestParseSingleEpisode(t *testing.T) {
	p := Parse("Breaking.Bad.S02E05.720p.HDTV.x264.mkv")

	assert.True(t, p.IsTV)
	assert.Equal(t, "Breaking Bad", p.Title)
	assert.Equal(t, []int{2}, p.Seasons)
	assert.Equal(t, []int{5}, p.Episodes)
	assert.True(t, p.HasSeason(2))
	assert.True(t, p.HasEpisode(5))
	assert.False(t, p.HasEpisode(6))
}

func TestParseMultiEpisode(t *testing.T) {
	p := Parse("Show.Name.S01E01E02.1080p.WEB-DL")

	assert.Equal(t, []int{1}, p.Seasons)
	assert.Equal(t, []int{1, 2}, p.Episodes)
}

func TestParseEpisodeRange(t *testing.T) {
	p := Parse("Show.Name.S01E01-E04.1080p.BluRay")

	assert.Equal(t, []int{1}, p.Seasons)
	assert.Equal(t, []int{1, 2, 3, 4}, p.Episodes)
}

func TestParseXFormat(t *testing.T) {
	p := Parse("Show.Name.2x07.HDTV")

	assert.True(t, p.IsTV)
	assert.Equal(t, []int{2}, p.Seasons)
	assert.Equal(t, []int{7}, p.Episodes)
}

func TestParseSeasonPack(t *testing.T) {
	p := Parse("Breaking.Bad.S03.1080p.BluRay.x265")

	assert.True(t, p.IsTV)
	assert.Equal(t, []int{3}, p.Seasons)
	assert.Empty(t, p.Episodes)
	assert.True(t, p.HasSeason(3))
}

func TestParseSeasonSpelled(t *testing.T) {
	p := Parse("The.Wire.Season.4.720p.WEB-DL")

	assert.Equal(t, "The Wire", p.Title)
	assert.Equal(t, []int{4}, p.Seasons)
}

func TestParseSeasonRange(t *testing.T) {
	p := Parse("The.Wire.S01-S05.1080p.BluRay")

	assert.True(t, p.IsCompleteSeries)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, p.Seasons)
	assert.True(t, p.HasSeason(3))
	assert.False(t, p.HasSeason(6))
}

func TestParseCompleteSeries(t *testing.T) {
	p := Parse("Chernobyl.COMPLETE.1080p.BluRay.x264")

	assert.True(t, p.IsCompleteSeries)
	assert.Empty(t, p.Seasons)
	// A complete-series pack with no explicit seasons covers any season.
	assert.True(t, p.HasSeason(1))
	assert.True(t, p.HasSeason(9))
}

func TestParseRemuxAttributes(t *testing.T) {
	p := Parse("Dune.2021.2160p.BluRay.REMUX.HDR10.HEVC")

	assert.Equal(t, "Remux", p.Source)
	assert.Contains(t, p.Attributes, "REMUX")
	assert.Contains(t, p.Attributes, "HDR10")
}

func TestParseBareTitle(t *testing.T) {
	p := Parse("Some Random Name")

	assert.Equal(t, "Some Random Name", p.Title)
	assert.Zero(t, p.Year)
	assert.False(t, p.IsTV)
}

func TestSimilarityRatio(t *testing.T) {
	assert.InDelta(t, 1.0, SimilarityRatio("The Matrix", "The Matrix"), 1e-9)
	assert.InDelta(t, 1.0, SimilarityRatio("the matrix", "The Matrix"), 1e-9)
	assert.Equal(t, 0.0, SimilarityRatio("", "The Matrix"))

	close := SimilarityRatio("The Matrix", "The Matrix Reloaded")
	far := SimilarityRatio("The Matrix", "Inception")
	assert.Greater(t, close, far)
}
