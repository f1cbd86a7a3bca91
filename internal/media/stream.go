package media

// Stream is a candidate download source identified by its infohash.
type Stream struct {
	ID          int64   `json:"id,omitempty"`
	Infohash    string  `json:"infohash"`
	RawTitle    string  `json:"raw_title"`
	ParsedTitle string  `json:"parsed_title,omitempty"`
	Rank        int     `json:"rank,omitempty"`
	LevRatio    float64 `json:"lev_ratio,omitempty"`
}
