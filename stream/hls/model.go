package hls

// PlaylistDocument is a fetched playlist. Values are never mutated; each
// pipeline step returns a new document.
type PlaylistDocument struct {
	Text        string `json:"text"`
	SourceURL   string `json:"source_url"`
	ContentType string `json:"content_type"`
}

// WithText returns a copy of the document carrying text
func (d PlaylistDocument) WithText(text string) PlaylistDocument {
	d.Text = text
	return d
}

// PlaylistSummary is a shallow description of a playlist used for diagnostics
type PlaylistSummary struct {
	IsMaster        bool    `json:"is_master" yaml:"is_master"`
	IsLive          bool    `json:"is_live" yaml:"is_live"`
	Segments        int     `json:"segments" yaml:"segments"`
	Variants        int     `json:"variants" yaml:"variants"`
	Discontinuities int     `json:"discontinuities" yaml:"discontinuities"`
	TotalDuration   float64 `json:"total_duration" yaml:"total_duration"`
}

// SanitizeReport records what one sanitize call did
type SanitizeReport struct {
	SourceURL      string `json:"source_url" yaml:"source_url"`
	MediaURL       string `json:"media_url" yaml:"media_url"`
	ContentType    string `json:"content_type" yaml:"content_type"`
	Depth          int    `json:"depth" yaml:"depth"`
	MalformedLines int    `json:"malformed_lines" yaml:"malformed_lines"`

	// UnexpectedContentType is the first fetched content type that was
	// neither an HLS type nor text/plain
	UnexpectedContentType string `json:"unexpected_content_type,omitempty" yaml:"unexpected_content_type,omitempty"`

	RemovedSpans map[string]int  `json:"removed_spans" yaml:"removed_spans"`
	Before       PlaylistSummary `json:"before" yaml:"before"`
	After        PlaylistSummary `json:"after" yaml:"after"`
}

// TotalRemovedSpans returns the number of ad spans removed across signatures
func (r *SanitizeReport) TotalRemovedSpans() int {
	total := 0
	for _, n := range r.RemovedSpans {
		total += n
	}
	return total
}

// RemovedDuration is the playback time, in seconds, removed by ad stripping
func (r *SanitizeReport) RemovedDuration() float64 {
	return r.Before.TotalDuration - r.After.TotalDuration
}
