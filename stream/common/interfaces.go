package common

import (
	"context"
	"time"
)

// StreamType represents the kind of resource handled ('hls', 'passthrough', 'unsupported')
type StreamType string

const (
	StreamTypeHLS         StreamType = "hls"
	StreamTypePassthrough StreamType = "passthrough"
	StreamTypeUnsupported StreamType = "unsupported"
)

// DefaultContentType is used when an origin declares no Content-Type
const DefaultContentType = "text/plain"

// Resource is a published playlist handle. The caller owns it until it is
// superseded or revoked.
type Resource struct {
	ID          string     `json:"id,omitempty"`
	URI         string     `json:"uri"`
	Type        StreamType `json:"type"`
	ContentType string     `json:"content_type"`
	SourceURL   string     `json:"source_url"`
	Text        string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Revocable reports whether the resource was allocated by a publisher
func (r *Resource) Revocable() bool {
	return r != nil && r.ID != ""
}

// PlaylistFetcher retrieves playlist text and its declared content type
type PlaylistFetcher interface {
	// Fetch performs a single GET of rawURL. Body is the playlist text,
	// finalURL the URL after redirects.
	Fetch(ctx context.Context, rawURL string) (body, contentType, finalURL string, err error)
}

// PlaylistPublisher exposes sanitized text as an addressable resource
type PlaylistPublisher interface {
	// Publish stores text and returns a handle a playback engine can open
	Publish(ctx context.Context, text, contentType string) (*Resource, error)

	// Revoke releases a handle returned by Publish
	Revoke(ctx context.Context, id string) error
}
