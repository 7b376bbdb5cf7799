// Package publish exposes sanitized playlists as addressable resources that
// a playback engine can open like any remote playlist.
package publish

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/metrics"
	"github.com/luxysiv/player/stream/common"
)

// ErrResourceNotFound is returned for unknown or already revoked handles
var ErrResourceNotFound = errors.New("resource not found")

// PlaylistPath is the route prefix published playlists are served under
const PlaylistPath = "/playlists/"

// Config holds publisher configuration
type Config struct {
	// BaseURL prefixes resource URIs, e.g. "http://127.0.0.1:8080"
	BaseURL string `json:"base_url"`
	// MaxResources caps live resources; the oldest is evicted beyond it.
	// Zero means unbounded.
	MaxResources int `json:"max_resources"`
}

// DefaultConfig returns the default publisher configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "http://127.0.0.1:8080",
		MaxResources: 1024,
	}
}

// MemoryPublisher keeps published playlists in memory and serves them over
// HTTP at PlaylistPath + "<id>.m3u8"
type MemoryPublisher struct {
	config *Config
	logger logging.Logger
	now    func() time.Time

	mu        sync.RWMutex
	resources map[string]*common.Resource
	order     []string
}

// NewMemoryPublisher creates a publisher with default configuration
func NewMemoryPublisher() *MemoryPublisher {
	return NewMemoryPublisherWithConfig(nil)
}

// NewMemoryPublisherWithConfig creates a publisher with custom configuration
func NewMemoryPublisherWithConfig(config *Config) *MemoryPublisher {
	if config == nil {
		config = DefaultConfig()
	}
	return &MemoryPublisher{
		config:    config,
		logger:    logging.GetGlobalLogger(),
		now:       time.Now,
		resources: make(map[string]*common.Resource),
	}
}

// SetLogger sets a custom logger
func (p *MemoryPublisher) SetLogger(logger logging.Logger) {
	p.logger = logger
}

// Publish stores text and returns a new handle
func (p *MemoryPublisher) Publish(ctx context.Context, text, contentType string) (*common.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	resource := &common.Resource{
		ID:          id,
		URI:         p.URIFor(id),
		Type:        common.StreamTypeHLS,
		ContentType: common.ContentTypeOrDefault(contentType),
		Text:        text,
		CreatedAt:   p.now(),
	}

	var evicted []string

	p.mu.Lock()
	p.resources[id] = resource
	p.order = append(p.order, id)
	for p.config.MaxResources > 0 && len(p.resources) > p.config.MaxResources {
		oldest := p.order[0]
		p.order = p.order[1:]
		if _, ok := p.resources[oldest]; ok {
			delete(p.resources, oldest)
			evicted = append(evicted, oldest)
		}
	}
	live := len(p.resources)
	p.mu.Unlock()

	metrics.PublishedResources.Add(float64(1 - len(evicted)))
	for _, old := range evicted {
		p.logger.Warn("Evicted unrevoked playlist", logging.Fields{
			"component":   "publisher",
			"resource_id": old,
		})
	}

	p.logger.Debug("Published playlist", logging.Fields{
		"component":   "publisher",
		"resource_id": id,
		"bytes":       len(text),
		"live":        live,
	})

	return resource, nil
}

// Revoke releases a handle. Revoking an unknown handle returns
// ErrResourceNotFound.
func (p *MemoryPublisher) Revoke(ctx context.Context, id string) error {
	p.mu.Lock()
	_, ok := p.resources[id]
	if ok {
		delete(p.resources, id)
		p.order = removeID(p.order, id)
	}
	p.mu.Unlock()

	if !ok {
		return ErrResourceNotFound
	}

	metrics.PublishedResources.Dec()
	p.logger.Debug("Revoked playlist", logging.Fields{
		"component":   "publisher",
		"resource_id": id,
	})
	return nil
}

// Lookup returns the live resource for id
func (p *MemoryPublisher) Lookup(id string) (*common.Resource, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	resource, ok := p.resources[id]
	return resource, ok
}

// Len returns the number of live resources
func (p *MemoryPublisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.resources)
}

// URIFor returns the URI a resource with id is served at
func (p *MemoryPublisher) URIFor(id string) string {
	return strings.TrimRight(p.config.BaseURL, "/") + PlaylistPath + id + ".m3u8"
}

// ServeHTTP serves a published playlist. The last path element is the
// resource ID with an optional ".m3u8" suffix.
func (p *MemoryPublisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	id = strings.TrimSuffix(id, ".m3u8")

	resource, ok := p.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", resource.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, id+".m3u8", resource.CreatedAt, strings.NewReader(resource.Text))
}

// compile-time interface check
var _ common.PlaylistPublisher = (*MemoryPublisher)(nil)

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
