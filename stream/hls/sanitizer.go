package hls

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/metrics"
	"github.com/luxysiv/player/stream/common"
)

var (
	// ErrRecursionLimitExceeded is returned when master playlists nest deeper
	// than SanitizerConfig.MaxDepth, including indirection cycles
	ErrRecursionLimitExceeded = errors.New("master playlist recursion limit exceeded")

	// ErrSuperseded is returned by Load when a newer Load started before it
	// completed
	ErrSuperseded = errors.New("load superseded by a newer request")

	// ErrNoVariant is returned for a master playlist without a variant URI
	ErrNoVariant = errors.New("master playlist lists no variant")
)

// State is a step of the sanitize pipeline
type State string

const (
	StateFetching        State = "fetching"
	StateResolving       State = "resolving"
	StateMasterRecursing State = "master_recursing"
	StateAdStripping     State = "ad_stripping"
	StatePublishing      State = "publishing"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// SanitizeResult is a published playlist with the report that produced it
type SanitizeResult struct {
	Resource *common.Resource `json:"resource"`
	Report   *SanitizeReport  `json:"report"`
}

// Sanitizer drives fetch → resolve → (recurse | strip) → publish.
//
// Sanitize and Process are stateless and safe for concurrent use. Load is
// the session entry point: it owns the current resource handle and revokes
// it when a newer load replaces it.
type Sanitizer struct {
	config    *Config
	fetcher   common.PlaylistFetcher
	publisher common.PlaylistPublisher
	matcher   *AdMatcher
	parser    *Parser
	detector  *Detector
	logger    logging.Logger

	generation atomic.Uint64

	mu      sync.Mutex
	current *common.Resource
	cancel  context.CancelFunc
}

// NewSanitizer creates a sanitizer with default configuration publishing to
// publisher
func NewSanitizer(publisher common.PlaylistPublisher) *Sanitizer {
	return NewSanitizerWithConfig(nil, nil, publisher)
}

// NewSanitizerWithConfig creates a sanitizer. A nil fetcher uses an HTTP
// Fetcher built from config.
func NewSanitizerWithConfig(config *Config, fetcher common.PlaylistFetcher, publisher common.PlaylistPublisher) *Sanitizer {
	if config == nil {
		config = DefaultConfig()
	}
	if fetcher == nil {
		fetcher = NewFetcherWithConfig(config)
	}

	return &Sanitizer{
		config:    config,
		fetcher:   fetcher,
		publisher: publisher,
		matcher:   NewAdMatcher(),
		parser:    NewParser(),
		detector:  NewDetectorWithConfig(config.Detection),
		logger:    logging.GetGlobalLogger(),
	}
}

// SetLogger sets a custom logger
func (s *Sanitizer) SetLogger(logger logging.Logger) {
	s.logger = logger
}

// Process runs the pipeline without publishing and returns the sanitized
// media playlist
func (s *Sanitizer) Process(ctx context.Context, rawURL string) (PlaylistDocument, *SanitizeReport, error) {
	if err := ValidateURL(rawURL); err != nil {
		return PlaylistDocument{}, nil, err
	}

	report := &SanitizeReport{
		SourceURL:    rawURL,
		RemovedSpans: make(map[string]int),
	}

	doc, err := s.process(ctx, rawURL, 0, report)
	if err != nil {
		return PlaylistDocument{}, report, err
	}
	return doc, report, nil
}

// Sanitize runs the pipeline and publishes the result. The caller owns the
// returned resource and must revoke it.
func (s *Sanitizer) Sanitize(ctx context.Context, rawURL string) (*SanitizeResult, error) {
	doc, report, err := s.Process(ctx, rawURL)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	resource, err := s.publish(ctx, doc)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.logger.Debug("Sanitize state", logging.Fields{
		"component":   "hls_sanitizer",
		"url":         rawURL,
		"state":       StateDone,
		"resource_id": resource.ID,
	})
	metrics.SanitizeTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return &SanitizeResult{Resource: resource, Report: report}, nil
}

// Load sanitizes rawURL and installs the result as the current resource,
// revoking the previous one. Starting a Load cancels any in-flight Load; the
// older call then returns ErrSuperseded and publishes nothing, whatever the
// completion order.
//
// URLs that do not look like HLS playlists are returned as pass-through
// resources unless SanitizerConfig.StrictURLs is set.
func (s *Sanitizer) Load(ctx context.Context, rawURL string) (*common.Resource, error) {
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// generation and cancel change together so the newest Load is never
	// cancelled by an older one
	s.mu.Lock()
	gen := s.generation.Add(1)
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	logger := s.logger.WithFields(logging.Fields{
		"component":  "hls_sanitizer",
		"url":        rawURL,
		"generation": gen,
	})

	if s.detector.DetectFromURL(rawURL) != common.StreamTypeHLS {
		if s.config.Sanitizer.StrictURLs {
			err := common.NewStreamError(common.StreamTypeUnsupported, rawURL,
				common.ErrCodeUnsupported, "URL is not an HLS playlist", nil)
			s.fail(err)
			return nil, err
		}

		logger.Debug("Passing non-playlist URL through")
		resource := &common.Resource{
			URI:       rawURL,
			Type:      common.StreamTypePassthrough,
			SourceURL: rawURL,
			CreatedAt: time.Now(),
		}
		if err := s.install(ctx, gen, resource); err != nil {
			s.fail(err)
			return nil, err
		}
		metrics.SanitizeTotal.WithLabelValues(metrics.ResultPassthrough).Inc()
		return resource, nil
	}

	doc, report, err := s.Process(loadCtx, rawURL)
	if s.stale(gen) {
		err = s.superseded(rawURL)
		s.fail(err)
		return nil, err
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}

	resource, err := s.publish(loadCtx, doc)
	if err != nil {
		if s.stale(gen) {
			err = s.superseded(rawURL)
		}
		s.fail(err)
		return nil, err
	}

	if err := s.install(ctx, gen, resource); err != nil {
		s.fail(err)
		return nil, err
	}

	logger.Info("Playlist loaded", logging.Fields{
		"state":         StateDone,
		"resource_id":   resource.ID,
		"media_url":     report.MediaURL,
		"removed_spans": report.TotalRemovedSpans(),
	})
	metrics.SanitizeTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return resource, nil
}

// Current returns the resource installed by the latest successful Load
func (s *Sanitizer) Current() *common.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Release cancels any in-flight Load and revokes the current resource
func (s *Sanitizer) Release(ctx context.Context) error {
	s.mu.Lock()
	s.generation.Add(1)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	previous := s.current
	s.current = nil
	s.mu.Unlock()

	return s.revoke(ctx, previous)
}

// process runs one level of the pipeline. report accumulates across levels.
func (s *Sanitizer) process(ctx context.Context, rawURL string, depth int, report *SanitizeReport) (PlaylistDocument, error) {
	logger := s.logger.WithFields(logging.Fields{
		"component": "hls_sanitizer",
		"url":       rawURL,
		"depth":     depth,
	})

	logger.Debug("Sanitize state", logging.Fields{"state": StateFetching})
	body, contentType, finalURL, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return PlaylistDocument{}, common.NewStreamErrorWithFields(common.StreamTypeHLS, rawURL,
			fetchErrorCode(err), "failed to fetch playlist", err,
			logging.Fields{"depth": depth})
	}
	doc := PlaylistDocument{Text: body, SourceURL: finalURL, ContentType: contentType}

	if !s.playlistContentType(contentType) {
		if report.UnexpectedContentType == "" {
			report.UnexpectedContentType = contentType
		}
		logger.Warn("Origin declared a non-playlist content type", logging.Fields{
			"content_type": contentType,
			"final_url":    finalURL,
		})
	}

	logger.Debug("Sanitize state", logging.Fields{"state": StateResolving})
	resolved, malformed := resolveURIs(doc.Text, doc.SourceURL)
	doc = doc.WithText(resolved)
	if malformed > 0 {
		report.MalformedLines += malformed
		metrics.MalformedURILines.Add(float64(malformed))
		logger.Debug("Left unresolvable URI lines unchanged", logging.Fields{"count": malformed})
	}

	if IsMaster(doc.Text) {
		logger.Debug("Sanitize state", logging.Fields{"state": StateMasterRecursing})
		if depth >= s.config.Sanitizer.MaxDepth {
			return PlaylistDocument{}, common.NewStreamErrorWithFields(common.StreamTypeHLS, rawURL,
				common.ErrCodeRecursionLimit, "too many master playlist levels", ErrRecursionLimitExceeded,
				logging.Fields{"depth": depth, "max_depth": s.config.Sanitizer.MaxDepth})
		}

		variant, ok := SelectVariant(doc.Text)
		if !ok {
			return PlaylistDocument{}, common.NewStreamError(common.StreamTypeHLS, rawURL,
				common.ErrCodeInvalidFormat, "invalid master playlist", ErrNoVariant)
		}

		logger.Debug("Descending into variant", logging.Fields{"variant": variant})
		return s.process(ctx, variant, depth+1, report)
	}

	logger.Debug("Sanitize state", logging.Fields{"state": StateAdStripping})
	stripped, removed := s.matcher.StripWithReport(doc.Text)
	for name, n := range removed {
		report.RemovedSpans[name] += n
		metrics.AdSpansRemoved.WithLabelValues(name).Add(float64(n))
	}

	report.MediaURL = doc.SourceURL
	report.ContentType = doc.ContentType
	report.Depth = depth
	report.Before = s.parser.Summarize(doc.Text)
	report.After = s.parser.Summarize(stripped)

	if len(removed) > 0 {
		logger.Debug("Stripped ad spans", logging.Fields{
			"removed_spans":    report.TotalRemovedSpans(),
			"removed_duration": report.RemovedDuration(),
		})
	}

	return doc.WithText(stripped), nil
}

// playlistContentType accepts the configured HLS types and text/plain, which
// many origins use for playlists
func (s *Sanitizer) playlistContentType(contentType string) bool {
	contentType = common.ContentTypeOrDefault(contentType)
	if common.ExtractContentType(contentType) == common.DefaultContentType {
		return true
	}
	return s.detector.DetectFromContentType(contentType) == common.StreamTypeHLS
}

// fetchErrorCode classifies a fetch failure: transport timeouts and
// connection failures get their own codes, everything else is FETCH_FAILED
func fetchErrorCode(err error) string {
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return common.ErrCodeTimeout
	case errors.As(err, &opErr):
		return common.ErrCodeConnection
	}
	return common.ErrCodeFetch
}

func (s *Sanitizer) publish(ctx context.Context, doc PlaylistDocument) (*common.Resource, error) {
	if s.publisher == nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, doc.SourceURL,
			common.ErrCodePublish, "no publisher configured", nil)
	}

	s.logger.Debug("Sanitize state", logging.Fields{
		"component": "hls_sanitizer",
		"url":       doc.SourceURL,
		"state":     StatePublishing,
	})
	resource, err := s.publisher.Publish(ctx, doc.Text, doc.ContentType)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, doc.SourceURL,
			common.ErrCodePublish, "failed to publish playlist", err)
	}
	resource.SourceURL = doc.SourceURL
	return resource, nil
}

// install makes resource current if gen is still the latest generation and
// revokes the resource it replaces. A stale resource is revoked instead.
func (s *Sanitizer) install(ctx context.Context, gen uint64, resource *common.Resource) error {
	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		if err := s.revoke(ctx, resource); err != nil {
			s.logger.Warn("Failed to revoke superseded playlist", logging.Fields{
				"resource_id": resource.ID,
				"error":       err.Error(),
			})
		}
		return s.superseded(resource.SourceURL)
	}
	previous := s.current
	s.current = resource
	s.mu.Unlock()

	if err := s.revoke(ctx, previous); err != nil {
		s.logger.Warn("Failed to revoke replaced playlist", logging.Fields{
			"resource_id": previous.ID,
			"error":       err.Error(),
		})
	}
	return nil
}

func (s *Sanitizer) revoke(ctx context.Context, resource *common.Resource) error {
	if !resource.Revocable() || s.publisher == nil {
		return nil
	}
	return s.publisher.Revoke(ctx, resource.ID)
}

func (s *Sanitizer) stale(gen uint64) bool {
	return s.generation.Load() != gen
}

func (s *Sanitizer) superseded(rawURL string) error {
	return common.NewStreamError(common.StreamTypeHLS, rawURL,
		common.ErrCodeSuperseded, "load discarded", ErrSuperseded)
}

// fail logs err once and counts it by result
func (s *Sanitizer) fail(err error) {
	var streamErr *common.StreamError
	if errors.As(err, &streamErr) {
		if streamErr.Code == common.ErrCodeSuperseded {
			s.logger.Debug("Load superseded", logging.Fields{"url": streamErr.URL})
		} else {
			streamErr.LogWith(s.logger.WithFields(logging.Fields{"state": StateFailed}))
		}
	} else {
		s.logger.Error(err, "Sanitize failed", logging.Fields{"state": StateFailed})
	}
	metrics.SanitizeTotal.WithLabelValues(ResultLabel(err)).Inc()
}

// ResultLabel maps a pipeline error to its metrics result label
func ResultLabel(err error) string {
	var fetchErr *FetchError
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrSuperseded):
		return metrics.ResultSuperseded
	case errors.Is(err, ErrRecursionLimitExceeded):
		return metrics.ResultRecursionLimit
	case errors.As(err, &fetchErr):
		return metrics.ResultFetchError
	}

	var streamErr *common.StreamError
	if errors.As(err, &streamErr) && streamErr.Code == common.ErrCodePublish {
		return metrics.ResultPublishError
	}
	return metrics.ResultInvalid
}
