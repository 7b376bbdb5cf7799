package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/stream/hls"
)

// Manager runs the sanitize pipeline over several playlists at once, e.g. to
// compare the ad load of every rendition or mirror of a channel.
type Manager struct {
	sanitizer *hls.Sanitizer
	config    *ManagerConfig
}

// ManagerConfig holds configuration for the stream manager
type ManagerConfig struct {
	// Timeout for individual playlist pipelines
	StreamTimeout time.Duration `json:"stream_timeout"`
	// Overall timeout for parallel operations
	OverallTimeout time.Duration `json:"overall_timeout"`
	// Maximum number of pipelines running at once
	MaxConcurrentStreams int `json:"max_concurrent_streams"`
}

// InspectResult is the outcome of sanitizing one playlist
type InspectResult struct {
	URL       string              `json:"url" yaml:"url"`
	Report    *hls.SanitizeReport `json:"report,omitempty" yaml:"report,omitempty"`
	Error     string              `json:"error,omitempty" yaml:"error,omitempty"`
	Err       error               `json:"-" yaml:"-"`
	StartTime time.Time           `json:"start_time" yaml:"start_time"`
	EndTime   time.Time           `json:"end_time" yaml:"end_time"`
	Duration  time.Duration       `json:"duration" yaml:"duration"`
}

// ParallelInspectResult contains results in the order the URLs were given
type ParallelInspectResult struct {
	Results           []*InspectResult `json:"results" yaml:"results"`
	TotalDuration     time.Duration    `json:"total_duration" yaml:"total_duration"`
	SuccessfulStreams int              `json:"successful_streams" yaml:"successful_streams"`
	FailedStreams     int              `json:"failed_streams" yaml:"failed_streams"`
	RemovedSpans      int              `json:"removed_spans" yaml:"removed_spans"`
}

// DefaultManagerConfig returns the default manager configuration
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		StreamTimeout:        30 * time.Second,
		OverallTimeout:       120 * time.Second,
		MaxConcurrentStreams: 4,
	}
}

// NewManager creates a stream manager with default configuration
func NewManager(sanitizer *hls.Sanitizer) *Manager {
	return NewManagerWithConfig(nil, sanitizer)
}

// NewManagerWithConfig creates a stream manager with custom configuration
func NewManagerWithConfig(config *ManagerConfig, sanitizer *hls.Sanitizer) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if config.MaxConcurrentStreams <= 0 {
		config.MaxConcurrentStreams = 1
	}
	if sanitizer == nil {
		sanitizer = hls.NewSanitizer(nil)
	}

	return &Manager{
		sanitizer: sanitizer,
		config:    config,
	}
}

// InspectParallel sanitizes every URL without publishing. A failed playlist
// is recorded in its result; the call itself fails only for an empty list.
func (m *Manager) InspectParallel(ctx context.Context, urls []string) (*ParallelInspectResult, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs provided")
	}

	logger := logging.WithFields(logging.Fields{
		"component":    "stream_manager",
		"function":     "InspectParallel",
		"stream_count": len(urls),
	})

	logger.Debug("Starting parallel inspection")

	overallCtx, cancel := context.WithTimeout(ctx, m.config.OverallTimeout)
	defer cancel()

	var wg sync.WaitGroup
	sem := make(chan struct{}, m.config.MaxConcurrentStreams)
	results := make([]*InspectResult, len(urls))

	globalStartTime := time.Now()

	for i, url := range urls {
		wg.Add(1)
		go func(index int, streamURL string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-overallCtx.Done():
				results[index] = failedResult(streamURL, time.Now(), overallCtx.Err())
				return
			}

			streamCtx, streamCancel := context.WithTimeout(overallCtx, m.config.StreamTimeout)
			defer streamCancel()

			results[index] = m.inspectSingleStream(streamCtx, streamURL, index)
		}(i, url)
	}

	wg.Wait()

	out := &ParallelInspectResult{
		Results:       results,
		TotalDuration: time.Since(globalStartTime),
	}
	for _, result := range results {
		if result.Err == nil {
			out.SuccessfulStreams++
			out.RemovedSpans += result.Report.TotalRemovedSpans()
		} else {
			out.FailedStreams++
		}
	}

	logger.Debug("Parallel inspection completed", logging.Fields{
		"total_duration_ms":  out.TotalDuration.Milliseconds(),
		"successful_streams": out.SuccessfulStreams,
		"failed_streams":     out.FailedStreams,
		"removed_spans":      out.RemovedSpans,
	})

	return out, nil
}

// Err returns an error summarizing failed results, or nil
func (r *ParallelInspectResult) Err() error {
	var errs []error
	for _, result := range r.Results {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.URL, result.Err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) inspectSingleStream(ctx context.Context, url string, index int) *InspectResult {
	startTime := time.Now()

	_, report, err := m.sanitizer.Process(ctx, url)
	if err != nil {
		logging.Debug("Playlist inspection failed", logging.Fields{
			"component":    "stream_manager",
			"stream_index": index,
			"url":          url,
			"error":        err.Error(),
		})
		return failedResult(url, startTime, err)
	}

	endTime := time.Now()
	return &InspectResult{
		URL:       url,
		Report:    report,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}
}

func failedResult(url string, startTime time.Time, err error) *InspectResult {
	endTime := time.Now()
	return &InspectResult{
		URL:       url,
		Error:     err.Error(),
		Err:       err,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}
}
