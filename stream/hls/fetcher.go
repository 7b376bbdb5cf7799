package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/metrics"
	"github.com/luxysiv/player/stream/common"
)

// ErrPlaylistTooLarge is the cause of a FetchError when a body exceeds
// HTTPConfig.MaxPlaylistBytes
var ErrPlaylistTooLarge = errors.New("playlist exceeds size limit")

// FetchError reports a failed playlist retrieval. StatusCode is zero for
// transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Fetcher retrieves playlist text over HTTP. It never retries.
type Fetcher struct {
	client *http.Client
	config *Config
	logger logging.Logger
}

// NewFetcher creates a fetcher with default configuration
func NewFetcher() *Fetcher {
	return NewFetcherWithConfig(nil)
}

// NewFetcherWithConfig creates a fetcher with custom configuration
func NewFetcherWithConfig(config *Config) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}

	maxRedirects := config.HTTP.MaxRedirects
	client := &http.Client{
		Timeout: config.HTTP.ConnectionTimeout + config.HTTP.ReadTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: config.HTTP.ConnectionTimeout}).DialContext,
			ResponseHeaderTimeout: config.HTTP.ReadTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       300 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client: client,
		config: config,
		logger: logging.GetGlobalLogger(),
	}
}

// SetLogger sets a custom logger
func (f *Fetcher) SetLogger(logger logging.Logger) {
	f.logger = logger
}

// Fetch GETs rawURL and returns its body, declared content type (text/plain
// when absent) and the URL after redirects. Failures are *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (body, contentType, finalURL string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFetch(start, err) }()

	logger := f.logger.WithFields(logging.Fields{
		"component": "hls_fetcher",
		"url":       rawURL,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", "", &FetchError{URL: rawURL, Cause: err}
	}

	for key, value := range f.config.GetHTTPHeaders() {
		req.Header.Set(key, value)
	}

	logger.Debug("Fetching playlist")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", "", &FetchError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", "", "", &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	limit := f.config.HTTP.MaxPlaylistBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", "", "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Cause: err}
	}
	if int64(len(data)) > limit {
		return "", "", "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Cause: ErrPlaylistTooLarge}
	}

	finalURL = rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	contentType = common.ContentTypeOrDefault(resp.Header.Get("Content-Type"))

	logger.Debug("Playlist fetched", logging.Fields{
		"status_code":  resp.StatusCode,
		"content_type": contentType,
		"bytes":        len(data),
		"final_url":    finalURL,
	})

	return string(data), contentType, finalURL, nil
}

// FetchDocument fetches rawURL as a PlaylistDocument whose SourceURL is the
// URL after redirects
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (PlaylistDocument, error) {
	body, contentType, finalURL, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return PlaylistDocument{}, err
	}
	return PlaylistDocument{Text: body, SourceURL: finalURL, ContentType: contentType}, nil
}
