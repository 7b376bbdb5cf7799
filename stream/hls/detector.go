package hls

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/stream/common"
)

// Detector classifies URLs and content types as HLS playlists
type Detector struct {
	config   *DetectionConfig
	patterns []*regexp.Regexp
}

// NewDetector creates a new HLS detector with default configuration
func NewDetector() *Detector {
	return NewDetectorWithConfig(nil)
}

// NewDetectorWithConfig creates a new HLS detector with custom configuration.
// Patterns that fail to compile are logged and skipped.
func NewDetectorWithConfig(config *DetectionConfig) *Detector {
	if config == nil {
		config = DefaultConfig().Detection
	}

	patterns := make([]*regexp.Regexp, 0, len(config.URLPatterns))
	for _, pattern := range config.URLPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logging.Warn("Ignoring invalid HLS URL pattern", logging.Fields{
				"pattern": pattern,
				"error":   err.Error(),
			})
			continue
		}
		patterns = append(patterns, re)
	}

	return &Detector{
		config:   config,
		patterns: patterns,
	}
}

// DetectFromURL matches the URL path and query with configured HLS patterns
func (d *Detector) DetectFromURL(streamURL string) common.StreamType {
	u, err := url.Parse(strings.TrimSpace(streamURL))
	if err != nil {
		logging.Debug("Error parsing URL", logging.Fields{"url": streamURL, "error": err.Error()})
		return common.StreamTypeUnsupported
	}

	path := strings.ToLower(u.Path)
	query := strings.ToLower(u.RawQuery)

	for _, re := range d.patterns {
		if re.MatchString(path) || re.MatchString(query) {
			return common.StreamTypeHLS
		}
	}

	return common.StreamTypeUnsupported
}

// DetectFromContentType matches a declared content type with configured HLS types
func (d *Detector) DetectFromContentType(contentType string) common.StreamType {
	contentType = common.ExtractContentType(contentType)
	if contentType == "" {
		return common.StreamTypeUnsupported
	}
	for _, candidate := range d.config.ContentTypes {
		if strings.Contains(contentType, strings.ToLower(candidate)) {
			return common.StreamTypeHLS
		}
	}
	return common.StreamTypeUnsupported
}

// ValidateURL checks that streamURL is an absolute HTTP(S) URL
func ValidateURL(streamURL string) error {
	parsedURL, err := url.Parse(strings.TrimSpace(streamURL))
	if err != nil {
		return common.NewStreamError(common.StreamTypeHLS, streamURL,
			common.ErrCodeInvalidFormat, "invalid URL format", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return common.NewStreamError(common.StreamTypeHLS, streamURL,
			common.ErrCodeUnsupported, "unsupported URL scheme", nil)
	}

	if parsedURL.Host == "" {
		return common.NewStreamError(common.StreamTypeHLS, streamURL,
			common.ErrCodeInvalidFormat, "URL has no host", nil)
	}

	return nil
}
