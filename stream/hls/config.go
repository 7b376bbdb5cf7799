package hls

import (
	"maps"
	"time"

	"github.com/luxysiv/player/stream/common"
)

// Config holds configuration for HLS playlist sanitizing
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	Sanitizer *SanitizerConfig `json:"sanitizer"`
	Detection *DetectionConfig `json:"detection"`
}

// HTTPConfig holds HTTP-related configuration for playlist fetches
type HTTPConfig struct {
	UserAgent         string            `json:"user_agent"`
	AcceptHeader      string            `json:"accept_header"`
	ConnectionTimeout time.Duration     `json:"connection_timeout"`
	ReadTimeout       time.Duration     `json:"read_timeout"`
	MaxRedirects      int               `json:"max_redirects"`
	CustomHeaders     map[string]string `json:"custom_headers"`
	MaxPlaylistBytes  int64             `json:"max_playlist_bytes"`
}

// SanitizerConfig controls the sanitize pipeline
type SanitizerConfig struct {
	// MaxDepth bounds master→variant indirection
	MaxDepth int `json:"max_depth"`
	// StrictURLs rejects URLs that do not look like playlists instead of
	// passing them through untouched
	StrictURLs bool `json:"strict_urls"`
}

// DetectionConfig holds the URL patterns that identify HLS playlists
type DetectionConfig struct {
	URLPatterns  []string `json:"url_patterns"`
	ContentTypes []string `json:"content_types"`
}

// DefaultConfig returns the default HLS configuration
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			UserAgent:         "luxysiv-player/1.0",
			AcceptHeader:      "application/vnd.apple.mpegurl,application/x-mpegurl,text/plain",
			ConnectionTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			MaxRedirects:      10,
			CustomHeaders:     make(map[string]string),
			MaxPlaylistBytes:  8 << 20,
		},
		Sanitizer: &SanitizerConfig{
			MaxDepth:   5,
			StrictURLs: false,
		},
		Detection: &DetectionConfig{
			URLPatterns: []string{
				`\.m3u8`,
			},
			ContentTypes: []string{
				"application/vnd.apple.mpegurl",
				"application/x-mpegurl",
				"vnd.apple.mpegurl",
				"audio/mpegurl",
				"audio/x-mpegurl",
			},
		},
	}
}

// ConfigFromAppConfig creates an HLS config from application config, as
// produced by viper.AllSettings. Unknown keys are ignored.
func ConfigFromAppConfig(appConfig any) *Config {
	config := DefaultConfig()

	appCfg, ok := appConfig.(map[string]any)
	if !ok {
		return config
	}

	if httpCfg, exists := appCfg["http"].(map[string]any); exists {
		if userAgent, ok := httpCfg["user_agent"].(string); ok && userAgent != "" {
			config.HTTP.UserAgent = userAgent
		}
		if acceptHeader, ok := httpCfg["accept_header"].(string); ok && acceptHeader != "" {
			config.HTTP.AcceptHeader = acceptHeader
		}
		if headers := toStringMap(httpCfg["custom_headers"]); headers != nil {
			config.HTTP.CustomHeaders = headers
		}
		if d, ok := toDuration(httpCfg["connection_timeout"]); ok {
			config.HTTP.ConnectionTimeout = d
		}
		if d, ok := toDuration(httpCfg["read_timeout"]); ok {
			config.HTTP.ReadTimeout = d
		}
		if n, ok := toInt(httpCfg["max_redirects"]); ok {
			config.HTTP.MaxRedirects = n
		}
		if n, ok := toInt(httpCfg["max_playlist_bytes"]); ok {
			config.HTTP.MaxPlaylistBytes = int64(n)
		}
	}

	if sanitizerCfg, exists := appCfg["sanitizer"].(map[string]any); exists {
		if n, ok := toInt(sanitizerCfg["max_depth"]); ok {
			config.Sanitizer.MaxDepth = n
		}
		if strict, ok := sanitizerCfg["strict_urls"].(bool); ok {
			config.Sanitizer.StrictURLs = strict
		}
	}

	if detectionCfg, exists := appCfg["detection"].(map[string]any); exists {
		if patterns := toStringSlice(detectionCfg["url_patterns"]); patterns != nil {
			config.Detection.URLPatterns = patterns
		}
		if contentTypes := toStringSlice(detectionCfg["content_types"]); contentTypes != nil {
			config.Detection.ContentTypes = contentTypes
		}
	}

	return config
}

// ConfigFromMap creates an HLS config from a map (useful for testing and flexibility)
func ConfigFromMap(configMap map[string]any) *Config {
	return ConfigFromAppConfig(configMap)
}

// GetHTTPHeaders returns all HTTP headers that should be set for requests
func (c *Config) GetHTTPHeaders() map[string]string {
	headers := make(map[string]string)

	headers["User-Agent"] = c.HTTP.UserAgent
	headers["Accept"] = c.HTTP.AcceptHeader

	maps.Copy(headers, c.HTTP.CustomHeaders)

	return headers
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HTTP == nil || c.Sanitizer == nil || c.Detection == nil {
		return common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeInvalidFormat, "incomplete configuration", nil)
	}
	if c.HTTP.ConnectionTimeout <= 0 {
		return common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeInvalidFormat, "HTTP connection timeout must be positive", nil)
	}
	if c.HTTP.ReadTimeout <= 0 {
		return common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeInvalidFormat, "HTTP read timeout must be positive", nil)
	}
	if c.HTTP.MaxRedirects < 0 {
		return common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeInvalidFormat, "max redirects cannot be negative", nil)
	}
	if c.HTTP.MaxPlaylistBytes <= 0 {
		return common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeInvalidFormat, "max playlist bytes must be positive", nil)
	}
	if c.Sanitizer.MaxDepth < 0 {
		return common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeInvalidFormat, "max recursion depth cannot be negative", nil)
	}
	return nil
}

func toDuration(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(d)
		return parsed, err == nil
	case int:
		return time.Duration(d) * time.Second, true
	case float64:
		return time.Duration(d * float64(time.Second)), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toStringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
