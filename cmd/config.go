package cmd

import (
	"github.com/spf13/viper"

	"github.com/luxysiv/player/server"
	"github.com/luxysiv/player/stream/hls"
	"github.com/luxysiv/player/stream/publish"
	"github.com/luxysiv/player/telemetry"
)

// hlsConfig reads the http, sanitizer and detection sections. Values go
// through viper's typed getters so environment strings are converted.
func hlsConfig(v *viper.Viper) (*hls.Config, error) {
	config := hls.ConfigFromAppConfig(map[string]any{
		"http": map[string]any{
			"user_agent":         v.GetString("http.user_agent"),
			"accept_header":      v.GetString("http.accept_header"),
			"connection_timeout": v.GetDuration("http.connection_timeout"),
			"read_timeout":       v.GetDuration("http.read_timeout"),
			"max_redirects":      v.GetInt("http.max_redirects"),
			"max_playlist_bytes": v.GetInt64("http.max_playlist_bytes"),
			"custom_headers":     v.GetStringMapString("http.custom_headers"),
		},
		"sanitizer": map[string]any{
			"max_depth":   v.GetInt("sanitizer.max_depth"),
			"strict_urls": v.GetBool("sanitizer.strict_urls"),
		},
		"detection": map[string]any{
			"url_patterns":  v.GetStringSlice("detection.url_patterns"),
			"content_types": v.GetStringSlice("detection.content_types"),
		},
	})

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func publishConfig(v *viper.Viper) *publish.Config {
	return &publish.Config{
		BaseURL:      v.GetString("publisher.base_url"),
		MaxResources: v.GetInt("publisher.max_resources"),
	}
}

func serverConfig(v *viper.Viper) *server.Config {
	return &server.Config{
		Addr:            v.GetString("server.addr"),
		RequestTimeout:  v.GetDuration("server.request_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		MaxSessions:     v.GetInt("server.max_sessions"),
	}
}

func sentryConfig(v *viper.Viper) *telemetry.Config {
	return &telemetry.Config{
		DSN:         v.GetString("sentry.dsn"),
		Environment: v.GetString("sentry.environment"),
		SampleRate:  v.GetFloat64("sentry.sample_rate"),
	}
}
