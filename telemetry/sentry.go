// Package telemetry reports pipeline failures to Sentry. All functions are
// safe to call when Sentry was never initialized.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/luxysiv/player/logging"
)

// Config holds Sentry configuration
type Config struct {
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// DefaultConfig returns a disabled Sentry configuration
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		SampleRate:  1.0,
	}
}

// Enabled reports whether a DSN is configured
func (c *Config) Enabled() bool {
	return c != nil && c.DSN != ""
}

// InitSentry initializes the Sentry SDK. An empty DSN disables reporting
// and is not an error.
func InitSentry(config *Config, serviceName, release string) error {
	if !config.Enabled() {
		logging.Debug("Sentry disabled", logging.Fields{"service": serviceName})
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          release,
		SampleRate:       config.SampleRate,
		AttachStacktrace: true,
		Tags: map[string]string{
			"service": serviceName,
		},
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}

	logging.Info("Sentry enabled", logging.Fields{
		"service":     serviceName,
		"environment": config.Environment,
	})
	return nil
}

// CaptureError sends err to Sentry tagged with tags
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent
func Flush() {
	sentry.Flush(2 * time.Second)
}

// PanicRecoveryMiddleware reports handler panics to Sentry and answers 500
func PanicRecoveryMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}

				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetTag("service", serviceName)
				hub.Scope().SetTag("panic", "true")
				hub.CaptureException(err)

				logging.Error(err, "Recovered handler panic", logging.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// scrub drops client addresses and credentials before events leave the process
func scrub(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}

	event.User.IPAddress = ""

	if event.Request != nil {
		for k := range event.Request.Headers {
			switch k {
			case "Authorization", "Cookie", "X-Api-Key":
				event.Request.Headers[k] = "[redacted]"
			}
		}
	}

	return event
}
