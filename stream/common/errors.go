package common

import (
	"maps"

	"github.com/luxysiv/player/logging"
)

// StreamError represents playlist pipeline errors with integrated logging
type StreamError struct {
	Type    StreamType     `json:"type"`
	URL     string         `json:"url"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Fields  logging.Fields `json:"fields,omitempty"`
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// LogWith logs this error using a specific logger
func (e *StreamError) LogWith(logger logging.Logger) {
	fields := logging.Fields{
		"stream_type": string(e.Type),
		"url":         e.URL,
		"error_code":  e.Code,
	}

	maps.Copy(fields, e.Fields)

	logger.Error(e.Cause, e.Message, fields)
}

// Common error codes
const (
	ErrCodeConnection     = "CONNECTION_FAILED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInvalidFormat  = "INVALID_FORMAT"
	ErrCodeUnsupported    = "UNSUPPORTED_STREAM"
	ErrCodeFetch          = "FETCH_FAILED"
	ErrCodeRecursionLimit = "RECURSION_LIMIT"
	ErrCodeSuperseded     = "SUPERSEDED"
	ErrCodePublish        = "PUBLISH_FAILED"
)

// NewStreamError creates a new stream error
func NewStreamError(streamType StreamType, url, code, message string, cause error) *StreamError {
	return &StreamError{
		Type:    streamType,
		URL:     url,
		Code:    code,
		Message: message,
		Cause:   cause,
		Fields:  make(logging.Fields),
	}
}

// NewStreamErrorWithFields creates a new stream error with additional fields
func NewStreamErrorWithFields(streamType StreamType, url, code, message string, cause error, fields logging.Fields) *StreamError {
	return &StreamError{
		Type:    streamType,
		URL:     url,
		Code:    code,
		Message: message,
		Cause:   cause,
		Fields:  fields,
	}
}
