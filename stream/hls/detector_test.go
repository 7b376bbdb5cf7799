package hls

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxysiv/player/stream/common"
)

func TestNewDetector(t *testing.T) {
	detector := NewDetector()

	assert.NotNil(t, detector)
	assert.Equal(t, DefaultConfig().Detection, detector.config)
	assert.Len(t, detector.patterns, 1)
}

func TestNewDetectorSkipsInvalidPatterns(t *testing.T) {
	detector := NewDetectorWithConfig(&DetectionConfig{
		URLPatterns: []string{`(`, `\.m3u8`},
	})

	assert.Len(t, detector.patterns, 1)
	assert.Equal(t, common.StreamTypeHLS, detector.DetectFromURL("https://h.example.com/a.m3u8"))
}

func TestDetectFromURL(t *testing.T) {
	detector := NewDetector()

	t.Run("playlist URLs", func(t *testing.T) {
		for _, u := range []string{
			"https://example.com/playlist.m3u8",
			"https://example.com/stream/MASTER.M3U8",
			"https://example.com/index.m3u8?token=abc",
			"https://example.com/play?src=live.m3u8",
		} {
			assert.Equal(t, common.StreamTypeHLS, detector.DetectFromURL(u), u)
		}
	})

	t.Run("other URLs", func(t *testing.T) {
		for _, u := range []string{
			"https://example.com/file.mp4",
			"https://example.com/playlist.txt",
			"https://m3u8.example.com/video.mp4",
			"not-a-url",
			"",
			"://invalid-url",
		} {
			assert.Equal(t, common.StreamTypeUnsupported, detector.DetectFromURL(u), u)
		}
	})

	t.Run("custom patterns", func(t *testing.T) {
		detector := NewDetectorWithConfig(&DetectionConfig{
			URLPatterns: []string{`/custom/.*\.stream$`},
		})

		assert.Equal(t, common.StreamTypeHLS, detector.DetectFromURL("https://example.com/custom/test.stream"))
		assert.Equal(t, common.StreamTypeUnsupported, detector.DetectFromURL("https://example.com/playlist.m3u8"))
	})
}

func TestDetectFromContentType(t *testing.T) {
	detector := NewDetector()

	assert.Equal(t, common.StreamTypeHLS, detector.DetectFromContentType("application/vnd.apple.mpegurl"))
	assert.Equal(t, common.StreamTypeHLS, detector.DetectFromContentType("Application/X-MpegURL; charset=utf-8"))
	assert.Equal(t, common.StreamTypeUnsupported, detector.DetectFromContentType("video/mp4"))
	assert.Equal(t, common.StreamTypeUnsupported, detector.DetectFromContentType(""))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com/a.m3u8"))
	assert.NoError(t, ValidateURL("http://127.0.0.1:8080/a.m3u8"))

	tests := []struct {
		url  string
		code string
	}{
		{"ftp://example.com/a.m3u8", common.ErrCodeUnsupported},
		{"not-a-url", common.ErrCodeUnsupported},
		{"https:///a.m3u8", common.ErrCodeInvalidFormat},
		{"http://[::1/a.m3u8", common.ErrCodeInvalidFormat},
	}

	for _, tt := range tests {
		err := ValidateURL(tt.url)
		require.Error(t, err, tt.url)

		var streamErr *common.StreamError
		require.True(t, errors.As(err, &streamErr), tt.url)
		assert.Equal(t, tt.code, streamErr.Code, tt.url)
		assert.Equal(t, tt.url, streamErr.URL)
	}
}
