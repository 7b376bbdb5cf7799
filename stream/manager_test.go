package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxysiv/player/stream/hls"
)

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/clean.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hls.TestMediaPlaylist))
	})
	mux.HandleFunc("/ads.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hls.TestIsolatedBracketPlaylist))
	})
	mux.HandleFunc("/more-ads.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hls.TestKeyResetPlaylist))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewManager(t *testing.T) {
	manager := NewManager(nil)

	assert.NotNil(t, manager.sanitizer)
	assert.Equal(t, DefaultManagerConfig(), manager.config)

	manager = NewManagerWithConfig(&ManagerConfig{MaxConcurrentStreams: 0}, nil)
	assert.Equal(t, 1, manager.config.MaxConcurrentStreams)
}

func TestInspectParallel(t *testing.T) {
	origin := newOrigin(t)
	manager := NewManagerWithConfig(&ManagerConfig{
		StreamTimeout:        5 * time.Second,
		OverallTimeout:       10 * time.Second,
		MaxConcurrentStreams: 2,
	}, hls.NewSanitizer(nil))

	urls := []string{
		origin.URL + "/clean.m3u8",
		origin.URL + "/ads.m3u8",
		origin.URL + "/missing.m3u8",
		origin.URL + "/more-ads.m3u8",
	}

	result, err := manager.InspectParallel(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, result.Results, len(urls))

	for i, r := range result.Results {
		assert.Equal(t, urls[i], r.URL, "results keep input order")
		assert.False(t, r.EndTime.Before(r.StartTime))
	}

	assert.Equal(t, 3, result.SuccessfulStreams)
	assert.Equal(t, 1, result.FailedStreams)
	assert.Equal(t, 2, result.RemovedSpans)

	assert.Zero(t, result.Results[0].Report.TotalRemovedSpans())
	assert.Equal(t, 1, result.Results[1].Report.RemovedSpans[hls.SignatureIsolatedBracket])
	assert.Contains(t, result.Results[2].Error, "HTTP 404")
	assert.Nil(t, result.Results[2].Report)
	assert.Equal(t, 1, result.Results[3].Report.RemovedSpans[hls.SignatureKeyResetBracket])

	err = result.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), origin.URL+"/missing.m3u8")
}

func TestInspectParallelNoURLs(t *testing.T) {
	_, err := NewManager(nil).InspectParallel(context.Background(), nil)
	assert.Error(t, err)
}

func TestInspectParallelCancelled(t *testing.T) {
	origin := newOrigin(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewManager(nil).InspectParallel(ctx, []string{origin.URL + "/clean.m3u8"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedStreams)
	assert.NotEmpty(t, result.Results[0].Error)
}
