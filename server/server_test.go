package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxysiv/player/stream/common"
	"github.com/luxysiv/player/stream/hls"
	"github.com/luxysiv/player/stream/publish"
)

const origin = "https://origin.example.com/live/"

type mapFetcher map[string]string

func (f mapFetcher) Fetch(ctx context.Context, rawURL string) (string, string, string, error) {
	body, ok := f[rawURL]
	if !ok {
		return "", "", "", &hls.FetchError{URL: rawURL, StatusCode: http.StatusNotFound, Cause: errors.New("not found")}
	}
	return body, "application/vnd.apple.mpegurl", rawURL, nil
}

func newTestServer(t *testing.T) (*Server, *publish.MemoryPublisher) {
	t.Helper()

	fetcher := mapFetcher{
		origin + "index.m3u8":  hls.TestIsolatedBracketPlaylist,
		origin + "master.m3u8": hls.TestSelfReferencingMaster,
		origin + "other.m3u8":  hls.TestMediaPlaylist,
	}
	publisher := publish.NewMemoryPublisherWithConfig(&publish.Config{BaseURL: "http://player.test"})
	return New(nil, nil, fetcher, publisher), publisher
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func loadTarget(rawURL, session string) string {
	q := url.Values{"url": {rawURL}}
	if session != "" {
		q.Set("session", session)
	}
	return "/v1/load?" + q.Encode()
}

func TestLoadAndServePlaylist(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodGet, loadTarget(origin+"index.m3u8", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body loadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "http://player.test/playlists/"+body.ID+".m3u8", body.URI)
	assert.Equal(t, "hls", body.Type)
	assert.Equal(t, origin+"index.m3u8", body.SourceURL)

	u, err := url.Parse(body.URI)
	require.NoError(t, err)

	rec = doRequest(t, handler, http.MethodGet, u.Path)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Equal(t, hls.ResolveURIs(hls.TestIsolatedBracketStripped, origin+"index.m3u8"), rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "#EXT-X-DISCONTINUITY")
}

func TestLoadPost(t *testing.T) {
	srv, _ := newTestServer(t)

	form := url.Values{"url": {origin + "other.m3u8"}, "session": {"tv"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/load", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, srv.Session("tv").Current())
}

func TestLoadErrors(t *testing.T) {
	srv, publisher := newTestServer(t)
	handler := srv.Handler()

	var reported []error
	srv.OnError(func(err error, tags map[string]string) {
		reported = append(reported, err)
		assert.Equal(t, "load", tags["operation"])
	})

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"missing url", "/v1/load", http.StatusBadRequest, common.ErrCodeInvalidFormat},
		{"unsupported scheme", loadTarget("ftp://origin.example.com/a.m3u8", ""), http.StatusBadRequest, common.ErrCodeUnsupported},
		{"fetch failure", loadTarget(origin+"missing.m3u8", ""), http.StatusBadGateway, common.ErrCodeFetch},
		{"recursion limit", loadTarget(origin+"master.m3u8", ""), http.StatusLoopDetected, common.ErrCodeRecursionLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}

	assert.Zero(t, publisher.Len())
	assert.Len(t, reported, 2, "only server-side failures reach the error hook")
}

func TestSessionsAreIndependent(t *testing.T) {
	srv, publisher := newTestServer(t)
	handler := srv.Handler()

	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"index.m3u8", "a")).Code)
	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"other.m3u8", "b")).Code)
	assert.Equal(t, 2, publisher.Len())

	// a new load in session a replaces only a's playlist
	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"other.m3u8", "a")).Code)
	assert.Equal(t, 2, publisher.Len())

	rec := doRequest(t, handler, http.MethodDelete, "/v1/sessions/a")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, publisher.Len())

	rec = doRequest(t, handler, http.MethodDelete, "/v1/sessions/a")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.ReleaseAll(context.Background())
	assert.Zero(t, publisher.Len())
}

func TestSessionCapEvictsLeastRecentlyUsed(t *testing.T) {
	fetcher := mapFetcher{
		origin + "index.m3u8": hls.TestIsolatedBracketPlaylist,
		origin + "other.m3u8": hls.TestMediaPlaylist,
	}
	publisher := publish.NewMemoryPublisherWithConfig(&publish.Config{BaseURL: "http://player.test"})
	config := DefaultConfig()
	config.MaxSessions = 2
	srv := New(config, nil, fetcher, publisher)
	handler := srv.Handler()

	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"index.m3u8", "a")).Code)
	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"other.m3u8", "b")).Code)

	// touching a makes b the oldest
	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"other.m3u8", "a")).Code)

	require.Equal(t, http.StatusOK, doRequest(t, handler, http.MethodGet, loadTarget(origin+"index.m3u8", "c")).Code)

	assert.Equal(t, 2, srv.sessionCount())
	assert.Equal(t, 2, publisher.Len(), "evicted session's playlist is revoked")
	assert.Equal(t, http.StatusNotFound, doRequest(t, handler, http.MethodDelete, "/v1/sessions/b").Code)
	assert.Equal(t, http.StatusNoContent, doRequest(t, handler, http.MethodDelete, "/v1/sessions/a").Code)
	assert.Equal(t, http.StatusNoContent, doRequest(t, handler, http.MethodDelete, "/v1/sessions/c").Code)
	assert.Zero(t, publisher.Len())
}

func TestReleasedPlaylistIsGone(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodGet, loadTarget(origin+"other.m3u8", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var body loadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Equal(t, http.StatusNoContent, doRequest(t, handler, http.MethodDelete, "/v1/sessions/"+DefaultSession).Code)

	rec = doRequest(t, handler, http.MethodGet, "/playlists/"+body.ID+".m3u8")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPassthroughLoad(t *testing.T) {
	srv, publisher := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodGet, loadTarget("https://origin.example.com/movie.mp4", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var body loadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.ID)
	assert.Equal(t, "https://origin.example.com/movie.mp4", body.URI)
	assert.Equal(t, "passthrough", body.Type)
	assert.Zero(t, publisher.Len())
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	doRequest(t, handler, http.MethodGet, loadTarget(origin+"other.m3u8", ""))

	rec := doRequest(t, handler, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["sessions"])
	assert.EqualValues(t, 1, health["resources"])

	rec = doRequest(t, handler, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hls_sanitizer_sanitize_total")
	assert.Contains(t, rec.Body.String(), `route="/v1/load"`)
}

func TestStatusFor(t *testing.T) {
	superseded := common.NewStreamError(common.StreamTypeHLS, "u", common.ErrCodeSuperseded, "load discarded", hls.ErrSuperseded)
	noVariant := common.NewStreamError(common.StreamTypeHLS, "u", common.ErrCodeInvalidFormat, "invalid master playlist", hls.ErrNoVariant)
	publishErr := common.NewStreamError(common.StreamTypeHLS, "u", common.ErrCodePublish, "failed", nil)

	assert.Equal(t, http.StatusConflict, StatusFor(superseded))
	assert.Equal(t, http.StatusBadGateway, StatusFor(noVariant))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(publishErr))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("other")))
}
