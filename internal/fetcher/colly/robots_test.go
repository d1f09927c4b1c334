package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
)

func TestRobotsCacheReusesAnswerPerHost(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{status: http.StatusOK, body: "User-agent: *\nDisallow: /privato"}}}
	cache := newRobotsCache(base, time.Hour)

	for range 3 {
		require.Equal(t, "User-agent: *\nDisallow: /privato", readRobots(t, cache, "https://www.esempio.it/robots.txt"))
	}
	require.Equal(t, 1, base.count())

	readRobots(t, cache, "https://altro.it/robots.txt")
	require.Equal(t, 2, base.count())
}

func TestRobotsCacheExpires(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{status: http.StatusOK, body: "User-agent: *\nAllow: /"}}}
	cache := newRobotsCache(base, time.Minute)
	now := time.Date(2024, time.May, 29, 6, 30, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	readRobots(t, cache, "https://www.esempio.it/robots.txt")
	now = now.Add(2 * time.Minute)
	readRobots(t, cache, "https://www.esempio.it/robots.txt")
	require.Equal(t, 2, base.count())
}

func TestRobotsCacheServerErrorAllowsAll(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{{status: http.StatusServiceUnavailable, body: "down"}}}
	cache := newRobotsCache(base, time.Hour)

	require.Equal(t, allowAllRobots, readRobots(t, cache, "https://www.esempio.it/robots.txt"))
}

func TestRobotsCacheTimeoutsAllowAll(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	cache := newRobotsCache(base, time.Hour)

	require.Equal(t, allowAllRobots, readRobots(t, cache, "https://www.esempio.it/robots.txt"))
	require.Equal(t, len(robotsRetryBackoff)+1, base.count())
}

func TestRobotsCacheRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{status: http.StatusOK, body: "User-agent: *\nAllow: /"},
	}}
	cache := newRobotsCache(base, time.Hour)

	require.Equal(t, "User-agent: *\nAllow: /", readRobots(t, cache, "https://www.esempio.it/robots.txt"))
	require.Equal(t, 2, base.count())
}

func TestRobotsCacheSurfacesHardErrors(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	cache := newRobotsCache(base, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "https://www.esempio.it/robots.txt", nil)
	_, err := cache.RoundTrip(req)
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, 1, base.count())
}

func TestRobotsCachePassesThroughPages(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{status: http.StatusOK, body: "<html></html>"}}}
	cache := newRobotsCache(base, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "https://www.esempio.it/buongiorno", nil)
	for range 2 {
		resp, err := cache.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}
	require.Equal(t, 2, base.count())
}

func TestFetcherRespectsCachedRobots(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		robotsCalls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			mu.Lock()
			robotsCalls++
			mu.Unlock()
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /privato"))
			return
		}
		_, _ = w.Write([]byte("<html><body>ciao</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{RespectRobots: true, Timeout: time.Second})
	for range 2 {
		_, err := f.Fetch(context.Background(), srv.URL+"/buongiorno")
		require.NoError(t, err)
	}
	_, err := f.Fetch(context.Background(), srv.URL+"/privato")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, robotsCalls)
}

func readRobots(t *testing.T, rt http.RoundTripper, raw string) string {
	t.Helper()
	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, raw, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

type roundTripResult struct {
	status int
	body   string
	err    error
}

// stubRoundTripper replays results in order and repeats the last one.
type stubRoundTripper struct {
	mu      sync.Mutex
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	idx := min(s.calls, len(s.results)-1)
	s.calls++
	res := s.results[idx]
	s.mu.Unlock()
	if res.err != nil {
		return nil, res.err
	}
	return &http.Response{
		StatusCode: res.status,
		Body:       io.NopCloser(strings.NewReader(res.body)),
		Request:    req,
	}, nil
}

func (s *stubRoundTripper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
