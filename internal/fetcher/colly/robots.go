package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
)

const (
	defaultRobotsTTL = 6 * time.Hour
	allowAllRobots   = "User-agent: *\nAllow: /"
)

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

type robotsEntry struct {
	status  int
	body    []byte
	expires time.Time
}

// robotsCache answers robots.txt requests from memory. Every provider fetch
// builds a fresh collector, so without it each scrape would re-download the
// host's robots.txt. Unreachable or failing robots endpoints are treated as
// allow-all rather than blocking the greeting page.
type robotsCache struct {
	base http.RoundTripper
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]robotsEntry
}

func newRobotsCache(base http.RoundTripper, ttl time.Duration) *robotsCache {
	if ttl <= 0 {
		ttl = defaultRobotsTTL
	}
	return &robotsCache{
		base:    base,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]robotsEntry),
	}
}

func (c *robotsCache) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots cache received nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return c.base.RoundTrip(req)
	}

	host := strings.ToLower(req.URL.Host)
	if entry, ok := c.lookup(host); ok {
		return entry.response(req), nil
	}
	entry, err := c.fetch(req)
	if err != nil {
		return nil, err
	}
	c.store(host, entry)
	return entry.response(req), nil
}

func (c *robotsCache) lookup(host string) (robotsEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[host]
	if !ok || c.now().After(entry.expires) {
		return robotsEntry{}, false
	}
	return entry, true
}

func (c *robotsCache) store(host string, entry robotsEntry) {
	c.mu.Lock()
	c.entries[host] = entry
	c.mu.Unlock()
}

func (c *robotsCache) fetch(req *http.Request) (robotsEntry, error) {
	host := req.URL.Hostname()
	for attempt := 0; ; attempt++ {
		resp, err := c.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return c.entryFrom(host, resp)
		}
		if !isTransient(err) {
			return robotsEntry{}, fmt.Errorf("fetch robots.txt: %w", err)
		}
		if attempt == len(robotsRetryBackoff) {
			metrics.ObserveRobotsFallback(host)
			return c.allowAll(), nil
		}
		if err := sleepWithContext(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return robotsEntry{}, err
		}
	}
}

func (c *robotsCache) entryFrom(host string, resp *http.Response) (robotsEntry, error) {
	defer resp.Body.Close()
	// colly reads a 5xx robots.txt as disallow-all; a broken WordPress
	// install should not take the source offline.
	if resp.StatusCode >= http.StatusInternalServerError {
		metrics.ObserveRobotsFallback(host)
		return c.allowAll(), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return robotsEntry{}, fmt.Errorf("read robots.txt: %w", err)
	}
	return robotsEntry{status: resp.StatusCode, body: body, expires: c.now().Add(c.ttl)}, nil
}

func (c *robotsCache) allowAll() robotsEntry {
	return robotsEntry{
		status:  http.StatusOK,
		body:    []byte(allowAllRobots),
		expires: c.now().Add(c.ttl),
	}
}

func (e robotsEntry) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    e.status,
		Status:        fmt.Sprintf("%d %s", e.status, http.StatusText(e.status)),
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots retry: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
