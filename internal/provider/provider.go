// Package provider scrapes greeting images from the supported Italian
// greeting sites. Each site is a Source with its own page routes and content
// region; a Scraper turns one Source into a Provider.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/buongiorno-bot/internal/fetcher/colly"
	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
)

// Provider yields candidate images for a category.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, category greeting.Category) ([]greeting.ImageRef, error)
}

// PageFetcher downloads a single HTML page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Page, error)
}

// Clock supplies the current time, used to pick the weekday page.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// imageAttrs are checked in order; lazy-loading themes keep the real image
// in a data attribute and a placeholder in src.
var imageAttrs = []string{"data-lazy-src", "data-src", "src"}

// Scraper is a Provider backed by a Source description.
type Scraper struct {
	source  Source
	fetcher PageFetcher
	clock   Clock
	logger  *zap.Logger
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithClock overrides the clock used for weekday routing.
func WithClock(c Clock) Option {
	return func(s *Scraper) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScraper builds a Provider for source.
func NewScraper(source Source, fetcher PageFetcher, opts ...Option) (*Scraper, error) {
	if fetcher == nil {
		return nil, errors.New("page fetcher is required")
	}
	if source.Name == "" || source.BaseURL == "" || source.ContentSelector == "" {
		return nil, fmt.Errorf("incomplete source %q", source.Name)
	}
	s := &Scraper{
		source:  source,
		fetcher: fetcher,
		clock:   systemClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("provider").With(zap.String("provider", source.Name))
	return s, nil
}

// New builds the Provider for a built-in source kind.
func New(kind Kind, fetcher PageFetcher, opts ...Option) (*Scraper, error) {
	source, ok := SourceOf(kind)
	if !ok {
		return nil, fmt.Errorf("unknown provider kind %d", int(kind))
	}
	return NewScraper(source, fetcher, opts...)
}

// All builds one Provider per built-in source.
func All(fetcher PageFetcher, opts ...Option) ([]Provider, error) {
	out := make([]Provider, 0, len(Kinds()))
	for _, k := range Kinds() {
		p, err := New(k, fetcher, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Name returns the source name.
func (s *Scraper) Name() string {
	return s.source.Name
}

// Source returns the source description.
func (s *Scraper) Source() Source {
	return s.source
}

// Fetch scrapes the page for category and returns the images found in its
// content region, in document order and without duplicates.
func (s *Scraper) Fetch(ctx context.Context, category greeting.Category) ([]greeting.ImageRef, error) {
	pageURL, ok := s.source.PageURL(category, s.clock.Now())
	if !ok {
		metrics.ObserveProviderFetch(s.source.Name, "unsupported")
		return nil, fmt.Errorf("%s does not offer %s: %w", s.source.Name, category, greeting.ErrUnsupported)
	}

	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		metrics.ObserveProviderFetch(s.source.Name, "network")
		s.logger.Debug("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, fmt.Errorf("fetch %s: %w: %w", pageURL, greeting.ErrNetwork, err)
	}

	base := pageURL
	if page.URL != "" {
		base = page.URL
	}
	refs, err := extractImages(page.Body, base, s.source)
	if err != nil {
		metrics.ObserveProviderFetch(s.source.Name, "network")
		return nil, fmt.Errorf("parse %s: %w: %w", pageURL, greeting.ErrNetwork, err)
	}
	if len(refs) == 0 {
		metrics.ObserveProviderFetch(s.source.Name, "empty")
		return nil, fmt.Errorf("%s has no images for %s: %w", s.source.Name, category, greeting.ErrEmptyResult)
	}

	metrics.ObserveProviderFetch(s.source.Name, "ok")
	s.logger.Debug("page scraped",
		zap.String("url", pageURL),
		zap.Int("images", len(refs)),
		zap.Duration("duration", page.Duration),
	)
	return refs, nil
}

var errNoContent = errors.New("content region not found")

func extractImages(body []byte, pageURL string, source Source) ([]greeting.ImageRef, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	region := doc.Find(source.ContentSelector).First()
	if region.Length() == 0 {
		return nil, fmt.Errorf("%q: %w", source.ContentSelector, errNoContent)
	}

	domain := source.Domain()
	seen := make(map[string]struct{})
	var refs []greeting.ImageRef
	region.Find("img").Each(func(_ int, img *goquery.Selection) {
		raw := imageSource(img)
		if raw == "" {
			return
		}
		ref, err := base.Parse(raw)
		if err != nil {
			return
		}
		ref.Fragment = ""
		if !sameSite(ref.Hostname(), domain) {
			return
		}
		key := ref.String()
		if _, dup := seen[key]; dup {
			return
		}
		image, err := greeting.NewImageRef(key, source.Name)
		if err != nil {
			return
		}
		seen[key] = struct{}{}
		refs = append(refs, image)
	})
	return refs, nil
}

func imageSource(img *goquery.Selection) string {
	for _, attr := range imageAttrs {
		v := strings.TrimSpace(img.AttrOr(attr, ""))
		if v == "" || strings.HasPrefix(v, "data:") {
			continue
		}
		return v
	}
	return ""
}

func sameSite(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
