package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/buongiorno-bot/internal/fetcher/colly"
	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
)

type stubFetcher struct {
	pages map[string]string
	err   error
	urls  []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (collyfetcher.Page, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return collyfetcher.Page{}, s.err
	}
	body, ok := s.pages[url]
	if !ok {
		return collyfetcher.Page{}, errors.New("status 404: Not Found")
	}
	return collyfetcher.Page{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testSource() Source {
	return Source{
		Name:            "esempio",
		BaseURL:         "https://www.esempio.it",
		ContentSelector: "div.entry-content",
		WeekdayRoute:    "/buongiorno-%s",
		Routes: map[greeting.Category]string{
			greeting.BuonGiorno: "/buongiorno",
			greeting.BuonaNotte: "/buonanotte",
		},
	}
}

func TestScraperExtractsContentImages(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<header><img src="https://www.esempio.it/logo.png"></header>
<div class="entry-content">
  <img src="https://www.esempio.it/img/uno.jpg">
  <img src="/img/due.jpg">
  <img src="data:image/gif;base64,R0lGOD" data-lazy-src="https://cdn.esempio.it/img/tre.jpg">
  <img data-src="https://www.esempio.it/img/uno.jpg">
  <img src="https://ads.pubblicita.com/banner.jpg">
  <img>
</div>
</body></html>`
	fetcher := &stubFetcher{pages: map[string]string{"https://www.esempio.it/buongiorno": page}}
	s, err := NewScraper(testSource(), fetcher)
	require.NoError(t, err)

	refs, err := s.Fetch(context.Background(), greeting.BuonGiorno)
	require.NoError(t, err)

	got := make([]string, 0, len(refs))
	for _, r := range refs {
		got = append(got, r.String())
		require.Equal(t, "esempio", r.Provider)
	}
	require.Equal(t, []string{
		"https://www.esempio.it/img/uno.jpg",
		"https://www.esempio.it/img/due.jpg",
		"https://cdn.esempio.it/img/tre.jpg",
	}, got)
}

func TestScraperUnsupportedCategoryMakesNoRequest(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	s, err := NewScraper(testSource(), fetcher)
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), greeting.Compleanno)
	require.ErrorIs(t, err, greeting.ErrUnsupported)
	require.Empty(t, fetcher.urls)
}

func TestScraperWeekdayRoute(t *testing.T) {
	t.Parallel()

	// 2024-05-29 is a Wednesday.
	wednesday := time.Date(2024, time.May, 29, 6, 30, 0, 0, time.UTC)
	fetcher := &stubFetcher{pages: map[string]string{
		"https://www.esempio.it/buongiorno-mercoledi": `<div class="entry-content"><img src="/m.jpg"></div>`,
	}}
	s, err := NewScraper(testSource(), fetcher, WithClock(fixedClock{wednesday}))
	require.NoError(t, err)

	refs, err := s.Fetch(context.Background(), greeting.BuonGiornoWeekday)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "https://www.esempio.it/m.jpg", refs[0].String())
}

func TestScraperErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fetcher *stubFetcher
		want    error
	}{
		{
			name:    "transport failure",
			fetcher: &stubFetcher{err: errors.New("connection reset")},
			want:    greeting.ErrNetwork,
		},
		{
			name: "missing content region",
			fetcher: &stubFetcher{pages: map[string]string{
				"https://www.esempio.it/buonanotte": `<html><body><p>manutenzione</p></body></html>`,
			}},
			want: greeting.ErrNetwork,
		},
		{
			name: "no qualifying images",
			fetcher: &stubFetcher{pages: map[string]string{
				"https://www.esempio.it/buonanotte": `<div class="entry-content"><img src="https://altro.com/x.jpg"></div>`,
			}},
			want: greeting.ErrEmptyResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewScraper(testSource(), tt.fetcher)
			require.NoError(t, err)
			_, err = s.Fetch(context.Background(), greeting.BuonaNotte)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScraperAgainstLocalServer(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/buona-cena", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div class="post-content"><img src="/cena.jpg"></div></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	source, ok := SourceOf(TiCondivido)
	require.True(t, ok)
	source = source.WithBaseURL(srv.URL)
	source.Routes[greeting.BuonaCena] = "/buona-cena"

	s, err := NewScraper(source, collyfetcher.New(collyfetcher.Config{Timeout: time.Second}))
	require.NoError(t, err)

	refs, err := s.Fetch(context.Background(), greeting.BuonaCena)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, srv.URL+"/cena.jpg", refs[0].String())

	_, err = s.Fetch(context.Background(), greeting.BuonaNotte)
	require.ErrorIs(t, err, greeting.ErrNetwork)
}

func TestBuiltInSources(t *testing.T) {
	t.Parallel()

	providers, err := All(&stubFetcher{})
	require.NoError(t, err)
	require.Len(t, providers, 5)

	names := make(map[string]bool)
	for _, p := range providers {
		names[p.Name()] = true
	}
	for _, k := range Kinds() {
		require.True(t, names[k.String()], k.String())
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}

	_, err = ParseKind("nessuno")
	require.Error(t, err)

	// every daily greeting the scheduler sends has at least one source.
	for _, c := range []greeting.Category{
		greeting.BuonGiorno, greeting.BuonGiornoWeekday, greeting.BuonPranzo,
		greeting.BuonPomeriggio, greeting.BuonaSerata, greeting.BuonaCena,
		greeting.BuonaNotte, greeting.Compleanno,
	} {
		covered := false
		for _, k := range Kinds() {
			s, _ := SourceOf(k)
			covered = covered || s.Supports(c)
		}
		require.True(t, covered, c.String())
	}
}

func TestSourceOfReturnsCopy(t *testing.T) {
	t.Parallel()

	s, ok := SourceOf(IlMondoDiGrazia)
	require.True(t, ok)
	s.Routes[greeting.BuonaCena] = "/cena"

	again, _ := SourceOf(IlMondoDiGrazia)
	require.False(t, again.Supports(greeting.BuonaCena))
	require.Equal(t, "ilmondodigrazia.com", again.Domain())
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	require.True(t, sameSite("www.esempio.it", "esempio.it"))
	require.True(t, sameSite("img.esempio.it", "esempio.it"))
	require.False(t, sameSite("notesempio.it", "esempio.it"))
	require.False(t, sameSite("", "esempio.it"))
}
