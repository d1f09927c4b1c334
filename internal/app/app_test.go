package app_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/app"
	"github.com/JakeFAU/buongiorno-bot/internal/config"
	collyfetcher "github.com/JakeFAU/buongiorno-bot/internal/fetcher/colly"
	"github.com/JakeFAU/buongiorno-bot/internal/scheduler"
	"github.com/JakeFAU/buongiorno-bot/internal/store/memory"
)

type pageFetcher struct{}

func (pageFetcher) Fetch(_ context.Context, raw string) (collyfetcher.Page, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return collyfetcher.Page{}, err
	}
	body := fmt.Sprintf(`<html><body><article><div class="entry-content post-content">
<img src="https://%s/wp-content/uploads/caffe.jpg">
</div></article></body></html>`, u.Host)
	return collyfetcher.Page{URL: raw, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type recordingSender struct {
	mu     sync.Mutex
	images map[int64][]string
	texts  map[int64][]string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{images: map[int64][]string{}, texts: map[int64][]string{}}
}

func (s *recordingSender) SendText(_ context.Context, id int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[id] = append(s.texts[id], text)
	return nil
}

func (s *recordingSender) SendImage(_ context.Context, id int64, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = append(s.images[id], imageURL)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Enabled: false, Port: 8080},
		DB:        config.DBConfig{DSN: "postgres://unused"},
		HTTP:      config.HTTPConfig{TimeoutSeconds: 5, UserAgent: "test"},
		Transport: config.TransportConfig{Driver: config.TransportLog},
		Scheduler: config.SchedulerConfig{
			Timezone:               "UTC",
			ShutdownTimeoutSeconds: 5,
			DispatchConcurrency:    2,
			DeliveryTimeoutSeconds: 5,
		},
		Release: config.ReleaseConfig{Version: "test"},
	}
}

func buildApp(t *testing.T, sender *recordingSender) *app.App {
	t.Helper()
	a, err := app.Build(context.Background(), testConfig(), zap.NewNop(),
		app.WithStore(memory.New()),
		app.WithSender(sender),
		app.WithPageFetcher(pageFetcher{}),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBuildAndRunJob(t *testing.T) {
	t.Parallel()

	sender := newRecordingSender()
	a := buildApp(t, sender)
	ctx := context.Background()

	reply, err := a.Commands().HandleText(ctx, 42, "/caffeee")
	require.NoError(t, err)
	require.Contains(t, reply.PlainText(), "CAFFEEE")

	report, err := a.RunJob(ctx, scheduler.JobNight)
	require.NoError(t, err)
	require.Equal(t, scheduler.OutcomeDelivered, report.Outcome)
	require.Equal(t, 1, report.Delivered)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.images[42], 1)
	require.Contains(t, sender.images[42][0], "/wp-content/uploads/caffe.jpg")
}

func TestRunJobUnknown(t *testing.T) {
	t.Parallel()

	a := buildApp(t, newRecordingSender())
	_, err := a.RunJob(context.Background(), "brunch")
	require.ErrorIs(t, err, scheduler.ErrUnknownJob)
}

func TestHandlerServesCommands(t *testing.T) {
	t.Parallel()

	a := buildApp(t, newRecordingSender())
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewBufferString(`{"recipient_id":7,"text":"/buonanotte"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"kind":"image"`)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	a := buildApp(t, newRecordingSender())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := a.RunJob(context.Background(), scheduler.JobMorning)
	require.ErrorIs(t, err, scheduler.ErrStopped)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	_, err := app.Build(context.Background(), nil, nil)
	require.Error(t, err)

	cfg := testConfig()
	cfg.Scheduler.Jobs = map[string]string{"brunch": "0 0 11 * * *"}
	_, err = app.Build(context.Background(), cfg, nil, app.WithStore(memory.New()), app.WithPageFetcher(pageFetcher{}))
	require.ErrorContains(t, err, "brunch")

	cfg = testConfig()
	cfg.DB.DSN = ""
	_, err = app.Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "db.dsn")
}
