package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buongiorno-bot/internal/command"
	"github.com/JakeFAU/buongiorno-bot/internal/message"
)

type scriptedSource struct {
	mu      sync.Mutex
	batches []func() ([]Update, error)
	offsets []int64
	drained chan struct{}
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.batches) == 0 {
		s.mu.Unlock()
		close(s.drained)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	s.mu.Unlock()
	return next()
}

type echoHandler struct{}

func (echoHandler) HandleText(_ context.Context, _ int64, text string) (message.Message, error) {
	switch text {
	case "ciao":
		return message.Message{}, command.ErrNotCommand
	case "/boom":
		return message.Message{}, errors.New("boom")
	case "/panic":
		panic("handler bug")
	}
	return message.Text("re: " + text), nil
}

type recordingReplier struct {
	mu      sync.Mutex
	replies map[int64][]string
}

func (r *recordingReplier) Send(_ context.Context, id int64, msg message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = map[int64][]string{}
	}
	r.replies[id] = append(r.replies[id], msg.PlainText())
	return nil
}

func textUpdate(id, chat int64, text string) Update {
	return Update{ID: id, Message: &Message{ID: id, Chat: Chat{ID: chat}, Text: text}}
}

func runPoller(t *testing.T, src *scriptedSource, rep *recordingReplier) {
	t.Helper()
	p, err := NewPoller(src, echoHandler{}, rep, PollerConfig{MinBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-src.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not consume all batches")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerAnswersCommands(t *testing.T) {
	t.Parallel()
	src := &scriptedSource{
		drained: make(chan struct{}),
		batches: []func() ([]Update, error){
			func() ([]Update, error) {
				return []Update{
					textUpdate(5, 1, "/help"),
					textUpdate(6, 2, "ciao"),
					{ID: 7},
					textUpdate(8, 3, "/boom"),
					textUpdate(9, 4, "/panic"),
				}, nil
			},
			func() ([]Update, error) { return []Update{textUpdate(10, 1, "/caffeee")}, nil },
		},
	}
	rep := &recordingReplier{}
	runPoller(t, src, rep)

	assert.ElementsMatch(t, []string{"re: /help", "re: /caffeee"}, rep.replies[1])
	assert.NotContains(t, rep.replies, int64(2))
	assert.NotContains(t, rep.replies, int64(3))
	assert.NotContains(t, rep.replies, int64(4))
	assert.Equal(t, []int64{0, 10, 11}, src.offsets)
}

func TestPollerRetriesAfterErrors(t *testing.T) {
	t.Parallel()
	src := &scriptedSource{
		drained: make(chan struct{}),
		batches: []func() ([]Update, error){
			func() ([]Update, error) { return nil, errors.New("connection reset") },
			func() ([]Update, error) {
				return nil, &APIError{Method: "getUpdates", Code: 429, RetryAfter: time.Millisecond}
			},
			func() ([]Update, error) { return []Update{textUpdate(1, 9, "/start")}, nil },
		},
	}
	rep := &recordingReplier{}
	runPoller(t, src, rep)

	assert.Equal(t, []string{"re: /start"}, rep.replies[9])
	assert.Equal(t, []int64{0, 0, 0, 2}, src.offsets)
}

func TestNewPollerValidates(t *testing.T) {
	t.Parallel()
	_, err := NewPoller(nil, echoHandler{}, &recordingReplier{}, PollerConfig{}, nil)
	require.Error(t, err)
	_, err = NewPoller(&scriptedSource{}, nil, &recordingReplier{}, PollerConfig{}, nil)
	require.Error(t, err)
	_, err = NewPoller(&scriptedSource{}, echoHandler{}, nil, PollerConfig{}, nil)
	require.Error(t, err)
}
