package message

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
)

type recordingSender struct {
	sent   []string
	failAt int
}

func (r *recordingSender) SendText(_ context.Context, _ int64, text string) error {
	return r.record("text:" + text)
}

func (r *recordingSender) SendImage(_ context.Context, _ int64, url string) error {
	return r.record("image:" + url)
}

func (r *recordingSender) record(s string) error {
	if r.failAt > 0 && len(r.sent)+1 == r.failAt {
		return errors.New("chat not found")
	}
	r.sent = append(r.sent, s)
	return nil
}

func TestDeliverSendsBlocksInOrder(t *testing.T) {
	t.Parallel()

	ref, err := greeting.NewImageRef("https://example.com/torta.jpg", "test")
	require.NoError(t, err)
	msg := NewBuilder().Image(ref).Text("Buon compleanno Anna!").Build()

	sender := &recordingSender{}
	require.NoError(t, Deliver(context.Background(), sender, 42, msg))
	require.Equal(t, []string{"image:https://example.com/torta.jpg", "text:Buon compleanno Anna!"}, sender.sent)
	require.Equal(t, "Buon compleanno Anna!", msg.PlainText())
}

func TestDeliverStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	msg := NewBuilder().Text("uno").Text("due").Text("tre").Build()
	sender := &recordingSender{failAt: 2}

	err := Deliver(context.Background(), sender, 42, msg)
	require.ErrorContains(t, err, "deliver block 1")
	require.Equal(t, []string{"text:uno"}, sender.sent)
}

func TestDeliverRejectsUnknownBlock(t *testing.T) {
	t.Parallel()

	err := Deliver(context.Background(), &recordingSender{}, 1, Message{Blocks: []Block{{Kind: "video"}}})
	require.ErrorIs(t, err, ErrUnknownBlock)
}

func TestDeliverHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := &recordingSender{}
	err := Deliver(ctx, sender, 1, Text("ciao"))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sender.sent)
}

func TestBuilderReturnsIndependentMessages(t *testing.T) {
	t.Parallel()

	b := NewBuilder().Text("a")
	first := b.Build()
	b.Text("b")
	require.Len(t, first.Blocks, 1)
	require.Len(t, b.Build().Blocks, 2)
	require.True(t, Message{}.Empty())
}

func TestLogSenderLogsBlocks(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))
	require.NoError(t, Deliver(context.Background(), s, 7, NewBuilder().Text("ciao").Build()))
	require.Equal(t, 1, logs.FilterMessage("send text").Len())
}
