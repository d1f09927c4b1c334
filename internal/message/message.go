// Package message models outbound chat messages as ordered text and image
// blocks and delivers them through a Sender.
package message

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
)

// Kind identifies a block type.
type Kind string

// Block kinds.
const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Block is one part of a message.
type Block struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is an ordered list of blocks sent to a single recipient.
type Message struct {
	Blocks []Block `json:"blocks"`
}

// Text builds a message holding a single text block.
func Text(text string) Message {
	return Message{Blocks: []Block{{Kind: KindText, Text: text}}}
}

// Empty reports whether the message has nothing to send.
func (m Message) Empty() bool {
	return len(m.Blocks) == 0
}

// PlainText joins the text blocks, mostly useful in tests and logs.
func (m Message) PlainText() string {
	parts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		if b.Kind == KindText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Builder composes messages block by block.
type Builder struct {
	blocks []Block
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Text appends a text block.
func (b *Builder) Text(text string) *Builder {
	b.blocks = append(b.blocks, Block{Kind: KindText, Text: text})
	return b
}

// Image appends an image block.
func (b *Builder) Image(ref greeting.ImageRef) *Builder {
	b.blocks = append(b.blocks, Block{Kind: KindImage, ImageURL: ref.String()})
	return b
}

// Build returns the composed message.
func (b *Builder) Build() Message {
	return Message{Blocks: append([]Block(nil), b.blocks...)}
}

// Sender delivers single blocks to a recipient.
type Sender interface {
	SendText(ctx context.Context, recipientID int64, text string) error
	SendImage(ctx context.Context, recipientID int64, imageURL string) error
}

// ErrUnknownBlock is returned for blocks of an unrecognized kind.
var ErrUnknownBlock = errors.New("unknown message block")

// Deliver sends the blocks of msg in order. The first failure stops the
// remaining blocks; blocks already sent stay sent.
func Deliver(ctx context.Context, sender Sender, recipientID int64, msg Message) error {
	for i, block := range msg.Blocks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("deliver block %d: %w", i, err)
		}
		var err error
		switch block.Kind {
		case KindText:
			err = sender.SendText(ctx, recipientID, block.Text)
		case KindImage:
			err = sender.SendImage(ctx, recipientID, block.ImageURL)
		default:
			err = fmt.Errorf("%w %q", ErrUnknownBlock, block.Kind)
		}
		if err != nil {
			return fmt.Errorf("deliver block %d: %w", i, err)
		}
	}
	return nil
}

// LogSender writes messages to the log instead of a chat, for dry runs.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("log_sender")}
}

// SendText logs a text block.
func (s *LogSender) SendText(_ context.Context, recipientID int64, text string) error {
	s.logger.Info("send text", zap.Int64("recipient_id", recipientID), zap.String("text", text))
	return nil
}

// SendImage logs an image block.
func (s *LogSender) SendImage(_ context.Context, recipientID int64, imageURL string) error {
	s.logger.Info("send image", zap.Int64("recipient_id", recipientID), zap.String("url", imageURL))
	return nil
}
