package fetcher

import (
	"context"
	"errors"
	"time"
)

// ErrChannelNotFound is returned when a configured channel cannot be resolved.
var ErrChannelNotFound = errors.New("channel not found")

// Message is one chat message as delivered by a transport.
type Message struct {
	ID int64
	// Channel is the display title for live events; history pages leave it empty.
	Channel string
	Text    string
	Date    time.Time
}

// MessageHandler consumes live messages. Handlers run to completion before the next message.
type MessageHandler func(ctx context.Context, msg Message) error

// Source is the chat transport: a live subscription plus paged history.
type Source interface {
	// Subscribe blocks, delivering new messages from channels until the session ends or ctx is done.
	Subscribe(ctx context.Context, channels []string, handle MessageHandler) error
	// FetchHistory returns up to limit recent messages of channel, newest first.
	FetchHistory(ctx context.Context, channel string, limit int) ([]Message, error)
}

// QuoteFetcher looks up live market data for a contract address.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, address string) (*Quote, error)
}
