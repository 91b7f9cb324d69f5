package messaging

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoSubscribers is returned by Publish when the message reached no
// consumer. Pub/sub does not buffer, so the caller should retry.
var ErrNoSubscribers = errors.New("no subscribers received the message")

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe delivers raw payloads until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope relayed from the outbox. Payload is the event
// body exactly as it was stored.
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
