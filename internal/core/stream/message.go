package stream

import (
	"errors"
	"time"

	"pm2gate/internal/core/domain"
)

// Message is one outbound frame on a streaming connection.
type Message struct {
	Type       string            `json:"type"` // "connected", "log", "error", "pong"
	Process    string            `json:"process,omitempty"`
	Channel    domain.LogChannel `json:"channel,omitempty"`
	Text       string            `json:"text,omitempty"`
	ObservedAt time.Time         `json:"observedAt,omitzero"`
	Message    string            `json:"message,omitempty"`
}

// ErrSinkClosed is returned by a Sink whose connection is gone.
var ErrSinkClosed = errors.New("sink closed")

// Sink is the outbound side of one streaming connection. Send may block
// until the client drains or the sink is closed; Close must be idempotent.
type Sink interface {
	Send(msg Message) error
	Close() error
}
