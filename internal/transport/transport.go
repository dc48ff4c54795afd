// Package transport connects the bot to a chat network. The core only needs
// a stream of incoming messages and a way to post replies.
package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one message received in a channel.
type Event struct {
	ID      string
	Channel string
	Sender  string
	Text    string
	At      time.Time
}

// Transport delivers events and sends replies.
type Transport interface {
	// Events is closed when the transport has no more input.
	Events() <-chan Event
	Send(ctx context.Context, channel, text string) error
	Close() error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a time-ordered event id.
func NewID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
