// Package chain implements the per-channel Markov chain: learning, the start
// index and weighted generation over the keyed store.
package chain

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/rcliao/parrot/internal/metrics"
	"github.com/rcliao/parrot/internal/model"
	"github.com/rcliao/parrot/internal/store"
	"github.com/rcliao/parrot/internal/tokenizer"
)

// Bounds is a soft/hard pair of token counts.
type Bounds struct {
	Soft int
	Hard int
}

// Options configures a Channel.
type Options struct {
	// Power is the Markov order: tokens per context window.
	Power     int
	Minimum   Bounds
	Maximum   Bounds
	Smoothing int
	Fallback  string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Rand defaults to the goroutine-safe top-level math/rand/v2 source.
	Rand Rand
}

// Rand is the randomness the generator needs.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Source replays historical messages of a channel.
type Source interface {
	Replay(ctx context.Context, channel string, fn func(text string) error) error
}

// Stats summarizes a channel's start index.
type Stats struct {
	Channel    string `json:"channel"`
	Starts     int    `json:"starts"`
	StartTotal int    `json:"start_total"`
}

// Channel is the chain model of one conversation. Its id is the store namespace.
type Channel struct {
	id      string
	store   *store.Store
	norm    *tokenizer.Normalizer
	index   *StartIndex
	opts    Options
	rand    Rand
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewChannel returns a channel with an empty start index; call Reindex or
// Reset to populate it.
func NewChannel(id string, st *store.Store, norm *tokenizer.Normalizer, opts Options) *Channel {
	if opts.Power < 1 {
		opts.Power = 1
	}
	r := opts.Rand
	if r == nil {
		r = globalRand{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		id:      id,
		store:   st,
		norm:    norm,
		index:   NewStartIndex(),
		opts:    opts,
		rand:    r,
		logger:  logger.Named("chain").With(zap.String("channel", id)),
		metrics: opts.Metrics,
	}
}

func (c *Channel) ID() string { return c.id }

// Index exposes the start index.
func (c *Channel) Index() *StartIndex { return c.index }

// Learn records the transitions of message and returns how many were
// recorded. Messages shorter than the context window are ignored. Durable
// writes are queued, not awaited.
func (c *Channel) Learn(message string) int {
	tokens := c.norm.Tokens(message)
	power := c.opts.Power
	if len(tokens) < power {
		return 0
	}

	history := make(model.Context, 0, power)
	history = append(history, model.StartToken)
	history = append(history, tokens[:power-1]...)

	n := 0
	for _, t := range tokens[power-1:] {
		c.observe(history, t)
		history = history.Slide(t)
		n++
	}
	c.observe(history, model.EndToken)
	n++

	c.metrics.Learned(c.id, n)
	return n
}

func (c *Channel) observe(history model.Context, next model.Token) {
	key := history.Key()
	if history.IsStart() {
		c.index.Add(key, 1)
	}
	c.store.UpdateAsync(c.id, key, func(e *model.Entry) {
		e.Observe(next)
	})
}

// Entry returns the stored record of a context.
func (c *Channel) Entry(ctx context.Context, history model.Context) (model.Entry, error) {
	return c.store.Get(ctx, c.id, history.Key())
}

// Reset wipes the channel's records and relearns every message src replays.
func (c *Channel) Reset(ctx context.Context, src Source) error {
	if err := c.store.Wipe(ctx, c.id); err != nil {
		return err
	}
	c.index.Clear()

	messages := 0
	err := src.Replay(ctx, c.id, func(text string) error {
		if c.Learn(text) > 0 {
			messages++
		}
		return nil
	})
	c.store.Drain()
	if err != nil {
		return fmt.Errorf("replay %s: %w", c.id, err)
	}
	c.logger.Info("relearned channel",
		zap.Int("messages", messages),
		zap.Int("starts", c.index.Len()),
		zap.Int("start_total", c.index.Total()))
	return nil
}

// Reindex rebuilds the start index from stored records without modifying them.
func (c *Channel) Reindex(ctx context.Context) error {
	c.index.Clear()
	err := c.store.Scan(ctx, c.id, func(e model.Entry) error {
		if e.Total > 0 && model.ParseContext(e.Words).IsStart() {
			c.index.Set(e.Words, e.Total)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reindex %s: %w", c.id, err)
	}
	c.logger.Debug("reindexed channel",
		zap.Int("starts", c.index.Len()),
		zap.Int("start_total", c.index.Total()))
	return nil
}

func (c *Channel) Stats() Stats {
	return Stats{Channel: c.id, Starts: c.index.Len(), StartTotal: c.index.Total()}
}
