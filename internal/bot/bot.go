// Package bot routes chat events to the per-channel chains: every message is
// logged and learned, and mentions of the bot get a generated reply.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/parrot/internal/chain"
	"github.com/rcliao/parrot/internal/chatlog"
	"github.com/rcliao/parrot/internal/config"
	"github.com/rcliao/parrot/internal/metrics"
	"github.com/rcliao/parrot/internal/store"
	"github.com/rcliao/parrot/internal/tokenizer"
	"github.com/rcliao/parrot/internal/transport"
)

// Sender posts a reply to a channel.
type Sender interface {
	Send(ctx context.Context, channel, text string) error
}

// Options carries the bot's optional collaborators.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Rand is shared by every channel and must be safe for concurrent use
	// when replies can be generated concurrently.
	Rand chain.Rand
	// Logs receives every message seen. Nil disables chat logging.
	Logs *chatlog.Writer
}

type Bot struct {
	cfg      *config.Config
	norm     *tokenizer.Normalizer
	store    *store.Store
	history  *chatlog.Dir
	logs     *chatlog.Writer
	channels map[string]*chain.Channel
	logger   *zap.Logger
}

// New builds one chain per configured channel. Start indexes are empty until
// ReindexAll or ResetAll runs.
func New(cfg *config.Config, st *store.Store, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		cfg:      cfg,
		norm:     tokenizer.NewNormalizer(cfg.Nickname),
		store:    st,
		history:  chatlog.NewDir(cfg.Logs, cfg.Blacklist),
		logs:     opts.Logs,
		channels: make(map[string]*chain.Channel, len(cfg.Channels)),
		logger:   logger.Named("bot"),
	}
	chainOpts := chain.Options{
		Power:     cfg.Power,
		Minimum:   chain.Bounds(cfg.Minimum),
		Maximum:   chain.Bounds(cfg.Maximum),
		Smoothing: cfg.Smoothing,
		Fallback:  cfg.Fallback,
		Logger:    logger,
		Metrics:   opts.Metrics,
		Rand:      opts.Rand,
	}
	for _, id := range cfg.Channels {
		id = strings.ToLower(id)
		b.channels[id] = chain.NewChannel(id, st, b.norm, chainOpts)
	}
	return b
}

// Normalizer returns the nickname normalizer shared by every channel.
func (b *Bot) Normalizer() *tokenizer.Normalizer { return b.norm }

// History returns the chat log directory channels are relearned from.
func (b *Bot) History() *chatlog.Dir { return b.history }

// Channel looks up a configured channel, ignoring case.
func (b *Bot) Channel(id string) (*chain.Channel, bool) {
	ch, ok := b.channels[strings.ToLower(id)]
	return ch, ok
}

// Channels lists the configured channel ids in sorted order.
func (b *Bot) Channels() []string {
	ids := make([]string, 0, len(b.channels))
	for id := range b.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResetAll relearns every channel from the chat logs, channels in parallel.
func (b *Bot) ResetAll(ctx context.Context) error {
	return b.each(ctx, func(ctx context.Context, ch *chain.Channel) error {
		return ch.Reset(ctx, b.history)
	})
}

// ReindexAll rebuilds every start index from the store, channels in parallel.
func (b *Bot) ReindexAll(ctx context.Context) error {
	return b.each(ctx, func(ctx context.Context, ch *chain.Channel) error {
		return ch.Reindex(ctx)
	})
}

func (b *Bot) each(ctx context.Context, fn func(context.Context, *chain.Channel) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range b.channels {
		g.Go(func() error { return fn(gctx, ch) })
	}
	return g.Wait()
}

// ingest logs and learns one event. It returns nil when the event belongs to
// no configured channel, is empty, or comes from the bot or a blacklisted
// sender.
func (b *Bot) ingest(ev transport.Event) (ch *chain.Channel, channel, text string, observations int) {
	if strings.EqualFold(ev.Sender, b.cfg.Nickname) {
		return nil, "", "", 0
	}
	channel = strings.ToLower(ev.Channel)
	ch, ok := b.channels[channel]
	if !ok {
		b.logger.Debug("ignoring unknown channel", zap.String("channel", ev.Channel))
		return nil, "", "", 0
	}
	text = tokenizer.Clean(ev.Text)
	if text == "" {
		return nil, "", "", 0
	}

	if b.logs != nil {
		if err := b.logs.Append(channel, ev.Sender, text, ev.At); err != nil {
			b.logger.Warn("chat log append failed", zap.String("channel", channel), zap.Error(err))
		}
	}
	if b.cfg.Blacklisted(ev.Sender) {
		return nil, "", "", 0
	}
	return ch, channel, text, ch.Learn(text)
}

// Learn logs and learns ev without replying and returns how many
// observations were recorded.
func (b *Bot) Learn(ev transport.Event) int {
	_, _, _, n := b.ingest(ev)
	return n
}

// Handle processes one incoming event. The returned string is the reply that
// was sent, empty when the event did not call for one.
func (b *Bot) Handle(ctx context.Context, out Sender, ev transport.Event) (string, error) {
	ch, channel, text, _ := b.ingest(ev)
	if ch == nil || !b.norm.Mentions(text) {
		return "", nil
	}

	talkCtx, cancel := ctx, context.CancelFunc(func() {})
	if b.cfg.TalkTimeout > 0 {
		talkCtx, cancel = context.WithTimeout(ctx, b.cfg.TalkTimeout)
	}
	line, err := ch.Talk(talkCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		b.logger.Info("reply cut short", zap.String("channel", channel), zap.Error(err))
	}

	reply := b.norm.Address(line, ev.Sender)
	if err := out.Send(ctx, channel, reply); err != nil {
		return "", fmt.Errorf("send reply to %s: %w", channel, err)
	}
	b.logger.Debug("replied",
		zap.String("channel", channel),
		zap.String("event", ev.ID),
		zap.String("to", ev.Sender))
	return reply, nil
}

// Serve handles events from t until its event stream ends or ctx is done.
// Send failures are logged and do not stop the loop.
func (b *Bot) Serve(ctx context.Context, t transport.Transport) error {
	events := t.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := b.Handle(ctx, t, ev); err != nil {
				if errors.Is(err, ctx.Err()) {
					return err
				}
				b.logger.Warn("handle event", zap.String("event", ev.ID), zap.Error(err))
			}
		}
	}
}

// Close waits for queued store writes and closes the chat log.
func (b *Bot) Close() error {
	b.store.Drain()
	if b.logs != nil {
		return b.logs.Close()
	}
	return nil
}
