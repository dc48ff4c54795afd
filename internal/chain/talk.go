package chain

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/parrot/internal/model"
)

// softAttempts is how many attempts must reach Minimum.Soft before the bar
// drops to Minimum.Hard.
const softAttempts = 5

type mode int

const (
	modeNone mode = iota
	modeIgnoreEnd
	modeForceEnd
)

func (c *Channel) mode(length int) mode {
	switch {
	case length < c.opts.Minimum.Hard:
		return modeIgnoreEnd
	case length >= c.opts.Maximum.Soft:
		return modeForceEnd
	default:
		return modeNone
	}
}

// Talk generates a line from the channel's chain. The nickname placeholder is
// left in place; callers address it with tokenizer.Normalizer.Address.
//
// Attempts repeat until one is long enough. If ctx ends first, the longest
// attempt so far (or the fallback) is returned together with ctx's error.
func (c *Channel) Talk(ctx context.Context) (string, error) {
	if c.index.Total() == 0 {
		c.metrics.Reply(c.id, "fallback", 0)
		return c.opts.Fallback, nil
	}

	var best []string
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.giveUp(best, attempt-1, err)
		}

		words, err := c.attempt(ctx)
		if len(words) > len(best) {
			best = words
		}
		if err != nil {
			return c.giveUp(best, attempt, err)
		}

		need := c.opts.Minimum.Soft
		if attempt > softAttempts {
			need = c.opts.Minimum.Hard
		}
		if len(words) >= need {
			c.metrics.Reply(c.id, "generated", attempt)
			c.logger.Debug("generated line", zap.Int("attempts", attempt), zap.Int("words", len(words)))
			return strings.Join(words, " "), nil
		}
	}
}

func (c *Channel) giveUp(best []string, attempts int, err error) (string, error) {
	c.logger.Warn("generation interrupted", zap.Int("attempts", attempts), zap.Error(err))
	if len(best) == 0 {
		c.metrics.Reply(c.id, "fallback", attempts)
		return c.opts.Fallback, err
	}
	c.metrics.Reply(c.id, "generated", attempts)
	return strings.Join(best, " "), err
}

// attempt performs one weighted walk from a sampled start context.
func (c *Channel) attempt(ctx context.Context) ([]string, error) {
	total := c.index.Total()
	if total == 0 {
		return nil, nil
	}
	start, ok := c.index.Pick(c.rand.IntN(total) + 1)
	if !ok {
		return nil, nil
	}

	history := model.ParseContext(start)
	words := history.Words()
	if len(words) > c.opts.Maximum.Hard {
		words = words[:c.opts.Maximum.Hard]
	}

	for len(words) < c.opts.Maximum.Hard {
		m := c.mode(len(words))
		if m == modeForceEnd {
			break
		}

		entry, err := c.store.Get(ctx, c.id, history.Key())
		if err != nil {
			return words, err
		}
		if entry.Total == 0 {
			break
		}

		next, ok := c.sample(entry, m)
		if !ok || next.Kind == model.End {
			break
		}
		words = append(words, next.Text)
		history = history.Slide(next)
	}
	return words, nil
}

// sample draws a continuation weighted by observed counts plus Smoothing
// units of unknown-continuation mass. ok is false when that extra mass wins.
func (c *Channel) sample(e model.Entry, m mode) (model.Token, bool) {
	weight := c.opts.Smoothing
	for _, n := range e.Nexts {
		if m == modeIgnoreEnd && n.Token.Kind == model.End {
			continue
		}
		weight += n.Count
	}
	if weight <= 0 {
		return model.Token{}, false
	}

	r := c.rand.IntN(weight)
	for _, n := range e.Nexts {
		if m == modeIgnoreEnd && n.Token.Kind == model.End {
			continue
		}
		r -= n.Count
		if r < 0 {
			return n.Token, true
		}
	}
	return model.Token{}, false
}
