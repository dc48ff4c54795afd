package chain

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/parrot/internal/model"
	"github.com/rcliao/parrot/internal/store"
	"github.com/rcliao/parrot/internal/tokenizer"
)

const room = "room@conference.example.org"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	b, err := store.NewFileBackend(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	s := store.New(b, store.Options{})
	t.Cleanup(func() { s.Close() })
	return s
}

func testOptions(power int) Options {
	return Options{
		Power:     power,
		Minimum:   Bounds{Soft: 1, Hard: 1},
		Maximum:   Bounds{Soft: 20, Hard: 30},
		Smoothing: 0,
		Fallback:  "...",
		Rand:      rand.New(rand.NewPCG(7, 11)),
	}
}

func newTestChannel(t *testing.T, opts Options) *Channel {
	t.Helper()
	return NewChannel(room, newTestStore(t), tokenizer.NewNormalizer("parrot"), opts)
}

func entry(t *testing.T, c *Channel, tokens ...model.Token) model.Entry {
	t.Helper()
	e, err := c.Entry(context.Background(), model.Context(tokens))
	require.NoError(t, err)
	return e
}

func totalObservations(t *testing.T, c *Channel) int {
	t.Helper()
	entries, err := c.store.Export(context.Background(), c.id)
	require.NoError(t, err)
	sum := 0
	for _, e := range entries {
		require.NoError(t, e.Validate(), "record %q", e.Words)
		sum += e.Total
	}
	return sum
}

type sliceSource map[string][]string

func (s sliceSource) Replay(ctx context.Context, channel string, fn func(string) error) error {
	for _, line := range s[channel] {
		if err := fn(line); err != nil {
			return err
		}
	}
	return nil
}

func TestLearnPowerOne(t *testing.T) {
	c := newTestChannel(t, testOptions(1))

	assert.Equal(t, 4, c.Learn("hello world foo"))
	c.store.Drain()

	start := model.Context{model.StartToken}
	assert.Equal(t, 1, entry(t, c, model.StartToken).Count(model.W("hello")))
	assert.Equal(t, 1, entry(t, c, model.W("hello")).Count(model.W("world")))
	assert.Equal(t, 1, entry(t, c, model.W("world")).Count(model.W("foo")))
	assert.Equal(t, 1, entry(t, c, model.W("foo")).Count(model.EndToken))

	assert.Equal(t, 1, c.index.Count(start.Key()))
	assert.Equal(t, 1, c.index.Total())
}

func TestLearnRecordsOneObservationPerTokenAfterSeed(t *testing.T) {
	for _, power := range []int{1, 2, 3} {
		c := newTestChannel(t, testOptions(power))
		before := 0
		for _, msg := range []string{
			"the cat sat on the mat",
			"the cat ran",
			"on the mat the cat sat on the mat",
		} {
			n := len(strings.Fields(msg))
			got := c.Learn(msg)
			c.store.Drain()

			after := totalObservations(t, c)
			assert.Equal(t, n-power+2, got, "power %d: %q", power, msg)
			assert.Equal(t, n-power+2, after-before, "power %d: %q", power, msg)
			before = after
		}
	}
}

func TestLearnIgnoresShortMessages(t *testing.T) {
	c := newTestChannel(t, testOptions(3))
	assert.Equal(t, 0, c.Learn("too short"))
	assert.Equal(t, 0, c.Learn("   "))
	assert.Equal(t, 0, c.index.Total())
}

func TestLearnSeedsHistoryWithStart(t *testing.T) {
	c := newTestChannel(t, testOptions(2))
	c.Learn("a b c")
	c.store.Drain()

	seed := model.Context{model.StartToken, model.W("a")}
	assert.Equal(t, 1, entry(t, c, seed...).Count(model.W("b")))
	assert.Equal(t, 1, entry(t, c, model.W("a"), model.W("b")).Count(model.W("c")))
	assert.Equal(t, 1, entry(t, c, model.W("b"), model.W("c")).Count(model.EndToken))
	assert.Equal(t, 1, c.index.Count(seed.Key()))
}

func TestLearnNormalizesNickname(t *testing.T) {
	c := newTestChannel(t, testOptions(1))
	c.Learn("hi PARROT")
	c.store.Drain()

	assert.Equal(t, 1, entry(t, c, model.W("hi")).Count(model.W(model.Placeholder)))
}

func TestReindexRebuildsStartIndex(t *testing.T) {
	opts := testOptions(2)
	c := newTestChannel(t, opts)
	c.Learn("good morning everyone")
	c.Learn("good morning parrot")
	c.Learn("bad night")
	c.store.Drain()

	fresh := NewChannel(room, c.store, c.norm, opts)
	require.NoError(t, fresh.Reindex(context.Background()))

	assert.Equal(t, c.index.Total(), fresh.index.Total())
	assert.Equal(t, 3, fresh.index.Total())
	good := model.Context{model.StartToken, model.W("good")}.Key()
	assert.Equal(t, 2, fresh.index.Count(good))

	// Reindexing twice must not double count.
	require.NoError(t, fresh.Reindex(context.Background()))
	assert.Equal(t, 3, fresh.index.Total())
}

func TestResetRelearnsFromSource(t *testing.T) {
	c := newTestChannel(t, testOptions(1))
	c.Learn("stale words here")
	c.store.Drain()

	src := sliceSource{room: {"fresh line", "another fresh line"}}
	require.NoError(t, c.Reset(context.Background(), src))

	assert.Equal(t, 2, c.index.Total())
	assert.Equal(t, 0, entry(t, c, model.W("stale")).Total, "wiped records must be gone")
	assert.Equal(t, 2, entry(t, c, model.W("fresh")).Count(model.W("line")))
}

func TestTalkEmptyCorpusReturnsFallback(t *testing.T) {
	c := newTestChannel(t, testOptions(1))
	out, err := c.Talk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "...", out)
}

func TestTalkFollowsOnlyPath(t *testing.T) {
	opts := testOptions(1)
	opts.Minimum = Bounds{Soft: 4, Hard: 1}
	c := newTestChannel(t, opts)
	c.Learn("the quick brown fox")

	out, err := c.Talk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", out)
}

func TestTalkStartsFromLearnedContextWords(t *testing.T) {
	opts := testOptions(3)
	opts.Minimum = Bounds{Soft: 5, Hard: 1}
	c := newTestChannel(t, opts)
	c.Learn("one two three four five")

	out, err := c.Talk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one two three four five", out)
}

func TestTalkNeverExceedsMaximum(t *testing.T) {
	opts := testOptions(1)
	opts.Maximum = Bounds{Soft: 4, Hard: 6}
	opts.Smoothing = 1
	c := newTestChannel(t, opts)
	c.Learn("a b c d e f g h i j k l m n o p")
	c.Learn("a a a a a a a a a a a a")

	for i := 0; i < 50; i++ {
		out, err := c.Talk(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, len(strings.Fields(out)), opts.Maximum.Hard)
		assert.LessOrEqual(t, len(strings.Fields(out)), opts.Maximum.Soft)
	}
}

func TestTalkTruncatesStartWindowToMaximum(t *testing.T) {
	opts := testOptions(3)
	opts.Minimum = Bounds{}
	opts.Maximum = Bounds{Soft: 1, Hard: 1}
	c := newTestChannel(t, opts)
	c.Learn("alpha beta gamma delta")

	out, err := c.Talk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpha", out)
}

// highRand always draws the largest value, landing in the smoothing mass
// whenever there is any.
type highRand struct{}

func (highRand) IntN(n int) int { return n - 1 }

func TestSampleUnknownContinuationStops(t *testing.T) {
	e := model.NewEntry("hello")
	e.Observe(model.W("world"))

	opts := testOptions(1)
	opts.Rand = highRand{}
	opts.Smoothing = 1
	c := newTestChannel(t, opts)
	_, ok := c.sample(e, modeNone)
	assert.False(t, ok)

	opts.Smoothing = 0
	c = newTestChannel(t, opts)
	next, ok := c.sample(e, modeNone)
	require.True(t, ok)
	assert.Equal(t, model.W("world"), next)
}

func TestTalkStopsOnUnknownContinuation(t *testing.T) {
	opts := testOptions(2)
	opts.Rand = highRand{}
	opts.Smoothing = 1
	c := newTestChannel(t, opts)
	c.Learn("hello world")

	out, err := c.Talk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	opts.Smoothing = 0
	c = newTestChannel(t, opts)
	c.Learn("hello world")
	out, err = c.Talk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestTalkIgnoresEndBelowMinimumHard(t *testing.T) {
	opts := testOptions(1)
	opts.Minimum = Bounds{Soft: 2, Hard: 2}
	c := newTestChannel(t, opts)
	for i := 0; i < 50; i++ {
		c.Learn("a")
	}
	c.Learn("a b")

	for i := 0; i < 10; i++ {
		out, err := c.Talk(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a b", out)
	}
}

func TestTalkRelaxesToMinimumHard(t *testing.T) {
	opts := testOptions(1)
	opts.Minimum = Bounds{Soft: 5, Hard: 2}
	c := newTestChannel(t, opts)
	c.Learn("hi there")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Talk(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestTalkReturnsLongestAttemptWhenCancelled(t *testing.T) {
	opts := testOptions(1)
	opts.Minimum = Bounds{Soft: 10, Hard: 10}
	c := newTestChannel(t, opts)
	c.Learn("only three words")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, err := c.Talk(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "only three words", out)
}

func TestStartIndexPick(t *testing.T) {
	x := NewStartIndex()
	x.Add("a", 2)
	x.Add("b", 1)
	x.Add("a", 1)

	assert.Equal(t, 4, x.Total())
	for r, want := range map[int]string{1: "a", 3: "a", 4: "b"} {
		got, ok := x.Pick(r)
		require.True(t, ok)
		assert.Equal(t, want, got, "r=%d", r)
	}
	_, ok := x.Pick(5)
	assert.False(t, ok)

	x.Set("b", 5)
	assert.Equal(t, 8, x.Total())
	assert.Equal(t, []StartWeight{{Words: "a", Count: 3}, {Words: "b", Count: 5}}, x.Weights())
}
