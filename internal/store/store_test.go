package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/parrot/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memBackend counts backend traffic and can hold saves of chosen ids.
type memBackend struct {
	mu      sync.Mutex
	records map[string][]byte
	loads   int
	saves   int
	blocked map[string]chan struct{}
}

func newMemBackend() *memBackend {
	return &memBackend{records: map[string][]byte{}, blocked: map[string]chan struct{}{}}
}

func (b *memBackend) block(id string) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.blocked[id] = gate
	b.mu.Unlock()
	return func() { close(gate) }
}

func (b *memBackend) counts() (loads, saves int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads, b.saves
}

func (b *memBackend) Load(ctx context.Context, ns, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	data, ok := b.records[ns+"/"+id]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (b *memBackend) Save(ctx context.Context, ns, id string, data []byte) error {
	b.mu.Lock()
	gate := b.blocked[id]
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	b.records[ns+"/"+id] = append([]byte(nil), data...)
	return nil
}

func (b *memBackend) Scan(ctx context.Context, ns string, fn func(id string, data []byte) error) error {
	return nil
}

func (b *memBackend) Wipe(ctx context.Context, ns string) error { return nil }

func (b *memBackend) Stats(ctx context.Context) (*Stats, error) { return &Stats{}, nil }

func (b *memBackend) Close() error { return nil }

func pending(s *Store, id string) int {
	sh := &s.shards[shardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if box, ok := sh.boxes[id]; ok {
		return len(box.ops)
	}
	return 0
}

func sampleEntry(key string) model.Entry {
	e := model.NewEntry(key)
	e.Observe(model.W("world"))
	e.Observe(model.W("world"))
	e.Observe(model.EndToken)
	return e
}

func TestSetThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(newTestFiles(t), Options{})
	defer s.Close()

	e := sampleEntry("hello")
	require.NoError(t, s.Set(ctx, "room", "hello", e))

	got, err := s.Get(ctx, "room", "hello")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestGetMissingPersistsEmptyRecord(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := New(b, Options{})

	got, err := s.Get(ctx, "room", "nobody said this")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Total)
	assert.Empty(t, got.Nexts)
	assert.Equal(t, "nobody said this", got.Words)

	s.Drain()
	_, saves := b.counts()
	assert.Equal(t, 1, saves, "empty record must be written on a miss")
}

func TestGetReplacesCorruptRecord(t *testing.T) {
	ctx := context.Background()
	files := newTestFiles(t)
	s := New(files, Options{})

	require.NoError(t, s.Set(ctx, "room", "k", sampleEntry("k")))
	s.Drain()

	path := filepath.Join(files.dir, "room", Digest("room", "k"))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got, err := s.Get(ctx, "room", "k")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Total)
	assert.Empty(t, got.Nexts)

	s.Drain()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	rewritten, err := decode(raw)
	require.NoError(t, err, "corrupt record should be overwritten with the default")
	assert.Equal(t, 0, rewritten.Total)
}

func TestGetRejectsInconsistentRecord(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.records["room/"+Digest("room", "k")] = []byte(`{"words":"k","total":5,"nexts":[{"token":"x","count":1}]}`)
	s := New(b, Options{})

	got, err := s.Get(ctx, "room", "k")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Total)
	s.Drain()
}

func TestGetBehindPendingSetSeesItsValue(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := New(b, Options{})
	id := Digest("room", "k")

	release := b.block(id)
	want := sampleEntry("k")
	s.SetAsync("room", "k", want)

	got := make(chan model.Entry, 1)
	go func() {
		e, _ := s.Get(ctx, "room", "k")
		got <- e
	}()

	require.Eventually(t, func() bool { return pending(s, id) == 1 }, time.Second, time.Millisecond,
		"get should queue behind the blocked set")
	release()

	assert.Equal(t, want, <-got)
	s.Drain()
	loads, _ := b.counts()
	assert.Equal(t, 0, loads, "a get trailing a set must not read the backend")
}

func TestConcurrentUpdatesKeepEveryIncrement(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := New(b, Options{})

	const writers = 40
	var wg sync.WaitGroup
	want := 0
	for i := 1; i <= writers; i++ {
		want += i
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Update(ctx, "room", "hot", func(e *model.Entry) {
				for j := 0; j < n; j++ {
					e.Observe(model.W(fmt.Sprint(n)))
				}
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	s.Drain()

	// A fresh store must read the final value from the backend.
	got, err := New(b, Options{}).Get(ctx, "room", "hot")
	require.NoError(t, err)
	assert.Equal(t, want, got.Total)
	assert.Len(t, got.Nexts, writers)
	assert.NoError(t, got.Validate())
}

func TestDistinctKeysDoNotWaitOnEachOther(t *testing.T) {
	b := newMemBackend()
	s := New(b, Options{})

	release := b.block(Digest("room", "slow"))
	s.SetAsync("room", "slow", sampleEntry("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Set(ctx, "room", "fast", sampleEntry("fast")))

	release()
	s.Drain()
}

func TestCancelledWaitStillCompletesOperation(t *testing.T) {
	b := newMemBackend()
	s := New(b, Options{})
	id := Digest("room", "k")

	release := b.block(id)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Set(ctx, "room", "k", sampleEntry("k"))
	assert.ErrorIs(t, err, context.Canceled)

	release()
	s.Drain()
	_, saves := b.counts()
	assert.Equal(t, 1, saves)
}

func TestWorkersRetireWhenDrained(t *testing.T) {
	ctx := context.Background()
	s := New(newMemBackend(), Options{})

	for i := 0; i < 20; i++ {
		s.UpdateAsync("room", fmt.Sprint("k", i%5), func(e *model.Entry) { e.Observe(model.EndToken) })
	}
	_, err := s.Get(ctx, "room", "k0")
	require.NoError(t, err)
	s.Drain()

	for i := range s.shards {
		s.shards[i].mu.Lock()
		assert.Empty(t, s.shards[i].boxes)
		s.shards[i].mu.Unlock()
	}
}

func TestScanSkipsUnreadableRecords(t *testing.T) {
	ctx := context.Background()
	files := newTestFiles(t)
	s := New(files, Options{})

	require.NoError(t, s.Set(ctx, "room", "a", sampleEntry("a")))
	require.NoError(t, s.Set(ctx, "room", "b", sampleEntry("b")))
	require.NoError(t, os.WriteFile(filepath.Join(files.dir, "room", "garbage"), []byte("??"), 0o644))

	var words []string
	require.NoError(t, s.Scan(ctx, "room", func(e model.Entry) error {
		words = append(words, e.Words)
		return nil
	}))
	assert.ElementsMatch(t, []string{"a", "b"}, words)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := New(newTestFiles(t), Options{})
	require.NoError(t, src.Set(ctx, "room", "a", sampleEntry("a")))
	require.NoError(t, src.Set(ctx, "room", "b", sampleEntry("b")))

	entries, err := src.Export(ctx, "room")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	dst := New(newTestSQLite(t), Options{})
	n, err := dst.Import(ctx, "copy", append(entries, model.Entry{Words: "bad", Total: 3}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.Get(ctx, "copy", "a")
	require.NoError(t, err)
	assert.Equal(t, sampleEntry("a"), got)
	dst.Drain()
}
