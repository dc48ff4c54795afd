// Package store provides the keyed transition-record store and its durable backends.
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/parrot/internal/metrics"
	"github.com/rcliao/parrot/internal/model"
)

// ErrNotFound is returned by a Backend when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Backend persists opaque record bodies addressed by (namespace, id).
type Backend interface {
	// Load returns the record body or ErrNotFound.
	Load(ctx context.Context, ns, id string) ([]byte, error)

	// Save stores data, replacing any previous body.
	Save(ctx context.Context, ns, id string, data []byte) error

	// Scan calls fn for every record of a namespace.
	Scan(ctx context.Context, ns string, fn func(id string, data []byte) error) error

	// Wipe removes every record of a namespace.
	Wipe(ctx context.Context, ns string) error

	// Stats reports record counts and sizes.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the backend.
	Close() error
}

// Digest maps (ns, key) to the record id. The same id addresses the durable
// record and the per-key operation queue.
func Digest(ns, key string) string {
	sum := md5.Sum([]byte(ns + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// Options configures a Store.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

const shardCount = 16

type shard struct {
	mu    sync.Mutex
	boxes map[string]*mailbox
}

// Store serializes operations per record while letting distinct records
// proceed in parallel. Each record id gets one worker goroutine, spawned when
// the first operation arrives and retired once its mailbox is empty.
type Store struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Metrics
	shards  [shardCount]shard

	activeMu sync.Mutex
	idle     *sync.Cond
	active   int
}

// New wraps a backend.
func New(backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		logger:  logger.Named("store"),
		metrics: opts.Metrics,
	}
	s.idle = sync.NewCond(&s.activeMu)
	for i := range s.shards {
		s.shards[i].boxes = make(map[string]*mailbox)
	}
	return s
}

// Get returns the record for key, creating and persisting the empty record
// when it is missing or unreadable.
func (s *Store) Get(ctx context.Context, ns, key string) (model.Entry, error) {
	s.metrics.StoreOp("get")
	return s.await(ctx, s.submit(ns, key, &op{kind: opGet}))
}

// Set persists e for key and waits for the write.
func (s *Store) Set(ctx context.Context, ns, key string, e model.Entry) error {
	s.metrics.StoreOp("set")
	_, err := s.await(ctx, s.submit(ns, key, &op{kind: opSet, entry: e.Clone()}))
	return err
}

// SetAsync queues a write of e for key without waiting for it.
func (s *Store) SetAsync(ns, key string, e model.Entry) {
	s.metrics.StoreOp("set")
	s.submit(ns, key, &op{kind: opSet, entry: e.Clone(), async: true})
}

// Update applies fn to the current record for key and persists the result,
// all inside the key's queue.
func (s *Store) Update(ctx context.Context, ns, key string, fn func(*model.Entry)) (model.Entry, error) {
	s.metrics.StoreOp("update")
	return s.await(ctx, s.submit(ns, key, &op{kind: opUpdate, fn: fn}))
}

// UpdateAsync queues an Update without waiting for it.
func (s *Store) UpdateAsync(ns, key string, fn func(*model.Entry)) {
	s.metrics.StoreOp("update")
	s.submit(ns, key, &op{kind: opUpdate, fn: fn, async: true})
}

// Drain blocks until every queued operation has completed.
func (s *Store) Drain() {
	s.activeMu.Lock()
	for s.active > 0 {
		s.idle.Wait()
	}
	s.activeMu.Unlock()
}

// Scan decodes every readable record of ns. Queued operations are drained
// first; unreadable records are skipped.
func (s *Store) Scan(ctx context.Context, ns string, fn func(model.Entry) error) error {
	s.Drain()
	return s.backend.Scan(ctx, ns, func(id string, data []byte) error {
		e, err := decode(data)
		if err != nil {
			s.metrics.CorruptRecord()
			s.logger.Warn("skipping unreadable record",
				zap.String("ns", ns), zap.String("id", id), zap.Error(err))
			return nil
		}
		return fn(e)
	})
}

// Wipe drains pending operations and removes every record of ns.
func (s *Store) Wipe(ctx context.Context, ns string) error {
	s.Drain()
	if err := s.backend.Wipe(ctx, ns); err != nil {
		return fmt.Errorf("wipe %s: %w", ns, err)
	}
	return nil
}

// Stats reports backend statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.Drain()
	return s.backend.Stats(ctx)
}

// Close drains pending operations and closes the backend.
func (s *Store) Close() error {
	s.Drain()
	return s.backend.Close()
}

func (s *Store) await(ctx context.Context, o *op) (model.Entry, error) {
	select {
	case r := <-o.done:
		return r.entry, r.err
	case <-ctx.Done():
		return model.Entry{}, ctx.Err()
	}
}

func (s *Store) submit(ns, key string, o *op) *op {
	o.ns, o.key = ns, key
	if !o.async {
		o.done = make(chan result, 1)
	}
	id := Digest(ns, key)
	sh := &s.shards[shardIndex(id)]

	sh.mu.Lock()
	box, running := sh.boxes[id]
	if !running {
		box = &mailbox{}
		sh.boxes[id] = box
		// Counted before the lock is released so Drain never misses it.
		s.workerStarted()
	}
	box.ops = append(box.ops, o)
	sh.mu.Unlock()

	if !running {
		go s.run(id, sh, box)
	}
	return o
}

func (s *Store) workerStarted() {
	s.activeMu.Lock()
	s.active++
	s.activeMu.Unlock()
	s.metrics.WorkerStarted()
}

func (s *Store) workerRetired() {
	s.metrics.WorkerRetired()
	s.activeMu.Lock()
	s.active--
	if s.active == 0 {
		s.idle.Broadcast()
	}
	s.activeMu.Unlock()
}

func shardIndex(id string) int {
	c := id[0]
	if c >= 'a' {
		return int(c-'a') + 10
	}
	return int(c - '0')
}

func encode(e model.Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decode(data []byte) (model.Entry, error) {
	var e model.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if e.Nexts == nil {
		e.Nexts = []model.Next{}
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
