package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rcliao/parrot/internal/model"
)

type opKind int

const (
	opGet opKind = iota
	opSet
	opUpdate
)

type result struct {
	entry model.Entry
	err   error
}

type op struct {
	kind  opKind
	ns    string
	key   string
	entry model.Entry
	fn    func(*model.Entry)
	async bool
	done  chan result
}

func (o *op) reply(e model.Entry, err error) {
	if o.done != nil {
		o.done <- result{entry: e, err: err}
	}
}

// mailbox holds the pending operations of one record id. ops is guarded by
// the owning shard's mutex.
type mailbox struct {
	ops []*op
}

// run drains box in submission order. cur caches the record value known to
// this worker: while the worker is alive it is the only writer of the record,
// so reads after the first are served without touching the backend.
func (s *Store) run(id string, sh *shard, box *mailbox) {
	defer s.workerRetired()

	// Queued operations always run to completion.
	ctx := context.Background()
	var cur *model.Entry

	for {
		sh.mu.Lock()
		if len(box.ops) == 0 {
			delete(sh.boxes, id)
			sh.mu.Unlock()
			return
		}
		o := box.ops[0]
		box.ops[0] = nil
		box.ops = box.ops[1:]
		sh.mu.Unlock()

		s.apply(ctx, id, o, &cur)
	}
}

func (s *Store) apply(ctx context.Context, id string, o *op, cur **model.Entry) {
	switch o.kind {
	case opGet:
		if *cur == nil {
			e := s.load(ctx, id, o.ns, o.key)
			*cur = &e
		}
		o.reply((*cur).Clone(), nil)

	case opSet:
		e := o.entry
		if e.Words == "" {
			e.Words = o.key
		}
		err := s.save(ctx, id, o.ns, e)
		*cur = &e
		o.reply(e.Clone(), err)

	case opUpdate:
		if *cur == nil {
			e := s.load(ctx, id, o.ns, o.key)
			*cur = &e
		}
		o.fn(*cur)
		err := s.save(ctx, id, o.ns, **cur)
		o.reply((*cur).Clone(), err)
	}
}

// load reads a record, falling back to (and persisting) the empty record when
// it is missing or unreadable.
func (s *Store) load(ctx context.Context, id, ns, key string) model.Entry {
	data, err := s.backend.Load(ctx, ns, id)
	if err == nil {
		e, derr := decode(data)
		if derr == nil {
			return e
		}
		s.metrics.CorruptRecord()
		s.logger.Warn("replacing unreadable record",
			zap.String("ns", ns), zap.String("id", id), zap.Error(derr))
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("load failed, using empty record",
			zap.String("ns", ns), zap.String("id", id), zap.Error(err))
	}

	e := model.NewEntry(key)
	if err := s.save(ctx, id, ns, e); err != nil {
		s.logger.Error("persist empty record", zap.String("ns", ns), zap.String("id", id), zap.Error(err))
	}
	return e
}

func (s *Store) save(ctx context.Context, id, ns string, e model.Entry) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, ns, id, data); err != nil {
		s.logger.Error("save failed", zap.String("ns", ns), zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}
