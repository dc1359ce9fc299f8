package evidence

import (
	"context"
	"sync"
	"time"

	"bouncer/facts"

	"github.com/google/btree"
)

// memoryStore keeps records in two b-trees: by id for listing and by expiry for pruning.
// Nothing survives Close; it exists for tests and for deployments that only want the log while running.
type memoryStore struct {
	*writer

	mu       sync.RWMutex
	byID     *btree.BTree
	byExpiry *btree.BTree
	nextID   int64
}

type recordItem struct {
	rec Record
}

func (item recordItem) Less(other btree.Item) bool {
	return item.rec.ID < other.(recordItem).rec.ID
}

type expiryItem struct {
	expires time.Time
	id      int64
}

func (item expiryItem) Less(other btree.Item) bool {
	o := other.(expiryItem)
	if !item.expires.Equal(o.expires) {
		return item.expires.Before(o.expires)
	}
	return item.id < o.id
}

func newMemoryStore(w *writer) *memoryStore {
	return &memoryStore{
		writer:   w,
		byID:     btree.New(2),
		byExpiry: btree.New(2),
	}
}

func (s *memoryStore) Insert(ctx context.Context, f *facts.Facts) (rec Record, pruned int64, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	now := s.now()
	rec = newRecord(f, now)

	s.mu.Lock()
	s.nextID++
	rec.ID = s.nextID
	s.byID.ReplaceOrInsert(recordItem{rec: rec})
	s.byExpiry.ReplaceOrInsert(expiryItem{expires: rec.Expires, id: rec.ID})
	pruned = s.pruneLocked(now)
	s.mu.Unlock()

	s.pruned(pruned)
	return
}

func (s *memoryStore) RecordRejection(ctx context.Context, f *facts.Facts) error {
	return recordRejection(ctx, s, f)
}

func (s *memoryStore) Prune(ctx context.Context) (pruned int64, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	s.mu.Lock()
	pruned = s.pruneLocked(s.now())
	s.mu.Unlock()

	s.pruned(pruned)
	return
}

func (s *memoryStore) pruneLocked(now time.Time) (pruned int64) {
	var stale []expiryItem
	s.byExpiry.AscendLessThan(expiryItem{expires: now}, func(i btree.Item) bool {
		stale = append(stale, i.(expiryItem))
		return true
	})

	for _, item := range stale {
		s.byExpiry.Delete(item)
		s.byID.Delete(recordItem{rec: Record{ID: item.id}})
		pruned++
	}
	return
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID.Len(), nil
}

func (s *memoryStore) Recent(ctx context.Context, limit int) (records []Record, err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	s.byID.Descend(func(i btree.Item) bool {
		if len(records) >= limit {
			return false
		}
		records = append(records, i.(recordItem).rec)
		return true
	})
	return
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID.Clear(false)
	s.byExpiry.Clear(false)
	return nil
}
