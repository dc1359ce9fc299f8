package evidence

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bouncer/facts"

	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("firewall")

	// Keys are the expiry in unix nanoseconds followed by the record id, both big-endian,
	// so a cursor walks records in expiry order.
	expiresBucket = []byte("firewall-expires")

	errBucketsMissing = errors.New("evidence: bolt buckets missing")
)

type boltStore struct {
	*writer
	db *bolt.DB
}

func openBolt(w *writer, cfg Config) (s *boltStore, err error) {
	if cfg.Path == "" {
		err = errors.New("evidence: bolt path required")
		return
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		err = fmt.Errorf("evidence: creating directory for %v: %w", cfg.Path, err)
		return
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		err = fmt.Errorf("evidence: opening %v: %w", cfg.Path, err)
		return
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(expiresBucket)
		return err
	})
	if err != nil {
		db.Close()
		err = fmt.Errorf("evidence: provisioning %v: %w", cfg.Path, err)
		return
	}

	s = &boltStore{writer: w, db: db}
	return
}

func (s *boltStore) Insert(ctx context.Context, f *facts.Facts) (rec Record, pruned int64, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	now := s.now()
	rec = newRecord(f, now)

	err = s.db.Update(func(tx *bolt.Tx) error {
		records, expires, err := boltBuckets(tx)
		if err != nil {
			return err
		}

		seq, err := records.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = int64(seq)

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("evidence: marshal record: %w", err)
		}
		if err := records.Put(idKey(seq), data); err != nil {
			return err
		}
		if err := expires.Put(expiryKey(rec.Expires, seq), nil); err != nil {
			return err
		}

		pruned, err = pruneBolt(records, expires, now)
		return err
	})
	if err != nil {
		return
	}

	s.pruned(pruned)
	return
}

func (s *boltStore) RecordRejection(ctx context.Context, f *facts.Facts) error {
	return recordRejection(ctx, s, f)
}

func (s *boltStore) Prune(ctx context.Context) (pruned int64, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	now := s.now()
	err = s.db.Update(func(tx *bolt.Tx) error {
		records, expires, err := boltBuckets(tx)
		if err != nil {
			return err
		}
		pruned, err = pruneBolt(records, expires, now)
		return err
	})
	if err != nil {
		return
	}

	s.pruned(pruned)
	return
}

// pruneBolt deletes every record that expired before now.
func pruneBolt(records *bolt.Bucket, expires *bolt.Bucket, now time.Time) (pruned int64, err error) {
	limit := expiryKey(now, 0)

	// Collect first; deleting under a live cursor skips keys.
	var stale [][]byte
	c := expires.Cursor()
	for k, _ := c.First(); k != nil && bytes.Compare(k, limit) < 0; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}

	for _, k := range stale {
		if err = records.Delete(k[8:]); err != nil {
			return
		}
		if err = expires.Delete(k); err != nil {
			return
		}
		pruned++
	}
	return
}

func (s *boltStore) Count(ctx context.Context) (n int, err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		records, _, err := boltBuckets(tx)
		if err != nil {
			return err
		}
		n = records.Stats().KeyN
		return nil
	})
	return
}

func (s *boltStore) Recent(ctx context.Context, limit int) (result []Record, err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		records, _, err := boltBuckets(tx)
		if err != nil {
			return err
		}

		c := records.Cursor()
		for k, v := c.Last(); k != nil && len(result) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("evidence: unmarshal record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			result = append(result, rec)
		}
		return nil
	})
	return
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func boltBuckets(tx *bolt.Tx) (records *bolt.Bucket, expires *bolt.Bucket, err error) {
	records = tx.Bucket(recordsBucket)
	expires = tx.Bucket(expiresBucket)
	if records == nil || expires == nil {
		err = errBucketsMissing
	}
	return
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func expiryKey(t time.Time, id uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], id)
	return key
}
