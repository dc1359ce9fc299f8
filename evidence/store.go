// Package evidence keeps a durable, self-expiring log of rejected requests.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bouncer/facts"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// TTL is how long a record is kept after it is written.
const TTL = 604800 * time.Second

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// ErrUnknownDriver is returned by Open for a driver name it does not support.
var ErrUnknownDriver = errors.New("unknown evidence driver")

// Record is one rejected request.
type Record struct {
	ID        int64     `json:"id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"ua"`
	URI       string    `json:"uri"`
	Method    string    `json:"method"`
	Headers   string    `json:"headers"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires"`
}

// Store is an append-only log of rejected requests. Every insert also deletes
// the records whose expiry has passed, in the same transaction.
type Store interface {
	// Insert writes a record for f and returns it with the number of expired records removed.
	Insert(ctx context.Context, f *facts.Facts) (rec Record, pruned int64, err error)

	// RecordRejection is Insert for callers that only care whether the write succeeded.
	RecordRejection(ctx context.Context, f *facts.Facts) error

	// Prune removes expired records without inserting.
	Prune(ctx context.Context) (int64, error)

	Count(ctx context.Context) (int, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	Close() error
}

// PruneObserver is told how many records each write removed.
type PruneObserver interface {
	ObservePruned(n int64)
}

// Config selects and tunes a store.
type Config struct {
	// Driver is one of sqlite, bolt or memory. Empty selects sqlite.
	Driver string

	// Path is the database file. Unused by the memory driver.
	Path string

	// Timeout bounds waiting for a locked database.
	Timeout time.Duration

	// Clock returns the current time. Nil selects time.Now.
	Clock func() time.Time

	// Observer, if set, receives prune counts.
	Observer PruneObserver
}

// Open creates or opens the configured store, provisioning storage if it does not exist yet.
// An error means the store cannot be written to.
func Open(logger zerolog.Logger, cfg Config) (store Store, err error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	w := newWriter(logger, cfg)

	switch cfg.Driver {
	case "", DriverSQLite:
		store, err = openSQLite(w, cfg)
	case DriverBolt:
		store, err = openBolt(w, cfg)
	case DriverMemory:
		store = newMemoryStore(w)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	if err != nil {
		return
	}

	logger.Info().Str("driver", cfg.Driver).Str("path", cfg.Path).Msg("Opened evidence store")
	return
}

// writer holds what every backend shares: the clock, the single-writer gate and the prune observer.
type writer struct {
	logger   zerolog.Logger
	clock    func() time.Time
	gate     *semaphore.Weighted
	observer PruneObserver
}

func newWriter(logger zerolog.Logger, cfg Config) *writer {
	return &writer{
		logger:   logger,
		clock:    cfg.Clock,
		gate:     semaphore.NewWeighted(1),
		observer: cfg.Observer,
	}
}

// now returns the current time at the precision records are stored with.
func (w *writer) now() time.Time {
	return w.clock().UTC().Truncate(time.Second)
}

// lock waits for the single write slot, or for ctx to end.
func (w *writer) lock(ctx context.Context) (unlock func(), err error) {
	if err = ctx.Err(); err == nil {
		err = w.gate.Acquire(ctx, 1)
	}
	if err != nil {
		err = fmt.Errorf("waiting to write evidence: %w", err)
		return
	}
	unlock = func() { w.gate.Release(1) }
	return
}

func (w *writer) pruned(n int64) {
	if n > 0 {
		w.logger.Debug().Int64("pruned", n).Msg("Removed expired evidence")
	}
	if w.observer != nil {
		w.observer.ObservePruned(n)
	}
}

func newRecord(f *facts.Facts, created time.Time) Record {
	return Record{
		IP:        f.IP,
		UserAgent: f.UserAgent,
		URI:       f.URI(),
		Method:    f.Method,
		Headers:   f.HeaderBlob(),
		Created:   created,
		Expires:   created.Add(TTL),
	}
}

// recordRejection adapts an Insert implementation to RecordRejection.
func recordRejection(ctx context.Context, s Store, f *facts.Facts) error {
	_, _, err := s.Insert(ctx, f)
	return err
}
