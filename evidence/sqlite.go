package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"bouncer/facts"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// sqliteTimeFormat matches SQLite's own DATETIME text so the columns stay usable from the sqlite3 shell.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// Storage settings that only take effect on an empty database file.
var sqliteFirstRunPragmas = []string{
	`PRAGMA encoding = "UTF-8";`,
	`PRAGMA page_size = 16384;`,
	`PRAGMA auto_vacuum = 2;`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS firewall (
	id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	ip TEXT NOT NULL,
	ua TEXT NOT NULL,
	uri TEXT NOT NULL,
	method TEXT NOT NULL,
	headers TEXT NOT NULL,
	expires DATETIME DEFAULT NULL,
	created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE INDEX IF NOT EXISTS idx_firewall_on_ip ON firewall ( ip ASC );`,
	`CREATE INDEX IF NOT EXISTS idx_firewall_on_ua ON firewall ( ua ASC );`,
	`CREATE INDEX IF NOT EXISTS idx_firewall_on_uri ON firewall ( uri ASC );`,
	`CREATE INDEX IF NOT EXISTS idx_firewall_on_method ON firewall ( method ASC );`,
	`CREATE INDEX IF NOT EXISTS idx_firewall_on_expires ON firewall ( expires DESC );`,
	`CREATE INDEX IF NOT EXISTS idx_firewall_on_created ON firewall ( created ASC );`,
}

const (
	sqliteInsert = `INSERT INTO firewall ( ip, ua, uri, method, headers, expires, created )
	VALUES ( ?, ?, ?, ?, ?, ?, ? );`
	sqlitePrune  = `DELETE FROM firewall WHERE expires < ?;`
	sqliteCount  = `SELECT COUNT(*) FROM firewall;`
	sqliteRecent = `SELECT id, ip, ua, uri, method, headers, expires, created
	FROM firewall ORDER BY id DESC LIMIT ?;`
)

type sqliteStore struct {
	*writer
	db *sql.DB
}

func openSQLite(w *writer, cfg Config) (s *sqliteStore, err error) {
	if cfg.Path == "" {
		err = errors.New("evidence: sqlite path required")
		return
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		err = fmt.Errorf("evidence: creating directory for %v: %w", cfg.Path, err)
		return
	}

	_, statErr := os.Stat(cfg.Path)
	firstRun := errors.Is(statErr, os.ErrNotExist)

	db, err := sql.Open("sqlite", sqliteDSN(cfg))
	if err != nil {
		err = fmt.Errorf("evidence: opening %v: %w", cfg.Path, err)
		return
	}

	// One connection is the single writer, and keeps per-connection pragmas in force.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err = provisionSQLite(ctx, db, firstRun); err != nil {
		db.Close()
		err = fmt.Errorf("evidence: provisioning %v: %w", cfg.Path, err)
		return
	}

	s = &sqliteStore{writer: w, db: db}
	return
}

func sqliteDSN(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.Timeout.Milliseconds()))
	q.Add("_pragma", "temp_store(2)")
	q.Add("_pragma", "secure_delete(1)")
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}

func provisionSQLite(ctx context.Context, db *sql.DB, firstRun bool) (err error) {
	if err = db.PingContext(ctx); err != nil {
		return
	}

	if firstRun {
		for _, pragma := range sqliteFirstRunPragmas {
			if _, err = db.ExecContext(ctx, pragma); err != nil {
				return
			}
		}
	}

	for _, stmt := range sqliteSchema {
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			return
		}
	}

	_, err = db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`)
	return
}

func (s *sqliteStore) Insert(ctx context.Context, f *facts.Facts) (rec Record, pruned int64, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	now := s.now()
	rec = newRecord(f, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, sqliteInsert,
		rec.IP, rec.UserAgent, rec.URI, rec.Method, rec.Headers,
		rec.Expires.Format(sqliteTimeFormat), rec.Created.Format(sqliteTimeFormat))
	if err != nil {
		return
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return
	}

	if pruned, err = pruneSQLite(ctx, tx, now); err != nil {
		return
	}

	if err = tx.Commit(); err != nil {
		return
	}

	s.pruned(pruned)
	return
}

func (s *sqliteStore) RecordRejection(ctx context.Context, f *facts.Facts) error {
	return recordRejection(ctx, s, f)
}

func (s *sqliteStore) Prune(ctx context.Context) (pruned int64, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}

	if pruned, err = pruneSQLite(ctx, tx, s.now()); err != nil {
		tx.Rollback()
		return
	}

	if err = tx.Commit(); err != nil {
		return
	}

	s.pruned(pruned)
	return
}

func pruneSQLite(ctx context.Context, tx *sql.Tx, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, sqlitePrune, now.Format(sqliteTimeFormat))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) Count(ctx context.Context) (n int, err error) {
	err = s.db.QueryRowContext(ctx, sqliteCount).Scan(&n)
	return
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) (records []Record, err error) {
	rows, err := s.db.QueryContext(ctx, sqliteRecent, limit)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var expires, created sqliteTime
		if err = rows.Scan(&rec.ID, &rec.IP, &rec.UserAgent, &rec.URI, &rec.Method, &rec.Headers, &expires, &created); err != nil {
			return
		}
		rec.Expires = expires.Time
		rec.Created = created.Time
		records = append(records, rec)
	}

	err = rows.Err()
	return
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// sqliteTime scans a DATETIME column whether the driver hands it over as text or as a time.
type sqliteTime struct {
	time.Time
}

func (t *sqliteTime) Scan(value interface{}) (err error) {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		t.Time, err = time.ParseInLocation(sqliteTimeFormat, v, time.UTC)
	case []byte:
		t.Time, err = time.ParseInLocation(sqliteTimeFormat, string(v), time.UTC)
	default:
		err = fmt.Errorf("cannot scan %T into a time", value)
	}
	return
}
