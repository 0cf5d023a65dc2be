// Package ledger keeps the on-device, append-only log of successful logins
// and the markers of account deletions that did not finish.
//
// The log lives in its own SQLite database, independent of the remote store,
// and survives sign-out. All database access runs on one worker goroutine
// owned by [Ledger]; callers submit jobs and wait for the reply, so reads and
// writes are serialized no matter which goroutine issues them.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pressly/goose/v3"

	"github.com/njoerd114/placesync/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrClosed is returned for jobs submitted after Close.
var ErrClosed = errors.New("login ledger closed")

type job struct {
	ctx   context.Context
	fn    func(ctx context.Context, db *sql.DB) error
	reply chan error
}

// Ledger is the SQLite-backed login log. Create it once at startup with
// [Open] and share the pointer; it is safe for concurrent use.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger

	jobs      chan job
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// DefaultPath returns the default ledger location:
// ~/.local/share/placesync/ledger.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "placesync", "ledger.db"), nil
}

// Open opens (or creates) the ledger database at path, applies pending
// migrations, and starts the worker goroutine.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening ledger %q: %w", path, err)
	}
	// The worker is the only user; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		db:      db,
		log:     logger,
		jobs:    make(chan job),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run()
	logger.Debug("login ledger opened", "path", path)
	return l, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (l *Ledger) run() {
	defer close(l.done)
	for {
		select {
		case j := <-l.jobs:
			j.reply <- j.fn(j.ctx, l.db)
		case <-l.closing:
			return
		}
	}
}

// do runs fn on the worker and waits for its result.
func (l *Ledger) do(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	reply := make(chan error, 1)
	select {
	case l.jobs <- job{ctx: ctx, fn: fn, reply: reply}:
	case <-l.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Accepted jobs run with ctx and reply promptly once it ends.
	return <-reply
}

// Close stops the worker and closes the database. Jobs already accepted by
// the worker finish first.
func (l *Ledger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		<-l.done
		err = l.db.Close()
		l.log.Debug("login ledger closed")
	})
	return err
}

// RecordLogin appends a login at t.
func (l *Ledger) RecordLogin(ctx context.Context, t time.Time) error {
	return l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		const q = `INSERT INTO login_records (last_login_timestamp) VALUES (?)`
		if _, err := db.ExecContext(ctx, q, t.UnixMilli()); err != nil {
			return fmt.Errorf("recording login: %w", err)
		}
		return nil
	})
}

// MostRecentLogin returns the timestamp of the highest-id record. ok is false
// when the ledger is empty.
func (l *Ledger) MostRecentLogin(ctx context.Context) (t time.Time, ok bool, err error) {
	err = l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		const q = `SELECT last_login_timestamp FROM login_records ORDER BY id DESC LIMIT 1`
		var ms int64
		switch scanErr := db.QueryRowContext(ctx, q).Scan(&ms); {
		case errors.Is(scanErr, sql.ErrNoRows):
			return nil
		case scanErr != nil:
			return fmt.Errorf("reading most recent login: %w", scanErr)
		}
		t, ok = time.UnixMilli(ms).UTC(), true
		return nil
	})
	return t, ok, err
}

// Recent returns up to n records, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]model.LoginRecord, error) {
	var records []model.LoginRecord
	err := l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		const q = `SELECT id, last_login_timestamp FROM login_records ORDER BY id DESC LIMIT ?`
		rows, err := db.QueryContext(ctx, q, n)
		if err != nil {
			return fmt.Errorf("querying recent logins: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var rec model.LoginRecord
			var ms int64
			if err := rows.Scan(&rec.ID, &ms); err != nil {
				return fmt.Errorf("scanning login row: %w", err)
			}
			rec.Timestamp = time.UnixMilli(ms).UTC()
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

// Count returns the number of recorded logins.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM login_records`).Scan(&n); err != nil {
			return fmt.Errorf("counting logins: %w", err)
		}
		return nil
	})
	return n, err
}

// MarkDeletionPending records that uid's profile document is gone but its
// identity still exists. Marking an already pending uid refreshes the time.
func (l *Ledger) MarkDeletionPending(ctx context.Context, uid string, t time.Time) error {
	return l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		const q = `INSERT INTO pending_deletions (uid, marked_at) VALUES (?, ?)
			ON CONFLICT(uid) DO UPDATE SET marked_at = excluded.marked_at`
		if _, err := db.ExecContext(ctx, q, uid, t.UnixMilli()); err != nil {
			return fmt.Errorf("marking deletion of %s pending: %w", uid, err)
		}
		return nil
	})
}

// DeletionPending reports whether uid has an unfinished deletion.
func (l *Ledger) DeletionPending(ctx context.Context, uid string) (bool, error) {
	var pending bool
	err := l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		const q = `SELECT EXISTS (SELECT 1 FROM pending_deletions WHERE uid = ?)`
		if err := db.QueryRowContext(ctx, q, uid).Scan(&pending); err != nil {
			return fmt.Errorf("reading pending deletion of %s: %w", uid, err)
		}
		return nil
	})
	return pending, err
}

// ClearDeletionPending drops uid's marker. Clearing an unmarked uid is a no-op.
func (l *Ledger) ClearDeletionPending(ctx context.Context, uid string) error {
	return l.do(ctx, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM pending_deletions WHERE uid = ?`, uid); err != nil {
			return fmt.Errorf("clearing pending deletion of %s: %w", uid, err)
		}
		return nil
	})
}
