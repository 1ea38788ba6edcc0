package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"jobcoach/internal/errors"
	"jobcoach/internal/types"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a single SQLite file. Records are kept as
// JSON documents; writes go through one connection.
type SQLite struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *errors.Logger
}

// sqliteDSN builds a modernc.org/sqlite connection string.
func sqliteDSN(path string, busyTimeout time.Duration) string {
	params := make(url.Values)
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// OpenSQLite opens (creating if needed) the database at path and runs
// pending migrations.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration, logger *errors.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "storage path is required for the sqlite driver", nil)
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = errors.Discard()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, busyTimeout))
	if err != nil {
		return nil, storageErr("failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA temp_store=memory;"); err != nil {
		_ = db.Close()
		return nil, storageErr("failed to set PRAGMA temp_store", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, storageErr("failed to run migrations", err)
	}

	logger.Info("SQLite store opened", "path", path, "busy_timeout", busyTimeout)
	return &SQLite{db: db, path: path, now: time.Now, logger: logger}, nil
}

func (s *SQLite) GetApplication(ctx context.Context, id string) (*types.Application, error) {
	var app types.Application
	if err := s.getDoc(ctx, s.db, "applications", "application", id, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *SQLite) PutApplication(ctx context.Context, app *types.Application) error {
	if app.ID == "" {
		return missingID("application")
	}
	stamp(&app.CreatedAt, &app.UpdatedAt, s.now())
	doc, err := json.Marshal(app)
	if err != nil {
		return storageErr("failed to encode application", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		app.ID, string(doc), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return storageErr("failed to store application", err)
	}
	return nil
}

func (s *SQLite) GetNarrative(ctx context.Context, id string) (*types.Narrative, error) {
	var n types.Narrative
	if err := s.getDoc(ctx, s.db, "narratives", "narrative", id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLite) PutNarrative(ctx context.Context, n *types.Narrative) error {
	if n.ID == "" {
		return missingID("narrative")
	}
	n.UpdatedAt = s.now().UTC()
	doc, err := json.Marshal(n)
	if err != nil {
		return storageErr("failed to encode narrative", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO narratives (id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		n.ID, string(doc), n.UpdatedAt)
	if err != nil {
		return storageErr("failed to store narrative", err)
	}
	return nil
}

func (s *SQLite) GetInterview(ctx context.Context, id string) (*types.Interview, error) {
	var iv types.Interview
	if err := s.getDoc(ctx, s.db, "interviews", "interview", id, &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

func (s *SQLite) PutInterview(ctx context.Context, iv *types.Interview) error {
	if iv.ID == "" {
		return missingID("interview")
	}
	stamp(&iv.CreatedAt, &iv.UpdatedAt, s.now())
	return s.writeInterview(ctx, s.db, iv)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) writeInterview(ctx context.Context, db execer, iv *types.Interview) error {
	doc, err := json.Marshal(iv)
	if err != nil {
		return storageErr("failed to encode interview", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO interviews (id, application_id, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			application_id = excluded.application_id,
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		iv.ID, iv.ApplicationID, string(doc), iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		return storageErr("failed to store interview", err)
	}
	return nil
}

// PatchInterview reads, merges and writes the interview inside one
// immediate transaction.
func (s *SQLite) PatchInterview(ctx context.Context, id string, patch types.InterviewPatch) (*types.Interview, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var cur types.Interview
	if err := s.getDoc(ctx, tx, "interviews", "interview", id, &cur); err != nil {
		return nil, err
	}
	next, err := ApplyPatch(&cur, patch, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.writeInterview(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("failed to commit transaction", err)
	}
	return next, nil
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Driver: DriverSQLite}
	for table, dst := range map[string]*int{
		"applications": &st.Applications,
		"narratives":   &st.Narratives,
		"interviews":   &st.Interviews,
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
			return Stats{}, storageErr("failed to count "+table, err)
		}
	}
	return st, nil
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return storageErr("failed to close database", err)
	}
	return nil
}

// getDoc loads and decodes one JSON document. table is a fixed name from
// this file, never user input.
func (s *SQLite) getDoc(ctx context.Context, db execer, table, kind, id string, dst any) error {
	var doc string
	err := db.QueryRowContext(ctx, "SELECT doc FROM "+table+" WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return notFound(kind, id)
	}
	if err != nil {
		return storageErr("failed to load "+kind, err)
	}
	if err := json.Unmarshal([]byte(doc), dst); err != nil {
		return storageErr("failed to decode "+kind, err)
	}
	return nil
}
