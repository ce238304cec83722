package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "gameflow/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flow_snapshot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteRepository keeps the snapshot in a single-row SQLite table.
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteRepository opens (or creates) the database at path.
func NewSQLiteRepository(path string, logger *zap.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.NewDatabaseError("open sqlite", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseError("connect sqlite", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.NewDatabaseError(fmt.Sprintf("apply %q", pragma), err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseError("apply schema", err)
	}

	return &SQLiteRepository{db: db, logger: logger.Named("sqlite-store")}, nil
}

// Load implements FlowRepository.
func (r *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM flow_snapshot WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, notFound()
	}
	if err != nil {
		return Snapshot{}, apperrors.NewDatabaseError("load flow", err)
	}

	s, err := decodeSnapshot([]byte(body))
	if err != nil {
		r.logger.Warn("Ignoring unreadable snapshot row", zap.Error(err))
		return Snapshot{}, notFound()
	}
	return s, nil
}

// Save implements FlowRepository.
func (r *SQLiteRepository) Save(ctx context.Context, s Snapshot) error {
	body, err := encodeSnapshot(s)
	if err != nil {
		return apperrors.Wrap(err, "encode flow")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flow_snapshot (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(body), s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.NewDatabaseError("save flow", err)
	}
	return nil
}

// Close implements FlowRepository.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
