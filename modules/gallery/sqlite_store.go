package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore persists the collection as one row of a key/value table,
// keyed by collection name.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path, collection string) (*SQLiteStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("gallery: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gallery: sqlite open: %w", err)
	}

	// each connection to ":memory:" is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("gallery: sqlite %s: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("gallery: sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, collection: collection}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]Image, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM collections WHERE name = ?`, s.collection,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gallery: sqlite load: %w", err)
	}
	return decodePayload(data)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, images []Image) error {
	data, err := encodePayload(images)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (name, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.collection, data, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: sqlite save: %v", ErrStorage, err)
	}
	return nil
}

// SeedRaw writes an arbitrary payload, bypassing the codec. Used to import
// legacy exports.
func (s *SQLiteStore) SeedRaw(ctx context.Context, raw []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.collection, raw, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: sqlite seed: %v", ErrStorage, err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
