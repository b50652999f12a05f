package cache

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
)

// NewSQLitePersister returns a persister backed by a sqlite database at path.
// Durability is per-statement here, so write amplification is lower than with
// the JSON file persister at the cost of a database file instead of a
// human-readable snapshot.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if path == "" {
		return nil, errors.New("sqlite database path is empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS snapshot (key TEXT PRIMARY KEY, value BLOB)"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create snapshot table")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	return &SQLitePersister{db: db}, nil
}

// SQLitePersister stores the snapshot as rows in a single sqlite table
type SQLitePersister struct {
	db *sql.DB
}

// Write replaces the stored snapshot with the given mapping in one
// transaction, so readers never observe a half-written snapshot.
func (s *SQLitePersister) Write(snapshot map[string][]byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin snapshot transaction")
	}
	if _, err := tx.Exec("DELETE FROM snapshot"); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to reset snapshot table")
	}
	for key, value := range snapshot {
		if _, err := tx.Exec("INSERT INTO snapshot (key, value) VALUES (?, ?)", key, value); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "failed to insert snapshot row")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit snapshot")
	}

	return nil
}

// Read loads all stored snapshot rows
func (s *SQLitePersister) Read() (map[string][]byte, error) {
	snapshot := make(map[string][]byte)

	rows, err := s.db.Query("SELECT key, value FROM snapshot")
	if err != nil {
		return snapshot, errors.Wrap(err, "failed to query snapshot table")
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return make(map[string][]byte), errors.Wrap(err, "failed to scan snapshot row")
		}
		snapshot[key] = value
	}
	if err := rows.Err(); err != nil {
		return make(map[string][]byte), errors.Wrap(err, "failed to read snapshot rows")
	}

	return snapshot, nil
}

// Remove drops all stored snapshot rows. Removing from an empty table
// succeeds.
func (s *SQLitePersister) Remove() error {
	if _, err := s.db.Exec("DELETE FROM snapshot"); err != nil {
		return errors.Wrap(err, "failed to empty snapshot table")
	}

	return nil
}

// Close releases the underlying database handle
func (s *SQLitePersister) Close() error {
	return s.db.Close()
}
