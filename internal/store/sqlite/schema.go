package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// open opens a WAL-mode SQLite database and makes sure the observations
// table exists.
func open(dbPath string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

// Timestamps are stored as Unix nanoseconds. seq preserves arrival order
// for observations that share a timestamp; rows are never replaced.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			seq      INTEGER PRIMARY KEY AUTOINCREMENT,
			token    TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			value    REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_observations_ts ON observations (ts, seq);
	`)
	return err
}
