package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"rocengine/internal/model"
)

// Reader provides read access to recorded observations for warm-up and
// backtesting.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath, 2)
	if err != nil {
		return nil, err
	}
	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadObservations returns every observation strictly after the given time
// in recorded order: timestamp, then insertion sequence.
func (r *Reader) ReadObservations(after time.Time) ([]model.Observation, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, ts, value
		FROM observations
		WHERE ts > ?
		ORDER BY ts ASC, seq ASC
	`, toNanos(after))
	if err != nil {
		return nil, fmt.Errorf("sqlite query observations: %w", err)
	}
	return scanObservations(rows)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func scanObservations(rows *sql.Rows) ([]model.Observation, error) {
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var tsNanos int64
		if err := rows.Scan(&o.Token, &o.Exchange, &tsNanos, &o.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan observations: %w", err)
		}
		o.TS = time.Unix(0, tsNanos).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
