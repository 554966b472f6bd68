package sqlite

import (
	"context"
	"database/sql"
	"log"
	"time"

	"rocengine/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Writer records observations with transaction batching. It is the source
// the Reader later replays for warm-up and backtests.
type Writer struct {
	db *sql.DB

	// OnCommit is called after each committed batch (optional).
	OnCommit func(count int, took time.Duration)
}

// NewWriter opens the database as a single-connection writer.
func NewWriter(dbPath string) (*Writer, error) {
	db, err := open(dbPath, 1)
	if err != nil {
		return nil, err
	}
	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Writer{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// Run reads observations from ch and inserts them in batched transactions.
// Flushes every batch of 100 observations or every 200ms, whichever first.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Observation) {
	batch := make([]model.Observation, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.OnCommit != nil {
			w.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case obs, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, obs)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertBatch appends observations in a single transaction, in slice order.
func (w *Writer) InsertBatch(obs []model.Observation) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO observations (token, exchange, ts, value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(o.Token, o.Exchange, o.TS.UnixNano(), o.Value); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
