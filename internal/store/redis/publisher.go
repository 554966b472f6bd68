package redis

import (
	"context"
	"errors"
	"log"
	"time"

	"rocengine/internal/model"
)

// BatchWriter is the write side the Publisher drives; *Writer implements it.
type BatchWriter interface {
	WriteResultBatch(ctx context.Context, results []model.IndicatorResult) (int, error)
}

// Publisher batches results and writes them through a circuit breaker.
// While the breaker is open, batches are dropped rather than buffered.
type Publisher struct {
	writer     BatchWriter
	cb         *CircuitBreaker
	batchSize  int
	flushEvery time.Duration

	// Callbacks (optional)
	OnWritten func(count int, took time.Duration)
	OnError   func(err error)
	OnDrop    func(count int)
}

// NewPublisher creates a Publisher. Non-positive sizes fall back to 200
// results and 100ms.
func NewPublisher(w BatchWriter, cb *CircuitBreaker, batchSize int, flushEvery time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = 200
	}
	if flushEvery <= 0 {
		flushEvery = 100 * time.Millisecond
	}
	return &Publisher{
		writer:     w,
		cb:         cb,
		batchSize:  batchSize,
		flushEvery: flushEvery,
	}
}

// Run collects results from in and flushes when the batch is full or the
// flush interval elapses. Pending results are flushed once more when in is
// closed or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, in <-chan model.IndicatorResult) {
	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	batch := make([]model.IndicatorResult, 0, p.batchSize)
	final := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		p.Flush(flushCtx, batch)
	}

	for {
		select {
		case <-ctx.Done():
			final()
			return
		case res, ok := <-in:
			if !ok {
				final()
				return
			}
			batch = append(batch, res)
			if len(batch) >= p.batchSize {
				p.Flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.Flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// Flush writes one batch through the breaker.
func (p *Publisher) Flush(ctx context.Context, batch []model.IndicatorResult) {
	if len(batch) == 0 {
		return
	}

	var written int
	start := time.Now()
	err := p.cb.Execute(func() error {
		var werr error
		written, werr = p.writer.WriteResultBatch(ctx, batch)
		return werr
	})

	switch {
	case errors.Is(err, ErrCircuitOpen):
		if p.OnDrop != nil {
			p.OnDrop(len(batch))
		}
	case err != nil:
		log.Printf("[redis-publisher] %v", err)
		if p.OnError != nil {
			p.OnError(err)
		}
	default:
		if p.OnWritten != nil {
			p.OnWritten(written, time.Since(start))
		}
	}
}
