package redis

import (
	"context"
	"fmt"
	"time"

	"rocengine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
)

// WriterOptions tunes result retention in Redis.
type WriterOptions struct {
	StreamMaxLen int64         // approximate cap per result stream
	LatestTTL    time.Duration // expiry of the "latest" key
}

// Writer publishes indicator results to Redis.
type Writer struct {
	client       *goredis.Client
	streamMaxLen int64
	latestTTL    time.Duration
}

// NewWriter creates a Writer on an existing client.
func NewWriter(client *goredis.Client, opts WriterOptions) *Writer {
	if opts.StreamMaxLen <= 0 {
		opts.StreamMaxLen = defaultStreamMaxLen
	}
	if opts.LatestTTL <= 0 {
		opts.LatestTTL = defaultLatestTTL
	}
	return &Writer{
		client:       client,
		streamMaxLen: opts.StreamMaxLen,
		latestTTL:    opts.LatestTTL,
	}
}

// WriteResultBatch writes results in a single pipeline and returns how many
// were sent. Ready results get XADD + SET latest + PUBLISH. Warm-up results
// and live previews are skipped.
func (w *Writer) WriteResultBatch(ctx context.Context, results []model.IndicatorResult) (int, error) {
	pipe := w.client.Pipeline()
	queued := 0
	for i := range results {
		res := &results[i]
		if !res.Ready || res.Live {
			continue
		}

		data := string(res.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: res.StreamKey(),
			MaxLen: w.streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, res.LatestKey(), data, w.latestTTL)
		pipe.Publish(ctx, res.PubSubChannel(), data)
		queued++
	}
	if queued == 0 {
		return 0, nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("result batch pipeline (%d results): %w", queued, err)
	}
	return queued, nil
}
