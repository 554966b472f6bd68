// Package replay provides an observation replayer that reads historical data
// and emits it at configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"rocengine/internal/model"
)

// Source supplies historical observations; the SQLite reader implements it.
type Source interface {
	ReadObservations(after time.Time) ([]model.Observation, error)
}

// Options filter and pace a replay.
type Options struct {
	// From drops observations at or before this time (zero = all).
	From time.Time
	// Keys restricts the replay to these "exchange:token" keys (empty = all).
	Keys []string
	// Speed is the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast
	// as possible.
	Speed float64
	// MaxGap caps a single simulated pause. Defaults to 5s.
	MaxGap time.Duration
}

// Replayer replays historical observations in timestamp order.
type Replayer struct {
	source Source
}

// New creates a Replayer over source.
func New(source Source) *Replayer {
	return &Replayer{source: source}
}

// Run emits matching observations into out in timestamp order and returns the
// number emitted. It does not close out.
func (r *Replayer) Run(ctx context.Context, opts Options, out chan<- model.Observation) (int, error) {
	all, err := r.source.ReadObservations(opts.From)
	if err != nil {
		return 0, err
	}
	obs := filterKeys(all, opts.Keys)
	if len(obs) == 0 {
		log.Println("[replay] no observations found")
		return 0, nil
	}

	sort.SliceStable(obs, func(i, j int) bool { return obs[i].TS.Before(obs[j].TS) })

	maxGap := opts.MaxGap
	if maxGap <= 0 {
		maxGap = 5 * time.Second
	}

	log.Printf("[replay] loaded %d observations, speed=%.1fx", len(obs), opts.Speed)

	var prevTS time.Time
	emitted := 0
	for _, o := range obs {
		if opts.Speed > 0 && !prevTS.IsZero() {
			if gap := o.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / opts.Speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = o.TS

		select {
		case out <- o:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d observations", emitted)
			return emitted, ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d observations replayed", emitted)
	return emitted, nil
}

func filterKeys(obs []model.Observation, keys []string) []model.Observation {
	if len(keys) == 0 {
		return obs
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	out := obs[:0:0]
	for _, o := range obs {
		if _, ok := want[o.Key()]; ok {
			out = append(out, o)
		}
	}
	return out
}
