package indicator

import (
	"fmt"
	"log"
	"time"

	"rocengine/internal/model"
)

// ObservationReader is the interface needed for warm-up reads.
type ObservationReader interface {
	// ReadObservations returns observations newer than after, ordered by
	// timestamp ascending.
	ReadObservations(after time.Time) ([]model.Observation, error)
}

// Backfill reads historical observations and feeds them into the engine so
// indicators are warm before the live feed starts.
//
// Only the most recent MaxPeriod observations per instrument are replayed:
// that is exactly what the longest indicator needs to reach steady state.
// If onResults is non-nil, it is called with the results of each replayed
// observation so the caller can publish them.
func Backfill(e *Engine, reader ObservationReader, after time.Time, onResults func([]model.IndicatorResult)) (int, error) {
	if reader == nil {
		return 0, nil
	}
	maxPeriod := MaxPeriod(e.configs)
	if maxPeriod == 0 {
		return 0, nil
	}

	all, err := reader.ReadObservations(after)
	if err != nil {
		return 0, fmt.Errorf("backfill read: %w", err)
	}

	// Keep the last maxPeriod observations per key, in arrival order.
	perKey := make(map[string][]model.Observation)
	var order []string
	for _, obs := range all {
		key := obs.Key()
		buf, seen := perKey[key]
		if !seen {
			order = append(order, key)
		}
		buf = append(buf, obs)
		if len(buf) > maxPeriod {
			buf = buf[1:]
		}
		perKey[key] = buf
	}

	total := 0
	for _, key := range order {
		for _, obs := range perKey[key] {
			results := e.Process(obs)
			if onResults != nil && len(results) > 0 {
				onResults(results)
			}
			total++
		}
	}

	if total > 0 {
		log.Printf("[backfill] ✅ warmed up %d instruments with %d historical observations", len(order), total)
	}
	return total, nil
}
