package rocengine

import (
	"context"
	"sync"
	"time"

	"rocengine/internal/indicator"
	"rocengine/internal/metrics"
	"rocengine/internal/model"
)

// Controller serializes access to the indicator engine and keeps the latest
// results per instrument. It is safe for concurrent use and implements
// api.Controller.
type Controller struct {
	mu     sync.Mutex
	engine *indicator.Engine
	latest map[string][]model.IndicatorResult

	prom   *metrics.Metrics
	health *metrics.HealthStatus
}

// NewController wraps engine. prom and health may be nil.
func NewController(engine *indicator.Engine, prom *metrics.Metrics, health *metrics.HealthStatus) *Controller {
	c := &Controller{
		engine: engine,
		latest: make(map[string][]model.IndicatorResult),
		prom:   prom,
		health: health,
	}
	c.publishIndicatorNames(engine.Configs())
	return c
}

// Process feeds one observation through every configured indicator.
func (c *Controller) Process(obs model.Observation) []model.IndicatorResult {
	c.mu.Lock()
	start := time.Now()
	results := c.engine.Process(obs)
	elapsed := time.Since(start)
	c.latest[obs.Key()] = append([]model.IndicatorResult(nil), results...)
	tracked := len(c.latest)
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.ObservationsTotal.Inc()
		c.prom.IndicatorComputeDur.Observe(elapsed.Seconds())
		c.prom.TrackedInstruments.Set(float64(tracked))
		for i := range results {
			r := &results[i]
			c.prom.ResultsTotal.WithLabelValues(r.Name).Inc()
			if !r.Ready {
				c.prom.WarmupResultsTotal.WithLabelValues(r.Name).Inc()
			}
			if r.Degenerate {
				c.prom.DegenerateTotal.WithLabelValues(r.Name).Inc()
			}
		}
	}
	if c.health != nil {
		c.health.SetLastObservationTime(obs.TS)
	}
	return results
}

// Peek previews the results obs would produce without advancing state.
func (c *Controller) Peek(obs model.Observation) []model.IndicatorResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Peek(obs)
}

// Run processes observations from in until ctx is cancelled or in is closed.
// Results are sent to out without blocking; onDrop (may be nil) is called for
// each result that did not fit.
func (c *Controller) Run(ctx context.Context, in <-chan model.Observation, out chan<- model.IndicatorResult, onDrop func(model.IndicatorResult)) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-in:
			if !ok {
				return
			}
			for _, r := range c.Process(obs) {
				select {
				case out <- r:
				default:
					if onDrop != nil {
						onDrop(r)
					}
				}
			}
		}
	}
}

// Backfill warms the engine from historical observations after the given time.
func (c *Controller) Backfill(reader indicator.ObservationReader, after time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := indicator.Backfill(c.engine, reader, after, func(results []model.IndicatorResult) {
		if len(results) > 0 {
			c.latest[results[0].Key()] = append([]model.IndicatorResult(nil), results...)
		}
	})
	if c.prom != nil {
		c.prom.WarmupObservations.Add(float64(n))
		c.prom.TrackedInstruments.Set(float64(len(c.latest)))
	}
	return n, err
}

// Configs returns the active indicator configs.
func (c *Controller) Configs() []indicator.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Configs()
}

// Keys lists the tracked "exchange:token" keys, sorted.
func (c *Controller) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Keys()
}

// Latest returns the results of the most recent observation for key.
func (c *Controller) Latest(key string) ([]model.IndicatorResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.latest[key]
	if !ok {
		return nil, false
	}
	return append([]model.IndicatorResult(nil), r...), true
}

// History returns the retained inputs of one indicator instance.
func (c *Controller) History(key, name string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.History(key, name)
}

// Reload swaps the indicator set, keeping state for surviving instances.
func (c *Controller) Reload(configs []indicator.Config) (preserved, created int, err error) {
	c.mu.Lock()
	preserved, created, err = c.engine.ReloadConfigs(configs)
	c.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		c.publishIndicatorNames(configs)
	}
	if c.prom != nil {
		c.prom.ConfigReloads.WithLabelValues(outcome).Inc()
	}
	return preserved, created, err
}

// Reset returns one instrument's indicators to warm-up.
func (c *Controller) Reset(key string) bool {
	c.mu.Lock()
	ok := c.engine.Reset(key)
	if ok {
		delete(c.latest, key)
	}
	c.mu.Unlock()

	if ok && c.prom != nil {
		c.prom.InstrumentResets.Inc()
	}
	return ok
}

// ResetAll returns every instrument to warm-up and reports how many there were.
func (c *Controller) ResetAll() int {
	c.mu.Lock()
	n := c.engine.ResetAll()
	c.latest = make(map[string][]model.IndicatorResult)
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.InstrumentResets.Add(float64(n))
	}
	return n
}

func (c *Controller) publishIndicatorNames(configs []indicator.Config) {
	if c.health == nil {
		return
	}
	names := make([]string, len(configs))
	for i, cfg := range configs {
		names[i] = cfg.Name()
	}
	c.health.SetIndicators(names)
}
