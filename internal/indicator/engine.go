package indicator

import (
	"sort"

	"rocengine/internal/model"
)

// tokenIndicators holds live indicator instances for one instrument.
type tokenIndicators struct {
	indicators []Indicator
	configs    []Config
}

// Engine computes every configured indicator for every instrument it sees.
// Designed for single-goroutine usage. Callers that touch it from several
// goroutines must serialize access.
type Engine struct {
	configs []Config

	// state[exchange:token] → *tokenIndicators
	state map[string]*tokenIndicators
}

// NewEngine creates an indicator engine for the given configs.
func NewEngine(configs []Config) (*Engine, error) {
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return &Engine{
		configs: append([]Config(nil), configs...),
		state:   make(map[string]*tokenIndicators, 64),
	}, nil
}

// Process feeds one observation to every indicator of its instrument and
// returns one result per indicator (Ready=false while warming up).
func (e *Engine) Process(obs model.Observation) []model.IndicatorResult {
	key := obs.Key()
	ti, exists := e.state[key]
	if !exists {
		// First observation for this instrument: create indicator instances
		ti = e.createTokenIndicators()
		e.state[key] = ti
	}

	results := make([]model.IndicatorResult, 0, len(ti.indicators))
	for _, ind := range ti.indicators {
		v, ok := ind.Next(obs.Value)
		results = append(results, newResult(ind.Name(), obs, v, ok))
	}
	return results
}

// Peek computes what Process would return for obs WITHOUT mutating state.
// Returns nil if the instrument hasn't been seen before.
func (e *Engine) Peek(obs model.Observation) []model.IndicatorResult {
	ti, exists := e.state[obs.Key()]
	if !exists {
		return nil
	}

	results := make([]model.IndicatorResult, 0, len(ti.indicators))
	for _, ind := range ti.indicators {
		v, ok := ind.Peek(obs.Value)
		r := newResult(ind.Name(), obs, v, ok)
		r.Live = true
		results = append(results, r)
	}
	return results
}

// Reset clears the history of every indicator for one instrument.
// Returns false if the instrument is unknown.
func (e *Engine) Reset(key string) bool {
	ti, exists := e.state[key]
	if !exists {
		return false
	}
	for _, ind := range ti.indicators {
		ind.Reset()
	}
	return true
}

// ResetAll clears every instrument's history and returns how many were reset.
func (e *Engine) ResetAll() int {
	for _, ti := range e.state {
		for _, ind := range ti.indicators {
			ind.Reset()
		}
	}
	return len(e.state)
}

// Configs returns a copy of the active indicator configs.
func (e *Engine) Configs() []Config {
	return append([]Config(nil), e.configs...)
}

// Keys returns the known instrument keys, sorted.
func (e *Engine) Keys() []string {
	keys := make([]string, 0, len(e.state))
	for k := range e.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// History returns the retained observations of one indicator, oldest first.
func (e *Engine) History(key, name string) ([]float64, bool) {
	ti, exists := e.state[key]
	if !exists {
		return nil, false
	}
	for _, ind := range ti.indicators {
		if ind.Name() != name {
			continue
		}
		h, ok := ind.(interface{ History() []float64 })
		if !ok {
			return nil, false
		}
		return h.History(), true
	}
	return nil, false
}

func (e *Engine) createTokenIndicators() *tokenIndicators {
	return buildTokenIndicators(e.configs)
}

func buildTokenIndicators(configs []Config) *tokenIndicators {
	ti := &tokenIndicators{
		indicators: make([]Indicator, 0, len(configs)),
		configs:    make([]Config, 0, len(configs)),
	}
	for _, cfg := range configs {
		ind, err := cfg.New()
		if err != nil {
			// configs are validated on the way in; keep the slices aligned regardless
			continue
		}
		ti.indicators = append(ti.indicators, ind)
		ti.configs = append(ti.configs, cfg)
	}
	return ti
}

func newResult(name string, obs model.Observation, v float32, ok bool) model.IndicatorResult {
	return model.IndicatorResult{
		Name:       name,
		Token:      obs.Token,
		Exchange:   obs.Exchange,
		Value:      v,
		TS:         obs.TS,
		Ready:      ok,
		Degenerate: ok && model.IsNonFinite(v),
	}
}
