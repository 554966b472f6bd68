package indicator

import (
	"log"
)

// ReloadConfigs swaps the engine to a new set of indicator configs.
// It preserves state for indicators that already exist and only creates
// new instances for genuinely new indicators, so adding one indicator does
// not throw away the warm-up history of the others.
// Returns the number of preserved and newly created indicator instances.
func (e *Engine) ReloadConfigs(newConfigs []Config) (preserved, created int, err error) {
	if err := ValidateConfigs(newConfigs); err != nil {
		return 0, 0, err
	}

	if indicatorSetsEqual(e.configs, newConfigs) {
		// Same set, possibly new order: keep every instance, follow the new order.
		for key, ti := range e.state {
			newTI, p, _ := migrateTokenIndicators(ti, newConfigs)
			e.state[key] = newTI
			preserved += p
		}
		e.configs = append([]Config(nil), newConfigs...)
		log.Printf("[reload] unchanged, preserved %d instrument states", len(e.state))
		return preserved, 0, nil
	}

	for key, oldTI := range e.state {
		newTI, p, c := migrateTokenIndicators(oldTI, newConfigs)
		e.state[key] = newTI
		preserved += p
		created += c
	}
	e.configs = append([]Config(nil), newConfigs...)

	log.Printf("[reload] ✅ config reloaded: %d indicators, %d instruments, %d preserved, %d new",
		len(newConfigs), len(e.state), preserved, created)
	return preserved, created, nil
}

// migrateTokenIndicators builds the instance set for newConfigs, reusing old
// instances that match by name (variant + period).
func migrateTokenIndicators(oldTI *tokenIndicators, newConfigs []Config) (*tokenIndicators, int, int) {
	oldByName := make(map[string]Indicator, len(oldTI.indicators))
	for _, ind := range oldTI.indicators {
		oldByName[ind.Name()] = ind
	}

	var preserved, created int
	ti := &tokenIndicators{
		indicators: make([]Indicator, 0, len(newConfigs)),
		configs:    make([]Config, 0, len(newConfigs)),
	}
	for _, cfg := range newConfigs {
		if existing, ok := oldByName[cfg.Name()]; ok {
			ti.indicators = append(ti.indicators, existing) // keep accumulated history
			ti.configs = append(ti.configs, cfg)
			preserved++
			continue
		}
		ind, err := cfg.New()
		if err != nil {
			continue
		}
		ti.indicators = append(ti.indicators, ind)
		ti.configs = append(ti.configs, cfg)
		created++
	}
	return ti, preserved, created
}

// indicatorSetsEqual checks if two config slices name the exact same
// indicators (order-independent).
func indicatorSetsEqual(a, b []Config) bool {
	if len(a) != len(b) {
		return false
	}
	setA := make(map[string]bool, len(a))
	for _, c := range a {
		setA[c.Name()] = true
	}
	for _, c := range b {
		if !setA[c.Name()] {
			return false
		}
	}
	return true
}
