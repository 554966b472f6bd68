// Package indicator computes streaming Rate-of-Change indicators.
//
// Each indicator consumes one observation at a time and either yields a value
// or reports that it is still warming up. The Engine keeps one independent
// set of indicators per instrument.
package indicator

// Indicator is the interface for streaming indicators driven by Engine.
type Indicator interface {
	// Name returns the indicator name (e.g., "ROC_10", "ROCR_5").
	Name() string

	// Next feeds a new observation and returns the resulting value.
	// ok is false while the indicator is warming up.
	Next(input float64) (value float32, ok bool)

	// Peek computes what Next would return for input WITHOUT mutating state.
	Peek(input float64) (value float32, ok bool)

	// Ready returns true when the next call to Next will produce a value.
	Ready() bool

	// Reset clears accumulated state so the indicator warms up again.
	Reset()
}

var _ Indicator = (*RateOfChange)(nil)
