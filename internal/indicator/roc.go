package indicator

import (
	"errors"
	"fmt"
	"strconv"

	"rocengine/internal/fixedqueue"
)

// ErrInvalidPeriod is returned when a RateOfChange is built with period < 1.
var ErrInvalidPeriod = errors.New("ROC period must be >= 1")

// RateOfChange compares each new observation against the one seen period
// steps earlier. It keeps exactly period past observations; Next yields no
// value until that history is full.
type RateOfChange struct {
	history *fixedqueue.Queue[float64]
	period  int
	variant Variant
}

// NewRateOfChange creates a RateOfChange with the given lookback period and
// output variant.
func NewRateOfChange(period int, variant Variant) (*RateOfChange, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPeriod, period)
	}
	if !variant.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(variant))
	}
	history, err := fixedqueue.New[float64](period)
	if err != nil {
		return nil, err
	}
	return &RateOfChange{
		history: history,
		period:  period,
		variant: variant,
	}, nil
}

// NewROC creates a percent-change RateOfChange, the default convention.
func NewROC(period int) (*RateOfChange, error) {
	return NewRateOfChange(period, Percent)
}

func (r *RateOfChange) Name() string { return r.variant.String() + "_" + strconv.Itoa(r.period) }

func (r *RateOfChange) Period() int      { return r.period }
func (r *RateOfChange) Variant() Variant { return r.variant }

// Ready reports whether the next call to Next will produce a value.
func (r *RateOfChange) Ready() bool { return r.history.Full() }

// Peek returns what Next would return for input, without recording it.
func (r *RateOfChange) Peek(input float64) (float32, bool) {
	prev, ok := r.history.At(r.history.Size() - r.period)
	if !ok {
		return 0, false
	}
	// A zero prev is not special-cased: the result is ±Inf or NaN.
	ratio := float32(input / prev)
	return r.variant.Apply(ratio), true
}

// Next computes the indicator for input and then records input in history.
// ok is false while fewer than period observations have been recorded.
func (r *RateOfChange) Next(input float64) (value float32, ok bool) {
	value, ok = r.Peek(input)
	r.history.Add(input)
	return value, ok
}

// Reset drops all history; the indicator warms up again from scratch.
func (r *RateOfChange) Reset() {
	r.history.Clear()
}

// History returns a copy of the retained observations, oldest first.
func (r *RateOfChange) History() []float64 {
	return r.history.Values()
}
