package model

import (
	"encoding/json"
	"math"
	"time"
)

// IndicatorResult holds one computed indicator value for a specific instrument.
type IndicatorResult struct {
	Name     string    `json:"name"` // e.g. "ROC_10", "ROCR_5"
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	Value    float32   `json:"value"`
	TS       time.Time `json:"ts"`    // timestamp of the observation that produced this value
	Ready    bool      `json:"ready"` // false while the indicator is warming up
	Live     bool      `json:"live"`  // true for previews that did not advance state

	// Degenerate is set when Value is NaN or ±Inf, i.e. the value looked back
	// on was zero. JSON has no encoding for those, so Value is written as null.
	Degenerate bool `json:"degenerate,omitempty"`
}

// Key returns "exchange:token".
func (r *IndicatorResult) Key() string {
	return r.Exchange + ":" + r.Token
}

// StreamKey returns the Redis stream key: "roc:{name}:{exchange}:{token}".
func (r *IndicatorResult) StreamKey() string {
	return "roc:" + r.Name + ":" + r.Exchange + ":" + r.Token
}

// LatestKey returns the Redis key holding the most recent value.
func (r *IndicatorResult) LatestKey() string {
	return "roc:" + r.Name + ":latest:" + r.Exchange + ":" + r.Token
}

// PubSubChannel returns the Redis PubSub channel for real-time subscribers.
func (r *IndicatorResult) PubSubChannel() string {
	return "pub:roc:" + r.Name + ":" + r.Exchange + ":" + r.Token
}

// MarshalJSON encodes non-finite values as null.
func (r IndicatorResult) MarshalJSON() ([]byte, error) {
	type alias IndicatorResult
	out := struct {
		alias
		Value *float32 `json:"value"`
	}{alias: alias(r)}
	if !IsNonFinite(r.Value) {
		v := r.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null values (decoded as NaN when Degenerate is set,
// zero otherwise).
func (r *IndicatorResult) UnmarshalJSON(data []byte) error {
	type alias IndicatorResult
	in := struct {
		*alias
		Value *float32 `json:"value"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Value != nil:
		r.Value = *in.Value
	case r.Degenerate:
		r.Value = float32(math.NaN())
	default:
		r.Value = 0
	}
	return nil
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// IsNonFinite reports whether v is NaN or ±Inf.
func IsNonFinite(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}
