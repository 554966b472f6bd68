package model

import "time"

// Observation is a single numeric sample (typically a last-traded price) for
// one instrument. Observations for the same key must be delivered in arrival
// order.
type Observation struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	Value    float64   `json:"value"`
	TS       time.Time `json:"ts"` // UTC
}

// Key returns a unique key for this observation's instrument: "exchange:token".
func (o *Observation) Key() string {
	return o.Exchange + ":" + o.Token
}

// SplitKey splits an "exchange:token" key. A key without a colon is treated
// as a bare token.
func SplitKey(key string) (exchange, token string) {
	for i := range key {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}
