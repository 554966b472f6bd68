package indicator

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Variant selects the output convention of a RateOfChange.
// The zero value is Percent, the conventional "ROC".
type Variant int

const (
	Percent  Variant = iota // ROC:    (ratio - 1) * 100
	Ratio                   // ROCR:   ratio
	Fraction                // ROCP:   ratio - 1
	Scaled                  // ROC100: ratio * 100
)

// ErrUnknownVariant is returned for variant names or values outside the four
// supported conventions.
var ErrUnknownVariant = errors.New("unknown ROC variant")

var variantNames = [...]string{
	Percent:  "ROC",
	Ratio:    "ROCR",
	Fraction: "ROCP",
	Scaled:   "ROC100",
}

// transforms maps ratio = current / value_period_ago to the variant output.
var transforms = [...]func(ratio float32) float32{
	Percent:  func(r float32) float32 { return (r - 1) * 100 },
	Ratio:    func(r float32) float32 { return r },
	Fraction: func(r float32) float32 { return r - 1 },
	Scaled:   func(r float32) float32 { return r * 100 },
}

// Valid reports whether v is one of the declared variants.
func (v Variant) Valid() bool {
	return v >= 0 && int(v) < len(variantNames)
}

// String returns the indicator name for v ("ROC", "ROCR", "ROCP", "ROC100").
func (v Variant) String() string {
	if !v.Valid() {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// Apply transforms a raw ratio into this variant's output. An invalid
// variant yields NaN.
func (v Variant) Apply(ratio float32) float32 {
	if !v.Valid() {
		return float32(math.NaN())
	}
	return transforms[v](ratio)
}

// ParseVariant parses a variant name, case-insensitively.
func ParseVariant(s string) (Variant, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range variantNames {
		if n == name {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
	return []byte(variantNames[v]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
