package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// Config specifies a single indicator to compute for every instrument.
type Config struct {
	Variant Variant `json:"variant" yaml:"variant"`
	Period  int     `json:"period" yaml:"period"`
}

// Name returns the name an indicator built from c reports, e.g. "ROCR_5".
func (c Config) Name() string {
	return c.Variant.String() + "_" + strconv.Itoa(c.Period)
}

// New builds the indicator described by c.
func (c Config) New() (*RateOfChange, error) {
	return NewRateOfChange(c.Period, c.Variant)
}

// DefaultSpecs is used when no indicator specs are configured.
const DefaultSpecs = "ROC:10,ROCP:10,ROCR:10,ROC100:10"

// ParseSpecs parses "TYPE:PERIOD,TYPE:PERIOD,..." into configs.
// Example: "ROC:10,ROCR:5,ROC100:20". An empty string yields the defaults.
// Any malformed entry fails the whole parse.
func ParseSpecs(s string) ([]Config, error) {
	if strings.TrimSpace(s) == "" {
		s = DefaultSpecs
	}

	var configs []Config
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			return nil, fmt.Errorf("indicator spec %q: want TYPE:PERIOD", part)
		}
		variant, err := ParseVariant(tokens[0])
		if err != nil {
			return nil, fmt.Errorf("indicator spec %q: %w", part, err)
		}
		period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("indicator spec %q: invalid period: %w", part, err)
		}
		configs = append(configs, Config{Variant: variant, Period: period})
	}

	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// FormatSpecs is the inverse of ParseSpecs.
func FormatSpecs(configs []Config) string {
	parts := make([]string, len(configs))
	for i, c := range configs {
		parts[i] = c.Variant.String() + ":" + strconv.Itoa(c.Period)
	}
	return strings.Join(parts, ",")
}

// ValidateConfigs checks a set of indicator configs for errors.
func ValidateConfigs(configs []Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("no indicators configured")
	}
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if !c.Variant.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownVariant, int(c.Variant))
		}
		if c.Period < 1 {
			return fmt.Errorf("%s: %w (got %d)", c.Variant, ErrInvalidPeriod, c.Period)
		}
		name := c.Name()
		if seen[name] {
			return fmt.Errorf("duplicate indicator %s", name)
		}
		seen[name] = true
	}
	return nil
}

// MaxPeriod returns the largest period across configs (0 for none).
func MaxPeriod(configs []Config) int {
	max := 0
	for _, c := range configs {
		if c.Period > max {
			max = c.Period
		}
	}
	return max
}
