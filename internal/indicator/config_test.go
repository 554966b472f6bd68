package indicator

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseVariant(t *testing.T) {
	cases := []struct {
		in   string
		want Variant
	}{
		{"ROC", Percent},
		{"rocr", Ratio},
		{" ROCP ", Fraction},
		{"Roc100", Scaled},
	}
	for _, tc := range cases {
		got, err := ParseVariant(tc.in)
		if err != nil {
			t.Errorf("ParseVariant(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseVariant(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := ParseVariant("SMA"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant for SMA, got %v", err)
	}
}

func TestVariant_ApplyInvalid(t *testing.T) {
	for _, v := range []Variant{Variant(9), Variant(-1)} {
		if got := v.Apply(1); !math.IsNaN(float64(got)) {
			t.Errorf("%s.Apply(1) = %v, want NaN", v, got)
		}
	}
	if got := Scaled.Apply(0.5); got != 50 {
		t.Errorf("Scaled.Apply(0.5) = %v, want 50", got)
	}
}

func TestVariant_TextRoundTrip(t *testing.T) {
	cfg := Config{Variant: Scaled, Period: 20}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"variant":"ROC100","period":20}` {
		t.Errorf("unexpected JSON: %s", raw)
	}

	var back Config
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != cfg {
		t.Errorf("round trip mismatch: %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"variant":"EMA","period":3}`), &back); err == nil {
		t.Error("expected error for unknown variant")
	}
	if _, err := json.Marshal(Config{Variant: Variant(9), Period: 1}); err == nil {
		t.Error("expected error marshalling invalid variant")
	}
}

func TestParseSpecs(t *testing.T) {
	configs, err := ParseSpecs("ROC:10, rocr:5,ROC100:20,ROCP:14")
	if err != nil {
		t.Fatalf("ParseSpecs: %v", err)
	}
	want := []Config{
		{Percent, 10},
		{Ratio, 5},
		{Scaled, 20},
		{Fraction, 14},
	}
	if len(configs) != len(want) {
		t.Fatalf("expected %d configs, got %d", len(want), len(configs))
	}
	for i := range want {
		if configs[i] != want[i] {
			t.Errorf("config %d = %+v, want %+v", i, configs[i], want[i])
		}
	}

	if got := FormatSpecs(configs); got != "ROC:10,ROCR:5,ROC100:20,ROCP:14" {
		t.Errorf("FormatSpecs = %s", got)
	}
}

func TestParseSpecs_Defaults(t *testing.T) {
	configs, err := ParseSpecs("  ")
	if err != nil {
		t.Fatalf("ParseSpecs: %v", err)
	}
	if FormatSpecs(configs) != DefaultSpecs {
		t.Errorf("expected defaults, got %s", FormatSpecs(configs))
	}
}

func TestParseSpecs_Errors(t *testing.T) {
	cases := map[string]error{
		"ROC":          nil,
		"ROC:abc":      nil,
		"SMA:10":       ErrUnknownVariant,
		"ROC:0":        ErrInvalidPeriod,
		"ROC:-2":       ErrInvalidPeriod,
		"ROC:5,ROC:5":  nil,
		"ROC:5,ROCR:x": nil,
	}
	for in, sentinel := range cases {
		_, err := ParseSpecs(in)
		if err == nil {
			t.Errorf("ParseSpecs(%q): expected error", in)
			continue
		}
		if sentinel != nil && !errors.Is(err, sentinel) {
			t.Errorf("ParseSpecs(%q): expected %v, got %v", in, sentinel, err)
		}
	}
}

func TestMaxPeriod(t *testing.T) {
	if MaxPeriod(nil) != 0 {
		t.Error("MaxPeriod(nil) should be 0")
	}
	got := MaxPeriod([]Config{{Percent, 3}, {Ratio, 12}, {Scaled, 7}})
	if got != 12 {
		t.Errorf("MaxPeriod = %d, want 12", got)
	}
}
