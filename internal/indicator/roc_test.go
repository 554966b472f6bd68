package indicator

import (
	"errors"
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func mustROC(t *testing.T, period int, v Variant) *RateOfChange {
	t.Helper()
	r, err := NewRateOfChange(period, v)
	if err != nil {
		t.Fatalf("NewRateOfChange(%d, %s): %v", period, v, err)
	}
	return r
}

func assertClose(t *testing.T, label string, got, want, tol float32) {
	t.Helper()
	if float32(math.Abs(float64(got-want))) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func assertNone(t *testing.T, label string, v float32, ok bool) {
	t.Helper()
	if ok {
		t.Errorf("%s: expected no value, got %v", label, v)
	}
}

// ────────────────────────────────────────────────────────────
// Period 1 scenarios
// ────────────────────────────────────────────────────────────

func TestROC_Period1_Variants(t *testing.T) {
	cases := []struct {
		variant Variant
		want    float32
	}{
		{Percent, -50},
		{Ratio, 0.5},
		{Scaled, 50},
		{Fraction, -0.5},
	}
	for _, tc := range cases {
		t.Run(tc.variant.String(), func(t *testing.T) {
			roc := mustROC(t, 1, tc.variant)

			v, ok := roc.Next(100)
			assertNone(t, "first", v, ok)

			v, ok = roc.Next(50)
			if !ok {
				t.Fatal("second call should produce a value")
			}
			if v != tc.want {
				t.Errorf("got %v, want %v", v, tc.want)
			}
		})
	}
}

func TestROC_DefaultVariantIsPercent(t *testing.T) {
	roc, err := NewROC(1)
	if err != nil {
		t.Fatalf("NewROC: %v", err)
	}
	if roc.Variant() != Percent {
		t.Fatalf("expected Percent, got %s", roc.Variant())
	}
	roc.Next(100)
	if v, ok := roc.Next(50); !ok || v != -50 {
		t.Errorf("got %v,%v want -50,true", v, ok)
	}

	var zero Variant
	if zero != Percent {
		t.Error("zero Variant must be Percent")
	}
}

// ────────────────────────────────────────────────────────────
// Warm-up state machine
// ────────────────────────────────────────────────────────────

func TestROC_WarmupLength(t *testing.T) {
	for _, period := range []int{1, 2, 3, 7, 20} {
		roc := mustROC(t, period, Percent)
		for i := 0; i < period*3; i++ {
			if i < period && roc.Ready() {
				t.Fatalf("period=%d call %d: Ready() before warm-up finished", period, i)
			}
			v, ok := roc.Next(float64(100 + i))
			if i < period {
				if ok {
					t.Fatalf("period=%d call %d: expected no value, got %v", period, i+1, v)
				}
			} else if !ok {
				t.Fatalf("period=%d call %d: expected a value", period, i+1)
			}
			if roc.history.Size() > period {
				t.Fatalf("period=%d: history size %d exceeded period", period, roc.history.Size())
			}
		}
		if !roc.Ready() {
			t.Errorf("period=%d: expected Ready() after warm-up", period)
		}
	}
}

func TestROC_ComparesAgainstPeriodAgo(t *testing.T) {
	// Period 3, Ratio: each output is x[i] / x[i-3]
	roc := mustROC(t, 3, Ratio)
	inputs := []float64{10, 20, 40, 30, 60, 80, 15}
	for i, x := range inputs {
		v, ok := roc.Next(x)
		if i < 3 {
			assertNone(t, "warmup", v, ok)
			continue
		}
		want := float32(x / inputs[i-3])
		if !ok || v != want {
			t.Errorf("input %d: got %v,%v want %v", i, v, ok, want)
		}
	}
}

func TestROC_Correctness_Period2_Percent(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// ROC(2) after 104: (104/100 - 1)*100 = 4.0
	// after 103: (103/102 - 1)*100 = 0.980392
	// after 105: (105/104 - 1)*100 = 0.961538
	roc := mustROC(t, 2, Percent)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float32{0, 0, 4.0, 0.980392, 0.961538}

	for i, p := range prices {
		v, ok := roc.Next(p)
		if i < 2 {
			assertNone(t, "ROC(2) warmup", v, ok)
			continue
		}
		if !ok {
			t.Fatalf("price %d: expected value", i)
		}
		assertClose(t, "ROC(2)", v, expected[i], 0.0001)
	}
}

// ────────────────────────────────────────────────────────────
// Variant consistency
// ────────────────────────────────────────────────────────────

func TestROC_VariantConsistency(t *testing.T) {
	inputs := []float64{101.5, 99.25, 103.75, 98.0, 110.125, 95.5, 100.0, 104.25}
	period := 3

	ratio := mustROC(t, period, Ratio)
	pct := mustROC(t, period, Percent)
	frac := mustROC(t, period, Fraction)
	scaled := mustROC(t, period, Scaled)

	for i, x := range inputs {
		r, okR := ratio.Next(x)
		p, okP := pct.Next(x)
		f, okF := frac.Next(x)
		s, okS := scaled.Next(x)

		if okR != okP || okR != okF || okR != okS {
			t.Fatalf("input %d: variants disagree on readiness", i)
		}
		if !okR {
			continue
		}
		assertClose(t, "Percent vs (Ratio-1)*100", p, (r-1)*100, 1e-4)
		assertClose(t, "Scaled vs Ratio*100", s, r*100, 1e-4)
		assertClose(t, "Fraction vs Ratio-1", f, r-1, 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// Degenerate inputs
// ────────────────────────────────────────────────────────────

func TestROC_ZeroPrevious(t *testing.T) {
	roc := mustROC(t, 1, Ratio)
	roc.Next(0)

	v, ok := roc.Next(5)
	if !ok || !math.IsInf(float64(v), 1) {
		t.Errorf("5/0: got %v,%v want +Inf,true", v, ok)
	}

	roc = mustROC(t, 1, Percent)
	roc.Next(0)
	v, ok = roc.Next(0)
	if !ok || !math.IsNaN(float64(v)) {
		t.Errorf("0/0: got %v,%v want NaN,true", v, ok)
	}
}

// ────────────────────────────────────────────────────────────
// Construction, Peek, Reset
// ────────────────────────────────────────────────────────────

func TestROC_InvalidConstruction(t *testing.T) {
	for _, p := range []int{0, -3} {
		if _, err := NewRateOfChange(p, Percent); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("period=%d: expected ErrInvalidPeriod, got %v", p, err)
		}
	}
	if _, err := NewRateOfChange(5, Variant(42)); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestROC_Peek_DoesNotMutate(t *testing.T) {
	roc := mustROC(t, 2, Percent)
	roc.Next(100)

	if _, ok := roc.Peek(120); ok {
		t.Fatal("Peek during warm-up should yield no value")
	}
	roc.Next(110)

	peekVal, ok := roc.Peek(120)
	if !ok {
		t.Fatal("Peek after warm-up should yield a value")
	}
	assertClose(t, "Peek", peekVal, 20, 0.0001)

	// Peek must not have consumed a slot: Next(120) still compares against 100
	v, _ := roc.Next(120)
	if v != peekVal {
		t.Errorf("Next after Peek = %v, want %v", v, peekVal)
	}
	if got := roc.History(); len(got) != 2 || got[0] != 110 || got[1] != 120 {
		t.Errorf("History() = %v, want [110 120]", got)
	}
}

func TestROC_Reset(t *testing.T) {
	roc := mustROC(t, 2, Ratio)
	for _, x := range []float64{1, 2, 3, 4} {
		roc.Next(x)
	}
	if !roc.Ready() {
		t.Fatal("expected steady state before reset")
	}

	roc.Reset()
	if roc.Ready() {
		t.Fatal("expected warm-up state after reset")
	}
	if len(roc.History()) != 0 {
		t.Fatal("expected empty history after reset")
	}

	v, ok := roc.Next(10)
	assertNone(t, "after reset 1", v, ok)
	v, ok = roc.Next(20)
	assertNone(t, "after reset 2", v, ok)
	v, ok = roc.Next(30)
	if !ok || v != 3 {
		t.Errorf("after reset 3: got %v,%v want 3,true", v, ok)
	}
}

func TestROC_Name(t *testing.T) {
	cases := []struct {
		period  int
		variant Variant
		want    string
	}{
		{10, Percent, "ROC_10"},
		{5, Ratio, "ROCR_5"},
		{14, Fraction, "ROCP_14"},
		{20, Scaled, "ROC100_20"},
	}
	for _, tc := range cases {
		if got := mustROC(t, tc.period, tc.variant).Name(); got != tc.want {
			t.Errorf("Name() = %s, want %s", got, tc.want)
		}
	}
}
