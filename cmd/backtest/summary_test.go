package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"rocengine/internal/indicator"
	"rocengine/internal/model"
)

func TestSummary(t *testing.T) {
	s := NewSummary([]indicator.Config{{Variant: indicator.Percent, Period: 1}, {Variant: indicator.Ratio, Period: 2}})

	s.Add(model.IndicatorResult{Name: "ROC_1"})
	s.Add(model.IndicatorResult{Name: "ROC_1", Ready: true, Value: 5})
	s.Add(model.IndicatorResult{Name: "ROC_1", Ready: true, Value: -2})
	s.Add(model.IndicatorResult{Name: "ROC_1", Ready: true, Value: float32(math.Inf(1)), Degenerate: true})
	s.Add(model.IndicatorResult{Name: "ROCR_2"})
	s.Add(model.IndicatorResult{Name: "SMA_3", Ready: true})
	s.Observations = 4

	st, ok := s.Stats("ROC_1")
	if !ok {
		t.Fatal("missing ROC_1 stats")
	}
	if st.Results != 4 || st.Ready != 3 || st.Degenerate != 1 {
		t.Errorf("counts = %+v", st)
	}
	if st.Min != -2 || st.Max != 5 || st.Last != -2 {
		t.Errorf("min/max/last = %v/%v/%v", st.Min, st.Max, st.Last)
	}
	if _, ok := s.Stats("SMA_3"); ok {
		t.Error("unconfigured indicator should be ignored")
	}

	var buf bytes.Buffer
	s.Write(&buf, 1500*time.Millisecond)
	out := buf.String()
	for _, want := range []string{"ROC_1", "ROCR_2", "5.0000", "-2.0000", "OBSERVATIONS"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSplitKeys(t *testing.T) {
	got := splitKeys(" NSE:1, ,BSE:2")
	if len(got) != 2 || got[0] != "NSE:1" || got[1] != "BSE:2" {
		t.Errorf("splitKeys = %v", got)
	}
	if splitKeys("") != nil {
		t.Error("empty input should yield nil")
	}
}
