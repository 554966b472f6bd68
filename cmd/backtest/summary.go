package main

import (
	"fmt"
	"io"
	"math"
	"time"

	"rocengine/internal/indicator"
	"rocengine/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
)

// IndicatorStats aggregates the results of one indicator across instruments.
type IndicatorStats struct {
	Name       string
	Results    int
	Ready      int
	Degenerate int
	Min        float32
	Max        float32
	Last       float32
}

// Summary collects backtest statistics in configured indicator order.
type Summary struct {
	Observations int
	stats        []*IndicatorStats
	byName       map[string]*IndicatorStats
}

func NewSummary(configs []indicator.Config) *Summary {
	s := &Summary{byName: make(map[string]*IndicatorStats, len(configs))}
	for _, cfg := range configs {
		st := &IndicatorStats{Name: cfg.Name(), Min: float32(math.Inf(1)), Max: float32(math.Inf(-1))}
		s.stats = append(s.stats, st)
		s.byName[st.Name] = st
	}
	return s
}

// Add folds one result in. Min and Max only track finite ready values.
func (s *Summary) Add(r model.IndicatorResult) {
	st, ok := s.byName[r.Name]
	if !ok {
		return
	}
	st.Results++
	if !r.Ready {
		return
	}
	st.Ready++
	if r.Degenerate {
		st.Degenerate++
		return
	}
	st.Last = r.Value
	if r.Value < st.Min {
		st.Min = r.Value
	}
	if r.Value > st.Max {
		st.Max = r.Value
	}
}

func (s *Summary) Stats(name string) (IndicatorStats, bool) {
	st, ok := s.byName[name]
	if !ok {
		return IndicatorStats{}, false
	}
	return *st, true
}

func (s *Summary) Write(w io.Writer, took time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Backtest Complete")
	t.AppendHeader(table.Row{"INDICATOR", "RESULTS", "READY", "DEGENERATE", "MIN", "MAX", "LAST"})
	for _, st := range s.stats {
		if st.Ready-st.Degenerate == 0 {
			t.AppendRow(table.Row{st.Name, st.Results, st.Ready, st.Degenerate, "", "", ""})
			continue
		}
		t.AppendRow(table.Row{
			st.Name, st.Results, st.Ready, st.Degenerate,
			fmt.Sprintf("%.4f", st.Min), fmt.Sprintf("%.4f", st.Max), fmt.Sprintf("%.4f", st.Last),
		})
	}
	t.AppendFooter(table.Row{"OBSERVATIONS", s.Observations, "", "", "", "TOOK", took.Round(time.Millisecond).String()})
	t.Render()
}
