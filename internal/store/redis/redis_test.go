package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"rocengine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

func TestDecodeObservation(t *testing.T) {
	obs, err := DecodeObservation(map[string]interface{}{
		"data": `{"token":"2885","exchange":"NSE","value":101.5,"ts":"2024-01-15T10:30:00Z"}`,
	})
	if err != nil {
		t.Fatalf("DecodeObservation: %v", err)
	}
	if obs.Key() != "NSE:2885" || obs.Value != 101.5 {
		t.Errorf("unexpected observation: %+v", obs)
	}
	if !obs.TS.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("TS = %v", obs.TS)
	}
}

func TestDecodeObservation_StampsMissingTime(t *testing.T) {
	obs, err := DecodeObservation(map[string]interface{}{
		"data": `{"token":"1","exchange":"BSE","value":3}`,
	})
	if err != nil {
		t.Fatalf("DecodeObservation: %v", err)
	}
	if obs.TS.IsZero() {
		t.Error("expected a receive timestamp")
	}
}

func TestDecodeObservation_Malformed(t *testing.T) {
	cases := []map[string]interface{}{
		{},
		{"data": 42},
		{"data": "not json"},
		{"data": `{"exchange":"NSE","value":1}`},
		{"data": `{"token":"1","value":1}`},
	}
	for i, values := range cases {
		if _, err := DecodeObservation(values); !errors.Is(err, ErrMalformedObservation) {
			t.Errorf("case %d: expected ErrMalformedObservation, got %v", i, err)
		}
	}
}

func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestWriter_SkipsWarmupAndPreviewResults(t *testing.T) {
	client := unreachableClient()
	defer client.Close()
	w := NewWriter(client, WriterOptions{})

	n, err := w.WriteResultBatch(context.Background(), []model.IndicatorResult{
		{Name: "ROC_10", Token: "1", Exchange: "NSE"},
		{Name: "ROCR_10", Token: "1", Exchange: "NSE", Ready: true, Live: true},
	})
	if n != 0 || err != nil {
		t.Errorf("warm-up and preview batch: got %d,%v want 0,nil without touching Redis", n, err)
	}
}

func TestWriter_ReportsPipelineError(t *testing.T) {
	client := unreachableClient()
	defer client.Close()
	w := NewWriter(client, WriterOptions{StreamMaxLen: 100, LatestTTL: time.Minute})

	_, err := w.WriteResultBatch(context.Background(), []model.IndicatorResult{
		{Name: "ROC_10", Token: "1", Exchange: "NSE", Value: 1, Ready: true},
	})
	if err == nil {
		t.Error("expected error from unreachable Redis")
	}
}

func TestNewClient_PingFailure(t *testing.T) {
	if _, err := NewClient(Options{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected ping failure")
	}
}

func TestNewReader_Defaults(t *testing.T) {
	r := NewReader(nil, "", "")
	if r.consumerGroup != "rocengine" || r.consumerName != "rocengine-1" {
		t.Errorf("unexpected defaults: %s/%s", r.consumerGroup, r.consumerName)
	}
}
