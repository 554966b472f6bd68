package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"rocengine/internal/indicator"
	"rocengine/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeController struct {
	configs []indicator.Config
	latest  map[string][]model.IndicatorResult
	history map[string][]float64
	resets  []string
}

func (f *fakeController) Configs() []indicator.Config { return f.configs }

func (f *fakeController) Keys() []string {
	keys := make([]string, 0, len(f.latest))
	for k := range f.latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeController) Latest(key string) ([]model.IndicatorResult, bool) {
	r, ok := f.latest[key]
	return r, ok
}

func (f *fakeController) History(key, name string) ([]float64, bool) {
	h, ok := f.history[key+"/"+name]
	return h, ok
}

func (f *fakeController) Peek(obs model.Observation) []model.IndicatorResult {
	if _, ok := f.latest[obs.Key()]; !ok {
		return nil
	}
	return []model.IndicatorResult{{
		Name: "ROC_10", Token: obs.Token, Exchange: obs.Exchange,
		Value: float32(obs.Value), Ready: true, Live: true,
	}}
}

func (f *fakeController) Reload(configs []indicator.Config) (int, int, error) {
	if err := indicator.ValidateConfigs(configs); err != nil {
		return 0, 0, err
	}
	f.configs = configs
	return 1, len(configs) - 1, nil
}

func (f *fakeController) Reset(key string) bool {
	if _, ok := f.latest[key]; !ok {
		return false
	}
	f.resets = append(f.resets, key)
	return true
}

func (f *fakeController) ResetAll() int { return len(f.latest) }

func newTestServer(t *testing.T) (*fakeController, http.Handler) {
	t.Helper()
	ctrl := &fakeController{
		configs: []indicator.Config{{Variant: indicator.Percent, Period: 10}},
		latest: map[string][]model.IndicatorResult{
			"NSE:2885": {
				{Name: "ROC_10", Token: "2885", Exchange: "NSE", Value: 1.25, Ready: true},
				{Name: "ROCR_10", Token: "2885", Exchange: "NSE", Value: float32(math.Inf(1)), Ready: true, Degenerate: true},
			},
		},
		history: map[string][]float64{"NSE:2885/ROC_10": {100, 101}},
	}
	health := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := NewServer(":0", ctrl, health, prometheus.NewRegistry())
	return ctrl, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(path, "/v1") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestHealthzAndMetrics(t *testing.T) {
	_, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("/healthz: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics: %d", rec.Code)
	}
}

func TestListIndicators(t *testing.T) {
	_, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/indicators", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `{"variant":"ROC","period":10}`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestListInstruments(t *testing.T) {
	_, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/instruments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `{"key":"NSE:2885","exchange":"NSE","token":"2885"}`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestLatest(t *testing.T) {
	_, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/latest/NSE/2885", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"value":1.25`) {
		t.Errorf("missing finite value: %s", body)
	}
	if !strings.Contains(body, `"value":null`) || !strings.Contains(body, `"degenerate":true`) {
		t.Errorf("non-finite value should encode as null with degenerate flag: %s", body)
	}

	rec, _ = do(t, h, http.MethodGet, "/v1/latest/NSE/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown instrument: status = %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	_, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/history/NSE/2885/ROC_10", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"values":[100,101]`) {
		t.Errorf("history: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, h, http.MethodGet, "/v1/history/NSE/2885/ROC_99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown indicator: status = %d", rec.Code)
	}
}

func TestPeek(t *testing.T) {
	_, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/peek/NSE/2885?value=2.5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"value":2.5`) {
		t.Errorf("peek: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, h, http.MethodGet, "/v1/peek/NSE/2885?value=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad value: status = %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodGet, "/v1/peek/NSE/unknown?value=1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown instrument: status = %d", rec.Code)
	}
}

func TestReload(t *testing.T) {
	ctrl, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodPost, "/v1/reload",
		`{"indicators":[{"variant":"ROC","period":10},{"variant":"rocr","period":5},{"period":3}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data ReloadResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Preserved != 1 || resp.Data.Created != 2 || resp.Data.Indicators != "ROC:10,ROCR:5,ROC:3" {
		t.Errorf("unexpected response: %+v", resp.Data)
	}
	if len(ctrl.configs) != 3 || ctrl.configs[2] != (indicator.Config{Variant: indicator.Percent, Period: 3}) {
		t.Errorf("controller configs = %+v", ctrl.configs)
	}
}

func TestReload_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty list":     `{"indicators":[]}`,
		"missing list":   `{}`,
		"zero period":    `{"indicators":[{"variant":"ROC","period":0}]}`,
		"negative":       `{"indicators":[{"variant":"ROC","period":-1}]}`,
		"unknown":        `{"indicators":[{"variant":"EMA","period":3}]}`,
		"duplicate":      `{"indicators":[{"variant":"ROC","period":3},{"variant":"roc","period":3}]}`,
		"malformed json": `{"indicators":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ctrl, h := newTestServer(t)
			rec, resp := do(t, h, http.MethodPost, "/v1/reload", body)
			if rec.Code != http.StatusBadRequest || resp.Status != http.StatusBadRequest {
				t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if len(ctrl.configs) != 1 {
				t.Errorf("configs changed on rejected reload: %+v", ctrl.configs)
			}
		})
	}
}

func TestReset(t *testing.T) {
	ctrl, h := newTestServer(t)

	rec, _ := do(t, h, http.MethodPost, "/v1/reset/NSE/2885", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("reset known: status = %d", rec.Code)
	}
	if len(ctrl.resets) != 1 || ctrl.resets[0] != "NSE:2885" {
		t.Errorf("resets = %v", ctrl.resets)
	}

	rec, _ = do(t, h, http.MethodPost, "/v1/reset/NSE/none", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("reset unknown: status = %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodPost, "/v1/reset", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"reset":1`) {
		t.Errorf("reset all: %d %s", rec.Code, rec.Body.String())
	}
}
