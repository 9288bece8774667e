package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/opensource-health/materna/internal/cache"
	"github.com/opensource-health/materna/internal/domain"
	"github.com/opensource-health/materna/internal/model"
	"github.com/opensource-health/materna/internal/predict"
	"github.com/opensource-health/materna/internal/rules"
)

// fixedProbArtifact returns a single-leaf decision tree artifact whose
// positive probability is exactly p.
func fixedProbArtifact(p float64) string {
	return `{"algorithm": "decision_tree", "nodes": [{"feature": -1, "value": [` +
		strconv.FormatFloat(1-p, 'g', -1, 64) + `, ` +
		strconv.FormatFloat(p, 'g', -1, 64) + `]}]}`
}

type testServerOpts struct {
	probs        map[domain.RiskType]float64
	skipArtifact domain.RiskType
	alertRules   []domain.AlertRule
}

func newTestServer(t *testing.T, opts testServerOpts) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := domain.DefaultConfig()
	cfg.Models = domain.ModelsConfig{
		Dir:          dir,
		Sepsis:       "sepsis.json",
		Hypertension: "hipertension.json",
		Hemorrhage:   "hemorragia.json",
	}

	names := map[domain.RiskType]string{
		domain.RiskSepsis:       cfg.Models.Sepsis,
		domain.RiskHypertension: cfg.Models.Hypertension,
		domain.RiskHemorrhage:   cfg.Models.Hemorrhage,
	}
	for rt, name := range names {
		if rt == opts.skipArtifact {
			continue
		}
		p, ok := opts.probs[rt]
		if !ok {
			p = 0.1
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(fixedProbArtifact(p)), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}

	store := model.NewStore(cfg.Models)

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if len(opts.alertRules) > 0 {
		if err := engine.LoadRules(opts.alertRules); err != nil {
			t.Fatalf("load rules: %v", err)
		}
	}

	predictor := predict.NewPredictor(store, cfg.Prediction, engine)

	resultCache, err := cache.New(cfg.Cache)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { resultCache.Close() })

	return NewServer(cfg, store, predictor, nil, resultCache, nil, engine, "test")
}

func validPatientBody() map[string]any {
	return map[string]any{
		"edadMaterna":         32,
		"paridad":             2,
		"controlesPrenatales": 6,
		"semanasGestacion":    36.5,
		"hipertensionPrevia":  1,
		"diabetesGestacional": 0,
		"cesareaPrevia":       1,
		"embarazoMultiple":    0,
	}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestPredictEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerOpts{probs: map[domain.RiskType]float64{
		domain.RiskSepsis:       0.75,
		domain.RiskHypertension: 0.55,
		domain.RiskHemorrhage:   0.1,
	}})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict", validPatientBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var pred domain.Prediction
	if err := json.Unmarshal(rec.Body.Bytes(), &pred); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pred.ID == "" {
		t.Error("expected a prediction id")
	}
	if len(pred.Outcomes) != len(domain.RiskTypes) {
		t.Fatalf("expected %d outcomes, got %d", len(domain.RiskTypes), len(pred.Outcomes))
	}
	for i, rt := range domain.RiskTypes {
		if pred.Outcomes[i].RiskType != rt {
			t.Errorf("outcome %d: expected %s, got %s", i, rt, pred.Outcomes[i].RiskType)
		}
	}
	if pred.Outcomes[0].RiskLevel != domain.RiskLevelAlto {
		t.Errorf("expected alto for sepsis, got %s", pred.Outcomes[0].RiskLevel)
	}
	if pred.Summary.OverallRisk != domain.RiskLevelAlto {
		t.Errorf("expected overall alto, got %s", pred.Summary.OverallRisk)
	}
	if !pred.Summary.SpecialAttention {
		t.Error("expected special attention flag")
	}

	// The result must be readable back through the cache.
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/predictions/"+pred.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cached prediction, got %d", rec.Code)
	}
}

func TestPredictValidation(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	t.Run("age out of range", func(t *testing.T) {
		body := validPatientBody()
		body["edadMaterna"] = 12
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "edadMaterna") {
			t.Errorf("error should name the field: %s", rec.Body.String())
		}
	})

	t.Run("non binary flag", func(t *testing.T) {
		body := validPatientBody()
		body["embarazoMultiple"] = 2
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestPredictMissingArtifact(t *testing.T) {
	srv := newTestServer(t, testServerOpts{skipArtifact: domain.RiskHypertension})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict", validPatientBody())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPredictBatchEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerOpts{probs: map[domain.RiskType]float64{
		domain.RiskSepsis: 0.8,
	}})

	t.Run("two patients", func(t *testing.T) {
		body := map[string]any{
			"pacientes": []map[string]any{validPatientBody(), validPatientBody()},
		}
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict/batch", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp BatchResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Predictions) != 2 {
			t.Fatalf("expected 2 predictions, got %d", len(resp.Predictions))
		}
		if resp.Statistics.TotalProcessed != 2 {
			t.Errorf("expected total_procesados 2, got %d", resp.Statistics.TotalProcessed)
		}
		if resp.Statistics.SpecialAttention != 2 {
			t.Errorf("expected 2 patients flagged, got %d", resp.Statistics.SpecialAttention)
		}
	})

	t.Run("over the limit", func(t *testing.T) {
		patients := make([]map[string]any, 101)
		for i := range patients {
			patients[i] = validPatientBody()
		}
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict/batch", map[string]any{"pacientes": patients})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict/batch", map[string]any{"pacientes": []any{}})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid patient names index", func(t *testing.T) {
		bad := validPatientBody()
		bad["paridad"] = -1
		body := map[string]any{
			"pacientes": []map[string]any{validPatientBody(), bad},
		}
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict/batch", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "paciente 1") {
			t.Errorf("error should name the failing index: %s", rec.Body.String())
		}
	})
}

func TestPredictRiskEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerOpts{probs: map[domain.RiskType]float64{
		domain.RiskHemorrhage: 0.65,
	}})

	t.Run("valid type", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict/risk/hemorragia_posparto", validPatientBody())
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var outcome domain.RiskOutcome
		if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if outcome.RiskType != domain.RiskHemorrhage {
			t.Errorf("expected hemorragia_posparto, got %s", outcome.RiskType)
		}
		if outcome.RiskLevel != domain.RiskLevelModerado {
			t.Errorf("expected moderado, got %s", outcome.RiskLevel)
		}
		if outcome.Recommendation == "" {
			t.Error("expected a recommendation")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict/risk/preeclampsia", validPatientBody())
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestModelEndpoints(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	store := srv.Handler().store

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listing struct {
		Models []model.ArtifactInfo `json:"models"`
		Count  int                  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if listing.Count != len(domain.RiskTypes) {
		t.Fatalf("expected %d models, got %d", len(domain.RiskTypes), listing.Count)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/models/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !store.IsCached(domain.RiskSepsis) {
		t.Error("expected sepsis cached after reload")
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/models/"+string(domain.RiskSepsis), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evict: expected 200, got %d", rec.Code)
	}
	if store.IsCached(domain.RiskSepsis) {
		t.Error("expected sepsis evicted")
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/models/bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("evict bogus: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evict all: expected 200, got %d", rec.Code)
	}
	if len(store.Cached()) != 0 {
		t.Errorf("expected empty cache after evict all, got %d", len(store.Cached()))
	}
}

func TestAlertRulesEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerOpts{alertRules: []domain.AlertRule{
		{
			ID:         "edad-avanzada",
			Message:    "Edad materna avanzada",
			Severity:   "warning",
			Expression: "age >= 40",
			Enabled:    true,
		},
	}})

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/alerts/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Rules []domain.AlertRule `json:"rules"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Rules) != 1 {
		t.Fatalf("expected 1 rule, got count=%d len=%d", resp.Count, len(resp.Rules))
	}
	if resp.Rules[0].ID != "edad-avanzada" {
		t.Errorf("unexpected rule id %q", resp.Rules[0].ID)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version test, got %s", health.Version)
	}

	// Cold store: not ready until the models are warmed.
	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready cold: expected 503, got %d", rec.Code)
	}

	if err := srv.Handler().store.LoadAll(t.Context()); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready warm: expected 200, got %d", rec.Code)
	}
}

func TestGetPredictionNotFound(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/predictions/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListPredictionsWithoutRepository(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/predictions", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPredictFiresAlerts(t *testing.T) {
	srv := newTestServer(t, testServerOpts{
		probs: map[domain.RiskType]float64{domain.RiskSepsis: 0.9},
		alertRules: []domain.AlertRule{
			{
				ID:         "sepsis-critica",
				Message:    "Probabilidad de sepsis critica",
				Severity:   "critical",
				Expression: "p_sepsis >= 0.85",
				Enabled:    true,
			},
		},
	})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/predict", validPatientBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var pred domain.Prediction
	if err := json.Unmarshal(rec.Body.Bytes(), &pred); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(pred.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(pred.Alerts))
	}
	if pred.Alerts[0].RuleID != "sepsis-critica" {
		t.Errorf("unexpected rule id %q", pred.Alerts[0].RuleID)
	}
}
