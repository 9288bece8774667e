package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-health/materna/internal/cache"
	"github.com/opensource-health/materna/internal/domain"
	"github.com/opensource-health/materna/internal/model"
	"github.com/opensource-health/materna/internal/predict"
	"github.com/opensource-health/materna/internal/repository"
	"github.com/opensource-health/materna/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	cfg         *domain.Config
	store       *model.Store
	predictor   *predict.Predictor
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	alertEngine *rules.Engine
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(cfg *domain.Config, store *model.Store, predictor *predict.Predictor, repo domain.Repository, resultCache domain.Cache, bus domain.EventBus, alertEngine *rules.Engine, version string) *Handler {
	return &Handler{
		cfg:         cfg,
		store:       store,
		predictor:   predictor,
		repo:        repo,
		cache:       resultCache,
		bus:         bus,
		alertEngine: alertEngine,
		version:     version,
	}
}

// BatchRequest is the request body for POST /api/v1/predict/batch.
type BatchRequest struct {
	Patients []domain.PatientRecord `json:"pacientes"`
}

// BatchResponse is the response for POST /api/v1/predict/batch.
type BatchResponse struct {
	Predictions []*domain.Prediction   `json:"predicciones"`
	Statistics  domain.BatchStatistics `json:"estadisticas"`
}

// Predict handles POST /api/v1/predict: full three-risk classification
// of a single patient.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var patient domain.PatientRecord
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := patient.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	pred, err := h.predictor.PredictAll(ctx, patient)
	if err != nil {
		h.writePredictionError(w, err)
		return
	}

	h.finishPrediction(r, pred)

	writeJSON(w, http.StatusOK, pred)
}

// PredictBatch handles POST /api/v1/predict/batch.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Patients) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pacientes must not be empty",
		})
		return
	}
	if max := h.cfg.Prediction.MaxBatchSize; len(req.Patients) > max {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("batch of %d exceeds the limit of %d patients", len(req.Patients), max),
		})
		return
	}
	for i, patient := range req.Patients {
		if err := patient.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("paciente %d: %v", i, err),
			})
			return
		}
	}

	preds, err := h.predictor.PredictBatch(ctx, req.Patients)
	if err != nil {
		if errors.Is(err, predict.ErrBatchTooLarge) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		h.writePredictionError(w, err)
		return
	}

	for _, pred := range preds {
		h.finishPrediction(r, pred)
	}

	writeJSON(w, http.StatusOK, BatchResponse{
		Predictions: preds,
		Statistics:  predict.Statistics(preds),
	})
}

// PredictRisk handles POST /api/v1/predict/risk/{riskType}: a single
// classifier run without the cross-risk summary.
func (h *Handler) PredictRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rt := domain.RiskType(chi.URLParam(r, "riskType"))
	if !rt.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown risk type %q, valid: %v", rt, domain.RiskTypes),
		})
		return
	}

	var patient domain.PatientRecord
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := patient.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	outcome, err := h.predictor.ClassifyRisk(ctx, rt, patient)
	if err != nil {
		h.writePredictionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GetPrediction handles GET /api/v1/predictions/{id}, reading through
// the result cache before the repository.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.cache != nil {
		if pred, err := cache.GetPrediction(ctx, h.cache, id); err == nil && pred != nil {
			writeJSON(w, http.StatusOK, pred)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	pred, err := h.repo.GetPrediction(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get prediction", "id", id, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	if h.cache != nil {
		if err := cache.SetPrediction(ctx, h.cache, pred, h.cfg.Cache.LocalTTL); err != nil {
			slog.Warn("failed to cache prediction", "id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, pred)
}

// ListPredictions handles GET /api/v1/predictions with optional since
// (RFC 3339) and limit query parameters.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC 3339",
			})
			return
		}
		since = parsed
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	preds, err := h.repo.ListPredictions(ctx, since, limit)
	if err != nil {
		slog.Error("failed to list predictions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list predictions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"predicciones": preds,
		"count":        len(preds),
	})
}

// ListModels handles GET /api/v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	infos := h.store.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"models": infos,
		"count":  len(infos),
	})
}

// ReloadModels handles POST /api/v1/models/reload: evicts every cached
// bundle and warms the cache from disk.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	h.store.EvictAll()
	if err := h.store.LoadAll(r.Context()); err != nil {
		slog.Error("model reload failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model reload failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "models reloaded",
		"models":  h.store.Info(),
	})
}

// EvictModel handles DELETE /api/v1/models/{riskType}.
func (h *Handler) EvictModel(w http.ResponseWriter, r *http.Request) {
	rt := domain.RiskType(chi.URLParam(r, "riskType"))
	if !rt.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown risk type %q, valid: %v", rt, domain.RiskTypes),
		})
		return
	}

	h.store.Evict(rt)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("model %s evicted", rt),
	})
}

// EvictAllModels handles DELETE /api/v1/models.
func (h *Handler) EvictAllModels(w http.ResponseWriter, r *http.Request) {
	h.store.EvictAll()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "all models evicted",
	})
}

// ListAlertRules handles GET /api/v1/alerts/rules.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	var loaded []domain.AlertRule
	if h.alertEngine != nil {
		loaded = h.alertEngine.LoadedRules()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// Health returns server health status, including which model bundles
// are resident.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	cached := make([]domain.RiskType, 0, len(domain.RiskTypes))
	for _, rt := range domain.RiskTypes {
		if h.store.IsCached(rt) {
			cached = append(cached, rt)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"version":      h.version,
		"modelsLoaded": cached,
	})
}

// Ready returns whether the server is ready to accept traffic. The
// process only serves after a successful warm-up, so readiness means
// every model bundle is resident.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	for _, rt := range domain.RiskTypes {
		if !h.store.IsCached(rt) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready":   "false",
				"missing": string(rt),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// finishPrediction caches the result and hands it to the async
// pipeline. Downstream failures are logged, never surfaced: the
// prediction already succeeded.
func (h *Handler) finishPrediction(r *http.Request, pred *domain.Prediction) {
	ctx := r.Context()

	if h.cache != nil {
		if err := cache.SetPrediction(ctx, h.cache, pred, h.cfg.Cache.LocalTTL); err != nil {
			slog.Warn("failed to cache prediction", "prediction_id", pred.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, err := json.Marshal(pred)
		if err == nil {
			if err := h.bus.Publish(ctx, domain.TopicPredictionCompleted, payload); err != nil {
				slog.Error("failed to publish prediction", "prediction_id", pred.ID, "error", err)
			}
		}

		for _, alert := range pred.Alerts {
			event, err := json.Marshal(map[string]any{
				"predictionId": pred.ID,
				"alerta":       alert,
			})
			if err != nil {
				continue
			}
			if err := h.bus.Publish(ctx, domain.TopicAlertFired, event); err != nil {
				slog.Error("failed to publish alert", "prediction_id", pred.ID, "rule_id", alert.RuleID, "error", err)
			}
		}
		return
	}

	// No bus configured: persist synchronously when possible.
	if h.repo != nil {
		if err := h.repo.SavePrediction(ctx, pred); err != nil {
			slog.Error("failed to save prediction", "prediction_id", pred.ID, "error", err)
		}
	}
}

// writePredictionError maps core errors to HTTP status codes.
func (h *Handler) writePredictionError(w http.ResponseWriter, err error) {
	var loadErr *model.LoadError
	var infErr *model.InferenceError

	switch {
	case errors.Is(err, model.ErrUnknownRiskType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, model.ErrArtifactNotFound), errors.As(err, &loadErr):
		slog.Error("model unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &infErr):
		slog.Error("inference failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		slog.Error("prediction failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "prediction failed"})
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
