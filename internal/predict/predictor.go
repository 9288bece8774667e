// Package predict turns patient records into classified risk
// predictions using the cached model bundles.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-health/materna/internal/domain"
	"github.com/opensource-health/materna/internal/metrics"
	"github.com/opensource-health/materna/internal/model"
)

// AlertEvaluator checks a finished prediction against the configured
// clinical alert rules. Evaluation must never fail a prediction; rule
// errors are the evaluator's to log and swallow.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, patient domain.PatientRecord, outcomes []domain.RiskOutcome, summary domain.PatientSummary) []domain.Alert
}

// Predictor runs inference across all risk types and derives the
// patient summary. Safe for concurrent use.
type Predictor struct {
	store  *model.Store
	cfg    domain.PredictionConfig
	alerts AlertEvaluator
}

// NewPredictor wires a predictor to a model store. alerts may be nil
// when no alert rules are configured.
func NewPredictor(store *model.Store, cfg domain.PredictionConfig, alerts AlertEvaluator) *Predictor {
	return &Predictor{store: store, cfg: cfg, alerts: alerts}
}

// ClassifyRisk runs one classifier over a patient record and maps the
// positive-class probability to a risk level, confidence level and
// recommendation. The record is assumed validated at the boundary.
func (p *Predictor) ClassifyRisk(ctx context.Context, rt domain.RiskType, patient domain.PatientRecord) (domain.RiskOutcome, error) {
	bundle, err := p.store.Get(ctx, rt)
	if err != nil {
		return domain.RiskOutcome{}, err
	}

	features := patient.FeatureVector()
	if bundle.Scaler != nil {
		features, err = bundle.Scaler.Transform(features)
		if err != nil {
			return domain.RiskOutcome{}, &model.InferenceError{RiskType: rt, Err: err}
		}
	}

	probs, err := bundle.Classifier.PredictProba(features)
	if err != nil {
		return domain.RiskOutcome{}, &model.InferenceError{RiskType: rt, Err: err}
	}

	prob := probs[1]
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return domain.RiskOutcome{}, &model.InferenceError{
			RiskType: rt,
			Err:      fmt.Errorf("probability %g outside [0,1]", prob),
		}
	}

	// Band on the raw probability; only the reported value is rounded.
	// Rounding first would promote probabilities just under a bound
	// (0.69996 rounds to 0.7) into the higher band.
	level := p.riskLevel(prob)

	return domain.RiskOutcome{
		RiskType:       rt,
		Probability:    round4(prob),
		RiskLevel:      level,
		Confidence:     p.confidence(prob),
		Recommendation: domain.Recommendation(rt, level),
	}, nil
}

// PredictAll evaluates every risk type in fixed order and assembles
// the full prediction. All-or-nothing: a failure on any risk type
// fails the whole call and no partial result escapes.
func (p *Predictor) PredictAll(ctx context.Context, patient domain.PatientRecord) (*domain.Prediction, error) {
	start := time.Now()

	outcomes := make([]domain.RiskOutcome, 0, len(domain.RiskTypes))
	for _, rt := range domain.RiskTypes {
		out, err := p.ClassifyRisk(ctx, rt, patient)
		if err != nil {
			metrics.RecordPredictionError()
			return nil, err
		}
		outcomes = append(outcomes, out)
	}

	pred := &domain.Prediction{
		ID:        uuid.New().String(),
		Patient:   patient,
		Outcomes:  outcomes,
		Summary:   summarize(outcomes),
		CreatedAt: time.Now().UTC(),
	}

	if p.alerts != nil {
		pred.Alerts = p.alerts.Evaluate(ctx, patient, outcomes, pred.Summary)
		for _, alert := range pred.Alerts {
			metrics.RecordAlert(alert.Severity)
		}
	}

	metrics.RecordPrediction(string(pred.Summary.OverallRisk), time.Since(start))

	slog.Debug("prediction complete",
		"prediction_id", pred.ID,
		"overall_risk", pred.Summary.OverallRisk,
		"alerts", len(pred.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return pred, nil
}

// riskLevel bands a probability top-down. Thresholds are inclusive, so
// a probability exactly at a bound lands in the higher band.
func (p *Predictor) riskLevel(prob float64) domain.RiskLevel {
	switch {
	case prob >= p.cfg.HighRisk:
		return domain.RiskLevelAlto
	case prob >= p.cfg.ModerateRisk:
		return domain.RiskLevelModerado
	case prob >= p.cfg.LowRisk:
		return domain.RiskLevelBajo
	default:
		return domain.RiskLevelMuyBajo
	}
}

// confidence measures decisiveness as distance from 0.5, symmetric in
// prob and 1-prob. The high band is checked first so its overlap with
// the medium bound resolves upward.
func (p *Predictor) confidence(prob float64) domain.ConfidenceLevel {
	switch {
	case prob >= p.cfg.HighConfidence || prob <= 1-p.cfg.HighConfidence:
		return domain.ConfidenceAlta
	case prob >= p.cfg.LowConfidence || prob <= 1-p.cfg.LowConfidence:
		return domain.ConfidenceMedia
	default:
		return domain.ConfidenceBaja
	}
}

// summarize derives the patient summary from the outcome list. The
// highest-risk pick uses a strict comparison, so on a tie the earlier
// risk type in evaluation order wins.
func summarize(outcomes []domain.RiskOutcome) domain.PatientSummary {
	var s domain.PatientSummary

	for i, out := range outcomes {
		switch out.RiskLevel {
		case domain.RiskLevelAlto:
			s.HighRiskCount++
		case domain.RiskLevelModerado:
			s.ModerateRiskCount++
		case domain.RiskLevelBajo:
			s.LowRiskCount++
		}

		if i == 0 || out.Probability > s.HighestProb {
			s.HighestRisk = out.RiskType
			s.HighestProb = out.Probability
		}
	}

	switch {
	case s.HighRiskCount > 0:
		s.OverallRisk = domain.RiskLevelAlto
	case s.ModerateRiskCount > 0:
		s.OverallRisk = domain.RiskLevelModerado
	case s.LowRiskCount > 0:
		s.OverallRisk = domain.RiskLevelBajo
	default:
		s.OverallRisk = domain.RiskLevelMuyBajo
	}

	s.SpecialAttention = s.HighRiskCount > 0 || s.ModerateRiskCount >= 2

	return s
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
