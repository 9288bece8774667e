package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/opensource-health/materna/internal/domain"
	"github.com/opensource-health/materna/internal/metrics"
)

// ErrBatchTooLarge is returned before any inference runs when a batch
// exceeds the configured limit.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// PredictBatch runs PredictAll over a batch in order. The size limit
// is enforced up front; a failure on any record aborts the batch with
// the failing index attached, and no partial result is returned.
func (p *Predictor) PredictBatch(ctx context.Context, patients []domain.PatientRecord) ([]*domain.Prediction, error) {
	if len(patients) > p.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d patients, limit %d", ErrBatchTooLarge, len(patients), p.cfg.MaxBatchSize)
	}

	preds := make([]*domain.Prediction, 0, len(patients))
	for i, patient := range patients {
		pred, err := p.PredictAll(ctx, patient)
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", i, err)
		}
		preds = append(preds, pred)
	}

	metrics.RecordBatch(len(preds))
	return preds, nil
}

// Statistics aggregates a processed batch. An empty batch yields the
// zero statistics with percentages at 0 rather than NaN.
func Statistics(preds []*domain.Prediction) domain.BatchStatistics {
	stats := domain.BatchStatistics{
		TotalProcessed: len(preds),
		HighRiskByType: make(map[domain.RiskType]int, len(domain.RiskTypes)),
	}
	for _, rt := range domain.RiskTypes {
		stats.HighRiskByType[rt] = 0
	}

	for _, pred := range preds {
		switch pred.Summary.OverallRisk {
		case domain.RiskLevelAlto:
			stats.Distribution.Alto++
		case domain.RiskLevelModerado:
			stats.Distribution.Moderado++
		case domain.RiskLevelBajo:
			stats.Distribution.Bajo++
		case domain.RiskLevelMuyBajo:
			stats.Distribution.MuyBajo++
		}

		if pred.Summary.SpecialAttention {
			stats.SpecialAttention++
		}

		for _, out := range pred.Outcomes {
			if out.RiskLevel == domain.RiskLevelAlto {
				stats.HighRiskByType[out.RiskType]++
			}
		}
	}

	if stats.TotalProcessed > 0 {
		total := float64(stats.TotalProcessed)
		stats.SpecialAttentionPct = round2(float64(stats.SpecialAttention) / total * 100)
		stats.DistributionPct = domain.DistributionPct{
			Alto:     round2(float64(stats.Distribution.Alto) / total * 100),
			Moderado: round2(float64(stats.Distribution.Moderado) / total * 100),
			Bajo:     round2(float64(stats.Distribution.Bajo) / total * 100),
		}
	}

	return stats
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
