package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-health/materna/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "materna-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testPrediction(id string, createdAt time.Time) *domain.Prediction {
	return &domain.Prediction{
		ID: id,
		Patient: domain.PatientRecord{
			MaternalAge:      34,
			Parity:           2,
			PrenatalVisits:   5,
			GestationalWeeks: 36.5,
		},
		Outcomes: []domain.RiskOutcome{
			{
				RiskType:       domain.RiskSepsis,
				Probability:    0.72,
				RiskLevel:      domain.RiskLevelAlto,
				Confidence:     domain.ConfidenceMedia,
				Recommendation: domain.Recommendation(domain.RiskSepsis, domain.RiskLevelAlto),
			},
			{
				RiskType:    domain.RiskHypertension,
				Probability: 0.15,
				RiskLevel:   domain.RiskLevelMuyBajo,
				Confidence:  domain.ConfidenceAlta,
			},
		},
		Summary: domain.PatientSummary{
			OverallRisk:      domain.RiskLevelAlto,
			HighRiskCount:    1,
			SpecialAttention: true,
			HighestRisk:      domain.RiskSepsis,
			HighestProb:      0.72,
		},
		Alerts: []domain.Alert{
			{RuleID: "sepsis-critica", Message: "riesgo de sepsis elevado", Severity: "critical"},
		},
		CreatedAt: createdAt,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetPrediction", func(t *testing.T) {
		pred := testPrediction("pred-001", time.Now().UTC().Truncate(time.Second))

		if err := repo.SavePrediction(ctx, pred); err != nil {
			t.Fatalf("SavePrediction failed: %v", err)
		}

		got, err := repo.GetPrediction(ctx, "pred-001")
		if err != nil {
			t.Fatalf("GetPrediction failed: %v", err)
		}
		if got.ID != pred.ID {
			t.Errorf("ID = %q, want %q", got.ID, pred.ID)
		}
		if len(got.Outcomes) != 2 || got.Outcomes[0].RiskType != domain.RiskSepsis {
			t.Errorf("outcomes = %+v", got.Outcomes)
		}
		if got.Summary.OverallRisk != domain.RiskLevelAlto || !got.Summary.SpecialAttention {
			t.Errorf("summary = %+v", got.Summary)
		}
		if len(got.Alerts) != 1 || got.Alerts[0].RuleID != "sepsis-critica" {
			t.Errorf("alerts = %+v", got.Alerts)
		}
		if got.Patient.MaternalAge != 34 {
			t.Errorf("patient = %+v", got.Patient)
		}
	})

	t.Run("GetPredictionNotFound", func(t *testing.T) {
		_, err := repo.GetPrediction(ctx, "no-such-id")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("SaveRequiresID", func(t *testing.T) {
		err := repo.SavePrediction(ctx, &domain.Prediction{})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("PredictionWithoutAlerts", func(t *testing.T) {
		pred := testPrediction("pred-sin-alertas", time.Now().UTC().Truncate(time.Second))
		pred.Alerts = nil

		if err := repo.SavePrediction(ctx, pred); err != nil {
			t.Fatalf("SavePrediction failed: %v", err)
		}
		got, err := repo.GetPrediction(ctx, "pred-sin-alertas")
		if err != nil {
			t.Fatalf("GetPrediction failed: %v", err)
		}
		if got.Alerts != nil {
			t.Errorf("alerts = %+v, want nil", got.Alerts)
		}
	})
}

func TestListPredictions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		pred := testPrediction(id, base.Add(time.Duration(i)*10*time.Minute))
		if err := repo.SavePrediction(ctx, pred); err != nil {
			t.Fatalf("SavePrediction(%s): %v", id, err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := repo.ListPredictions(ctx, base, 10)
		if err != nil {
			t.Fatalf("ListPredictions: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d predictions", len(got))
		}
		if got[0].ID != "new" || got[2].ID != "old" {
			t.Errorf("order = %q, %q, %q", got[0].ID, got[1].ID, got[2].ID)
		}
	})

	t.Run("since filter", func(t *testing.T) {
		got, err := repo.ListPredictions(ctx, base.Add(15*time.Minute), 10)
		if err != nil {
			t.Fatalf("ListPredictions: %v", err)
		}
		if len(got) != 1 || got[0].ID != "new" {
			t.Errorf("got %d predictions, first %q", len(got), got[0].ID)
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := repo.ListPredictions(ctx, base, 2)
		if err != nil {
			t.Fatalf("ListPredictions: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d predictions, want 2", len(got))
		}
	})
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
