// Package worker provides async persistence of completed predictions.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-health/materna/internal/domain"
)

// Worker consumes completed predictions from the EventBus and writes
// them to the repository, keeping persistence off the request path.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the prediction and alert topics.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicPredictionCompleted, w.handlePrediction)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	alertSub, err := w.bus.Subscribe(w.ctx, domain.TopicAlertFired, w.handleAlert)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, alertSub)

	slog.Info("worker started",
		"topics", []string{domain.TopicPredictionCompleted, domain.TopicAlertFired},
	)
	return nil
}

// Stop cancels all subscriptions.
func (w *Worker) Stop() {
	w.cancel()
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	slog.Info("worker stopped")
}

// handlePrediction persists one completed prediction.
func (w *Worker) handlePrediction(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var pred domain.Prediction
	if err := json.Unmarshal(msg.Payload, &pred); err != nil {
		slog.Error("failed to parse prediction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.repo.SavePrediction(ctx, &pred); err != nil {
		slog.Error("failed to persist prediction",
			"prediction_id", pred.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("prediction persisted",
		"prediction_id", pred.ID,
		"overall_risk", pred.Summary.OverallRisk,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// alertEvent is the payload published on the alert topic.
type alertEvent struct {
	PredictionID string       `json:"predictionId"`
	Alert        domain.Alert `json:"alerta"`
}

// handleAlert logs fired clinical alerts for operational visibility.
func (w *Worker) handleAlert(ctx context.Context, msg *domain.Message) error {
	var ev alertEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse alert message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Warn("clinical alert fired",
		"prediction_id", ev.PredictionID,
		"rule_id", ev.Alert.RuleID,
		"severity", ev.Alert.Severity,
		"message", ev.Alert.Message,
	)
	return nil
}
