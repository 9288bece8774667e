package domain

import (
	"context"
	"time"
)

// Repository is the optional downstream sink for completed predictions.
// The prediction core never depends on it; handlers and the async
// worker write through it when configured.
type Repository interface {
	// SavePrediction stores a completed prediction.
	SavePrediction(ctx context.Context, pred *Prediction) error

	// GetPrediction retrieves a prediction by ID.
	GetPrediction(ctx context.Context, id string) (*Prediction, error)

	// ListPredictions returns predictions created at or after since,
	// newest first, up to limit.
	ListPredictions(ctx context.Context, since time.Time, limit int) ([]*Prediction, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
