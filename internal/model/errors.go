package model

import (
	"errors"
	"fmt"

	"github.com/opensource-health/materna/internal/domain"
)

var (
	// ErrUnknownRiskType is returned for risk-type keys outside the
	// closed set. The caller sent a bad key; nothing was loaded.
	ErrUnknownRiskType = errors.New("unknown risk type")

	// ErrArtifactNotFound is returned when the configured artifact
	// file does not exist on disk.
	ErrArtifactNotFound = errors.New("model artifact not found")
)

// LoadError wraps a failure to deserialize an artifact that exists on
// disk. Nothing is cached for the risk type after a LoadError.
type LoadError struct {
	RiskType domain.RiskType
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading model %q: %v", e.RiskType, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InferenceError reports a numerical failure during prediction. It is
// fatal for the request; probabilities are never coerced into a tier.
type InferenceError struct {
	RiskType domain.RiskType
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for %q: %v", e.RiskType, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
