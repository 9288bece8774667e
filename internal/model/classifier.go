// Package model provides the classifier implementations, the artifact
// codec and the process-wide model store.
package model

import (
	"fmt"
	"math"
)

// Classifier is a pre-trained two-class probability estimator.
type Classifier interface {
	// PredictProba returns [P(negative), P(positive)] for a feature
	// vector. Index 1 drives all downstream classification.
	PredictProba(features []float64) ([2]float64, error)

	// Algorithm names the classifier family for logging and model info.
	Algorithm() string
}

// LogisticRegression is a binary logistic classifier.
type LogisticRegression struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// PredictProba computes sigmoid(w·x + b).
func (m *LogisticRegression) PredictProba(features []float64) ([2]float64, error) {
	if len(features) != len(m.Coefficients) {
		return [2]float64{}, fmt.Errorf("feature count mismatch: model has %d coefficients, got %d features",
			len(m.Coefficients), len(features))
	}

	z := m.Intercept
	for i, w := range m.Coefficients {
		z += w * features[i]
	}

	p := 1.0 / (1.0 + math.Exp(-z))
	if math.IsNaN(p) {
		return [2]float64{}, fmt.Errorf("logistic output is NaN for z=%g", z)
	}
	return [2]float64{1 - p, p}, nil
}

func (m *LogisticRegression) Algorithm() string { return "logistic_regression" }

// TreeNode is one node of a serialized decision tree. Internal nodes
// carry a feature index and threshold with left/right child indices;
// leaves have Feature == -1 and per-class sample counts in Value.
type TreeNode struct {
	Feature   int        `json:"feature"`
	Threshold float64    `json:"threshold"`
	Left      int        `json:"left"`
	Right     int        `json:"right"`
	Value     [2]float64 `json:"value"`
}

// DecisionTree is a binary classification tree stored as a flat node
// array with the root at index 0.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// PredictProba walks the tree and normalizes the leaf class counts.
func (m *DecisionTree) PredictProba(features []float64) ([2]float64, error) {
	if len(m.Nodes) == 0 {
		return [2]float64{}, fmt.Errorf("decision tree has no nodes")
	}

	idx := 0
	// A well-formed tree reaches a leaf in at most len(Nodes) steps;
	// the bound turns a malformed cyclic artifact into an error.
	for steps := 0; steps <= len(m.Nodes); steps++ {
		node := m.Nodes[idx]
		if node.Feature < 0 {
			total := node.Value[0] + node.Value[1]
			if total <= 0 || math.IsNaN(total) {
				return [2]float64{}, fmt.Errorf("leaf node %d has invalid class counts %v", idx, node.Value)
			}
			return [2]float64{node.Value[0] / total, node.Value[1] / total}, nil
		}

		if node.Feature >= len(features) {
			return [2]float64{}, fmt.Errorf("node %d references feature %d, vector has %d", idx, node.Feature, len(features))
		}

		next := node.Right
		if features[node.Feature] <= node.Threshold {
			next = node.Left
		}
		if next < 0 || next >= len(m.Nodes) {
			return [2]float64{}, fmt.Errorf("node %d has child index %d out of range", idx, next)
		}
		idx = next
	}

	return [2]float64{}, fmt.Errorf("tree walk did not terminate; artifact is malformed")
}

func (m *DecisionTree) Algorithm() string { return "decision_tree" }

// StandardScaler centers and scales features: (x - mean) / scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the scaled copy of features.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) || len(features) != len(s.Scale) {
		return nil, fmt.Errorf("scaler length mismatch: mean=%d scale=%d features=%d",
			len(s.Mean), len(s.Scale), len(features))
	}

	out := make([]float64, len(features))
	for i, x := range features {
		scale := s.Scale[i]
		if scale == 0 {
			// Zero-variance feature: pass through centered only.
			scale = 1
		}
		out[i] = (x - s.Mean[i]) / scale
	}
	return out, nil
}
