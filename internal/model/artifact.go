package model

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/opensource-health/materna/internal/domain"
)

// Bundle is the cached in-memory unit for one risk type: a classifier,
// an optional feature scaler and optional metadata. Bundles are never
// mutated after creation; replacing one means evicting and reloading.
type Bundle struct {
	RiskType   domain.RiskType
	Classifier Classifier
	Scaler     *StandardScaler
	Metadata   map[string]string
	Path       string
	LoadedAt   time.Time
}

// classifierDoc is the on-disk shape of a classifier.
type classifierDoc struct {
	Algorithm    string     `json:"algorithm"`
	Coefficients []float64  `json:"coefficients,omitempty"`
	Intercept    float64    `json:"intercept,omitempty"`
	Nodes        []TreeNode `json:"nodes,omitempty"`
}

// artifactDoc covers both artifact shapes: a bundle object with an
// explicit "classifier" key, or a bare classifier document. Shape
// sniffing happens once here; every call site sees a normalized Bundle.
type artifactDoc struct {
	Classifier *classifierDoc  `json:"classifier"`
	Scaler     *StandardScaler `json:"scaler"`

	// Bare-classifier form
	Algorithm    string     `json:"algorithm"`
	Coefficients []float64  `json:"coefficients"`
	Intercept    float64    `json:"intercept"`
	Nodes        []TreeNode `json:"nodes"`
}

// decodeArtifact parses an artifact file into a classifier and an
// optional scaler.
func decodeArtifact(data []byte) (Classifier, *StandardScaler, error) {
	var doc artifactDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid artifact JSON: %w", err)
	}

	var cdoc classifierDoc
	var scaler *StandardScaler

	if doc.Classifier != nil {
		cdoc = *doc.Classifier
		scaler = doc.Scaler
	} else {
		cdoc = classifierDoc{
			Algorithm:    doc.Algorithm,
			Coefficients: doc.Coefficients,
			Intercept:    doc.Intercept,
			Nodes:        doc.Nodes,
		}
	}

	clf, err := buildClassifier(cdoc)
	if err != nil {
		return nil, nil, err
	}
	return clf, scaler, nil
}

func buildClassifier(doc classifierDoc) (Classifier, error) {
	switch doc.Algorithm {
	case "logistic_regression":
		if len(doc.Coefficients) == 0 {
			return nil, fmt.Errorf("logistic_regression artifact has no coefficients")
		}
		return &LogisticRegression{
			Coefficients: doc.Coefficients,
			Intercept:    doc.Intercept,
		}, nil

	case "decision_tree":
		if len(doc.Nodes) == 0 {
			return nil, fmt.Errorf("decision_tree artifact has no nodes")
		}
		return &DecisionTree{Nodes: doc.Nodes}, nil

	case "":
		return nil, fmt.Errorf("artifact is missing the algorithm field")

	default:
		return nil, fmt.Errorf("unsupported algorithm %q", doc.Algorithm)
	}
}

// metadataPath derives the sibling metadata descriptor path for an
// artifact: <name minus extension>.meta.json.
func metadataPath(artifactPath string) string {
	ext := filepath.Ext(artifactPath)
	return strings.TrimSuffix(artifactPath, ext) + ".meta.json"
}
