// Package inference loads the pre-trained outcome classifier and evaluates it on
// differential feature vectors.
//
// The artifact is a JSON export of a standardized multinomial logistic regression.
// It is read once at startup; the resulting Service is immutable and safe to share
// between goroutines without locking.
package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/matchcast/predictor/internal/models"
)

// ErrInvalidArtifact is returned when the model file is malformed or its shapes do
// not match the feature vector.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Outcome class labels used by the training pipeline.
const (
	ClassAwayWin = 0
	ClassDraw    = 1
	ClassHomeWin = 2
)

// Scaler holds the per-feature standardization parameters.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Artifact is the on-disk model description.
type Artifact struct {
	Version      string      `json:"version"`
	FeatureNames []string    `json:"feature_names"`
	Classes      []int       `json:"classes"`
	Coef         [][]float64 `json:"coef"`
	Intercept    []float64   `json:"intercept"`
	Scaler       *Scaler     `json:"scaler"`
}

// Service evaluates the classifier. Construct it with Load or New.
type Service struct {
	version   string
	mean      [len(models.FeatureNames)]float64
	scale     [len(models.FeatureNames)]float64
	coef      [][len(models.FeatureNames)]float64
	intercept []float64
	// slot[k] is the row index for class k
	slot [3]int
}

// Load reads and validates the artifact at path.
func Load(path string) (*Service, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}

	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidArtifact, path, err)
	}
	return New(a)
}

// New validates an artifact and builds a Service from it.
func New(a Artifact) (*Service, error) {
	const n = len(models.FeatureNames)

	if a.FeatureNames != nil {
		if len(a.FeatureNames) != n {
			return nil, fmt.Errorf("%w: %d feature names, want %d", ErrInvalidArtifact, len(a.FeatureNames), n)
		}
		for i, name := range a.FeatureNames {
			if name != models.FeatureNames[i] {
				return nil, fmt.Errorf("%w: feature %d is %q, want %q", ErrInvalidArtifact, i, name, models.FeatureNames[i])
			}
		}
	}

	if len(a.Classes) != 3 {
		return nil, fmt.Errorf("%w: %d classes, want 3", ErrInvalidArtifact, len(a.Classes))
	}
	if len(a.Coef) != len(a.Classes) || len(a.Intercept) != len(a.Classes) {
		return nil, fmt.Errorf("%w: coef has %d rows and intercept %d values for %d classes",
			ErrInvalidArtifact, len(a.Coef), len(a.Intercept), len(a.Classes))
	}

	s := &Service{
		version:   a.Version,
		coef:      make([][n]float64, len(a.Coef)),
		intercept: make([]float64, len(a.Intercept)),
		slot:      [3]int{-1, -1, -1},
	}

	for row, label := range a.Classes {
		if label < ClassAwayWin || label > ClassHomeWin {
			return nil, fmt.Errorf("%w: unknown class label %d", ErrInvalidArtifact, label)
		}
		if s.slot[label] != -1 {
			return nil, fmt.Errorf("%w: duplicate class label %d", ErrInvalidArtifact, label)
		}
		s.slot[label] = row
	}

	for row, weights := range a.Coef {
		if len(weights) != n {
			return nil, fmt.Errorf("%w: coef row %d has %d weights, want %d", ErrInvalidArtifact, row, len(weights), n)
		}
		for j, w := range weights {
			if !finite(w) {
				return nil, fmt.Errorf("%w: coef[%d][%d] is not finite", ErrInvalidArtifact, row, j)
			}
			s.coef[row][j] = w
		}
	}
	for row, b := range a.Intercept {
		if !finite(b) {
			return nil, fmt.Errorf("%w: intercept[%d] is not finite", ErrInvalidArtifact, row)
		}
		s.intercept[row] = b
	}

	for j := 0; j < n; j++ {
		s.scale[j] = 1
	}
	if a.Scaler != nil {
		if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
			return nil, fmt.Errorf("%w: scaler has %d means and %d scales, want %d",
				ErrInvalidArtifact, len(a.Scaler.Mean), len(a.Scaler.Scale), n)
		}
		for j := 0; j < n; j++ {
			if !finite(a.Scaler.Mean[j]) || !finite(a.Scaler.Scale[j]) {
				return nil, fmt.Errorf("%w: scaler value %d is not finite", ErrInvalidArtifact, j)
			}
			s.mean[j] = a.Scaler.Mean[j]
			// constant features were fitted with unit scale
			if a.Scaler.Scale[j] != 0 {
				s.scale[j] = a.Scaler.Scale[j]
			}
		}
	}

	return s, nil
}

// Version returns the artifact's version string.
func (s *Service) Version() string { return s.version }

// Infer returns the outcome distribution for a feature vector.
func (s *Service) Infer(v models.FeatureVector) (models.Probabilities, error) {
	var x [len(models.FeatureNames)]float64
	for j, raw := range v {
		if !finite(raw) {
			return models.Probabilities{}, fmt.Errorf("feature %s is not finite", models.FeatureNames[j])
		}
		x[j] = (raw - s.mean[j]) / s.scale[j]
	}

	logits := make([]float64, len(s.coef))
	maxLogit := math.Inf(-1)
	for row := range s.coef {
		z := s.intercept[row]
		for j, w := range s.coef[row] {
			z += w * x[j]
		}
		logits[row] = z
		if z > maxLogit {
			maxLogit = z
		}
	}

	var total float64
	for row, z := range logits {
		logits[row] = math.Exp(z - maxLogit)
		total += logits[row]
	}
	for row := range logits {
		logits[row] /= total
	}

	return models.Probabilities{
		HomeWin: logits[s.slot[ClassHomeWin]],
		Draw:    logits[s.slot[ClassDraw]],
		AwayWin: logits[s.slot[ClassAwayWin]],
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
