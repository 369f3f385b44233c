package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Calibration maps raw outlier scores onto [0,1] confidences via the
// training-score distribution: the median maps to 0, the 99th percentile to
// 1. The mapping is monotonic, so confidences stay comparable across
// retrains that follow the same procedure.
type Calibration struct {
	Q50 float64 `json:"q50"`
	Q99 float64 `json:"q99"`
}

const calibrationEpsilon = 1e-9

// Model is one fitted, versioned scoring artifact. Immutable after fit;
// safe for unrestricted concurrent scoring.
type Model struct {
	Version      string      `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	TrainingRows int         `json:"training_rows"`
	Features     int         `json:"features"`
	Scaler       *Scaler     `json:"scaler"`
	Forest       *Forest     `json:"forest"`
	Calibration  Calibration `json:"calibration"`
}

// Fit trains a new model on a raw feature matrix: standardize, grow the
// forest, then calibrate against the training score distribution. A model
// whose calibration collapses all scores to one value is rejected.
func Fit(matrix [][]float64) (*Model, error) {
	if len(matrix) == 0 {
		return nil, fmt.Errorf("fit: empty matrix: %w", ErrInsufficientData)
	}

	scaler, err := FitScaler(matrix)
	if err != nil {
		return nil, err
	}
	scaled := scaler.TransformAll(matrix)
	forest := FitForest(scaled)

	scores := make([]float64, len(scaled))
	for i, row := range scaled {
		scores[i] = forest.Score(row)
	}
	sort.Float64s(scores)

	cal := Calibration{
		Q50: quantile(scores, 0.50),
		Q99: quantile(scores, 0.99),
	}
	if cal.Q99-cal.Q50 < calibrationEpsilon {
		return nil, fmt.Errorf("fit: training scores span %.3g: %w",
			cal.Q99-cal.Q50, ErrModelCollapse)
	}

	return &Model{
		Version:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		TrainingRows: len(matrix),
		Features:     len(matrix[0]),
		Scaler:       scaler,
		Forest:       forest,
		Calibration:  cal,
	}, nil
}

// Score returns the raw outlier score and calibrated confidence for one
// feature vector. Higher output means more anomalous.
func (m *Model) Score(vec []float64) (raw, confidence float64, err error) {
	if len(vec) != m.Features {
		return 0, 0, fmt.Errorf("score: got %d features, model has %d: %w",
			len(vec), m.Features, ErrSchemaMismatch)
	}
	raw = m.Forest.Score(m.Scaler.Transform(vec))
	confidence = clamp01((raw - m.Calibration.Q50) / (m.Calibration.Q99 - m.Calibration.Q50))
	return raw, confidence, nil
}

// quantile reads the q-th quantile from an ascending-sorted slice using
// linear interpolation between ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
