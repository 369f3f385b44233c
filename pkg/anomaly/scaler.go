package anomaly

import (
	"fmt"
	"math"
)

// Scaler standardizes feature vectors to zero mean and unit variance using
// statistics captured at fit time, so new vectors are scored consistently
// with training-time scaling.
type Scaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// FitScaler computes per-feature means and standard deviations.
// Zero-variance features get a divisor of 1 so they pass through centered
// instead of dividing by zero.
func FitScaler(data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("fit scaler: %w", ErrInsufficientData)
	}

	dims := len(data[0])
	means := make([]float64, dims)
	stds := make([]float64, dims)
	n := float64(len(data))

	for _, row := range data {
		if len(row) != dims {
			return nil, fmt.Errorf("fit scaler: ragged row (%d vs %d dims): %w",
				len(row), dims, ErrSchemaMismatch)
		}
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}

	for _, row := range data {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] < 1e-12 {
			stds[j] = 1
		}
	}

	return &Scaler{Means: means, Stds: stds}, nil
}

// Transform returns the standardized copy of one vector
func (s *Scaler) Transform(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for j, v := range vec {
		out[j] = (v - s.Means[j]) / s.Stds[j]
	}
	return out
}

// TransformAll standardizes a whole matrix
func (s *Scaler) TransformAll(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = s.Transform(row)
	}
	return out
}
