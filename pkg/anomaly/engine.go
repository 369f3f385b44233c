package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastionwaf/bastion/pkg/config"
)

// Engine owns the active scoring model. The model reference is the only
// shared mutable state in the analysis core: every scoring call snapshots it
// once, and a retrain builds the replacement fully off to the side before a
// single atomic publish. No lock is held during the fit step.
type Engine struct {
	active  atomic.Pointer[Model]
	trainMu sync.Mutex

	path    string
	minRows int
}

// TrainingReport describes one successful retrain
type TrainingReport struct {
	ModelVersion string        `json:"model_version"`
	RowsUsed     int           `json:"rows_used"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ModelInfo is the read-only introspection view of the active model
type ModelInfo struct {
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	TrainingRows int       `json:"training_rows"`
	Features     int       `json:"features"`
}

// NewEngine creates an engine with no model loaded. Call Load before scoring.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		path:    cfg.ModelPath,
		minRows: cfg.MinTrainingRows,
	}
}

// Load installs the last persisted artifact, or fits a model from the given
// seed matrix if no usable artifact exists. A corrupt or schema-mismatched
// artifact falls back to the seed model with a warning rather than failing
// the process. The expected feature schema is taken from the seed matrix.
func (e *Engine) Load(seed [][]float64) error {
	expectFeatures := 0
	if len(seed) > 0 {
		expectFeatures = len(seed[0])
	}

	if m, err := loadArtifact(e.path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[WARN] model artifact unusable, retraining from seed data: %v", err)
		}
	} else if m.Features != expectFeatures {
		log.Printf("[WARN] model artifact has %d features, live schema has %d, retraining from seed data: %v",
			m.Features, expectFeatures, ErrSchemaMismatch)
	} else {
		e.active.Store(m)
		log.Printf("[STARTUP] model %s loaded (%d training rows)", m.Version, m.TrainingRows)
		return nil
	}

	m, err := Fit(seed)
	if err != nil {
		return fmt.Errorf("seed training: %w", err)
	}
	e.active.Store(m)
	if err := saveArtifact(e.path, m); err != nil {
		// scoring works from memory; only durability is lost
		log.Printf("[WARN] could not persist seed model: %v", err)
	}
	log.Printf("[STARTUP] model %s trained from %d seed rows", m.Version, m.TrainingRows)
	return nil
}

// Score runs the active model against one feature vector.
// Safe to call concurrently with other scoring calls and with a retrain: a
// call in flight during a retrain completes against the model it started
// with.
func (e *Engine) Score(vec []float64) (raw, confidence float64, err error) {
	m := e.active.Load()
	if m == nil {
		return 0, 0, ErrNoModel
	}
	return m.Score(vec)
}

// Retrain fits a replacement model from the matrix and, only after
// successful validation and persistence, publishes it as the active model.
// On any failure the previous model remains in force. A retrain arriving
// while another is running is rejected with ErrRetrainInProgress.
func (e *Engine) Retrain(ctx context.Context, matrix [][]float64) (*TrainingReport, error) {
	if !e.trainMu.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer e.trainMu.Unlock()

	if len(matrix) < e.minRows {
		return nil, fmt.Errorf("got %d rows, need %d: %w",
			len(matrix), e.minRows, ErrInsufficientData)
	}

	// cancellation point between dataset ingestion and the fit step
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := Fit(matrix)
	if err != nil {
		return nil, err
	}

	if err := saveArtifact(e.path, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.active.Store(m)
	return &TrainingReport{
		ModelVersion: m.Version,
		RowsUsed:     len(matrix),
		Duration:     time.Since(start),
		CreatedAt:    m.CreatedAt,
	}, nil
}

// Info returns version and provenance of the active model
func (e *Engine) Info() (ModelInfo, error) {
	m := e.active.Load()
	if m == nil {
		return ModelInfo{}, ErrNoModel
	}
	return ModelInfo{
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
		TrainingRows: m.TrainingRows,
		Features:     m.Features,
	}, nil
}

// saveArtifact writes the model to a temp file in the target directory and
// renames it into place, so readers never observe a partial artifact.
func saveArtifact(path string, m *Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

func loadArtifact(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if m.Scaler == nil || m.Forest == nil || len(m.Forest.Trees) == 0 {
		return nil, fmt.Errorf("artifact %s missing model parameters", path)
	}
	return &m, nil
}
