package anomaly

import "errors"

var (
	// ErrInsufficientData means a retrain was attempted with fewer rows than
	// the configured minimum. The active model is left unchanged.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrRetrainInProgress means another retrain currently holds the
	// training lock. Concurrent retrains are rejected, not queued.
	ErrRetrainInProgress = errors.New("retrain already in progress")

	// ErrSchemaMismatch means a model's feature dimensionality disagrees
	// with the live feature schema.
	ErrSchemaMismatch = errors.New("model feature schema mismatch")

	// ErrModelCollapse means a candidate model's calibration maps all
	// training scores to one value and cannot rank new vectors.
	ErrModelCollapse = errors.New("model calibration collapsed")

	// ErrNoModel means scoring was attempted before any model was loaded
	ErrNoModel = errors.New("no model loaded")

	// ErrPersistence means a fitted model could not be written to disk.
	// The retrain is abandoned and the active model is left unchanged.
	ErrPersistence = errors.New("model persistence failed")
)
