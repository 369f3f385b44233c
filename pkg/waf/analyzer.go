package waf

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bastionwaf/bastion/pkg/anomaly"
	"github.com/bastionwaf/bastion/pkg/config"
	"github.com/bastionwaf/bastion/pkg/store"
	"github.com/bastionwaf/bastion/pkg/telemetry"
)

// AnomalyEngine is the slice of the model engine the analyzer needs
type AnomalyEngine interface {
	Score(vec []float64) (raw, confidence float64, err error)
	Retrain(ctx context.Context, matrix [][]float64) (*anomaly.TrainingReport, error)
	Info() (anomaly.ModelInfo, error)
}

// RateLimiter gates requests per source IP before any analysis runs
type RateLimiter interface {
	Check(ctx context.Context, sourceIP string) (limited bool, count int64)
}

// Analyzer is the top-level analysis pipeline: rate limiting, signature
// scoring, feature extraction, anomaly scoring, decision fusion, and verdict
// logging.
type Analyzer struct {
	cfg       *config.Config
	scorer    *SignatureScorer
	extractor *FeatureExtractor
	fusion    *Fusion
	engine    AnomalyEngine
	store     store.Store
	limiter   RateLimiter
	metrics   *telemetry.Metrics
}

// NewAnalyzer wires the pipeline together. The store and limiter are
// optional: a nil store skips verdict logging, a nil limiter disables rate
// limiting.
func NewAnalyzer(cfg *config.Config, engine AnomalyEngine, st store.Store, limiter RateLimiter) *Analyzer {
	scorer := NewSignatureScorer(cfg)
	return &Analyzer{
		cfg:       cfg,
		scorer:    scorer,
		extractor: NewFeatureExtractor(scorer),
		fusion:    NewFusion(cfg),
		engine:    engine,
		store:     st,
		limiter:   limiter,
		metrics:   telemetry.New(),
	}
}

// Analyze runs one request through the full pipeline and returns the final
// verdict. Malformed requests fail with a ValidationError and are never
// logged as verdicts. Verdict logging itself is best effort: a store failure
// is warned about, not surfaced, because the verdict is already decided.
func (a *Analyzer) Analyze(ctx context.Context, req *Request) (*Verdict, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Reason: "missing request descriptor"}
	}
	if req.Method == "" {
		return nil, &ValidationError{Field: "method", Reason: "must not be empty"}
	}

	if a.limiter != nil {
		if limited, _ := a.limiter.Check(ctx, req.SourceIP); limited {
			v := &Verdict{
				Malicious:  true,
				Confidence: 1.0,
				ThreatType: ThreatRateLimited,
				Timestamp:  time.Now().UTC(),
			}
			a.metrics.RecordVerdict(string(v.ThreatType), v.Malicious)
			a.logVerdict(ctx, req, v)
			return v, nil
		}
	}

	ps := a.scorer.Score(req)
	vec := a.extractor.ExtractScored(req, ps)

	raw, confidence, err := a.engine.Score(vec[:])
	if err != nil {
		return nil, fmt.Errorf("anomaly scoring: %w", err)
	}

	v, err := a.fusion.Decide(ps, AnomalyResult{Raw: raw, Confidence: confidence})
	if err != nil {
		return nil, err
	}

	a.metrics.RecordVerdict(string(v.ThreatType), v.Malicious)
	a.logVerdict(ctx, req, v)
	return v, nil
}

// Retrain refits the anomaly model. With samples it extracts one feature row
// per request; without it regenerates the bundled seed dataset. The engine
// enforces the minimum row count and single-retrain rule.
func (a *Analyzer) Retrain(ctx context.Context, samples []*Request) (*anomaly.TrainingReport, error) {
	var matrix [][]float64
	if len(samples) == 0 {
		matrix = SeedMatrix(a.cfg.SeedRows)
	} else {
		matrix = make([][]float64, len(samples))
		for i, s := range samples {
			if s == nil {
				return nil, &ValidationError{
					Field:  "samples",
					Reason: fmt.Sprintf("sample %d is missing", i),
				}
			}
			vec := a.extractor.Extract(s)
			matrix[i] = vec[:]
		}
	}
	report, err := a.engine.Retrain(ctx, matrix)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordRetrain()
	return report, nil
}

// Metrics returns the in-process counters since startup
func (a *Analyzer) Metrics() telemetry.Snapshot {
	return a.metrics.Snapshot()
}

// ModelInfo exposes the active model's provenance
func (a *Analyzer) ModelInfo() (anomaly.ModelInfo, error) {
	return a.engine.Info()
}

// RecentLogs returns up to limit logged verdicts, newest first
func (a *Analyzer) RecentLogs(ctx context.Context, limit int, maliciousOnly bool) ([]store.Record, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.RecentLogs(ctx, limit, maliciousOnly)
}

// Statistics aggregates the verdict log
func (a *Analyzer) Statistics(ctx context.Context) (*store.Stats, error) {
	if a.store == nil {
		return &store.Stats{}, nil
	}
	return a.store.Statistics(ctx)
}

func (a *Analyzer) logVerdict(ctx context.Context, req *Request, v *Verdict) {
	if a.store == nil {
		return
	}
	id, err := a.store.LogRequest(ctx, &store.Record{
		Timestamp:   v.Timestamp,
		Method:      req.Method,
		Path:        req.Path,
		IPAddress:   req.SourceIP,
		UserAgent:   req.UserAgent,
		IsMalicious: v.Malicious,
		Confidence:  v.Confidence,
		ThreatType:  string(v.ThreatType),
	})
	if err != nil {
		log.Printf("[WARN] could not log verdict: %v", err)
		return
	}
	v.RequestID = id
}
