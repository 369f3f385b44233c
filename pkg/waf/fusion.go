package waf

import (
	"math"
	"time"

	"github.com/bastionwaf/bastion/pkg/config"
)

// fusionRule is one (predicate, outcome) pair in the decision table.
// Rules are evaluated in order; the first predicate that fires wins, so
// signature evidence always dominates statistical evidence.
type fusionRule struct {
	name    string
	matches func(ps PatternScores, ar AnomalyResult) bool
	verdict func(ps PatternScores, ar AnomalyResult) (ThreatType, float64)
}

// Fusion combines signature scores and the anomaly result into a verdict.
// It performs no I/O and is safe for unrestricted concurrent use.
type Fusion struct {
	rules []fusionRule
}

// NewFusion builds the ordered decision table from configured thresholds
func NewFusion(cfg *config.Config) *Fusion {
	return &Fusion{rules: []fusionRule{
		{
			name: "sql_injection",
			matches: func(ps PatternScores, _ AnomalyResult) bool {
				return ps.SQL >= cfg.SQLThreshold
			},
			verdict: func(ps PatternScores, _ AnomalyResult) (ThreatType, float64) {
				return ThreatSQLInjection, ps.SQL
			},
		},
		{
			name: "xss",
			matches: func(ps PatternScores, _ AnomalyResult) bool {
				return ps.XSS >= cfg.XSSThreshold
			},
			verdict: func(ps PatternScores, _ AnomalyResult) (ThreatType, float64) {
				return ThreatXSS, ps.XSS
			},
		},
		{
			name: "path_traversal",
			matches: func(ps PatternScores, _ AnomalyResult) bool {
				return ps.Traversal >= cfg.TraversalThreshold
			},
			verdict: func(ps PatternScores, _ AnomalyResult) (ThreatType, float64) {
				return ThreatPathTraversal, ps.Traversal
			},
		},
		{
			name: "suspicious_bot",
			matches: func(ps PatternScores, ar AnomalyResult) bool {
				return ps.SuspiciousClient && ar.Confidence >= cfg.BotThreshold
			},
			verdict: func(_ PatternScores, ar AnomalyResult) (ThreatType, float64) {
				return ThreatSuspiciousBot, ar.Confidence
			},
		},
		{
			name: "anomaly",
			matches: func(_ PatternScores, ar AnomalyResult) bool {
				return ar.Confidence >= cfg.AnomalyThreshold
			},
			verdict: func(_ PatternScores, ar AnomalyResult) (ThreatType, float64) {
				return ThreatAnomaly, ar.Confidence
			},
		},
	}}
}

// Decide turns the score set into a final verdict. Malformed scores (NaN or
// out of range) are a ValidationError, never silently coerced.
func (f *Fusion) Decide(ps PatternScores, ar AnomalyResult) (*Verdict, error) {
	if err := validateScores(ps, ar); err != nil {
		return nil, err
	}

	v := &Verdict{
		Patterns:  ps,
		Anomaly:   ar,
		Timestamp: time.Now().UTC(),
	}

	for _, rule := range f.rules {
		if rule.matches(ps, ar) {
			v.Malicious = true
			v.ThreatType, v.Confidence = rule.verdict(ps, ar)
			return v, nil
		}
	}

	v.Malicious = false
	v.ThreatType = ThreatBenign
	v.Confidence = 1 - ar.Confidence
	return v, nil
}

func validateScores(ps PatternScores, ar AnomalyResult) error {
	checks := []struct {
		field string
		value float64
	}{
		{"sql_score", ps.SQL},
		{"xss_score", ps.XSS},
		{"traversal_score", ps.Traversal},
		{"anomaly_confidence", ar.Confidence},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) {
			return &ValidationError{Field: c.field, Reason: "score is NaN"}
		}
		if c.value < 0 || c.value > 1 {
			return &ValidationError{Field: c.field, Reason: "score outside [0,1]"}
		}
	}
	if math.IsNaN(ar.Raw) {
		return &ValidationError{Field: "anomaly_raw", Reason: "score is NaN"}
	}
	return nil
}
