// Package waf implements the request analysis engine: feature extraction,
// signature scoring, decision fusion, and the analyzer facade that combines
// them with the statistical anomaly model into a final verdict.
package waf

import (
	"fmt"
	"time"
)

// ThreatType labels the attack class behind a malicious verdict
type ThreatType string

const (
	ThreatBenign        ThreatType = "benign"
	ThreatSQLInjection  ThreatType = "sql_injection"
	ThreatXSS           ThreatType = "xss"
	ThreatPathTraversal ThreatType = "path_traversal"
	ThreatAnomaly       ThreatType = "anomaly"
	ThreatSuspiciousBot ThreatType = "suspicious_bot"
	ThreatRateLimited   ThreatType = "rate_limit_exceeded"
)

// Request is one immutable inspection unit. The transport layer builds it
// from the wire-level HTTP request; the analyzer never mutates it.
type Request struct {
	Method    string              `json:"method"`
	Path      string              `json:"path"` // may include the query string
	Headers   map[string][]string `json:"headers"`
	Body      []byte              `json:"body,omitempty"`
	SourceIP  string              `json:"ip_address"`
	UserAgent string              `json:"user_agent"`
}

// PatternScores holds the signature scorer outputs for one request
type PatternScores struct {
	SQL              float64 `json:"sql_score"`
	XSS              float64 `json:"xss_score"`
	Traversal        float64 `json:"traversal_score"`
	SuspiciousClient bool    `json:"suspicious_client"`
}

// AnomalyResult holds the statistical model's judgment of one feature vector
type AnomalyResult struct {
	Raw        float64 `json:"raw"`        // raw outlier measure, higher = more anomalous
	Confidence float64 `json:"confidence"` // calibrated to [0,1], comparable across retrains
}

// Verdict is the final decision for one request, including the input scores
// that produced it for auditability.
type Verdict struct {
	RequestID  int64         `json:"request_id,omitempty"`
	Malicious  bool          `json:"is_malicious"`
	Confidence float64       `json:"confidence"`
	ThreatType ThreatType    `json:"threat_type"`
	Patterns   PatternScores `json:"pattern_scores"`
	Anomaly    AnomalyResult `json:"anomaly_result"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ValidationError reports a malformed request descriptor or malformed scores
// reaching decision fusion. Such requests are not logged as verdicts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
