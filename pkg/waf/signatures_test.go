package waf

import (
	"math"
	"testing"

	"github.com/bastionwaf/bastion/pkg/config"
)

func newTestScorer() *SignatureScorer {
	return NewSignatureScorer(config.NewDefaultConfig())
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestScoreSQL(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name string
		path string
		body string
		want float64
	}{
		{"quoted tautology with comment", "/search?q=1' OR '1'='1' --", "", 1.0},
		{"union select", "/items?id=1 UNION SELECT name FROM sqlite_master", "", 1.0},
		{"single indicator", "/items?id=1--", "", 1 / 1.25},
		{"injection in body", "/login", "username=admin'--", 1 / 1.25},
		{"percent encoded tautology", "/search?q=%27%20OR%20%271%27%3D%271", "", 1 / 1.25},
		{"benign", "/products?page=2", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approx(t, s.ScoreSQL(tt.path, tt.body), tt.want)
		})
	}
}

func TestScoreXSS(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name string
		path string
		body string
		want float64
	}{
		{"script tag in body", "/comment", "<script>alert(document.cookie)</script>", 1 / 1.33},
		{"script with event handler", "/comment", "<script>x</script><img onerror=alert(1)>", 1.0},
		{"javascript uri", "/redirect?to=javascript:alert(1)", "", 1 / 1.33},
		{"encoded script tag", "/q?v=%3Cscript%3E", "", 1 / 1.33},
		{"benign html", "/comment", "<p>hello</p>", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approx(t, s.ScoreXSS(tt.path, tt.body), tt.want)
		})
	}
}

func TestScoreXSSClearsThreshold(t *testing.T) {
	s := newTestScorer()

	// one strong indicator alone must clear the decision threshold
	if got := s.ScoreXSS("/c", "<script>alert(1)</script>"); got < 0.7 {
		t.Errorf("single script tag scored %v, want >= 0.7", got)
	}
}

func TestScoreTraversal(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name string
		path string
		want float64
	}{
		{"etc passwd", "/../../../etc/passwd", 1.0},
		{"single indicator", "/files/../secret", 1 / 1.4},
		{"encoded traversal", "/download?file=..%2f..%2fsecret", 1 / 1.4},
		{"double encoded dots", "/download?file=%2e%2e%2f%2e%2e%2f", 1.0},
		{"benign dots", "/static/app.min.css", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approx(t, s.ScoreTraversal(tt.path), tt.want)
		})
	}
}

func TestIsSuspiciousClient(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		userAgent string
		want      bool
	}{
		{"sqlmap/1.7#stable", true},
		{"curl/8.0.1", true},
		{"python-requests/2.31", true},
		{"Googlebot/2.1", true},
		{"Mozilla/5.0 (X11; Linux) Chrome/120.0", false},
		{"Mozilla/5.0 (iPhone) Safari/604.1", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.userAgent, func(t *testing.T) {
			if got := s.IsSuspiciousClient(tt.userAgent); got != tt.want {
				t.Errorf("IsSuspiciousClient(%q) = %v, want %v", tt.userAgent, got, tt.want)
			}
		})
	}
}

func TestScoreAllDetectors(t *testing.T) {
	s := newTestScorer()

	req := &Request{
		Method:    "GET",
		Path:      "/search?q=1' OR '1'='1' --",
		UserAgent: "sqlmap/1.7",
	}
	ps := s.Score(req)

	if ps.SQL != 1.0 {
		t.Errorf("SQL = %v, want 1.0", ps.SQL)
	}
	if ps.XSS != 0 {
		t.Errorf("XSS = %v, want 0", ps.XSS)
	}
	if ps.Traversal != 0 {
		t.Errorf("Traversal = %v, want 0", ps.Traversal)
	}
	if !ps.SuspiciousClient {
		t.Error("SuspiciousClient = false, want true")
	}
}
