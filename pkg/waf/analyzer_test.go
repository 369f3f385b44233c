package waf

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bastionwaf/bastion/pkg/anomaly"
	"github.com/bastionwaf/bastion/pkg/config"
	"github.com/bastionwaf/bastion/pkg/store"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *store.MemoryStore) {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.json")

	engine := anomaly.NewEngine(cfg)
	if err := engine.Load(SeedMatrix(cfg.SeedRows)); err != nil {
		t.Fatalf("seed load: %v", err)
	}

	st := store.NewMemoryStore()
	return NewAnalyzer(cfg, engine, st, nil), st
}

func benignHeaders() map[string][]string {
	return map[string][]string{
		"Accept":          {"text/html"},
		"Accept-Encoding": {"gzip"},
		"Accept-Language": {"en-US"},
		"Connection":      {"keep-alive"},
		"Cookie":          {"session=abc123"},
		"Host":            {"shop.example.com"},
		"Referer":         {"https://shop.example.com/"},
		"User-Agent":      {"Mozilla/5.0"},
	}
}

func TestAnalyzeBenignRequest(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	v, err := a.Analyze(context.Background(), &Request{
		Method:    "GET",
		Path:      "/products/list.html?page=2",
		Headers:   benignHeaders(),
		SourceIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Malicious {
		t.Errorf("benign request flagged malicious: %+v", v)
	}
	if v.ThreatType != ThreatBenign {
		t.Errorf("ThreatType = %s, want %s", v.ThreatType, ThreatBenign)
	}
	if v.Confidence < 0.5 {
		t.Errorf("benign confidence = %v, want >= 0.5", v.Confidence)
	}
}

func TestAnalyzeBareAPIPath(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	// extension-less path, no query, no body, no extra headers: the most
	// ordinary request shape there is must score as an inlier
	v, err := a.Analyze(context.Background(), &Request{
		Method:    "GET",
		Path:      "/api/users",
		UserAgent: "Mozilla/5.0 (X11; Linux) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Malicious {
		t.Errorf("bare API path flagged malicious: %+v", v)
	}
	if v.ThreatType != ThreatBenign {
		t.Errorf("ThreatType = %s, want %s", v.ThreatType, ThreatBenign)
	}
	if v.Confidence < 0.5 {
		t.Errorf("benign confidence = %v, want >= 0.5", v.Confidence)
	}
}

func TestAnalyzeSQLInjection(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	v, err := a.Analyze(context.Background(), &Request{
		Method:    "GET",
		Path:      "/search?q=1' OR '1'='1' --",
		Headers:   benignHeaders(),
		SourceIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !v.Malicious || v.ThreatType != ThreatSQLInjection {
		t.Errorf("verdict = %+v, want malicious sql_injection", v)
	}
	if v.Confidence < 0.6 {
		t.Errorf("Confidence = %v, want >= 0.6", v.Confidence)
	}
}

func TestAnalyzeXSSBody(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	v, err := a.Analyze(context.Background(), &Request{
		Method:    "POST",
		Path:      "/comments",
		Headers:   benignHeaders(),
		Body:      []byte(`{"text":"<script>alert(document.cookie)</script>"}`),
		SourceIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !v.Malicious || v.ThreatType != ThreatXSS {
		t.Errorf("verdict = %+v, want malicious xss", v)
	}
}

func TestAnalyzePathTraversal(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	v, err := a.Analyze(context.Background(), &Request{
		Method:    "GET",
		Path:      "/static/../../../etc/passwd",
		Headers:   benignHeaders(),
		SourceIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !v.Malicious || v.ThreatType != ThreatPathTraversal {
		t.Errorf("verdict = %+v, want malicious path_traversal", v)
	}
}

func TestAnalyzeStructuralAnomaly(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	// grossly outside the trained distribution but with no attack signatures
	v, err := a.Analyze(context.Background(), &Request{
		Method:    "GET",
		Path:      strings.Repeat("/segment123", 40),
		Headers:   benignHeaders(),
		SourceIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !v.Malicious || v.ThreatType != ThreatAnomaly {
		t.Errorf("verdict = %+v, want malicious anomaly", v)
	}
	if v.Anomaly.Confidence < 0.7 {
		t.Errorf("anomaly confidence = %v, want >= 0.7", v.Anomaly.Confidence)
	}
}

func TestAnalyzeSuspiciousBot(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	// scanner user agent plus anomalous structure, no signature hits
	v, err := a.Analyze(context.Background(), &Request{
		Method:    "GET",
		Path:      strings.Repeat("/segment123", 40),
		SourceIP:  "203.0.113.7",
		UserAgent: "sqlmap/1.7#stable",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !v.Malicious || v.ThreatType != ThreatSuspiciousBot {
		t.Errorf("verdict = %+v, want malicious suspicious_bot", v)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	a, st := newTestAnalyzer(t)

	tests := []struct {
		name string
		req  *Request
	}{
		{"nil request", nil},
		{"empty method", &Request{Path: "/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Analyze(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	// rejected requests must not appear in the verdict log
	logs, err := st.RecentLogs(context.Background(), 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("rejected requests were logged: %d records", len(logs))
	}
}

func TestAnalyzeEmptyPath(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	// extraction is total: an empty path scores with neutral features
	// instead of being rejected
	v, err := a.Analyze(context.Background(), &Request{Method: "GET"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v == nil {
		t.Fatal("no verdict for empty path")
	}
}

func TestAnalyzeLogsVerdicts(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	ctx := context.Background()

	reqs := []*Request{
		{Method: "GET", Path: "/products/list.html?page=2", Headers: benignHeaders(),
			SourceIP: "203.0.113.7", UserAgent: "Mozilla/5.0 Chrome/120.0"},
		{Method: "GET", Path: "/search?q=1' OR '1'='1' --", Headers: benignHeaders(),
			SourceIP: "198.51.100.4", UserAgent: "Mozilla/5.0 Chrome/120.0"},
	}
	for _, req := range reqs {
		v, err := a.Analyze(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if v.RequestID == 0 {
			t.Error("verdict missing request id")
		}
	}

	stats, err := a.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRequests != 2 || stats.MaliciousRequests != 1 {
		t.Errorf("stats = %+v, want 2 total / 1 malicious", stats)
	}
	if stats.BlockedPercentage != 50 {
		t.Errorf("BlockedPercentage = %v, want 50", stats.BlockedPercentage)
	}

	malicious, err := a.RecentLogs(ctx, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(malicious) != 1 || malicious[0].ThreatType != string(ThreatSQLInjection) {
		t.Errorf("malicious logs = %+v, want one sql_injection record", malicious)
	}
	if malicious[0].IPAddress != "198.51.100.4" {
		t.Errorf("logged ip = %s, want 198.51.100.4", malicious[0].IPAddress)
	}

	snap := a.Metrics()
	if snap.Analyzed != 2 || snap.Malicious != 1 {
		t.Errorf("metrics = %+v, want 2 analyzed / 1 malicious", snap)
	}
	if snap.ByThreat[string(ThreatSQLInjection)] != 1 {
		t.Errorf("metrics threat breakdown = %v", snap.ByThreat)
	}
}

type stubLimiter struct {
	limited bool
}

func (s *stubLimiter) Check(context.Context, string) (bool, int64) {
	return s.limited, 11
}

func TestAnalyzeRateLimited(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.json")

	engine := anomaly.NewEngine(cfg)
	if err := engine.Load(SeedMatrix(cfg.SeedRows)); err != nil {
		t.Fatal(err)
	}
	st := store.NewMemoryStore()
	a := NewAnalyzer(cfg, engine, st, &stubLimiter{limited: true})

	v, err := a.Analyze(context.Background(), &Request{
		Method:   "GET",
		Path:     "/products/list.html",
		SourceIP: "203.0.113.7",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Malicious || v.ThreatType != ThreatRateLimited {
		t.Errorf("verdict = %+v, want rate_limit_exceeded", v)
	}
	if v.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", v.Confidence)
	}

	logs, err := st.RecentLogs(context.Background(), 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].ThreatType != string(ThreatRateLimited) {
		t.Errorf("rate limited verdict not logged: %+v", logs)
	}
}

func TestRetrainFromSeed(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	ctx := context.Background()

	before, err := a.ModelInfo()
	if err != nil {
		t.Fatal(err)
	}

	report, err := a.Retrain(ctx, nil)
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if report.RowsUsed != a.cfg.SeedRows {
		t.Errorf("RowsUsed = %d, want %d", report.RowsUsed, a.cfg.SeedRows)
	}

	after, err := a.ModelInfo()
	if err != nil {
		t.Fatal(err)
	}
	if after.Version == before.Version {
		t.Error("retrain did not produce a new model version")
	}
	if report.ModelVersion != after.Version {
		t.Errorf("report version %s does not match active model %s",
			report.ModelVersion, after.Version)
	}
}

func TestRetrainInsufficientSamples(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	samples := []*Request{
		{Method: "GET", Path: "/a.html"},
		{Method: "GET", Path: "/b.html"},
		{Method: "GET", Path: "/c.html"},
	}
	_, err := a.Retrain(context.Background(), samples)
	if !errors.Is(err, anomaly.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	// the previous model must remain in force
	if _, err := a.ModelInfo(); err != nil {
		t.Errorf("model unavailable after failed retrain: %v", err)
	}
}
