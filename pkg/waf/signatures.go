package waf

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bastionwaf/bastion/pkg/config"
	"github.com/bastionwaf/bastion/pkg/patterns"
)

// Per-detector normalizers. Tuned so a single strong indicator (UNION SELECT,
// <script>, ../../../etc/passwd) already clears 0.7.
const (
	sqlNormalizer       = 1.25
	xssNormalizer       = 1.33
	traversalNormalizer = 1.4
)

// SignatureScorer evaluates fixed indicator sets against raw request text.
// Stateless apart from the compiled registry; safe for unrestricted
// concurrent use.
type SignatureScorer struct {
	registry         *patterns.Registry
	suspiciousAgents []string
}

// NewSignatureScorer builds a scorer backed by the global pattern registry
func NewSignatureScorer(cfg *config.Config) *SignatureScorer {
	agents := cfg.SuspiciousAgents
	lowered := make([]string, len(agents))
	for i, a := range agents {
		lowered[i] = strings.ToLower(a)
	}
	return &SignatureScorer{
		registry:         patterns.Get(),
		suspiciousAgents: lowered,
	}
}

// normalizeText canonicalizes request text before matching: NFKC folds
// Unicode lookalikes, and a best-effort URL decode exposes percent-encoded
// payloads. The original text is kept alongside the decoded form so encoded
// indicators (%2e%2e) still match.
func normalizeText(text string) string {
	text = norm.NFKC.String(text)
	if decoded, err := url.QueryUnescape(text); err == nil && decoded != text {
		text = text + " " + decoded
	}
	return strings.ToLower(text)
}

// ScoreSQL returns the SQL injection score for path+body in [0,1]
func (s *SignatureScorer) ScoreSQL(path, body string) float64 {
	text := normalizeText(path + " " + body)
	return indicatorScore(s.registry.MatchCount(text, patterns.CategorySQLInjection), sqlNormalizer)
}

// ScoreXSS returns the cross-site scripting score for path+body in [0,1]
func (s *SignatureScorer) ScoreXSS(path, body string) float64 {
	text := normalizeText(path + " " + body)
	return indicatorScore(s.registry.MatchCount(text, patterns.CategoryXSS), xssNormalizer)
}

// ScoreTraversal returns the path traversal score for the path in [0,1]
func (s *SignatureScorer) ScoreTraversal(path string) float64 {
	text := normalizeText(path)
	return indicatorScore(s.registry.MatchCount(text, patterns.CategoryPathTraversal), traversalNormalizer)
}

// IsSuspiciousClient reports whether the client identifier matches a known
// bot/scanner substring (case-insensitive).
func (s *SignatureScorer) IsSuspiciousClient(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, agent := range s.suspiciousAgents {
		if strings.Contains(ua, agent) {
			return true
		}
	}
	return false
}

// Score runs all detectors for one request
func (s *SignatureScorer) Score(req *Request) PatternScores {
	body := string(req.Body)
	return PatternScores{
		SQL:              s.ScoreSQL(req.Path, body),
		XSS:              s.ScoreXSS(req.Path, body),
		Traversal:        s.ScoreTraversal(req.Path),
		SuspiciousClient: s.IsSuspiciousClient(req.UserAgent),
	}
}

func indicatorScore(matched int, normalizer float64) float64 {
	score := float64(matched) / normalizer
	if score > 1.0 {
		return 1.0
	}
	return score
}
