package waf

import (
	"math"
	"regexp"
	"strings"
)

// FeatureCount is the fixed dimensionality of the feature schema. A loaded
// model artifact whose dimension disagrees with this is unusable.
const FeatureCount = 15

// FeatureVector is the fixed-length numeric encoding of one request.
// Index semantics:
//
//	0  path length (characters)
//	1  path segment count (non-empty "/"-delimited tokens)
//	2  query string length (characters after "?")
//	3  query parameter count
//	4  special character count (outside [A-Za-z0-9/_.-])
//	5  SQL injection score
//	6  XSS score
//	7  path traversal score
//	8  body length (bytes)
//	9  header count
//	10 HTTP method ordinal (GET=0 POST=1 PUT=2 DELETE=3 other=4)
//	11 suspicious client flag (0/1)
//	12 path Shannon entropy (bits)
//	13 numeric ratio of path characters
//	14 file extension presence flag (0/1)
type FeatureVector [FeatureCount]float64

var methodOrdinals = map[string]float64{
	"GET":    0,
	"POST":   1,
	"PUT":    2,
	"DELETE": 3,
}

var extensionRe = regexp.MustCompile(`\.[A-Za-z0-9]{1,5}$`)

// FeatureExtractor turns a request descriptor into a feature vector.
// Extraction is total and deterministic: missing fields default to neutral
// values and the same request always yields the identical vector.
type FeatureExtractor struct {
	scorer *SignatureScorer
}

// NewFeatureExtractor builds an extractor that sources features 5-7 from the
// given signature scorer.
func NewFeatureExtractor(scorer *SignatureScorer) *FeatureExtractor {
	return &FeatureExtractor{scorer: scorer}
}

// Extract derives the feature vector for one request
func (e *FeatureExtractor) Extract(req *Request) FeatureVector {
	return e.ExtractScored(req, e.scorer.Score(req))
}

// ExtractScored is Extract for callers that already ran the signature
// scorers; it reuses their scores instead of rescoring.
func (e *FeatureExtractor) ExtractScored(req *Request, ps PatternScores) FeatureVector {
	var v FeatureVector

	path := req.Path
	pathOnly, query := splitQuery(path)

	v[0] = float64(len(path))
	v[1] = float64(segmentCount(pathOnly))
	v[2] = float64(len(query))
	v[3] = float64(paramCount(query))
	v[4] = float64(specialCharCount(path))

	v[5] = ps.SQL
	v[6] = ps.XSS
	v[7] = ps.Traversal

	v[8] = float64(len(req.Body))
	v[9] = float64(len(req.Headers))
	v[10] = methodOrdinal(req.Method)

	if ps.SuspiciousClient {
		v[11] = 1
	}

	v[12] = shannonEntropy(path)
	v[13] = numericRatio(path)

	if extensionRe.MatchString(pathOnly) {
		v[14] = 1
	}

	return v
}

func splitQuery(path string) (string, string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func segmentCount(pathOnly string) int {
	count := 0
	for _, seg := range strings.Split(pathOnly, "/") {
		if seg != "" {
			count++
		}
	}
	return count
}

func paramCount(query string) int {
	if query == "" {
		return 0
	}
	return strings.Count(query, "&") + 1
}

func specialCharCount(path string) int {
	count := 0
	for _, c := range path {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '/' || c == '_' || c == '.' || c == '-':
		default:
			count++
		}
	}
	return count
}

func methodOrdinal(method string) float64 {
	if ord, ok := methodOrdinals[strings.ToUpper(method)]; ok {
		return ord
	}
	return 4
}

// shannonEntropy returns the entropy of the character distribution in bits.
// Empty input scores 0.
func shannonEntropy(text string) float64 {
	if text == "" {
		return 0
	}
	counts := make(map[rune]float64)
	total := 0.0
	for _, r := range text {
		counts[r]++
		total++
	}

	entropy := 0.0
	for _, count := range counts {
		p := count / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func numericRatio(path string) float64 {
	if path == "" {
		return 0
	}
	digits := 0
	total := 0
	for _, c := range path {
		if c >= '0' && c <= '9' {
			digits++
		}
		total++
	}
	return float64(digits) / float64(total)
}
