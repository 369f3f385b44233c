package waf

import "math/rand"

// seedRandomSource keeps the bundled dataset reproducible across restarts
const seedRandomSource = 1

// SeedMatrix generates the bundled seed dataset: n synthetic feature rows
// drawn from the distribution of ordinary benign traffic. Used to train the
// initial model when no artifact exists and for on-demand seed retrains.
//
// Presence-style features (query string, body, file extension, digits in the
// path) are drawn as mixtures with a large zero mass: a bare extension-less
// API path with no query and no body is a common benign shape and must be an
// inlier, not a corner case.
func SeedMatrix(n int) [][]float64 {
	rng := rand.New(rand.NewSource(seedRandomSource))

	matrix := make([][]float64, n)
	for i := range matrix {
		queryLen, params := 0, 0
		if rng.Float64() < 0.5 {
			queryLen = 1 + rng.Intn(30) // query length 1-30 when present
			params = 1 + rng.Intn(5)    // 1-5 params when present
		}
		bodyLen := 0
		if rng.Float64() < 0.4 {
			bodyLen = 1 + rng.Intn(100) // body length 1-100 when present
		}
		numeric := 0.0
		if rng.Float64() < 0.5 {
			numeric = 0.3 * rng.Float64() // numeric ratio 0-0.3 when digits occur
		}

		matrix[i] = []float64{
			float64(5 + rng.Intn(46)), // path length 5-50
			float64(1 + rng.Intn(5)),  // 1-5 segments
			float64(queryLen),
			float64(params),
			float64(rng.Intn(6)), // 0-5 special chars
			0,                    // no SQL indicators
			0,                    // no XSS indicators
			0,                    // no traversal indicators
			float64(bodyLen),
			float64(rng.Intn(16)), // 0-15 headers
			0,                     // GET
			0,                     // browser user agent
			2 + 2*rng.Float64(),   // path entropy 2-4 bits
			numeric,
			float64(rng.Intn(2)), // extension present or not
		}
	}
	return matrix
}
