package anomaly

import (
	"math"
	"math/rand"
)

// Isolation forest training parameters
const (
	defaultTreeCount  = 100
	defaultSampleSize = 256
	randomSeed        = 42
)

const eulerMascheroni = 0.5772156649015329

// node is one split (or leaf) in an isolation tree. Leaves have Left == -1;
// Size is the number of subsample rows that reached the leaf, used for the
// average-path-length adjustment.
type node struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int     `json:"l"`
	Right   int     `json:"r"`
	Size    int     `json:"n"`
}

// tree is an isolation tree stored as a flat node array (index 0 is the root)
type tree struct {
	Nodes []node `json:"nodes"`
}

// Forest is a fitted isolation forest. Outlier scores follow the standard
// formulation: s(x) = 2^(-E[h(x)] / c(sampleSize)), in (0,1], where higher
// means more anomalous.
type Forest struct {
	Trees      []tree `json:"trees"`
	SampleSize int    `json:"sample_size"`
}

// FitForest grows an isolation forest over standardized rows. The RNG is
// seeded deterministically so a fit over the same matrix reproduces the
// same model.
func FitForest(data [][]float64) *Forest {
	rng := rand.New(rand.NewSource(randomSeed))

	sample := defaultSampleSize
	if len(data) < sample {
		sample = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sample))))

	f := &Forest{
		Trees:      make([]tree, defaultTreeCount),
		SampleSize: sample,
	}

	for t := range f.Trees {
		subsample := sampleRows(data, sample, rng)
		f.Trees[t].grow(subsample, heightLimit, rng)
	}
	return f
}

// sampleRows draws a subsample without replacement
func sampleRows(data [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n >= len(data) {
		return data
	}
	idx := rng.Perm(len(data))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

func (t *tree) grow(rows [][]float64, heightLimit int, rng *rand.Rand) {
	t.Nodes = t.Nodes[:0]
	t.build(rows, 0, heightLimit, rng)
}

// build appends the subtree for rows and returns its node index
func (t *tree) build(rows [][]float64, depth, heightLimit int, rng *rand.Rand) int {
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, node{Left: -1, Right: -1, Size: len(rows)})

	if depth >= heightLimit || len(rows) <= 1 {
		return self
	}

	feature, split, ok := pickSplit(rows, rng)
	if !ok {
		// every feature is constant across rows; nothing left to isolate
		return self
	}

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	t.Nodes[self].Feature = feature
	t.Nodes[self].Split = split
	leftIdx := t.build(left, depth+1, heightLimit, rng)
	rightIdx := t.build(right, depth+1, heightLimit, rng)
	t.Nodes[self].Left = leftIdx
	t.Nodes[self].Right = rightIdx
	return self
}

// pickSplit chooses a random splittable feature and a uniform split value
// inside its observed range.
func pickSplit(rows [][]float64, rng *rand.Rand) (int, float64, bool) {
	dims := len(rows[0])
	candidates := make([]int, 0, dims)
	for j := 0; j < dims; j++ {
		lo, hi := featureRange(rows, j)
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return 0, 0, false
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := featureRange(rows, feature)
	return feature, lo + rng.Float64()*(hi-lo), true
}

func featureRange(rows [][]float64, j int) (float64, float64) {
	lo, hi := rows[0][j], rows[0][j]
	for _, row := range rows[1:] {
		if row[j] < lo {
			lo = row[j]
		}
		if row[j] > hi {
			hi = row[j]
		}
	}
	return lo, hi
}

// pathLength traverses one tree and returns the adjusted isolation depth
func (t *tree) pathLength(vec []float64) float64 {
	depth := 0.0
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return depth + avgPathLength(n.Size)
		}
		if vec[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// avgPathLength is c(n), the average unsuccessful-search path length of a
// binary search tree with n nodes.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerMascheroni
		return 2*h - 2*float64(n-1)/float64(n)
	}
}

// Score returns the outlier score for one standardized vector
func (f *Forest) Score(vec []float64) float64 {
	total := 0.0
	for i := range f.Trees {
		total += f.Trees[i].pathLength(vec)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SampleSize))
}
