package anomaly

import (
	"math"
	"math/rand"

	"github.com/driftwatch/driftwatch/internal/engine/series"
)

// detectIsolationForest scores each row's numeric vector (features plus
// target) with a seeded isolation forest. Scores live in [0,1], higher
// meaning easier to isolate; rows at or above IsoScoreThreshold are
// flagged. The fixed seed keeps the ensemble deterministic.
func detectIsolationForest(s *series.Series, opts Options) []Anomaly {
	n := s.Len()
	if n < 2 {
		return nil
	}

	data := make([][]float64, n)
	dims := len(s.Features) + 1
	for i, o := range s.Obs {
		vec := make([]float64, 0, dims)
		for _, col := range s.Features {
			v := o.Features[col]
			if math.IsNaN(v) {
				v = 0
			}
			vec = append(vec, v)
		}
		vec = append(vec, o.Value)
		data[i] = vec
	}

	sample := opts.IsoSampleSize
	if sample > n {
		sample = n
	}
	forest := growForest(data, sample, opts.IsoTrees, rand.New(rand.NewSource(opts.Seed)))

	var out []Anomaly
	for i, vec := range data {
		score := forest.score(vec)
		if score < opts.IsoScoreThreshold {
			continue
		}
		sev := SeverityMedium
		if score >= opts.IsoHighThreshold {
			sev = SeverityHigh
		}
		out = append(out, Anomaly{
			Timestamp: s.Obs[i].TimeLabel(),
			Value:     s.Obs[i].Value,
			Severity:  sev,
			Score:     score,
			Index:     i,
		})
	}
	return out
}

type isoForest struct {
	trees      []*isoNode
	sampleSize int
}

type isoNode struct {
	left, right *isoNode
	splitDim    int
	splitVal    float64
	size        int // leaf population
}

func growForest(data [][]float64, sampleSize, trees int, rng *rand.Rand) *isoForest {
	f := &isoForest{sampleSize: sampleSize, trees: make([]*isoNode, 0, trees)}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1
	for t := 0; t < trees; t++ {
		sample := make([][]float64, sampleSize)
		for i := range sample {
			sample[i] = data[rng.Intn(len(data))]
		}
		f.trees = append(f.trees, growTree(sample, 0, maxDepth, rng))
	}
	return f
}

func growTree(rows [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(rows) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(rows)}
	}

	// pick a random dimension with spread; a node with none is a leaf
	dims := rng.Perm(len(rows[0]))
	for _, dim := range dims {
		lo, hi := rows[0][dim], rows[0][dim]
		for _, r := range rows[1:] {
			lo = math.Min(lo, r[dim])
			hi = math.Max(hi, r[dim])
		}
		if lo == hi {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, r := range rows {
			if r[dim] < split {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		return &isoNode{
			splitDim: dim,
			splitVal: split,
			left:     growTree(left, depth+1, maxDepth, rng),
			right:    growTree(right, depth+1, maxDepth, rng),
		}
	}
	return &isoNode{size: len(rows)}
}

// score maps the mean isolation path length onto [0,1] using the
// standard 2^(-E[h]/c(ψ)) normalization.
func (f *isoForest) score(vec []float64) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, vec, 0)
	}
	mean := total / float64(len(f.trees))
	c := avgPathLength(f.sampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -mean/c)
}

func pathLength(node *isoNode, vec []float64, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if vec[node.splitDim] < node.splitVal {
		return pathLength(node.left, vec, depth+1)
	}
	return pathLength(node.right, vec, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// BST search over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}
