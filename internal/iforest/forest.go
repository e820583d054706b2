// Package iforest implements an isolation-forest ensemble for unsupervised
// anomaly scoring. Records that are structurally easy to separate from the
// rest of the feature space isolate in fewer random partition steps and score
// higher.
package iforest

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// Options configures the ensemble.
type Options struct {
	// Trees is the ensemble size. Defaults to 100.
	Trees int

	// SampleSize is the per-tree subsample size. Defaults to min(256, n).
	SampleSize int

	// Contamination is the expected outlier fraction. Accepted for parity
	// with the reference model; it does not affect scoring.
	Contamination float64

	// Seed drives feature selection, split thresholds and subsample draws.
	// Identical seed and input produce identical scores regardless of how
	// tree construction is scheduled.
	Seed int64

	// Workers bounds concurrent tree construction. Defaults to GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the reference ensemble parameters.
func DefaultOptions() Options {
	return Options{
		Trees:         100,
		Contamination: 0.08,
		Seed:          42,
	}
}

// tree is a randomized binary partition tree. Nodes are addressed by index
// into a flat slice; children of internal nodes are index references, leaves
// carry the count of records they hold.
type tree struct {
	nodes []node
}

type node struct {
	feature   int     // split feature index, -1 for leaves
	threshold float64 // split threshold
	left      int32   // index of the < threshold child
	right     int32   // index of the >= threshold child
	size      int32   // leaf record count
}

const leafFeature = -1

// Score computes a per-record anomaly score in [0,1] for the feature matrix,
// higher meaning more anomalous. Scores are min-max rescaled within the batch
// and are meaningful only relative to the matrix they were computed from.
// When every record yields the same raw measure the rescale range collapses;
// all records then score a neutral 0.
func Score(matrix [][]float64, opts Options) []float64 {
	n := len(matrix)
	if n == 0 {
		return nil
	}

	trees := opts.Trees
	if trees <= 0 {
		trees = 100
	}

	sampleSize := opts.SampleSize
	if sampleSize <= 0 || sampleSize > n {
		sampleSize = n
		if sampleSize > 256 {
			sampleSize = 256
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Every tree draws from its own stream seeded from a deterministic
	// sequence, so scores do not depend on construction order.
	root := rand.New(rand.NewSource(opts.Seed))
	seeds := make([]int64, trees)
	for i := range seeds {
		seeds[i] = root.Int63()
	}

	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	forest := make([]*tree, trees)
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i := range forest {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			rng := rand.New(rand.NewSource(seeds[idx]))
			forest[idx] = buildTree(matrix, sample(rng, n, sampleSize), maxDepth, rng)
		}(i)
	}
	wg.Wait()

	// Average path length per record across all trees; shorter average path
	// means the record isolates faster and is more anomalous.
	avgPath := make([]float64, n)
	for _, t := range forest {
		for i, row := range matrix {
			avgPath[i] += t.pathLength(row)
		}
	}

	norm := expectedPathLength(sampleSize)
	raw := make([]float64, n)
	for i := range raw {
		avg := avgPath[i] / float64(trees)
		raw[i] = math.Pow(2, -avg/norm)
	}

	return rescale(raw)
}

// sample draws k distinct indices from [0, n) via partial Fisher-Yates.
func sample(rng *rand.Rand, n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

// buildTree grows one randomized partition tree over the sampled rows.
func buildTree(matrix [][]float64, rows []int, maxDepth int, rng *rand.Rand) *tree {
	t := &tree{nodes: make([]node, 0, 2*len(rows))}
	t.grow(matrix, rows, 0, maxDepth, rng)
	return t
}

// grow appends the subtree for rows and returns its root index. A node
// becomes a leaf when it holds at most one record, the depth limit is
// reached, or every feature is constant across its records.
func (t *tree) grow(matrix [][]float64, rows []int, depth, maxDepth int, rng *rand.Rand) int32 {
	if len(rows) <= 1 || depth >= maxDepth {
		return t.leaf(len(rows))
	}

	feature, lo, hi, ok := pickSplitFeature(matrix, rows, rng)
	if !ok {
		return t.leaf(len(rows))
	}

	threshold := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, r := range rows {
		if matrix[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return t.leaf(len(rows))
	}

	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{feature: feature, threshold: threshold})
	l := t.grow(matrix, left, depth+1, maxDepth, rng)
	r := t.grow(matrix, right, depth+1, maxDepth, rng)
	t.nodes[idx].left = l
	t.nodes[idx].right = r
	return idx
}

func (t *tree) leaf(size int) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{feature: leafFeature, size: int32(size)})
	return idx
}

// pickSplitFeature chooses uniformly among features that still have spread at
// this node and returns the observed min/max for the chosen feature.
func pickSplitFeature(matrix [][]float64, rows []int, rng *rand.Rand) (feature int, lo, hi float64, ok bool) {
	width := len(matrix[rows[0]])
	candidates := make([]int, 0, width)
	los := make([]float64, width)
	his := make([]float64, width)

	for f := 0; f < width; f++ {
		lo, hi := matrix[rows[0]][f], matrix[rows[0]][f]
		for _, r := range rows[1:] {
			v := matrix[r][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			candidates = append(candidates, f)
			los[f], his[f] = lo, hi
		}
	}

	if len(candidates) == 0 {
		return 0, 0, 0, false
	}

	f := candidates[rng.Intn(len(candidates))]
	return f, los[f], his[f], true
}

// pathLength returns the number of edges from the root to the leaf holding
// the point, plus the expected extra path needed to fully isolate a uniformly
// random point within that leaf's count.
func (t *tree) pathLength(row []float64) float64 {
	depth := 0.0
	idx := int32(0)
	for {
		nd := t.nodes[idx]
		if nd.feature == leafFeature {
			return depth + expectedPathLength(int(nd.size))
		}
		depth++
		if row[nd.feature] < nd.threshold {
			idx = nd.left
		} else {
			idx = nd.right
		}
	}
}

const eulerMascheroni = 0.5772156649015329

// expectedPathLength is c(n), the average path length of an unsuccessful
// search in a binary search tree over n points. It normalizes path lengths so
// scores are comparable across dataset sizes.
func expectedPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerMascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

// rescale maps raw measures onto [0,1] with the batch minimum at 0 and the
// maximum at 1. A zero-width range yields all zeros instead of dividing.
func rescale(raw []float64) []float64 {
	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	scores := make([]float64, len(raw))
	if hi == lo {
		return scores
	}
	for i, v := range raw {
		scores[i] = (v - lo) / (hi - lo)
	}
	return scores
}
