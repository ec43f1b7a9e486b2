/*
bms-sentinel - Battery monitoring and kill switch control
Copyright (C) 2025, Packwatch

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package anomaly

import (
	"fmt"
	"math"
	"math/rand"
)

// NodeParams is one serialised tree node. Leaf nodes have Left and
// Right set to -1 and carry the count of samples that terminated there.
type NodeParams struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int32   `json:"l"`
	Right   int32   `json:"r"`
	Size    int32   `json:"n"`
}

// ForestParams is the full serialised forest, an explicit schema rather
// than an opaque blob so the persisted model can be inspected and
// versioned.
type ForestParams struct {
	SampleSize int            `json:"sample_size"`
	Trees      [][]NodeParams `json:"trees"`
}

// Forest is an isolation forest: a set of random partitioning trees in
// which outliers isolate within a few splits while typical points need
// many. It implements the tree-based outlier measure behind the
// anomaly scorer.
type Forest struct {
	trees      [][]NodeParams
	sampleSize int
}

// FitForest builds a forest over the given standardised feature rows.
// Each tree is grown from an independent random subsample of at most
// sampleSize rows.
func FitForest(rows [][]float64, trees, sampleSize int, seed int64) *Forest {
	rng := rand.New(rand.NewSource(seed))
	psi := sampleSize
	if psi > len(rows) {
		psi = len(rows)
	}
	depthLimit := int(math.Ceil(math.Log2(float64(psi)))) + 1

	f := &Forest{sampleSize: psi, trees: make([][]NodeParams, trees)}
	for t := 0; t < trees; t++ {
		sample := make([][]float64, psi)
		for i := range sample {
			sample[i] = rows[rng.Intn(len(rows))]
		}
		var nodes []NodeParams
		buildTree(&nodes, sample, 0, depthLimit, rng)
		f.trees[t] = nodes
	}
	return f
}

// buildTree appends the subtree for rows to nodes and returns its root
// index.
func buildTree(nodes *[]NodeParams, rows [][]float64, depth, depthLimit int, rng *rand.Rand) int32 {
	idx := int32(len(*nodes))
	*nodes = append(*nodes, NodeParams{Left: -1, Right: -1, Size: int32(len(rows))})

	if len(rows) <= 1 || depth >= depthLimit {
		return idx
	}

	feature, lo, hi, ok := splittableFeature(rows, rng)
	if !ok {
		// All remaining rows are identical, nothing left to separate.
		return idx
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	l := buildTree(nodes, left, depth+1, depthLimit, rng)
	r := buildTree(nodes, right, depth+1, depthLimit, rng)
	(*nodes)[idx].Feature = feature
	(*nodes)[idx].Split = split
	(*nodes)[idx].Left = l
	(*nodes)[idx].Right = r
	return idx
}

// splittableFeature picks a random feature with spread, trying each
// feature at most once.
func splittableFeature(rows [][]float64, rng *rand.Rand) (feature int, lo, hi float64, ok bool) {
	dims := len(rows[0])
	for _, feature := range rng.Perm(dims) {
		lo, hi := rows[0][feature], rows[0][feature]
		for _, row := range rows {
			if row[feature] < lo {
				lo = row[feature]
			}
			if row[feature] > hi {
				hi = row[feature]
			}
		}
		if hi > lo {
			return feature, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// Score returns the isolation score of x in (0, 1). Values near 0.5 are
// typical of the training data; values approaching 1 isolate quickly
// and are outliers.
func (f *Forest) Score(x []float64) float64 {
	if len(f.trees) == 0 || f.sampleSize == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, x)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/averagePathLength(f.sampleSize))
}

func pathLength(tree []NodeParams, x []float64) float64 {
	depth := 0.0
	idx := int32(0)
	for {
		n := tree[idx]
		if n.Left < 0 {
			return depth + averagePathLength(int(n.Size))
		}
		if x[n.Feature] < n.Split {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n values, used to normalise tree depths.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

// Params returns the serialisable parameters of the forest.
func (f *Forest) Params() ForestParams {
	return ForestParams{SampleSize: f.sampleSize, Trees: f.trees}
}

// ForestFromParams rebuilds a forest from persisted parameters.
func ForestFromParams(p ForestParams) (*Forest, error) {
	if p.SampleSize < 0 {
		return nil, fmt.Errorf("forest params: negative sample size %d", p.SampleSize)
	}
	for i, tree := range p.Trees {
		if len(tree) == 0 {
			return nil, fmt.Errorf("forest params: tree %d is empty", i)
		}
		for _, n := range tree {
			if n.Left >= int32(len(tree)) || n.Right >= int32(len(tree)) {
				return nil, fmt.Errorf("forest params: tree %d has out of range child index", i)
			}
		}
	}
	return &Forest{sampleSize: p.SampleSize, trees: p.Trees}, nil
}
