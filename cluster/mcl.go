// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cluster groups vertices of a weighted co-occurrence graph by
// Markov clustering (MCL): the adjacency matrix, with self loops added, is
// made column-stochastic and then repeatedly expanded (squared) and
// inflated (raised elementwise to a power and re-normalized) until it
// settles on a set of attractor rows, each of which names a cluster.
package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Default MCL parameters, matching common usage of the algorithm: a unit
// self loop on every vertex, expansion by squaring, and an inflation
// power of 2.
const (
	DefaultSelfLoop  = 1.0
	DefaultExpansion = 2
	DefaultInflation = 2.0

	maxIterations   = 100
	pruneThreshold  = 1e-4
	convergenceDiff = 1e-8
)

// Edge is one weighted co-occurrence between two vertices, named by
// whatever identifies them to the caller (a marker name, a taxon name).
// Parallel edges between the same pair are summed.
type Edge struct {
	A, B   string
	Weight float64
}

// Clusters runs Markov clustering over the graph described by edges and
// returns the resulting vertex groups. A vertex is only ever known to this
// function by appearing as an endpoint of some edge; a caller that wants
// an isolated vertex reported as its own singleton cluster must include a
// self-edge (A == B) for it, in addition to whatever DefaultSelfLoop adds
// to every vertex's diagonal automatically.
//
// The grouping is deterministic: ties in the clustering dynamics are
// broken by the lexical order of vertex names, so the same edge set
// always produces the same partition.
func Clusters(edges []Edge) [][]string {
	if len(edges) == 0 {
		return nil
	}

	vertices, index := vertexIndex(edges)
	n := len(vertices)

	m := mat.NewDense(n, n, nil)
	for _, e := range edges {
		i, j := index[e.A], index[e.B]
		if i == j {
			m.Set(i, i, m.At(i, i)+e.Weight)
			continue
		}
		m.Set(i, j, m.At(i, j)+e.Weight)
		m.Set(j, i, m.At(j, i)+e.Weight)
	}
	for i := 0; i < n; i++ {
		m.Set(i, i, m.At(i, i)+DefaultSelfLoop)
	}
	columnNormalize(m)

	work := mat.NewDense(n, n, nil)
	for it := 0; it < maxIterations; it++ {
		work.Mul(m, m)
		inflate(work, DefaultInflation)
		prune(work)
		diff := maxAbsDiff(work, m)
		m.Copy(work)
		if diff < convergenceDiff {
			break
		}
	}

	return clustersFromAttractors(m, vertices)
}

// vertexIndex collects the distinct vertex names referenced by edges, in
// lexical order, and returns the name-to-row/column index mapping.
func vertexIndex(edges []Edge) ([]string, map[string]int) {
	seen := make(map[string]bool)
	for _, e := range edges {
		seen[e.A] = true
		seen[e.B] = true
	}
	vertices := make([]string, 0, len(seen))
	for v := range seen {
		vertices = append(vertices, v)
	}
	sort.Strings(vertices)

	index := make(map[string]int, len(vertices))
	for i, v := range vertices {
		index[v] = i
	}
	return vertices, index
}

// columnNormalize scales each column of m to sum to 1, leaving all-zero
// columns (which do not occur here, since every vertex carries a self
// loop) untouched.
func columnNormalize(m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		if sum == 0 {
			continue
		}
		for i := 0; i < r; i++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
}

// inflate raises every entry of m to power and re-normalizes columns,
// sharpening the distinction between strong and weak flows.
func inflate(m *mat.Dense, power float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, math.Pow(m.At(i, j), power))
		}
	}
	columnNormalize(m)
}

// prune zeroes entries below pruneThreshold, but never the largest entry
// of a column, so that every column keeps somewhere to send its flow.
func prune(m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		best, bestVal := 0, m.At(0, j)
		for i := 1; i < r; i++ {
			if v := m.At(i, j); v > bestVal {
				best, bestVal = i, v
			}
		}
		for i := 0; i < r; i++ {
			if i != best && m.At(i, j) < pruneThreshold {
				m.Set(i, j, 0)
			}
		}
	}
}

func maxAbsDiff(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	var max float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d := math.Abs(a.At(i, j) - b.At(i, j)); d > max {
				max = d
			}
		}
	}
	return max
}

// clustersFromAttractors reads clusters off a converged matrix: a vertex
// with a nonzero diagonal entry is an attractor, and its cluster is the
// set of vertices with a nonzero entry in its row. Vertices that end up
// in more than one attractor's row (which can happen when the matrix has
// not fully separated) are assigned to the first attractor, in vertex
// order, that claims them, so every vertex ends up in exactly one
// cluster.
func clustersFromAttractors(m *mat.Dense, vertices []string) [][]string {
	n := len(vertices)
	var attractors []int
	for i := 0; i < n; i++ {
		if m.At(i, i) > 0 {
			attractors = append(attractors, i)
		}
	}
	if len(attractors) == 0 {
		// Degenerate: no attractor survived pruning. Treat every vertex
		// as its own cluster rather than silently dropping it.
		out := make([][]string, n)
		for i, v := range vertices {
			out[i] = []string{v}
		}
		return out
	}

	claimed := make([]bool, n)
	var clusters [][]string
	for _, a := range attractors {
		var members []string
		for j := 0; j < n; j++ {
			if claimed[j] {
				continue
			}
			if m.At(a, j) > 0 {
				members = append(members, vertices[j])
				claimed[j] = true
			}
		}
		if len(members) == 0 {
			continue
		}
		sort.Strings(members)
		clusters = append(clusters, members)
	}
	for j := 0; j < n; j++ {
		if !claimed[j] {
			clusters = append(clusters, []string{vertices[j]})
		}
	}

	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i]) != len(clusters[j]) {
			return len(clusters[i]) > len(clusters[j])
		}
		return clusters[i][0] < clusters[j][0]
	})
	return clusters
}
