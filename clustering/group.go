// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clustering

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/poiesic/minutes/vecmath"
)

// Group partitions vectors into groups of related indices. Every index
// appears in exactly one group, no group holds more than
// config.MaxClusterSize indices, and the result is the same for the same
// input and seed. Members are ascending and groups are ordered by their
// first member.
func Group(vectors [][]float32, config Config) [][]int {
	if len(vectors) == 0 {
		return nil
	}
	normalized := vecmath.NormalizeAll(vectors)
	rng := rand.New(rand.NewPCG(config.Seed, config.Seed))

	var groups [][]int
	for _, group := range agglomerate(normalized, config.DistanceThreshold) {
		groups = append(groups, bound(normalized, group, config, rng)...)
	}
	orderGroups(groups)
	return groups
}

// agglomerate runs average-linkage clustering on unit vectors, merging the
// closest pair of groups while their distance is at most threshold.
func agglomerate(vectors [][]float32, threshold float64) [][]int {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := vecmath.CosineDistance(vectors[i], vectors[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	members := make([][]int, n)
	active := make([]bool, n)
	for i := range members {
		members[i] = []int{i}
		active[i] = true
	}

	for {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 || best > threshold {
			break
		}

		// Lance-Williams update for average linkage.
		si, sj := float64(len(members[bi])), float64(len(members[bj]))
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			d := (si*dist[bi][k] + sj*dist[bj][k]) / (si + sj)
			dist[bi][k] = d
			dist[k][bi] = d
		}
		members[bi] = append(members[bi], members[bj]...)
		members[bj] = nil
		active[bj] = false
	}

	var groups [][]int
	for i, m := range members {
		if active[i] {
			slices.Sort(m)
			groups = append(groups, m)
		}
	}
	return groups
}

// bound splits group until every part fits within the size limit.
func bound(vectors [][]float32, group []int, config Config, rng *rand.Rand) [][]int {
	if len(group) <= config.MaxClusterSize {
		return [][]int{group}
	}

	k := (len(group) + config.MaxClusterSize - 1) / config.MaxClusterSize
	parts := kmeans(vectors, group, k, config.MaxIterations, rng)
	if len(parts) < 2 {
		// Identical vectors leave k-means nothing to separate.
		parts = evenPartition(group, k)
	}

	var out [][]int
	for _, part := range parts {
		out = append(out, bound(vectors, part, config, rng)...)
	}
	return out
}

// kmeans partitions the vectors selected by group into at most k parts
// using k-means++ seeding. Empty parts are dropped.
func kmeans(vectors [][]float32, group []int, k, maxIter int, rng *rand.Rand) [][]int {
	n := len(group)
	if k > n {
		k = n
	}
	dims := len(vectors[group[0]])

	centroids := make([][]float32, 0, k)
	centroids = append(centroids, slices.Clone(vectors[group[rng.IntN(n)]]))
	minDist := make([]float64, n)
	for i, idx := range group {
		minDist[i] = vecmath.SquaredDistance(vectors[idx], centroids[0])
	}
	for len(centroids) < k {
		total := 0.0
		for _, d := range minDist {
			total += d
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		selected := n - 1
		cum := 0.0
		for i, d := range minDist {
			cum += d
			if cum >= target && d > 0 {
				selected = i
				break
			}
		}
		centroid := slices.Clone(vectors[group[selected]])
		centroids = append(centroids, centroid)
		for i, idx := range group {
			if d := vecmath.SquaredDistance(vectors[idx], centroid); d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := 0
		for i, idx := range group {
			nearest := 0
			best := math.Inf(1)
			for c, centroid := range centroids {
				if d := vecmath.SquaredDistance(vectors[idx], centroid); d < best {
					best = d
					nearest = c
				}
			}
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed++
			}
		}
		if changed == 0 {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, idx := range group {
			c := assignments[i]
			counts[c]++
			for d, v := range vectors[idx] {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	parts := make([][]int, len(centroids))
	for i, idx := range group {
		parts[assignments[i]] = append(parts[assignments[i]], idx)
	}
	return slices.DeleteFunc(parts, func(p []int) bool { return len(p) == 0 })
}

// evenPartition splits group into k contiguous parts whose sizes differ by
// at most one.
func evenPartition(group []int, k int) [][]int {
	parts := make([][]int, 0, k)
	size, extra := len(group)/k, len(group)%k
	start := 0
	for i := 0; i < k; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, group[start:end])
		start = end
	}
	return parts
}

func orderGroups(groups [][]int) {
	for _, g := range groups {
		slices.Sort(g)
	}
	slices.SortFunc(groups, func(a, b []int) int { return a[0] - b[0] })
}
