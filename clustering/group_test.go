package clustering

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoTopics returns 4 vectors about one topic followed by 12 about
// another. The 12 form two tight halves close enough to merge.
func twoTopics() [][]float32 {
	var vectors [][]float32
	for i := 0; i < 4; i++ {
		vectors = append(vectors, []float32{1, 0, 0, 0})
	}
	for i := 0; i < 6; i++ {
		vectors = append(vectors, []float32{0, 1, 0.3, 0})
	}
	for i := 0; i < 6; i++ {
		vectors = append(vectors, []float32{0, 1, -0.3, 0})
	}
	return vectors
}

func seq(from, to int) []int {
	var out []int
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func assertPartition(t *testing.T, groups [][]int, n, maxSize int) {
	t.Helper()
	seen := make(map[int]int)
	for _, g := range groups {
		assert.NotEmpty(t, g)
		assert.LessOrEqual(t, len(g), maxSize)
		for _, idx := range g {
			seen[idx]++
		}
	}
	require.Len(t, seen, n)
	for idx, count := range seen {
		assert.Equal(t, 1, count, "index %d appears %d times", idx, count)
	}
}

func TestGroup_SplitsOversizedTopic(t *testing.T) {
	groups := Group(twoTopics(), DefaultConfig())

	require.Len(t, groups, 3)
	assert.Equal(t, seq(0, 4), groups[0])
	assert.Equal(t, seq(4, 10), groups[1])
	assert.Equal(t, seq(10, 16), groups[2])
}

func TestGroup_IdenticalVectorsFallBackToEvenSplit(t *testing.T) {
	vectors := make([][]float32, 25)
	for i := range vectors {
		vectors[i] = []float32{0.5, 0.5, 0.5, 0.5}
	}

	groups := Group(vectors, DefaultConfig())
	require.Len(t, groups, 3)
	assert.Equal(t, seq(0, 9), groups[0])
	assert.Equal(t, seq(9, 17), groups[1])
	assert.Equal(t, seq(17, 25), groups[2])
}

func TestGroup_Threshold(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 0.1, 0},
	}

	tests := []struct {
		name      string
		threshold float64
		want      [][]int
	}{
		{"zero keeps distinct vectors apart", 0, [][]int{{0}, {1}, {2}, {3}}},
		{"default merges near duplicates", 0.5, [][]int{{0, 3}, {1}, {2}}},
		{"wide merges everything", 2, [][]int{{0, 1, 2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.DistanceThreshold = tt.threshold
			assert.Equal(t, tt.want, Group(vectors, config))
		})
	}
}

func TestGroup_SizeBoundAndCoverage(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	for _, n := range []int{1, 9, 10, 11, 37, 120} {
		vectors := make([][]float32, n)
		for i := range vectors {
			v := make([]float32, 8)
			for d := range v {
				v[d] = rng.Float32()*2 - 1
			}
			vectors[i] = v
		}

		for _, maxSize := range []int{1, 3, 10} {
			config := DefaultConfig()
			config.MaxClusterSize = maxSize
			config.DistanceThreshold = 2

			groups := Group(vectors, config)
			assertPartition(t, groups, n, maxSize)
			assert.Equal(t, groups, Group(vectors, config), "grouping must be deterministic")
		}
	}
}

func TestGroup_Empty(t *testing.T) {
	assert.Nil(t, Group(nil, DefaultConfig()))
}

func TestEvenPartition(t *testing.T) {
	parts := evenPartition(seq(0, 7), 3)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4}, {5, 6}}, parts)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxClusterSize = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.DistanceThreshold = -1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxIterations = 0
	assert.Error(t, bad.Validate())
}
