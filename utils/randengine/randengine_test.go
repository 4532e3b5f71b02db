package randengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/randengine"
)

func TestSameSeedSameSequence(t *testing.T) {
	a, b := randengine.New(7), randengine.New(7)
	for range 100 {
		assert.Equal(t, a.Float64Safe(), b.Float64Safe())
		assert.Equal(t, a.PoissonSafe(4), b.PoissonSafe(4))
	}
}

func TestRanges(t *testing.T) {
	e := randengine.New(1)
	for range 1000 {
		u := e.UniformSafe(0.15, 0.45)
		assert.GreaterOrEqual(t, u, 0.15)
		assert.Less(t, u, 0.45)
		n := e.IntnSafe(3)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 3)
	}
	assert.False(t, e.PTrueSafe(0))
	assert.True(t, e.PTrueSafe(1))
	assert.Equal(t, 0, e.PoissonSafe(0))
	assert.Equal(t, 0, e.PoissonSafe(-1))
}

func TestPoissonMean(t *testing.T) {
	e := randengine.New(3)
	for _, mean := range []float64{2, 12, 45} {
		sum := 0
		const n = 20000
		for range n {
			k := e.PoissonSafe(mean)
			assert.GreaterOrEqual(t, k, 0)
			sum += k
		}
		assert.InDelta(t, mean, float64(sum)/n, mean*0.05, "mean %v", mean)
	}
}
