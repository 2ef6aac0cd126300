package carrier

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_latencyQuantileTracker_ConvergesOnUniformData(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	const n = 20000
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.Float64() * 1000
	}

	est := newLatencyQuantileTracker(0.5)
	for _, v := range values {
		est.Update(v)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	exact := sorted[n/2]

	got := est.Quantile()
	assert.InDelta(t, exact, got, exact*0.05+5, "p50 estimate should be within 5%% of exact")
}

func Test_latencyQuantileTracker_FewerThanFiveSamples(t *testing.T) {
	t.Parallel()

	est := newLatencyQuantileTracker(0.5)
	assert.Equal(t, 0.0, est.Quantile())

	est.Update(10)
	est.Update(30)
	est.Update(20)
	require.Equal(t, 3, est.Count())
	// with 3 sorted samples [10,20,30] and p=0.5, index = int(2*0.5) = 1 -> 20
	assert.Equal(t, 20.0, est.Quantile())
}

func Test_latencyQuantileTracker_TracksMax(t *testing.T) {
	t.Parallel()

	est := newLatencyQuantileTracker(0.99)
	for _, v := range []float64{3, 1, 4, 1, 5, 9, 2, 6} {
		est.Update(v)
	}
	assert.Equal(t, 9.0, est.Max())
}

func Test_latencyQuantileSet_TracksSumCountMean(t *testing.T) {
	t.Parallel()

	m := newLatencyQuantileSet(0.5, 0.9)
	require.Equal(t, -math.MaxFloat64, m.Max())

	for _, v := range []float64{1, 2, 3, 4, 5} {
		m.Update(v)
	}

	assert.Equal(t, 5, m.Count())
	assert.Equal(t, 15.0, m.Sum())
	assert.Equal(t, 3.0, m.Mean())
	assert.Equal(t, 5.0, m.Max())
}

func Test_latencyQuantileSet_QuantileBoundsCheck(t *testing.T) {
	t.Parallel()

	m := newLatencyQuantileSet(0.5)
	m.Update(1)
	assert.Equal(t, 0.0, m.Quantile(-1))
	assert.Equal(t, 0.0, m.Quantile(5))
}

func Test_latencyQuantileSet_Reset(t *testing.T) {
	t.Parallel()

	m := newLatencyQuantileSet(0.5)
	for i := 0; i < 10; i++ {
		m.Update(float64(i))
	}
	require.Equal(t, 10, m.Count())

	m.Reset()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0.0, m.Sum())
	assert.Equal(t, -math.MaxFloat64, m.Max())
	assert.Equal(t, 0.0, m.Quantile(0))
}
