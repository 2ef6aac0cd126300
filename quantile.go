package carrier

import (
	"math"
)

// latencyQuantileTracker estimates a single streaming percentile of a
// latency distribution using the P-Square algorithm (Jain & Chlamtac,
// 1985). It backs LatencyMetrics.Record/Sample, which need O(1)
// per-observation updates rather than retaining every steal/epilog
// duration a carrier ever records.
//
// Thread Safety: NOT thread-safe; callers serialize under
// LatencyMetrics.mu.
type latencyQuantileTracker struct {
	// p is the target quantile (0.0 to 1.0)
	p float64

	// q stores the 5 marker heights (values at markers)
	q [5]float64

	// n stores the 5 marker positions (actual positions, 0-indexed)
	n [5]int

	// np stores the 5 desired marker positions (idealized, floats)
	np [5]float64

	// dn stores the increments for desired marker positions
	dn [5]float64

	initialized bool

	// count is the total number of observations received
	count int

	// initBuffer stores first 5 observations before the algorithm starts
	initBuffer [5]float64
}

// newLatencyQuantileTracker creates a tracker for the given percentile p,
// which should be in [0.0, 1.0] (e.g., 0.50 for P50, 0.99 for P99).
func newLatencyQuantileTracker(p float64) *latencyQuantileTracker {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	return &latencyQuantileTracker{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// Update adds a new latency observation. O(1).
func (ps *latencyQuantileTracker) Update(x float64) {
	ps.count++

	if ps.count <= 5 {
		ps.initBuffer[ps.count-1] = x
		if ps.count == 5 {
			ps.initialize()
		}
		return
	}

	var k int
	if x < ps.q[0] {
		ps.q[0] = x
		k = 0
	} else if x >= ps.q[4] {
		ps.q[4] = x
		k = 3
	} else {
		for k = 0; k < 4; k++ {
			if ps.q[k] <= x && x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}

	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}

			qPrime := ps.parabolic(i, sign)

			if ps.q[i-1] < qPrime && qPrime < ps.q[i+1] {
				ps.q[i] = qPrime
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

// initialize sets up the markers from the first 5 observations.
func (ps *latencyQuantileTracker) initialize() {
	for i := 1; i < 5; i++ {
		key := ps.initBuffer[i]
		j := i - 1
		for j >= 0 && ps.initBuffer[j] > key {
			ps.initBuffer[j+1] = ps.initBuffer[j]
			j--
		}
		ps.initBuffer[j+1] = key
	}

	for i := 0; i < 5; i++ {
		ps.q[i] = ps.initBuffer[i]
		ps.n[i] = i
	}

	ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}

	ps.initialized = true
}

func (ps *latencyQuantileTracker) parabolic(i, d int) float64 {
	df := float64(d)
	ni := float64(ps.n[i])
	niPrev := float64(ps.n[i-1])
	niNext := float64(ps.n[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.q[i+1] - ps.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.q[i] - ps.q[i-1]) / (ni - niPrev)

	return ps.q[i] + term1*(term2+term3)
}

func (ps *latencyQuantileTracker) linear(i, d int) float64 {
	if d == 1 {
		return ps.q[i] + (ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])
	}
	return ps.q[i] - (ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1])
}

// Quantile returns the current estimated quantile. O(1).
func (ps *latencyQuantileTracker) Quantile() float64 {
	if ps.count == 0 {
		return 0
	}

	if ps.count < 5 {
		sorted := make([]float64, ps.count)
		copy(sorted, ps.initBuffer[:ps.count])
		for i := 1; i < ps.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(float64(ps.count-1) * ps.p)
		if index >= ps.count {
			index = ps.count - 1
		}
		return sorted[index]
	}

	return ps.q[2]
}

// Count returns the number of observations received.
func (ps *latencyQuantileTracker) Count() int {
	return ps.count
}

// Max returns the maximum observed value.
func (ps *latencyQuantileTracker) Max() float64 {
	if ps.count == 0 {
		return 0
	}
	if ps.count < 5 {
		max := ps.initBuffer[0]
		for i := 1; i < ps.count; i++ {
			if ps.initBuffer[i] > max {
				max = ps.initBuffer[i]
			}
		}
		return max
	}
	return ps.q[4]
}

// latencyQuantileSet tracks several percentiles of one latency
// distribution at once, plus sum/count/max, so LatencyMetrics.Sample can
// report P50/P90/P95/P99/Mean/Max from a single pass of bookkeeping.
//
// Thread Safety: NOT thread-safe; callers serialize under
// LatencyMetrics.mu.
type latencyQuantileSet struct {
	trackers []*latencyQuantileTracker
	sum      float64
	count    int
	max      float64
}

// newLatencyQuantileSet creates a tracker for each of percentiles, each in
// [0.0, 1.0].
func newLatencyQuantileSet(percentiles ...float64) *latencyQuantileSet {
	m := &latencyQuantileSet{
		trackers: make([]*latencyQuantileTracker, len(percentiles)),
		max:      -math.MaxFloat64,
	}
	for i, p := range percentiles {
		m.trackers[i] = newLatencyQuantileTracker(p)
	}
	return m
}

// Update adds a new observation to every percentile tracker. O(k) in the
// number of tracked percentiles.
func (m *latencyQuantileSet) Update(x float64) {
	m.count++
	m.sum += x
	if x > m.max {
		m.max = x
	}
	for _, est := range m.trackers {
		est.Update(x)
	}
}

// Quantile returns the estimate for the i-th tracked percentile.
func (m *latencyQuantileSet) Quantile(i int) float64 {
	if i < 0 || i >= len(m.trackers) {
		return 0
	}
	return m.trackers[i].Quantile()
}

// Count returns the total number of observations.
func (m *latencyQuantileSet) Count() int {
	return m.count
}

// Sum returns the sum of all observations.
func (m *latencyQuantileSet) Sum() float64 {
	return m.sum
}

// Max returns the maximum observed value.
func (m *latencyQuantileSet) Max() float64 {
	if m.count == 0 {
		return 0
	}
	return m.max
}

// Mean returns the arithmetic mean of all observations.
func (m *latencyQuantileSet) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Reset clears all state for reuse.
func (m *latencyQuantileSet) Reset() {
	m.sum = 0
	m.count = 0
	m.max = -math.MaxFloat64
	for _, est := range m.trackers {
		*est = *newLatencyQuantileTracker(est.p)
	}
}
