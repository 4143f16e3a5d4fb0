package connio

import "sync"

// pSquareEstimator implements the P² algorithm (Jain & Chlamtac, 1985)
// for streaming, O(1)-per-sample estimation of a single quantile
// without storing the full sample set.
type pSquareEstimator struct {
	p          float64
	n          [5]int
	nDesired   [5]float64
	increments [5]float64
	q          [5]float64
	count      int
	initial    [5]float64
}

func newPSquareEstimator(p float64) *pSquareEstimator {
	e := &pSquareEstimator{p: p}
	e.n = [5]int{1, 2, 3, 4, 5}
	e.nDesired = [5]float64{1, 1 + 2*p, 1 + 4*p, 3 + 2*p, 5}
	e.increments = [5]float64{0, p / 2, p, (1 + p) / 2, 1}
	return e
}

// Observe feeds a single sample into the estimator.
func (e *pSquareEstimator) Observe(x float64) {
	if e.count < 5 {
		e.initial[e.count] = x
		e.count++
		if e.count == 5 {
			// sort the first five observations to seed marker heights
			for i := 1; i < 5; i++ {
				for j := i; j > 0 && e.initial[j-1] > e.initial[j]; j-- {
					e.initial[j-1], e.initial[j] = e.initial[j], e.initial[j-1]
				}
			}
			copy(e.q[:], e.initial[:])
		}
		return
	}

	k := 0
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x >= e.q[4]:
		e.q[4] = x
		k = 3
	default:
		for i := 0; i < 4; i++ {
			if x < e.q[i+1] {
				k = i
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.nDesired[i] += e.increments[i]
	}

	for i := 1; i < 4; i++ {
		d := e.nDesired[i] - float64(e.n[i])
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qNew := e.parabolic(i, sign)
			if e.q[i-1] < qNew && qNew < e.q[i+1] {
				e.q[i] = qNew
			} else {
				e.q[i] = e.linear(i, sign)
			}
			e.n[i] += sign
		}
	}
}

func (e *pSquareEstimator) parabolic(i, sign int) float64 {
	d := float64(sign)
	return e.q[i] + d/float64(e.n[i+1]-e.n[i-1])*(
		(float64(e.n[i]-e.n[i-1])+d)*(e.q[i+1]-e.q[i])/float64(e.n[i+1]-e.n[i])+
			(float64(e.n[i+1]-e.n[i])-d)*(e.q[i]-e.q[i-1])/float64(e.n[i]-e.n[i-1]))
}

func (e *pSquareEstimator) linear(i, sign int) float64 {
	d := sign
	return e.q[i] + float64(d)*(e.q[i+d]-e.q[i])/float64(e.n[i+d]-e.n[i])
}

// Value returns the current quantile estimate.
func (e *pSquareEstimator) Value() float64 {
	if e.count < 5 {
		// not enough samples yet; fall back to the closest observed value
		idx := int(e.p * float64(e.count))
		if idx >= e.count {
			idx = e.count - 1
		}
		if idx < 0 {
			idx = 0
		}
		return e.initial[idx]
	}
	return e.q[2]
}

// pSquareMultiQuantile tracks several quantiles of the same stream
// concurrently, one estimator per quantile, guarded by a single mutex
// (samples are small structs; contention is not the bottleneck here).
type pSquareMultiQuantile struct {
	mu         sync.Mutex
	estimators map[float64]*pSquareEstimator
}

func newPSquareMultiQuantile(quantiles ...float64) *pSquareMultiQuantile {
	m := &pSquareMultiQuantile{estimators: make(map[float64]*pSquareEstimator, len(quantiles))}
	for _, q := range quantiles {
		m.estimators[q] = newPSquareEstimator(q)
	}
	return m
}

func (m *pSquareMultiQuantile) Observe(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.estimators {
		e.Observe(x)
	}
}

func (m *pSquareMultiQuantile) Value(q float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.estimators[q]; ok {
		return e.Value()
	}
	return 0
}
