package connio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPSquareEstimatorMedianOfUniformSamples(t *testing.T) {
	e := newPSquareEstimator(0.5)
	for i := 1; i <= 99; i++ {
		e.Observe(float64(i))
	}
	// true median of 1..99 is 50; P^2 is an approximation.
	require.InDelta(t, 50, e.Value(), 10)
}

func TestPSquareEstimatorFewSamplesFallsBackToObserved(t *testing.T) {
	e := newPSquareEstimator(0.5)
	e.Observe(10)
	e.Observe(20)
	v := e.Value()
	require.GreaterOrEqual(t, v, 10.0)
	require.LessOrEqual(t, v, 20.0)
}

func TestPSquareMultiQuantileTracksIndependentQuantiles(t *testing.T) {
	m := newPSquareMultiQuantile(0.5, 0.9, 0.99)
	for i := 1; i <= 200; i++ {
		m.Observe(float64(i))
	}
	p50 := m.Value(0.5)
	p90 := m.Value(0.9)
	p99 := m.Value(0.99)
	require.Less(t, p50, p90)
	require.Less(t, p90, p99)
}

func TestPSquareMultiQuantileUnknownQuantileReturnsZero(t *testing.T) {
	m := newPSquareMultiQuantile(0.5)
	require.Equal(t, 0.0, m.Value(0.75))
}
