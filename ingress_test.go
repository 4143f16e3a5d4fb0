package connio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkedIngressFIFO(t *testing.T) {
	q := NewChunkedIngress()
	var order []int
	for i := 0; i < ingressChunkSize*3+7; i++ {
		i := i
		q.Push(func() { order = append(order, i) })
	}
	require.Equal(t, ingressChunkSize*3+7, q.Len())

	n := q.DrainAll(0)
	require.Equal(t, ingressChunkSize*3+7, n)
	require.True(t, q.Empty())
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestChunkedIngressPopEmpty(t *testing.T) {
	q := NewChunkedIngress()
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestChunkedIngressBudget(t *testing.T) {
	q := NewChunkedIngress()
	ran := 0
	for i := 0; i < 10; i++ {
		q.Push(func() { ran++ })
	}
	n := q.DrainAll(4)
	require.Equal(t, 4, n)
	require.Equal(t, 4, ran)
	require.Equal(t, 6, q.Len())
}
