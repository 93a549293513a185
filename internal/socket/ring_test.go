package socket

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsNewestInArrivalOrder(t *testing.T) {
	r := NewRing(4)

	for i := 0; i < 10; i++ {
		r.Push([]byte(fmt.Sprintf("m%d", i)))
	}

	require.Equal(t, 4, r.Len())
	assert.Equal(t, uint64(6), r.Dropped())
	assert.Equal(t, [][]byte{[]byte("m6"), []byte("m7"), []byte("m8"), []byte("m9")}, r.snapshot())

	for _, want := range []string{"m6", "m7", "m8", "m9"} {
		b, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, want, string(b))
	}
	_, ok := r.Pop()
	assert.False(t, ok)
}

func TestRingPushReportsDrop(t *testing.T) {
	r := NewRing(2)
	assert.False(t, r.Push([]byte("a")))
	assert.False(t, r.Push([]byte("b")))
	assert.True(t, r.Push([]byte("c")))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 2, r.capacity())
	assert.False(t, r.Push([]byte("d")))
}

func TestRingWrapsAfterPartialDrain(t *testing.T) {
	r := NewRing(3)
	r.Push([]byte("a"))
	r.Push([]byte("b"))
	r.Pop()
	r.Push([]byte("c"))
	r.Push([]byte("d"))
	r.Push([]byte("e"))

	assert.Equal(t, [][]byte{[]byte("c"), []byte("d"), []byte("e")}, r.snapshot())
	assert.Equal(t, uint64(1), r.Dropped())
}
