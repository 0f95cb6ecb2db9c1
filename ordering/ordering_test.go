package ordering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestBetween(t *testing.T) {
	tests := []struct {
		name       string
		prev, next *float64
		want       float64
	}{
		{name: "empty column", want: 1024},
		{name: "before first", next: f(1024), want: 512},
		{name: "after last", prev: f(1024), want: 2048},
		{name: "between", prev: f(1024), next: f(2048), want: 1536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Between(tt.prev, tt.next, DefaultIncrement)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBetweenDetectsExhaustedGap(t *testing.T) {
	p := 1.0
	n := math.Nextafter(p, 2)
	_, err := Between(&p, &n, DefaultIncrement)
	assert.ErrorIs(t, err, ErrGapExhausted)

	_, err = Between(nil, f(0), DefaultIncrement)
	assert.ErrorIs(t, err, ErrGapExhausted)

	_, err = Between(f(5), f(5), DefaultIncrement)
	assert.ErrorIs(t, err, ErrGapExhausted)
}

func TestRepeatedInsertionEventuallyRebalances(t *testing.T) {
	keys := []float64{1024, 2048}
	rebalanced := false
	for i := 0; i < 100; i++ {
		pl := Place(keys, 1, DefaultIncrement)
		if pl.Rebalanced != nil {
			rebalanced = true
			require.Len(t, pl.Rebalanced, len(keys)+1)
			assert.Equal(t, pl.Rebalanced[1], pl.Key)
			break
		}
		require.Greater(t, pl.Key, keys[0])
		require.Less(t, pl.Key, keys[1])
		keys = []float64{keys[0], pl.Key}
	}
	assert.True(t, rebalanced, "a narrowing gap must end in a renumber")
}

func TestPlace(t *testing.T) {
	keys := []float64{1024, 2048, 3072}

	assert.Equal(t, Placement{Key: 512, Index: 0}, Place(keys, 0, DefaultIncrement))
	assert.Equal(t, Placement{Key: 1536, Index: 1}, Place(keys, 1, DefaultIncrement))
	assert.Equal(t, Placement{Key: 4096, Index: 3}, Place(keys, 3, DefaultIncrement))
	assert.Equal(t, Placement{Key: 4096, Index: 3}, Place(keys, 99, DefaultIncrement), "index clamps to the end")
	assert.Equal(t, Placement{Key: 1024, Index: 0}, Place(nil, -4, DefaultIncrement))
	assert.Nil(t, Place(keys, 1, DefaultIncrement).Neighbors())
}

func TestPlaceRebalanceNeighbors(t *testing.T) {
	p := 1.0
	keys := []float64{p, math.Nextafter(p, 2), 7}

	pl := Place(keys, 1, 10)
	require.NotNil(t, pl.Rebalanced)
	assert.Equal(t, 20.0, pl.Key)
	assert.Equal(t, []float64{10, 30, 40}, pl.Neighbors())
}

func TestRebalance(t *testing.T) {
	assert.Equal(t, []float64{10, 20, 30}, Rebalance(3, 10))
	assert.Empty(t, Rebalance(0, 10))
}
