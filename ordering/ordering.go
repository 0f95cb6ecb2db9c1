// ABOUTME: Fractional ordering keys for kanban columns
// ABOUTME: Assigns midpoint keys between neighbors and renumbers a column once a gap runs out
package ordering

import (
	"errors"
)

// DefaultIncrement is the spacing used for a first item and for renumbered columns.
const DefaultIncrement = 1024.0

// ErrGapExhausted means no float64 lies strictly between the two neighbors.
var ErrGapExhausted = errors.New("ordering: no room between neighbors")

// Between returns the key for an item placed after prev and before next. Either
// neighbor may be nil. Only the moved item's key is produced; neighbors keep theirs.
func Between(prev, next *float64, increment float64) (float64, error) {
	if increment <= 0 {
		increment = DefaultIncrement
	}

	switch {
	case prev == nil && next == nil:
		return increment, nil
	case prev == nil:
		key := *next / 2
		if !(key < *next) {
			return 0, ErrGapExhausted
		}
		return key, nil
	case next == nil:
		key := *prev + increment
		if !(key > *prev) {
			return 0, ErrGapExhausted
		}
		return key, nil
	default:
		key := (*prev + *next) / 2
		if !(*prev < key && key < *next) {
			return 0, ErrGapExhausted
		}
		return key, nil
	}
}

// Rebalance returns n evenly spaced keys starting at increment.
func Rebalance(n int, increment float64) []float64 {
	if increment <= 0 {
		increment = DefaultIncrement
	}
	keys := make([]float64, n)
	for i := range keys {
		keys[i] = float64(i+1) * increment
	}
	return keys
}

// Placement is the outcome of inserting an item into a column.
type Placement struct {
	// Key is the moved item's new ordering key.
	Key float64
	// Index is the clamped target position.
	Index int
	// Rebalanced is nil unless the column had to be renumbered. When set it holds the
	// new keys for the whole column in order, with the moved item at Index.
	Rebalanced []float64
}

// Neighbors returns the renumbered keys of the other items in column order, or nil
// when no rebalance happened.
func (p Placement) Neighbors() []float64 {
	if p.Rebalanced == nil {
		return nil
	}
	out := make([]float64, 0, len(p.Rebalanced)-1)
	out = append(out, p.Rebalanced[:p.Index]...)
	return append(out, p.Rebalanced[p.Index+1:]...)
}

// Place computes the key for inserting an item at index into a column whose current
// keys (excluding the item being moved) are given in ascending order. index is clamped.
func Place(keys []float64, index int, increment float64) Placement {
	if index < 0 {
		index = 0
	}
	if index > len(keys) {
		index = len(keys)
	}

	var prev, next *float64
	if index > 0 {
		prev = &keys[index-1]
	}
	if index < len(keys) {
		next = &keys[index]
	}

	key, err := Between(prev, next, increment)
	if err == nil {
		return Placement{Key: key, Index: index}
	}

	renumbered := Rebalance(len(keys)+1, increment)
	return Placement{Key: renumbered[index], Index: index, Rebalanced: renumbered}
}
