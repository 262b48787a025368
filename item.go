package ckms

import (
	"fmt"
	"math"
)

// Item is one entry of the summary.
type Item struct {
	Value float64
	// G is the minimum rank distance to the previous item.
	G uint32
	// Delta bounds how far the true rank may exceed the sum of G up to here.
	Delta uint32
}

func (it Item) String() string {
	return fmt.Sprintf("%4.3f, %d, %d", it.Value, it.G, it.Delta)
}

// less orders NaN before every number, the same order sort.Float64s uses.
func less(a, b float64) bool {
	return a < b || (math.IsNaN(a) && !math.IsNaN(b))
}
