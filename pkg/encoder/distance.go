package encoder

import (
	"cmp"
	"math"
)

// L1 is the Manhattan distance between two integer vectors.
func L1(a, b []int64) (float64, error) {
	if err := checkLength(len(a), len(b)); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum, nil
}

// L2 is the Euclidean distance between two float vectors.
func L2(a, b []float64) (float64, error) {
	if err := checkLength(len(a), len(b)); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Float64Comparator orders scalars naturally and ranks them by |a-b|.
func Float64Comparator() Comparator[float64] {
	return Comparator[float64]{
		Order: cmp.Compare[float64],
		Distance: func(a, b float64) (float64, error) {
			return math.Abs(a - b), nil
		},
	}
}

// Int64Comparator orders integers naturally and ranks them by |a-b|, computed
// in float64 so extreme values cannot overflow.
func Int64Comparator() Comparator[int64] {
	return Comparator[int64]{
		Order: cmp.Compare[int64],
		Distance: func(a, b int64) (float64, error) {
			return math.Abs(float64(a) - float64(b)), nil
		},
	}
}

// VectorComparator orders vectors lexicographically and ranks them by L1.
func VectorComparator() Comparator[[]int64] {
	return Comparator[[]int64]{
		Order:    compareVectors,
		Distance: L1,
	}
}

func compareVectors(a, b []int64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
