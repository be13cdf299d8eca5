package helper

import (
	"math"
	"strings"
	"time"
)

func RoundToTwoDecimalPlaces(v float64) float64 {
	return math.Round(v*100) / 100
}

// StrInSlice returns true if search string found in slice
func StrInSlice(search string, slice []string) bool {
	for _, str := range slice {
		if str == search {
			return true
		}
	}
	return false
}

// StrInSliceFold is StrInSlice with case-insensitive comparison
func StrInSliceFold(search string, slice []string) bool {
	for _, str := range slice {
		if strings.EqualFold(str, search) {
			return true
		}
	}
	return false
}

// CounterRate returns the per-second rate between two readings of a monotonic counter.
// A counter that went backwards (wrap or reset) or a non-positive interval yields 0.
func CounterRate(prev, curr uint64, elapsed time.Duration) float64 {
	if curr < prev || elapsed <= 0 {
		return 0
	}
	return RoundToTwoDecimalPlaces(float64(curr-prev) / elapsed.Seconds())
}
