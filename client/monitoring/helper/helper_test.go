package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounterRate(t *testing.T) {
	testCases := []struct {
		Name    string
		Prev    uint64
		Curr    uint64
		Elapsed time.Duration
		Want    float64
	}{
		{
			Name:    "steady",
			Prev:    1000,
			Curr:    3000,
			Elapsed: 2 * time.Second,
			Want:    1000,
		},
		{
			Name:    "fractional",
			Prev:    0,
			Curr:    1,
			Elapsed: 3 * time.Second,
			Want:    0.33,
		},
		{
			Name:    "counter reset",
			Prev:    5000,
			Curr:    10,
			Elapsed: time.Second,
			Want:    0,
		},
		{
			Name:    "no time passed",
			Prev:    1,
			Curr:    2,
			Elapsed: 0,
			Want:    0,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Want, CounterRate(tc.Prev, tc.Curr, tc.Elapsed))
		})
	}
}

func TestStrInSlice(t *testing.T) {
	assert.True(t, StrInSlice("sda", []string{"sdb", "sda"}))
	assert.False(t, StrInSlice("SDA", []string{"sda"}))
	assert.True(t, StrInSliceFold("SDA", []string{"sda"}))
	assert.False(t, StrInSliceFold("sdc", nil))
}
