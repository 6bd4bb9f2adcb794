package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeDecomposeTimeMS(t *testing.T) {
	tests := []struct {
		hours, minutes, seconds, milliseconds int
		totalMS                               int64
	}{
		{0, 0, 0, 0, 0},
		{0, 0, 0, 500, 500},
		{0, 2, 5, 0, 125_000},
		{1, 2, 5, 250, 3_725_250},
		{10, 59, 59, 999, 39_599_999},
	}
	for _, tt := range tests {
		total := ComposeTimeMS(tt.hours, tt.minutes, tt.seconds, tt.milliseconds)
		assert.Equal(t, tt.totalMS, total)

		h, m, s, msec := DecomposeTimeMS(total)
		assert.Equal(t, tt.hours, h)
		assert.Equal(t, tt.minutes, m)
		assert.Equal(t, tt.seconds, s)
		assert.Equal(t, tt.milliseconds, msec)
	}
}

func TestNormalizeComponentsWin(t *testing.T) {
	// При ненулевых компонентах сумма пересчитывается из них, даже если
	// клиент прислал противоречащий time_ms.
	rec := TimeRecord{TimeMS: 999_999, Minutes: 2, Seconds: 5}
	rec.Normalize()
	assert.Equal(t, int64(125_000), rec.TimeMS)
}

func TestNormalizeDerivesComponentsFromTotal(t *testing.T) {
	rec := TimeRecord{TimeMS: 3_725_250}
	rec.Normalize()
	assert.Equal(t, 1, rec.Hours)
	assert.Equal(t, 2, rec.Minutes)
	assert.Equal(t, 5, rec.Seconds)
	assert.Equal(t, 250, rec.Milliseconds)
}

func TestIsAbsent(t *testing.T) {
	absent := TimeRecord{TimeMS: 0}
	assert.True(t, absent.IsAbsent())

	finished := TimeRecord{TimeMS: 1}
	assert.False(t, finished.IsAbsent())
}
