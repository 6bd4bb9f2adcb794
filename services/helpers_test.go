package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		totalMS int64
		want    string
	}{
		{0, "00:00:00"},
		{999, "00:00:00"}, // субсекундная точность отбрасывается
		{58_000, "00:00:58"},
		{125_000, "00:02:05"},
		{3_725_000, "01:02:05"},
		{36_000_000, "10:00:00"},
		{-5, "00:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatClock(tt.totalMS), "FormatClock(%d)", tt.totalMS)
	}
}

func TestExtensionFromContentType(t *testing.T) {
	ext, err := extensionFromContentType("image/png")
	require.NoError(t, err)
	assert.Equal(t, ".png", ext)

	ext, err = extensionFromContentType("image/svg+xml")
	require.NoError(t, err)
	assert.Equal(t, ".svg", ext)

	_, err = extensionFromContentType("application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedImageType)
}
