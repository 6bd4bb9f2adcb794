package services

import (
	"fmt"
	"strings"
)

// --- Общие хелперы ---

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatClock renders a total in milliseconds as zero-padded H:MM:SS.
// Sub-second precision is dropped in the public view; callers that need
// milliseconds use the raw time_ms value.
func FormatClock(totalMS int64) string {
	if totalMS < 0 {
		totalMS = 0
	}
	totalSeconds := totalMS / 1000
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func extensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		parts := strings.Split(contentType, "/")
		if len(parts) == 2 && strings.HasPrefix(parts[0], "image") && parts[1] != "" {
			return "." + strings.Split(parts[1], "+")[0], nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImageType, contentType)
	}
}
