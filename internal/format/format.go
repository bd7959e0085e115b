// Package format renders durations and track data for chat output.
package format

import (
	"fmt"
	"strings"
	"time"
)

// Track formats a track length or position given in milliseconds as m:ss or h:mm:ss.
func Track(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Duration formats a duration in a human-readable way.
func Duration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}

	return fmt.Sprintf("%dm", minutes)
}

// Truncate shortens s to max runes, ending it with "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}

	if max <= 3 {
		return string(r[:max])
	}

	return string(r[:max-3]) + "..."
}

// Progress draws a bar of width cells with a marker at position/length.
func Progress(position, length int64, width int) string {
	if width <= 0 {
		return ""
	}

	idx := 0
	if length > 0 {
		idx = int(position * int64(width) / length)
	}

	idx = max(0, min(idx, width-1))

	return strings.Repeat("▬", idx) + "🔘" + strings.Repeat("▬", width-idx-1)
}

// Bytes formats a byte count with a binary unit.
func Bytes(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
