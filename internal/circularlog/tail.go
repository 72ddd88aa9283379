package circularlog

import (
	"bytes"
	"fmt"
	"os"
)

// Tail reconstructs logical write order from path (undoing the wrap, if
// any) and returns the last n newline-delimited lines.
func Tail(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("circularlog: tail read %s: %w", path, err)
	}

	logical := reorder(data)
	return lastLines(logical, n), nil
}

// reorder undoes the circular wrap: if a marker is present, the logical
// buffer is [after_marker..end] ++ [0..marker_start). Otherwise data is
// already in order.
func reorder(data []byte) []byte {
	idx := bytes.Index(data, markerBytes)
	if idx < 0 {
		return data
	}
	after := idx + len(markerBytes)
	out := make([]byte, 0, len(data))
	out = append(out, data[after:]...)
	out = append(out, data[:idx]...)
	return out
}

func lastLines(data []byte, n int) []string {
	trimmed := bytes.Trim(data, "\x00")
	lines := bytes.Split(trimmed, []byte("\n"))
	// Split leaves a trailing empty element after the final newline.
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	// Drop blanked-marker lines (all spaces) left behind between wraps.
	filtered := lines[:0]
	for _, line := range lines {
		if isBlankMarkerLine(line) {
			continue
		}
		filtered = append(filtered, line)
	}
	lines = filtered

	if n < 0 || n > len(lines) {
		n = len(lines)
	}
	start := len(lines) - n

	out := make([]string, 0, n)
	for _, l := range lines[start:] {
		out = append(out, string(l))
	}
	return out
}

func isBlankMarkerLine(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	for _, b := range line {
		if b != ' ' {
			return false
		}
	}
	return true
}
