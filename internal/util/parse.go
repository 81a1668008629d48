package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return val
	}
	return defaultValue
}

// ParseFloat parses a string to a float64, returning defaultValue if parsing fails
func ParseFloat(s string, defaultValue float64) float64 {
	if val, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return val
	}
	return defaultValue
}

// ParseBool accepts the usual spellings of true/false, returning defaultValue otherwise
func ParseBool(s string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
		return val
	}
	return defaultValue
}

// ParseDuration parses a Go duration string, returning defaultValue if parsing fails
func ParseDuration(s string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return val
	}
	return defaultValue
}

// SplitCSV splits a comma-separated list, dropping blanks
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
