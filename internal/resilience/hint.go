package resilience

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// retryHintPattern matches wait hints that providers embed in error bodies,
// e.g. "Please try again in 5s", "retry after 12 seconds", "try again in 1.5s".
var retryHintPattern = regexp.MustCompile(`(?i)(?:try again|retry)(?:\s+\w+)?\s+(?:in|after)\s+(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|second|seconds|m|min|minute|minutes)?`)

// ParseRetryHint extracts a wait duration from free-form error text. Returns
// zero when no hint is present.
func ParseRetryHint(text string) time.Duration {
	m := retryHintPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value < 0 {
		return 0
	}
	switch m[2] {
	case "ms":
		return time.Duration(value * float64(time.Millisecond))
	case "m", "min", "minute", "minutes":
		return time.Duration(value * float64(time.Minute))
	default:
		return time.Duration(value * float64(time.Second))
	}
}

// ParseRetryAfter interprets a Retry-After header value: either delay
// seconds or an HTTP date. Returns zero when the value is absent or invalid.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
