package ratelimit

import (
	"fmt"
	"strings"
)

// FailPolicy decides what a limiter answers when its store cannot be reached.
type FailPolicy string

const (
	// FailOpen admits the request and logs a warning.
	FailOpen FailPolicy = "open"
	// FailClosed denies the request with a retry hint of one full window.
	FailClosed FailPolicy = "closed"
)

// ParseFailPolicy normalises textual input into a supported policy.
func ParseFailPolicy(value string) (FailPolicy, error) {
	switch FailPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown rate limit fail policy %q: must be 'open' or 'closed'", value)
	}
}
