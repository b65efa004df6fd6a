package common

import "strings"

// HasAny reports whether s contains any of subs, ignoring case.
// Empty substrings never match.
func HasAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
