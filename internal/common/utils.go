package common

import "strings"

// ContainsAnyFold reports whether s contains any of the phrases, ignoring case.
func ContainsAnyFold(s string, phrases ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
