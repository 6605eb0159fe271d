// Package utils provides small generic helpers with no domain knowledge.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// number. Used for optional numeric query parameters like ?limit=.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
