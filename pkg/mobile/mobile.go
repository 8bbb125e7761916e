// Package mobile validates the contact numbers captured at the front desk.
package mobile

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^\d{10}$`)

// Valid reports whether s is exactly ten ASCII digits.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Normalize trims surrounding whitespace; it does not strip separators, so
// "98765-43210" stays invalid.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}
