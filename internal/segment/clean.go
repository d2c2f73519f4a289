package segment

import "strings"

// Clean collapses every whitespace run to a single space and trims the ends
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
