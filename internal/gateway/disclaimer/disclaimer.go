package disclaimer

import "strings"

// Text is the compliance notice every answer carries.
const Text = "This information is for educational purposes only and is not medical advice. Please consult a qualified healthcare professional."

// Ensure appends Text after a blank line unless it is already present.
// Ensure(Ensure(s)) == Ensure(s).
func Ensure(s string) string {
	if strings.Contains(s, Text) {
		return s
	}
	return s + "\n\n" + Text
}

// Count reports how many times the notice occurs in s.
func Count(s string) int {
	return strings.Count(s, Text)
}

// Strip removes every occurrence of the notice, for fields that carry it elsewhere.
func Strip(s string) string {
	if !strings.Contains(s, Text) {
		return s
	}
	return strings.TrimSpace(strings.ReplaceAll(s, Text, ""))
}
