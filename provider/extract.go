package provider

import "strings"

// ExtractCode pulls the payload out of a generator response. Content
// between a line of three backticks (optionally followed by a language
// tag) and the next fence line is the extracted payload; without any
// fence the whole response is used verbatim.
func ExtractCode(s string) string {
	lines := strings.Split(s, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i
			break
		}
	}
	if start == -1 {
		return s
	}
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "```" {
			return strings.Join(lines[start+1:i], "\n")
		}
	}
	// Unterminated fence: take everything after it.
	return strings.Join(lines[start+1:], "\n")
}
