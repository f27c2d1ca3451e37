package enrich

import (
	"regexp"
	"strings"
)

var (
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*"\s*:|\s*:)`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// stripFences removes a surrounding markdown code fence that some models
// wrap around JSON output despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairJSON fixes the malformations small local models produce most often:
// object keys missing their opening quote and trailing commas before a
// closing brace or bracket.
func repairJSON(s string) string {
	s = unquotedKey.ReplaceAllStringFunc(s, func(m string) string {
		parts := unquotedKey.FindStringSubmatch(m)
		tail := parts[3]
		if !strings.Contains(tail, `"`) {
			tail = `"` + strings.TrimLeft(tail, " \t\n") // close the key we are quoting
		}
		return parts[1] + `"` + parts[2] + tail
	})
	return trailingComma.ReplaceAllString(s, "$1")
}
