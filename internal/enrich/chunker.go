package enrich

import "strings"

// splitChunks breaks text into pieces of at most maxChars characters, with
// each piece after the first repeating the last overlap characters of its
// predecessor so context is not lost at the seams. Splits land on word
// boundaries when one exists inside the window.
func splitChunks(text string, maxChars, overlap int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 2
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		cut := end
		if idx := strings.LastIndexAny(text[start:end], " \t\n"); idx > 0 {
			cut = start + idx
		}
		chunks = append(chunks, text[start:cut])
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
