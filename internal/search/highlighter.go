package search

import (
	"strings"
	"unicode/utf8"
)

// Highlight returns an excerpt of content of at most maxLen runes, centered on the first
// occurrence of any of terms. Without a match the excerpt is the start of content.
// maxLen <= 0 returns content unchanged.
func Highlight(content string, terms []string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}

	start := 0
	lower := strings.ToLower(content)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if i := strings.Index(lower, t); i >= 0 {
			pos := utf8.RuneCountInString(lower[:i])
			start = max(0, pos-maxLen/4)
			break
		}
	}
	end := min(len(runes), start+maxLen)
	if end-start < maxLen {
		start = max(0, end-maxLen)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}
