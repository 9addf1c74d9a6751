package source

import (
	"strings"
	"unicode/utf8"
)

// DefaultExcerptLines is the number of leading source lines shared with every prompt.
const DefaultExcerptLines = 2000

// Excerpt returns the first maxLines lines of text (DefaultExcerptLines when
// maxLines <= 0). When maxChars > 0 the result is further cut to at most
// maxChars characters without splitting a rune.
func Excerpt(text string, maxLines, maxChars int) string {
	if maxLines <= 0 {
		maxLines = DefaultExcerptLines
	}

	end := len(text)
	seen := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		seen++
		if seen == maxLines {
			end = i
			break
		}
	}
	out := text[:end]

	if maxChars > 0 && utf8.RuneCountInString(out) > maxChars {
		n := 0
		for i := range out {
			if n == maxChars {
				out = out[:i]
				break
			}
			n++
		}
	}

	return strings.TrimRight(out, "\n")
}
