package manifest

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLen caps a slug's length in bytes before deduplication suffixes.
const MaxSlugLen = 80

// Slugify folds text to lowercase ASCII: accents are decomposed and
// dropped, every run of other characters becomes one '-', and the result
// is trimmed and capped. Empty results become "section".
func Slugify(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	var sb strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingDash = false
			sb.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	slug := sb.String()
	if len(slug) > MaxSlugLen {
		slug = strings.TrimRight(slug[:MaxSlugLen], "-")
	}
	if slug == "" {
		return "section"
	}
	return slug
}

// slugSet assigns unique slugs in first-seen order.
type slugSet map[string]bool

// claim returns base, or base-2, base-3, ... for the first unused value.
func (s slugSet) claim(base string) string {
	if !s[base] {
		s[base] = true
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !s[candidate] {
			s[candidate] = true
			return candidate
		}
	}
}
