package textutil

import (
	"strings"
	"unicode"
)

const maxSlugRunes = 64

// Slug converts text to a lowercase hyphen-separated token. Letters and
// digits are kept, every other run becomes a single hyphen. Returns "untitled"
// when nothing survives.
func Slug(value string) string {
	var b strings.Builder
	count := 0
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if count >= maxSlugRunes {
			break
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			count++
			pendingDash = false
		}
		b.WriteRune(r)
		count++
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
