package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 60

// Slug converts a title into a lowercase ASCII token for file names:
// accents are dropped and every other run of non-alphanumerics becomes one
// dash. Empty results fall back to "untitled".
func Slug(value string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFD.String(value) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r >= unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			pendingDash = b.Len() > 0
			continue
		}
		need := 1
		if pendingDash {
			need = 2
		}
		if b.Len()+need > maxSlugLen {
			break
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}
