package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var titleCaser = cases.Title(language.Und)

// NormalizeTag collapses whitespace and separators in a short tag such as a
// mood or camera movement and title-cases it ("slow   zoom-in" -> "Slow Zoom-In").
func NormalizeTag(value string) string {
	value = CollapseSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(value))
}

// NormalizeTitle trims and collapses whitespace in a production title,
// composing Unicode to NFC so equal titles compare equal.
func NormalizeTitle(value string) string {
	return CollapseSpace(norm.NFC.String(value))
}

// CollapseSpace trims value and replaces runs of Unicode whitespace with a
// single space.
func CollapseSpace(value string) string {
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}

// Truncate shortens value to at most limit runes, marking the cut with an
// ellipsis. A limit below one returns value unchanged.
func Truncate(value string, limit int) string {
	if limit < 1 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
