package oracle

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// tagLike catches attempts to close or open the prompt's own sections from page content.
	tagLike = regexp.MustCompile(`</?\s*[a-zA-Z_]+\s*>`)
)

// SanitizeText prepares page-provided text for embedding in a prompt. Page text is untrusted:
// control characters are dropped except line breaks and tabs, which collapse into single spaces
// with the rest of the whitespace. Angle-bracket tags are neutralised and the result is capped at
// limit runes.
func SanitizeText(s string, limit int) string {
	s = removeControlCharacters(s, true)
	s = removeNonPrintable(s)
	s = tagLike.ReplaceAllStringFunc(s, func(m string) string {
		return strings.NewReplacer("<", "(", ">", ")").Replace(m)
	})
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, limit)
}

// removeControlCharacters removes control characters from a string.
// If preserveFormatting is true, newlines, tabs and carriage returns are kept.
func removeControlCharacters(s string, preserveFormatting bool) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			if preserveFormatting && (r == '\n' || r == '\t' || r == '\r') {
				result.WriteRune(r)
			}
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

func removeNonPrintable(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
