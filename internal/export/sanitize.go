package export

import (
	"strings"
	"time"
	"unicode"
)

// FallbackName is used when the sanitized title comes out empty.
const FallbackName = "cloudcut-export"

// maxTitleLen bounds the title portion of an export name.
const maxTitleLen = 60

func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// ExportName builds the upload name from the project title and a timestamp.
func ExportName(title string, at time.Time) string {
	cleaned := SanitizeName(title, maxTitleLen)
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if cleaned == "" {
		cleaned = FallbackName
	}
	return cleaned + "-" + at.Format("20060102-150405")
}
