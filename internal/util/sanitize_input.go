package util

import (
	"html"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength caps free-text activity descriptions.
const MaxDescriptionLength = 500

// SanitizeInput trims and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// SanitizeDescription truncates a user supplied description to
// MaxDescriptionLength runes and then escapes it, so no entity is cut.
func SanitizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		s = string([]rune(s)[:MaxDescriptionLength])
	}
	return html.EscapeString(s)
}

func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<script", "onerror", "onload", "javascript:"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
