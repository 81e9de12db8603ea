package lookup

import (
	"regexp"
	"strings"
)

var punctuation = regexp.MustCompile(`[.,!?;:"'()\[\]{}]`)

// CleanWord strips punctuation and surrounding whitespace from a token.
func CleanWord(word string) string {
	return strings.TrimSpace(punctuation.ReplaceAllString(word, ""))
}

// Words splits message text into hoverable tokens, punctuation included.
func Words(text string) []string {
	return strings.Fields(text)
}
