package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// tokenize NFKC-normalises and lower-cases text and splits it into words.
// Full-width and compatibility forms fold onto their plain equivalents, so
// "Ｍｅｅｔｉｎｇ" and "meeting" produce the same token.
func tokenize(text string) []string {
	folded := strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
