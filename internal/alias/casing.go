package alias

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// preserveCase reshapes replacement so its casing follows original:
// all upper stays upper, all lower stays lower, and anything else is
// matched word by word on single spaces.
func preserveCase(original, replacement string) string {
	if original == strings.ToUpper(original) {
		return strings.ToUpper(replacement)
	}
	if original == strings.ToLower(original) {
		return strings.ToLower(replacement)
	}

	originalWords := strings.Split(original, " ")
	replacementWords := strings.Split(replacement, " ")

	for i, word := range replacementWords {
		if i >= len(originalWords) {
			continue
		}
		if startsUpper(originalWords[i]) {
			replacementWords[i] = capitalize(word)
		} else {
			replacementWords[i] = strings.ToLower(word)
		}
	}
	return strings.Join(replacementWords, " ")
}

// startsUpper reports whether the first rune is unchanged by upper-casing.
// Non-letters therefore count as upper-case; an empty word does not.
func startsUpper(word string) bool {
	r, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return false
	}
	return r == unicode.ToUpper(r)
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}
