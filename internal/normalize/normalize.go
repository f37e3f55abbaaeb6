// Package normalize canonicalizes digit characters before pattern matching.
// Spammers hide phone numbers behind Arabic-Indic and Persian numerals, so
// every detector runs on the normalized form of the message text.
package normalize

import "strings"

// Digits maps every digit from the supported non-Latin numeral scripts to
// its ASCII equivalent. Covered scripts: Arabic-Indic (U+0660–U+0669) and
// Extended Arabic-Indic / Persian (U+06F0–U+06F9). All other characters pass
// through unchanged. The function is total and never fails; when the input
// contains no mappable digit the original string is returned unmodified.
func Digits(text string) string {
	mapped := false
	for _, r := range text {
		if isEasternDigit(r) {
			mapped = true
			break
		}
	}
	if !mapped {
		return text
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩': // Arabic-Indic
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹': // Extended Arabic-Indic / Persian
			return '0' + (r - '۰')
		}
		return r
	}, text)
}

func isEasternDigit(r rune) bool {
	return (r >= '٠' && r <= '٩') || (r >= '۰' && r <= '۹')
}
