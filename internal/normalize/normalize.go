// Package normalize turns raw listing strings into the canonical forms used
// for identity comparison. Every function is total and idempotent; an empty
// result means "no value".
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CountryPrefix is the dialing code prepended to national phone numbers.
const CountryPrefix = "55"

var (
	nonDigitRe   = regexp.MustCompile(`\D+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonKeyRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Digits strips every non-digit character.
func Digits(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// Phone returns the canonical "+55…" form of a phone number.
func Phone(s string) string {
	d := PhoneDigits(s)
	if d == "" {
		return ""
	}
	return "+" + d
}

// PhoneDigits returns the digits of Phone(s), the form stored for matching.
func PhoneDigits(s string) string {
	d := Digits(s)
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(d, CountryPrefix) {
		d = CountryPrefix + d
	}
	return d
}

// Name trims, collapses whitespace and lowercases a business name.
func Name(s string) string {
	return strings.ToLower(collapse(s))
}

// Address trims and collapses whitespace, preserving case.
func Address(s string) string {
	return collapse(s)
}

// Website trims, lowercases and strips trailing slashes.
func Website(s string) string {
	w := strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(w, "/ \t\r\n")
}

// WebsiteKey is Website without scheme or "www." so that
// "HTTPS://www.Foo.com/" and "foo.com" compare equal.
func WebsiteKey(s string) string {
	w := Website(s)
	for {
		trimmed := w
		for _, p := range websitePrefixes {
			trimmed = strings.TrimPrefix(trimmed, p)
		}
		trimmed = strings.TrimSpace(strings.TrimRight(trimmed, "/ \t\r\n"))
		if trimmed == w {
			return w
		}
		w = trimmed
	}
}

var websitePrefixes = []string{"https://", "http://", "www."}

// Key folds a header, city name or niche label into a lookup key:
// lowercase, accents removed, runs of non-alphanumerics replaced by "_".
func Key(s string) string {
	k := strings.ToLower(StripAccents(strings.TrimSpace(s)))
	k = nonKeyRe.ReplaceAllString(k, "_")
	return strings.Trim(k, "_")
}

// StripAccents removes combining marks after NFD decomposition.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
