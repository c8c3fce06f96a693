package utils

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Contact normalization shared by entry submission, referral redemption, and
// bonus claims. All comparisons and stored values go through these functions so
// "(555) 123-4567" and "+1 555.123.4567" dedupe to the same entrant.

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lowercases and NFC-normalizes an email address.
// Returns "" if the input is not a plausible address.
func NormalizeEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
	if !emailRe.MatchString(e) {
		return ""
	}
	return e
}

// NormalizePhone reduces a US phone number to its canonical 10-digit form,
// stripping punctuation and a leading country code 1. Returns "" if the result
// is not exactly 10 digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return ""
	}
	return digits
}

// NormalizeState uppercases a 2-letter US state code. Returns "" for anything else.
func NormalizeState(state string) string {
	s := strings.ToUpper(strings.TrimSpace(state))
	if len(s) != 2 {
		return ""
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return s
}

// StateRestricted reports whether state appears in a comma-separated restriction list.
func StateRestricted(state, restrictedList string) bool {
	if state == "" || restrictedList == "" {
		return false
	}
	for _, rs := range strings.Split(restrictedList, ",") {
		if strings.EqualFold(strings.TrimSpace(rs), state) {
			return true
		}
	}
	return false
}
