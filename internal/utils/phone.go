package utils

import (
	"regexp"
	"strings"
)

var (
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	gstinPattern  = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	panPattern    = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// NormalizePhone strips formatting and the country or trunk prefix from an Indian mobile
// number and reports whether what remains is a valid 10-digit mobile number.
func NormalizePhone(raw string) (string, bool) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")
	switch {
	case len(phone) == 12 && strings.HasPrefix(phone, "91"):
		phone = phone[2:]
	case len(phone) == 11 && strings.HasPrefix(phone, "0"):
		phone = phone[1:]
	}
	if !mobilePattern.MatchString(phone) {
		return "", false
	}
	return phone, true
}

// IsValidGSTIN reports whether s is a well-formed 15-character GSTIN
func IsValidGSTIN(s string) bool {
	return gstinPattern.MatchString(strings.ToUpper(s))
}

// IsValidPAN reports whether s is a well-formed PAN
func IsValidPAN(s string) bool {
	return panPattern.MatchString(strings.ToUpper(s))
}
