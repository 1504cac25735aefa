package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	mobileRegex  = regexp.MustCompile(`^[6-9]\d{9}$`)
	aadhaarRegex = regexp.MustCompile(`^\d{12}$`)
	panRegex     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	emailRegex   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	ifscRegex    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	accountRegex = regexp.MustCompile(`^\d{9,18}$`)
	holderRegex  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	dobRegex     = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	pincodeRegex = regexp.MustCompile(`^[1-9]\d{5}$`)
)

// Field predicates. An empty value is never valid.

func IsValidMobile(s string) bool {
	return mobileRegex.MatchString(s)
}

// IsValidAadhaar ignores embedded spaces, so "1234 5678 9012" is valid.
func IsValidAadhaar(s string) bool {
	return aadhaarRegex.MatchString(strings.ReplaceAll(s, " ", ""))
}

// IsValidPAN uppercases before matching.
func IsValidPAN(s string) bool {
	return panRegex.MatchString(strings.ToUpper(s))
}

func IsValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

func IsValidIFSC(s string) bool {
	return ifscRegex.MatchString(s)
}

func IsValidAccountNumber(s string) bool {
	return accountRegex.MatchString(s)
}

func IsValidHolderName(s string) bool {
	return strings.TrimSpace(s) != "" && holderRegex.MatchString(s)
}

// IsValidDOB requires DD/MM/YYYY naming a real calendar date.
func IsValidDOB(s string) bool {
	if !dobRegex.MatchString(s) {
		return false
	}
	_, err := time.Parse("02/01/2006", s)
	return err == nil
}

func IsValidPincode(s string) bool {
	return pincodeRegex.MatchString(s)
}

// IsValidOTP reports whether code is exactly n ASCII digits.
func IsValidOTP(code string, n int) bool {
	if n <= 0 || len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// IsBlank reports whether s is empty after trimming.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Normalizers shape raw input before validation and storage.

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func NormalizeMobile(s string) string {
	return truncate(digitsOnly(s), 10)
}

func NormalizeAadhaar(s string) string {
	return truncate(digitsOnly(s), 12)
}

// FormatAadhaar renders digits in groups of four for display.
func FormatAadhaar(s string) string {
	d := NormalizeAadhaar(s)
	var parts []string
	for len(d) > 4 {
		parts = append(parts, d[:4])
		d = d[4:]
	}
	if d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, " ")
}

func NormalizePAN(s string) string {
	return truncate(strings.ToUpper(strings.TrimSpace(s)), 10)
}

func NormalizeIFSC(s string) string {
	return truncate(strings.ToUpper(strings.TrimSpace(s)), 11)
}

// NormalizeDOB keeps digits and inserts slashes after the day and month.
func NormalizeDOB(s string) string {
	d := truncate(digitsOnly(s), 8)
	switch {
	case len(d) > 4:
		return d[:2] + "/" + d[2:4] + "/" + d[4:]
	case len(d) > 2:
		return d[:2] + "/" + d[2:]
	default:
		return d
	}
}

// NormalizeName collapses runs of whitespace and trims.
func NormalizeName(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
