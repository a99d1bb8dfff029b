// Package plate normalizes and validates Vietnamese license plates.
package plate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalid = errors.New("invalid license plate")

var (
	// Cars: province code + series letter + 4-6 digits, optionally dotted
	// (30A-123.45, 51L12345).
	carRe = regexp.MustCompile(`^(\d{2})([A-Z])-?(\d{3}\.\d{2}|\d{4,6})$`)
	// Motorbikes: province code + 1-2 series letters + digits
	// (29-H112345, 51L1456.78).
	bikeRe = regexp.MustCompile(`^(\d{2})-?([A-Z]{1,2})-?(\d+\.\d+|\d{4,6})$`)
	// Diplomatic / military / foreign-owned series.
	specialRe = regexp.MustCompile(`^(NG|QD|HC|CD|LD|NN)-?(\d{4,5})$`)
)

// Normalize uppercases the plate and strips spaces. Every plate stored or
// compared anywhere in the system goes through this first.
func Normalize(raw string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "")
}

// Validate checks a normalized plate against the known formats.
func Validate(normalized string) error {
	if normalized == "" {
		return ErrInvalid
	}

	if specialRe.MatchString(normalized) {
		return nil
	}

	m := carRe.FindStringSubmatch(normalized)
	if m == nil {
		m = bikeRe.FindStringSubmatch(normalized)
	}
	if m == nil {
		return ErrInvalid
	}

	// Province codes run 11-99.
	code, err := strconv.Atoi(m[1])
	if err != nil || code < 11 || code > 99 {
		return ErrInvalid
	}

	return nil
}
