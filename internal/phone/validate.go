package phone

import (
	"errors"
	"fmt"
	"strings"
)

// Validation error kinds, matched with errors.Is.
var (
	ErrIncomplete    = errors.New("phone number incomplete")
	ErrMobilePrefix  = errors.New("invalid mobile prefix")
	ErrInvalidFormat = errors.New("invalid phone number format")
)

// Error is the user-facing explanation of why a number is not valid yet.
// Missing is set for ErrIncomplete.
type Error struct {
	Kind    error
	Missing int
	msg     string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.Kind }

// Validate reports whether value holds a complete number for c.
func Validate(value string, c Country) bool {
	d := ExtractNational(value, c)
	switch c.Code {
	case FR, CH:
		return len(d) == 9 && hasMobilePrefix(d, c)
	case US:
		return len(d) == 10
	case GB:
		if strings.HasPrefix(d, "0") {
			return len(d) == 11
		}
		return len(d) == 10
	default:
		return false
	}
}

// ValidationError explains why value is not a valid number for c. It
// returns nil for an empty value or a valid one.
func ValidationError(value string, c Country) error {
	if value == "" || Validate(value, c) {
		return nil
	}

	d := ExtractNational(value, c)
	if need := requiredDigits(d, c) - len(d); need > 0 {
		plural := "s"
		if need == 1 {
			plural = ""
		}
		return &Error{
			Kind:    ErrIncomplete,
			Missing: need,
			msg:     fmt.Sprintf("Phone number incomplete (%d more digit%s needed)", need, plural),
		}
	}

	switch c.Code {
	case FR:
		if !hasMobilePrefix(d, c) {
			return &Error{Kind: ErrMobilePrefix, msg: "French mobile numbers must start with 6 or 7"}
		}
	case CH:
		if !hasMobilePrefix(d, c) {
			return &Error{Kind: ErrMobilePrefix, msg: "Swiss mobile numbers must start with 7"}
		}
	case GB:
		return &Error{Kind: ErrInvalidFormat, msg: "Invalid UK phone number format"}
	case US:
		return &Error{Kind: ErrInvalidFormat, msg: "Invalid US phone number format"}
	}
	return &Error{Kind: ErrInvalidFormat, msg: "Invalid phone number format"}
}

// requiredDigits is the national length a complete number must have.
func requiredDigits(d string, c Country) int {
	switch c.Code {
	case FR, CH:
		return 9
	case GB:
		if strings.HasPrefix(d, "0") {
			return 11
		}
	}
	return 10
}

func hasMobilePrefix(d string, c Country) bool {
	for _, p := range c.MobilePrefixes {
		if strings.HasPrefix(d, p) {
			return true
		}
	}
	return false
}
