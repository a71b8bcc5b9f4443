package phone

import (
	"errors"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhoneNumber is returned when a number cannot be parsed.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// NormalizeE164 converts a display value entered for c into E.164. The
// national digits are parsed in c's region, so a GB trunk '0' is dropped.
// The number is not checked against the numbering plan.
func NormalizeE164(value string, c Country) (string, error) {
	d := ExtractNational(value, c)
	if d == "" {
		return "", ErrInvalidPhoneNumber
	}
	num, err := phonenumbers.Parse(d, string(c.Code))
	if err != nil {
		return "", ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Region returns the ISO 3166-1 alpha-2 region of an E.164 number, or "" if
// it cannot be parsed.
func Region(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}
