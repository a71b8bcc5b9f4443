package phone

import (
	"strings"
)

// ExtractNational returns the national digits of value: every non-digit is
// dropped, then the country's dialing-prefix digits are removed if the
// remaining digits start with them. The result is not length-capped.
func ExtractNational(value string, c Country) string {
	digits := digitsOnly(value)
	return strings.TrimPrefix(digits, c.PrefixDigits())
}

// CountDigits returns the number of national digits in value.
func CountDigits(value string, c Country) int {
	return len(ExtractNational(value, c))
}

// Format renders national digits in the country's display mask. Non-digits
// are ignored and the digits are capped before rendering; an empty input
// yields the bare dialing prefix.
func Format(digits string, c Country) string {
	d := digitsOnly(digits)
	if limit := digitLimit(d, c); len(d) > limit {
		d = d[:limit]
	}
	if d == "" {
		return c.DialingPrefix
	}

	switch c.Code {
	case FR:
		return joinPrefixed(c.DialingPrefix, group(d, 1, 2, 2, 2, 2))
	case CH:
		return joinPrefixed(c.DialingPrefix, group(d, 2, 3, 2, 2))
	case US:
		return formatUS(d, c)
	case GB:
		return formatGB(d, c)
	default:
		return d
	}
}

func formatUS(d string, c Country) string {
	if len(d) > 1 && d[0] == '1' {
		return joinPrefixed(c.DialingPrefix, group(d[1:], 3, 3, 4))
	}
	switch {
	case len(d) <= 3:
		return "(" + d
	case len(d) <= 6:
		return "(" + d[:3] + ") " + d[3:]
	default:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	}
}

// formatGB writes trunk-prefixed numbers in national form and everything
// else after +44.
func formatGB(d string, c Country) string {
	if !strings.HasPrefix(d, "0") {
		return joinPrefixed(c.DialingPrefix, group(d, 4, 6))
	}
	if strings.HasPrefix(d, "020") {
		return strings.Join(group(d, 3, 4, 4), " ")
	}
	// Mobile (07) and geographic numbers share the 5+6 layout.
	return strings.Join(group(d, 5, 6), " ")
}

// digitLimit is the number of digits Format keeps for d. A GB trunk '0' and
// a leading US country-code '1' ride on top of the national maximum.
func digitLimit(d string, c Country) int {
	switch c.Code {
	case GB:
		if strings.HasPrefix(d, "0") {
			return c.MaxNationalDigits + 1
		}
	case US:
		if len(d) > 1 && d[0] == '1' {
			return c.MaxNationalDigits + 1
		}
	}
	return c.MaxNationalDigits
}

// group splits d into consecutive chunks of the given sizes, stopping at the
// end of d. Digits past the last size are dropped.
func group(d string, sizes ...int) []string {
	parts := make([]string, 0, len(sizes))
	for _, n := range sizes {
		if d == "" {
			break
		}
		if n > len(d) {
			n = len(d)
		}
		parts = append(parts, d[:n])
		d = d[n:]
	}
	return parts
}

func joinPrefixed(prefix string, parts []string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + " " + strings.Join(parts, " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
