// Package phone formats, validates and incrementally edits phone numbers for
// the small set of countries the contact form accepts.
//
// Every function here is total: malformed input is sanitized by dropping
// non-digit characters, unknown countries degrade to a default, and the only
// error channel is the advisory message returned by ValidationError.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a supported country (ISO 3166-1 alpha-2).
type Code string

const (
	FR Code = "FR"
	CH Code = "CH"
	US Code = "US"
	GB Code = "GB"
)

// ParseCode normalizes s to a Code. It reports false when s is not one of
// the supported codes.
func ParseCode(s string) (Code, bool) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case FR, CH, US, GB:
		return c, true
	}
	return c, false
}

// Country holds the numbering rules for one country.
type Country struct {
	Code              Code     `json:"code"`
	Name              string   `json:"name"`
	Flag              string   `json:"flag"`
	DialingPrefix     string   `json:"dialingPrefix"`
	MaxNationalDigits int      `json:"maxDigits"`
	MobilePrefixes    []string `json:"mobilePrefixes,omitempty"`
	FormatExample     string   `json:"format"`
	AlternateFormats  []string `json:"alternateFormats,omitempty"`
}

// PrefixDigits returns the dialing prefix without the leading '+'.
func (c Country) PrefixDigits() string {
	return digitsOnly(c.DialingPrefix)
}

// Registry errors.
var (
	ErrEmptyRegistry    = errors.New("registry has no countries")
	ErrDuplicateCountry = errors.New("duplicate country code")
	ErrInvalidCountry   = errors.New("invalid country definition")
)

// Registry is an immutable, ordered set of countries. The first entry is the
// fallback returned by Lookup.
type Registry struct {
	countries []Country
	byCode    map[Code]int
}

// NewRegistry builds a registry, checking that codes are unique and every
// country allows at least one national digit.
func NewRegistry(countries ...Country) (*Registry, error) {
	if len(countries) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{
		countries: make([]Country, len(countries)),
		byCode:    make(map[Code]int, len(countries)),
	}
	for i, c := range countries {
		if c.Code == "" {
			return nil, fmt.Errorf("%w: entry %d has no code", ErrInvalidCountry, i)
		}
		if _, dup := r.byCode[c.Code]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCountry, c.Code)
		}
		if c.MaxNationalDigits <= 0 {
			return nil, fmt.Errorf("%w: %s max digits must be positive, got %d", ErrInvalidCountry, c.Code, c.MaxNationalDigits)
		}
		if c.PrefixDigits() == "" {
			return nil, fmt.Errorf("%w: %s dialing prefix %q has no digits", ErrInvalidCountry, c.Code, c.DialingPrefix)
		}
		r.countries[i] = c
		r.byCode[c.Code] = i
	}
	return r, nil
}

// Lookup returns the country for code, or the first registered country when
// code is unknown.
func (r *Registry) Lookup(code Code) Country {
	if c, ok := r.Get(code); ok {
		return c
	}
	return r.countries[0]
}

// Get returns the country for code and whether it was found.
func (r *Registry) Get(code Code) (Country, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return Country{}, false
	}
	return r.countries[i], true
}

// Default returns the fallback country.
func (r *Registry) Default() Country {
	return r.countries[0]
}

// Countries returns a copy of the registered countries in order.
func (r *Registry) Countries() []Country {
	out := make([]Country, len(r.countries))
	copy(out, r.countries)
	return out
}

// Detect guesses the country a display value was entered for from its
// leading dialing prefix. A value starting with '(' is a US local mask.
// Longer prefixes win, so "+41" is never mistaken for "+4". Values that
// match nothing map to the default country.
func (r *Registry) Detect(value string) Country {
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "(") {
		if c, ok := r.Get(US); ok {
			return c
		}
	}
	best, bestLen := r.countries[0], 0
	for _, c := range r.countries {
		if strings.HasPrefix(v, c.DialingPrefix) && len(c.DialingPrefix) > bestLen {
			best, bestLen = c, len(c.DialingPrefix)
		}
	}
	return best
}

var defaultRegistry = mustRegistry(
	Country{
		Code:              FR,
		Name:              "France",
		Flag:              "🇫🇷",
		DialingPrefix:     "+33",
		MaxNationalDigits: 9,
		MobilePrefixes:    []string{"6", "7"},
		FormatExample:     "+33 6 12 34 56 78",
	},
	Country{
		Code:              CH,
		Name:              "Switzerland",
		Flag:              "🇨🇭",
		DialingPrefix:     "+41",
		MaxNationalDigits: 9,
		MobilePrefixes:    []string{"7"},
		FormatExample:     "+41 79 123 45 67",
	},
	Country{
		Code:              US,
		Name:              "United States",
		Flag:              "🇺🇸",
		DialingPrefix:     "+1",
		MaxNationalDigits: 10,
		FormatExample:     "(555) 123-4567",
		AlternateFormats:  []string{"(XXX) XXX-XXXX", "XXX-XXX-XXXX", "XXX.XXX.XXXX", "+1 XXX XXX XXXX"},
	},
	Country{
		Code:              GB,
		Name:              "United Kingdom",
		Flag:              "🇬🇧",
		DialingPrefix:     "+44",
		MaxNationalDigits: 10,
		FormatExample:     "07700 900123",
		AlternateFormats:  []string{"0XXXX XXXXXX", "0XXXX XXX XXXX", "+44 XXXX XXXXXX", "+44 XXXX XXX XXXX"},
	},
)

// DefaultRegistry returns the built-in registry of FR, CH, US and GB.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func mustRegistry(countries ...Country) *Registry {
	r, err := NewRegistry(countries...)
	if err != nil {
		panic(fmt.Sprintf("building phone registry: %v", err))
	}
	return r
}
