package phone

import "unicode/utf8"

// Input is the state behind one phone input widget. Only the selected
// country code and the raw display value are stored; digit counts, validity
// and error messages are recomputed on every read.
//
// An Input is owned by a single caller and is not safe for concurrent use.
type Input struct {
	registry *Registry
	code     Code
	raw      string
}

// NewInput returns an Input for the given country holding initial as its raw
// value. A nil registry means DefaultRegistry; an unknown code selects the
// registry's default country.
func NewInput(r *Registry, code Code, initial string) *Input {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Input{registry: r, code: r.Lookup(code).Code, raw: initial}
}

// Country returns the selected country.
func (in *Input) Country() Country {
	return in.registry.Lookup(in.code)
}

// Value returns the raw display value.
func (in *Input) Value() string { return in.raw }

// Valid reports whether the current value is a complete number.
func (in *Input) Valid() bool { return Validate(in.raw, in.Country()) }

// Err returns the validation message for the current value, or nil.
func (in *Input) Err() error { return ValidationError(in.raw, in.Country()) }

// Hint is Err, except that an untouched field (empty or the bare dialing
// prefix) reports nothing.
func (in *Input) Hint() error {
	if in.raw == "" || in.raw == in.Country().DialingPrefix {
		return nil
	}
	return in.Err()
}

// DigitCount returns the number of national digits entered so far.
func (in *Input) DigitCount() int {
	return CountDigits(in.raw, in.Country())
}

// MaxDigits returns the digit budget shown next to DigitCount. GB numbers
// written with a trunk '0' get one extra digit.
func (in *Input) MaxDigits() int {
	c := in.Country()
	return digitLimit(ExtractNational(in.raw, c), c)
}

// Change applies an edit event carrying the widget's new text and returns
// the resulting display value and validity.
//
// Shorter text is a deletion and is kept verbatim so the formatter never
// fights the cursor. Otherwise the typed digits are recovered, the dialing
// prefix dropped if present, and the result reformatted. When the digits
// extend the current ones, only the extra suffix is taken as new input;
// anything else is treated as a wholesale replacement. Edits made once the
// digit budget is full are ignored.
func (in *Input) Change(text string) (string, bool) {
	c := in.Country()

	if utf8.RuneCountInString(text) < utf8.RuneCountInString(in.raw) {
		in.raw = text
		return in.raw, Validate(in.raw, c)
	}

	candidate := ExtractNational(text, c)
	current := ExtractNational(in.raw, c)
	if len(current) >= digitLimit(current, c) {
		return in.raw, Validate(in.raw, c)
	}

	next := candidate
	if len(current) > 0 && len(candidate) > len(current) {
		// TODO: mid-string inserts longer than the current value land here too and
		// are read as an append; needs the cursor position to tell them apart.
		next = current + candidate[len(current):]
	}
	if limit := digitLimit(next, c); len(next) > limit {
		next = next[:limit]
	}

	in.raw = Format(next, c)
	return in.raw, Validate(in.raw, c)
}

// SetCountry switches to the country for code and resets the value to its
// bare dialing prefix, whatever was entered before. Unknown codes leave the
// Input untouched.
func (in *Input) SetCountry(code Code) (string, bool) {
	c, ok := in.registry.Get(code)
	if !ok {
		return in.raw, in.Valid()
	}
	in.code = c.Code
	in.raw = c.DialingPrefix
	return in.raw, false
}

// Clear empties the value. FR and CH keep their dialing prefix.
func (in *Input) Clear() {
	c := in.Country()
	switch c.Code {
	case FR, CH:
		in.raw = c.DialingPrefix
	default:
		in.raw = ""
	}
}

// Set overwrites the raw value without formatting it.
func (in *Input) Set(value string) {
	in.raw = value
}
