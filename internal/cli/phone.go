package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jalaprana/site/internal/config"
	"github.com/jalaprana/site/internal/phone"
)

var phoneCmd = &cobra.Command{
	Use:   "phone",
	Short: "Format and validate phone numbers",
	Long: `Run the phone number engine used by the contact form.
Supported countries: FR, CH, US and GB.`,
}

var phoneCountriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List supported countries",
	Args:  cobra.NoArgs,
	RunE:  runPhoneCountries,
}

var phoneFormatCmd = &cobra.Command{
	Use:   "format <digits>",
	Short: "Format raw digits for a country",
	Example: `jalaprana phone format --country FR 612345678
jalaprana phone format --country US 2025550123`,
	Args: cobra.ExactArgs(1),
	RunE: runPhoneFormat,
}

var phoneValidateCmd = &cobra.Command{
	Use:   "validate <value>",
	Short: "Validate a formatted number",
	Example: `jalaprana phone validate "+41 79 123 45 67"
jalaprana phone validate --country GB "020 7946 0000"`,
	Args: cobra.ExactArgs(1),
	RunE: runPhoneValidate,
}

var phoneTryCmd = &cobra.Command{
	Use:   "try",
	Short: "Type a number interactively and watch it being formatted",
	Long: `Simulates the contact form's phone field. Each line you enter is typed
into the field one character at a time.

  <              delete the last character
  :country XX    switch country (resets the field)
  :clear         clear the field
  :quit          exit`,
	Args: cobra.NoArgs,
	RunE: runPhoneTry,
}

func init() {
	phoneCmd.PersistentFlags().String("country", "", "Country code (FR, CH, US, GB); detected from the number when omitted")
	phoneCmd.PersistentFlags().String("config", "", "Path to jalaprana.toml config file")

	phoneCmd.AddCommand(phoneCountriesCmd)
	phoneCmd.AddCommand(phoneFormatCmd)
	phoneCmd.AddCommand(phoneValidateCmd)
	phoneCmd.AddCommand(phoneTryCmd)
}

// phoneCountry resolves --country, falling back to detection from value's
// dialing prefix and then to contact.default_country.
func phoneCountry(cmd *cobra.Command, value string) (phone.Country, error) {
	reg := phone.DefaultRegistry()
	if raw, _ := cmd.Flags().GetString("country"); raw != "" {
		code, ok := phone.ParseCode(raw)
		if !ok {
			return phone.Country{}, fmt.Errorf("unsupported country %q (want FR, CH, US or GB)", raw)
		}
		return reg.Lookup(code), nil
	}
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "(") {
		return reg.Detect(v), nil
	}
	configPath, _ := cmd.Flags().GetString("config")
	if cfg, err := config.Load(configPath, nil); err == nil {
		return reg.Lookup(cfg.DefaultCountry()), nil
	}
	return reg.Lookup(config.Default().DefaultCountry()), nil
}

func runPhoneCountries(cmd *cobra.Command, _ []string) error {
	countries := phone.DefaultRegistry().Countries()
	out := cmd.OutOrStdout()

	switch outputFormat(cmd) {
	case "json":
		return writeJSON(out, countries)
	case "csv":
		rows := make([][]string, len(countries))
		for i, c := range countries {
			rows[i] = []string{string(c.Code), c.Name, c.DialingPrefix, strconv.Itoa(c.MaxNationalDigits), c.FormatExample}
		}
		return writeCSV(out, []string{"code", "name", "prefix", "max_digits", "example"}, rows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tPREFIX\tDIGITS\tEXAMPLE")
	for _, c := range countries {
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%d\t%s\n", c.Flag, c.Code, c.Name, c.DialingPrefix, c.MaxNationalDigits, c.FormatExample)
	}
	return w.Flush()
}

type phoneResult struct {
	Country    phone.Code `json:"country"`
	Value      string     `json:"value"`
	Valid      bool       `json:"valid"`
	Error      string     `json:"error,omitempty"`
	E164       string     `json:"e164,omitempty"`
	DigitCount int        `json:"digitCount"`
	MaxDigits  int        `json:"maxDigits"`
}

func newPhoneResult(in *phone.Input) phoneResult {
	res := phoneResult{
		Country:    in.Country().Code,
		Value:      in.Value(),
		Valid:      in.Valid(),
		DigitCount: in.DigitCount(),
		MaxDigits:  in.MaxDigits(),
	}
	if err := in.Err(); err != nil {
		res.Error = err.Error()
	}
	if res.Valid {
		res.E164, _ = phone.NormalizeE164(res.Value, in.Country())
	}
	return res
}

func runPhoneFormat(cmd *cobra.Command, args []string) error {
	c, err := phoneCountry(cmd, args[0])
	if err != nil {
		return err
	}
	digits := args[0]
	if strings.HasPrefix(strings.TrimSpace(digits), "+") {
		digits = phone.ExtractNational(digits, c)
	}
	in := phone.NewInput(phone.DefaultRegistry(), c.Code, phone.Format(digits, c))
	return printPhoneResult(cmd, newPhoneResult(in))
}

func runPhoneValidate(cmd *cobra.Command, args []string) error {
	c, err := phoneCountry(cmd, args[0])
	if err != nil {
		return err
	}
	in := phone.NewInput(phone.DefaultRegistry(), c.Code, args[0])
	return printPhoneResult(cmd, newPhoneResult(in))
}

func printPhoneResult(cmd *cobra.Command, res phoneResult) error {
	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return writeJSON(out, res)
	}
	printPhoneLine(out, res, colorEnabled())
	if res.E164 != "" {
		fmt.Fprintf(out, "  E.164: %s\n", res.E164)
	}
	return nil
}

// printPhoneLine writes "<country> <value>  <n>/<max> <mark> <error>".
func printPhoneLine(w io.Writer, res phoneResult, color bool) {
	mark := green("valid", color)
	if !res.Valid {
		mark = yellow("invalid", color)
	}
	line := fmt.Sprintf("%s  %s  %s  %s", bold(string(res.Country), color), res.Value,
		dim(fmt.Sprintf("%d/%d", res.DigitCount, res.MaxDigits), color), mark)
	if res.Error != "" {
		line += "  " + dim(res.Error, color)
	}
	fmt.Fprintln(w, line)
}

func runPhoneTry(cmd *cobra.Command, _ []string) error {
	c, err := phoneCountry(cmd, "")
	if err != nil {
		return err
	}
	in := phone.NewInput(phone.DefaultRegistry(), c.Code, "")
	in.Clear()

	out := cmd.OutOrStdout()
	color := colorEnabled()
	fmt.Fprintf(out, "%s %s (%s). Type digits, \"<\" to delete, :quit to exit.\n", c.Flag, c.Name, c.FormatExample)

	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == ":quit" || line == ":q":
			return nil
		case line == ":clear":
			in.Clear()
		case strings.HasPrefix(line, ":country"):
			code, ok := phone.ParseCode(strings.TrimSpace(strings.TrimPrefix(line, ":country")))
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "unsupported country (want FR, CH, US or GB)")
				continue
			}
			in.SetCountry(code)
		default:
			typeInto(in, line)
		}
		res := newPhoneResult(in)
		if hint := in.Hint(); hint == nil {
			res.Error = ""
		}
		printPhoneLine(out, res, color)
	}
	return sc.Err()
}

// typeInto replays line as keystrokes: "<" deletes one character, anything
// else is appended to the field.
func typeInto(in *phone.Input, line string) {
	for _, r := range line {
		v := in.Value()
		if r == '<' {
			if v == "" {
				continue
			}
			_, size := utf8.DecodeLastRuneInString(v)
			in.Change(v[:len(v)-size])
			continue
		}
		in.Change(v + string(r))
	}
}
