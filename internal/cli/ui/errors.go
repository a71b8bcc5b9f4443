package ui

import (
	"fmt"
	"strings"
)

// FormatError renders msg under a red "Error:" label, followed by a "Try:"
// list when suggestions are given.
func FormatError(msg string, suggestions ...string) string {
	return formatNotice(StyleBoldRed.Render("Error:"), msg, suggestions)
}

// FormatWarning is FormatError for problems that do not stop the command.
func FormatWarning(msg string, suggestions ...string) string {
	return formatNotice(StyleWarning.Render(SymbolWarning+" Warning:"), msg, suggestions)
}

func formatNotice(label, msg string, suggestions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", label, msg)
	if len(suggestions) == 0 {
		return b.String()
	}
	b.WriteString("\n" + StyleHint.Render("  Try:") + "\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "    %s %s\n", StyleHint.Render(SymbolArrow), s)
	}
	return b.String()
}
