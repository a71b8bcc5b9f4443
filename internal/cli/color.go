package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jalaprana/site/internal/cli/ui"
)

// colorEnabled reports whether stderr should get ANSI colors.
func colorEnabled() bool {
	return ui.ColorEnabled()
}

// paint renders text with style through the forced-ANSI renderer, or
// returns it unchanged when color is off. The caller has already decided
// whether the output is a terminal.
func paint(style lipgloss.Style, text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Inherit(style).Render(text)
}

func bold(text string, color bool) string     { return paint(ui.StyleBold, text, color) }
func dim(text string, color bool) string      { return paint(ui.StyleDim, text, color) }
func cyan(text string, color bool) string     { return paint(ui.StyleCyan, text, color) }
func green(text string, color bool) string    { return paint(ui.StyleSuccess, text, color) }
func yellow(text string, color bool) string   { return paint(ui.StyleWarning, text, color) }
func boldCyan(text string, color bool) string { return paint(ui.StyleBoldCyan, text, color) }
func red(text string, color bool) string      { return paint(ui.StyleError, text, color) }
