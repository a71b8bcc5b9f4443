package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// StepSpinner prints one line per startup step. On a terminal the running
// step animates; otherwise the step name is printed as plain text and
// completed with a check or a cross.
type StepSpinner struct {
	w       io.Writer
	s       *spinner.Spinner
	msg     string
	running bool
	plain   bool
}

// NewStepSpinner returns a StepSpinner writing to w. plain disables the
// animation for pipes and CI logs.
func NewStepSpinner(w io.Writer, plain bool) *StepSpinner {
	return &StepSpinner{w: w, plain: plain}
}

// Start begins a step.
func (ss *StepSpinner) Start(msg string) {
	ss.msg = msg
	if ss.plain {
		fmt.Fprintf(ss.w, "  %s", msg)
		return
	}
	ss.s = spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(ss.w))
	ss.s.Prefix = "  "
	ss.s.Suffix = " " + msg
	ss.s.Start()
	ss.running = true
}

// Done ends the current step with a check and an optional detail.
func (ss *StepSpinner) Done(detail ...string) {
	ss.finish(StyleSuccess.Render(SymbolCheck), detail)
}

// Fail ends the current step with a cross.
func (ss *StepSpinner) Fail() {
	ss.finish(StyleError.Render(SymbolCross), nil)
}

// Stop halts the animation without printing anything.
func (ss *StepSpinner) Stop() {
	if ss.s != nil && ss.running {
		ss.s.Stop()
		ss.running = false
	}
}

func (ss *StepSpinner) finish(mark string, detail []string) {
	suffix := ""
	if len(detail) > 0 && detail[0] != "" {
		suffix = " " + StyleHint.Render(detail[0])
	}
	if ss.plain {
		fmt.Fprintf(ss.w, " %s%s\n", mark, suffix)
		return
	}
	ss.Stop()
	fmt.Fprintf(ss.w, "\r  %s %s%s\n", ss.msg, mark, suffix)
}
