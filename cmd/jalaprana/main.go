package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jalaprana/site/internal/cli"
	"github.com/jalaprana/site/internal/cli/ui"
)

// Set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		var he *cli.HintError
		if errors.As(err, &he) {
			fmt.Fprint(os.Stderr, ui.FormatError(he.Msg, he.Hints...))
		} else {
			fmt.Fprint(os.Stderr, ui.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}
