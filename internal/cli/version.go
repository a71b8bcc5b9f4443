package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jalaprana/site/internal/cli/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jalaprana version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat(cmd) == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"version": buildVersion,
				"commit":  buildCommit,
				"date":    buildDate,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s jalaprana %s (commit: %s, built: %s)\n", ui.BrandEmoji, buildVersion, buildCommit, buildDate)
		return nil
	},
}

// bannerVersion shortens a git-describe version for the startup header:
// "v0.3.0" → "0.3.0", "v0.3.0-12-gabc1234" → "0.3.0-dev". Pre-release tags
// such as "0.3.0-rc.1" are kept.
func bannerVersion(raw string) string {
	v := strings.TrimPrefix(raw, "v")
	base, rest, ok := strings.Cut(v, "-")
	if ok && rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return base + "-dev"
	}
	return v
}
