package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jalaprana/site/internal/cli/ui"
)

const (
	groupServer = "server"
	groupPhone  = "phone"
	groupAdmin  = "admin"
	groupConfig = "config"
)

// initHelp groups the root commands and installs the styled help renderer.
func initHelp() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupServer, Title: "SERVER"},
		&cobra.Group{ID: groupPhone, Title: "PHONE NUMBERS"},
		&cobra.Group{ID: groupAdmin, Title: "ADMIN"},
		&cobra.Group{ID: groupConfig, Title: "CONFIGURATION"},
	)

	assign := map[string]string{
		"serve":           groupServer,
		"phone":           groupPhone,
		"logs":            groupAdmin,
		"stats":           groupAdmin,
		"email-templates": groupAdmin,
		"config":          groupConfig,
		"version":         groupConfig,
	}
	for _, cmd := range rootCmd.Commands() {
		if gid, ok := assign[cmd.Name()]; ok {
			cmd.GroupID = gid
		}
	}

	rootCmd.SetHelpFunc(styledHelp)
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		styledHelp(cmd, nil)
		return nil
	})
}

func styledHelp(cmd *cobra.Command, _ []string) {
	c := colorEnabled()
	w := cmd.OutOrStderr()

	fmt.Fprintln(w)
	if cmd == rootCmd {
		fmt.Fprintf(w, "  %s %s\n\n", ui.BrandEmoji, boldCyan(ui.BrandName, c))
	}
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	for _, line := range strings.Split(desc, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			fmt.Fprintln(w)
		case strings.HasPrefix(line, "  "):
			fmt.Fprintf(w, "    %s\n", green(strings.TrimSpace(line), c))
		default:
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, heading("USAGE", c))
	useLine := cmd.UseLine()
	if cmd.HasAvailableSubCommands() {
		useLine = cmd.CommandPath() + " [command]"
	}
	fmt.Fprintf(w, "  %s\n\n", useLine)

	if cmd.Example != "" {
		fmt.Fprintln(w, heading("EXAMPLES", c))
		for _, line := range strings.Split(cmd.Example, "\n") {
			if strings.TrimSpace(line) != "" {
				fmt.Fprintf(w, "  %s\n", green(strings.TrimSpace(line), c))
			}
		}
		fmt.Fprintln(w)
	}

	printCommands(w, cmd, c)

	if cmd == rootCmd {
		printFlagSection(w, "FLAGS", cmd.Flags(), c)
	} else {
		printFlagSection(w, "FLAGS", cmd.LocalNonPersistentFlags(), c)
		printFlagSection(w, "GLOBAL FLAGS", cmd.InheritedFlags(), c)
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(w, dim(fmt.Sprintf("Use \"%s [command] --help\" for more information about a command.", cmd.CommandPath()), c))
		fmt.Fprintln(w)
	}
}

// printCommands lists subcommands under their group titles, or under
// COMMANDS for commands without groups.
func printCommands(w io.Writer, cmd *cobra.Command, c bool) {
	grouped := make(map[string][]*cobra.Command)
	var rest []*cobra.Command
	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		if sub.GroupID != "" {
			grouped[sub.GroupID] = append(grouped[sub.GroupID], sub)
		} else {
			rest = append(rest, sub)
		}
	}
	for _, g := range cmd.Groups() {
		printCommandList(w, g.Title, grouped[g.ID], c)
	}
	title := "COMMANDS"
	if len(cmd.Groups()) > 0 {
		title = "OTHER"
	}
	printCommandList(w, title, rest, c)
}

func printCommandList(w io.Writer, title string, cmds []*cobra.Command, c bool) {
	if len(cmds) == 0 {
		return
	}
	width := 0
	for _, cmd := range cmds {
		width = max(width, len(cmd.Name()))
	}
	fmt.Fprintln(w, heading(title, c))
	for _, cmd := range cmds {
		fmt.Fprintf(w, "  %s%s\n", bold(fmt.Sprintf("%-*s", width+4, cmd.Name()), c), dim(cmd.Short, c))
	}
	fmt.Fprintln(w)
}

func printFlagSection(w io.Writer, title string, fs *pflag.FlagSet, c bool) {
	usage := strings.TrimRight(fs.FlagUsages(), "\n")
	if usage == "" {
		return
	}
	fmt.Fprintln(w, heading(title, c))
	for _, line := range strings.Split(usage, "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(w, colorizeFlag(line, c))
		}
	}
	fmt.Fprintln(w)
}

// colorizeFlag paints the flag name cyan and dims its description. pflag
// separates the two with a run of at least three spaces.
func colorizeFlag(line string, c bool) string {
	if !c {
		return line
	}
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]
	if i := strings.Index(trimmed, "   "); i > 0 {
		if desc := strings.TrimLeft(trimmed[i:], " "); desc != "" {
			return indent + cyan(trimmed[:i], c) + "   " + dim(desc, c)
		}
	}
	return indent + cyan(trimmed, c)
}

func heading(title string, c bool) string {
	return boldCyan(title, c)
}
