package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/ui"
)

// helpRule styles every match of pattern. Submatch 1 is kept as is, submatch
// 2 is passed through style; patterns without groups style the whole match.
type helpRule struct {
	pattern *regexp.Regexp
	style   func(string) string
}

var helpRules = []helpRule{
	// Group headers such as "Completion:" or "Flags:".
	{regexp.MustCompile(`(?m)^()([A-Z][A-Za-z ]*:)[ \t]*$`), ui.RenderAccent},
	// Command names in the command lists.
	{regexp.MustCompile(`(?m)^(  )([a-z][a-z-]*)\b`), ui.RenderCommand},
	// Flag value types, e.g. "--http-url string".
	{regexp.MustCompile(`(--?[a-z-]+ )(string|int|duration|strings|stringArray)\b`), ui.RenderMuted},
	// Default values.
	{regexp.MustCompile(`\(default [^)]*\)`), ui.RenderMuted},
}

// colorizedHelpFunc returns a Cobra help function that styles the default
// usage text when color output is enabled.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		orig := cmd.OutOrStdout()
		if !ui.ShouldUseColor() || noColor {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)
		fmt.Fprint(orig, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	for _, r := range helpRules {
		s = r.pattern.ReplaceAllStringFunc(s, func(match string) string {
			parts := r.pattern.FindStringSubmatch(match)
			if len(parts) != 3 {
				return r.style(match)
			}
			return parts[1] + r.style(parts[2]) + match[len(parts[1])+len(parts[2]):]
		})
	}
	return s
}
