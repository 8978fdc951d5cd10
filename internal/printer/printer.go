// Package printer writes operator-facing console output for ticketcap.
// Colors are disabled by NO_COLOR or when Out is not a terminal.
package printer

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Out and Err are where messages go; tests swap them.
var (
	Out io.Writer = color.Output
	Err io.Writer = color.Error
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// DisableColor turns colored output off for the rest of the process.
func DisableColor() {
	color.NoColor = true
}

// Success prints a green line with a check mark.
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints an uncolored line.
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format+"\n", a...)
}

// Warning prints a yellow line.
func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "! %s\n", fmt.Sprintf(format, a...))
}

// Step prints a cyan progress line.
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Field prints an aligned "key: value" line.
func Field(key string, value any) {
	fmt.Fprintf(Out, "  %-14s %v\n", key+":", value)
}

// Fields prints a map as sorted Field lines.
func Fields(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		Field(k, m[k])
	}
}

// Banner prints a bold title followed by an underline.
func Banner(title string) {
	bold.Fprintln(Out, title)
	fmt.Fprintln(Out, strings.Repeat("─", len([]rune(title))))
}

// Error prints title, explanation and numbered suggestions to Err and
// returns an error carrying only the title, for cobra to exit non-zero
// without printing it again.
func Error(title, explanation string, suggestions ...string) error {
	red.Fprintf(Err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(Err, "\n%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintln(Err, "\nTry:")
		for i, s := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}
