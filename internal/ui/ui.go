// Package ui formats operator-facing CLI output: verification verdicts,
// self-test checklists and warnings. Machine-readable output never goes
// through this package.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var writer io.Writer = os.Stderr

// SetWriter overrides the stderr writer (for testing). nil restores it.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

var color = detectColor(os.Stdout)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	color = enabled
}

func ansi(code, s string) string {
	if !color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s in bold.
func Bold(s string) string { return ansi("1", s) }

// Dim returns s dimmed.
func Dim(s string) string { return ansi("2", s) }

// Green returns s in green.
func Green(s string) string { return ansi("32", s) }

// Red returns s in red.
func Red(s string) string { return ansi("31", s) }

// Yellow returns s in yellow.
func Yellow(s string) string { return ansi("33", s) }

// Section writes a bold title with a thin underline.
func Section(w io.Writer, title string) {
	fmt.Fprintln(w, Bold(title))
	fmt.Fprintln(w, Dim(strings.Repeat("─", len(title))))
}

// Check writes one checklist line marked ✓ or ✗.
func Check(w io.Writer, ok bool, format string, args ...any) {
	tag := Green("✓")
	if !ok {
		tag = Red("✗")
	}
	fmt.Fprintf(w, "  %s %s\n", tag, fmt.Sprintf(format, args...))
}

// Skip writes one checklist line marked ⚠, for items neither passed nor
// failed, such as attestations carrying an event this build can't encode.
func Skip(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s %s\n", Yellow("⚠"), fmt.Sprintf(format, args...))
}

// Warnf prints a formatted warning to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(writer, "%s %s\n", Yellow("Warning:"), fmt.Sprintf(format, args...))
}

// Errorf prints a formatted error to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintf(writer, "%s %s\n", Red("Error:"), fmt.Sprintf(format, args...))
}

// Infof prints a formatted message to stderr with no prefix.
func Infof(format string, args ...any) {
	fmt.Fprintf(writer, format+"\n", args...)
}
