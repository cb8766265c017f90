// Package ui formats CLI status output and drives the progress spinner.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Style renders text in one color, or plain when color is disabled.
type Style struct {
	color *color.Color
}

func newStyle(attrs ...color.Attribute) Style {
	return Style{color: color.New(attrs...)}
}

// Sprint formats its arguments like fmt.Sprint.
func (s Style) Sprint(a ...any) string {
	text := fmt.Sprint(a...)
	if color.NoColor {
		return text
	}
	return s.color.Sprint(text)
}

// Sprintf formats like fmt.Sprintf.
func (s Style) Sprintf(format string, a ...any) string {
	return s.Sprint(fmt.Sprintf(format, a...))
}

var (
	Success   = newStyle(color.FgGreen)
	Error     = newStyle(color.FgRed)
	Warning   = newStyle(color.FgYellow)
	Info      = newStyle(color.FgCyan)
	Highlight = newStyle(color.FgYellow)
	Muted     = newStyle(color.FgHiBlack)
)

// OK is the marker printed before a success line.
func OK(msg string) string { return Success.Sprint("✓") + " " + msg }

// Fail is the marker printed before a failure line.
func Fail(msg string) string { return Error.Sprint("✗") + " " + msg }

// Hint is the marker printed before a follow-up suggestion.
func Hint(msg string) string { return Info.Sprint("→") + " " + msg }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	color.NoColor = true
}

// ConfigureColor enables or disables color from the environment and
// terminal state of stdout.
func ConfigureColor() {
	color.NoColor = !ShouldUseColor(os.Stdout)
}
