package ui

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsTerminal reports whether w is an *os.File attached to a TTY.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ShouldUseColor decides whether output written to w gets ANSI colors.
// ENVTREE_NO_COLOR and NO_COLOR (any non-empty value) turn color off,
// CLICOLOR_FORCE=1 turns it on regardless of w, CLICOLOR=0 turns it off.
// Otherwise color follows IsTerminal.
func ShouldUseColor(w io.Writer) bool {
	return colorDecision(os.Getenv, func() bool { return IsTerminal(w) })
}

func colorDecision(getenv func(string) string, tty func() bool) bool {
	switch {
	case getenv("ENVTREE_NO_COLOR") != "", getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0":
		return false
	}
	return tty()
}
