package ui

import (
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Spinner shows progress on w while a command waits on the server. When
// disabled it only prints the final message.
type Spinner struct {
	s       *spinner.Spinner
	w       io.Writer
	enabled bool
}

// StartSpinner begins spinning with message as suffix. A disabled spinner
// (non-TTY, quiet mode) never animates.
func StartSpinner(w io.Writer, message string, enabled bool) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	if !color.NoColor {
		_ = s.Color("cyan")
	}
	sp := &Spinner{s: s, w: w, enabled: enabled}
	if enabled {
		s.Start()
	}
	return sp
}

// Stop halts the spinner and prints msg on its own line.
func (sp *Spinner) Stop(msg string) {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	if sp.enabled {
		sp.s.FinalMSG = msg
		sp.s.Stop()
		return
	}
	_, _ = io.WriteString(sp.w, msg)
}
