package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/smnsjas/telsync/app"
)

var (
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("76")).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// useColor follows the NO_COLOR and CLICOLOR conventions.
func useColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, ok := os.LookupEnv("CLICOLOR_FORCE"); ok {
		return true
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func render(s lipgloss.Style) app.Style {
	return func(msg string) string { return s.Render(msg) }
}

func newNotifier(w io.Writer) app.Notifier {
	if !useColor(w) {
		return app.NewWriterNotifier(w, nil, nil, nil)
	}
	return app.NewWriterNotifier(w, render(infoStyle), render(goodStyle), render(badStyle))
}

func (c *cli) title(s string) string {
	if !useColor(c.stdout) {
		return s
	}
	return titleStyle.Render(s)
}

func (c *cli) muted(s string) string {
	if !useColor(c.stdout) {
		return s
	}
	return mutedStyle.Render(s)
}
