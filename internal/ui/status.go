// Package ui holds the status line and result rendering shared by the popup
// and options commands.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/dedent"
)

// Tone classifies a status message.
type Tone string

const (
	ToneNone    Tone = ""
	ToneWarning Tone = "warning"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// Status is a one-line message shown to the user.
type Status struct {
	Message string
	Tone    Tone
}

func (s Status) String() string {
	return s.Message
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// RenderTitle styles a heading.
func RenderTitle(text string) string {
	return titleStyle.Render(text)
}

// RenderStatus styles a status line according to its tone.
func RenderStatus(s Status) string {
	switch s.Tone {
	case ToneSuccess:
		return successStyle.Render("✓ " + s.Message)
	case ToneWarning:
		return warningStyle.Render("! " + s.Message)
	case ToneError:
		return errorStyle.Render("✗ " + s.Message)
	default:
		return s.Message
	}
}

// RenderMuted styles secondary text such as paths.
func RenderMuted(text string) string {
	return mutedStyle.Render(text)
}

// Hyperlink wraps text in an OSC 8 escape so terminals render it clickable.
func Hyperlink(url, text string) string {
	return "\x1b]8;;" + url + "\x1b\\" + text + "\x1b]8;;\x1b\\"
}

// Pluralize formats a count with the matching noun.
func Pluralize(singular, plural string, count int) string {
	s := plural
	if count == 1 {
		s = singular
	}
	return fmt.Sprintf("%d %s", count, s)
}

// Textf dedents a multi-line template before formatting it.
func Textf(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

// PrintStatus writes a rendered status line to w.
func PrintStatus(w io.Writer, s Status) {
	fmt.Fprintln(w, RenderStatus(s))
}
