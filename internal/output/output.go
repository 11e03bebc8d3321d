// Package output renders the loop's console text: iteration banners,
// per-role section headers, and error lines.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Styles contains the visual styling for console output.
type Styles struct {
	Banner  lipgloss.Style
	Section lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Subtle  lipgloss.Style
}

// DefaultStyles returns the default console styling.
func DefaultStyles() Styles {
	return Styles{
		Banner: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		Section: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")),
		Subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// PlainStyles returns styling with no color, for non-TTY output.
func PlainStyles() Styles {
	return Styles{
		Banner:  lipgloss.NewStyle(),
		Section: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Subtle:  lipgloss.NewStyle(),
	}
}

// Printer writes styled lines to a single destination.
type Printer struct {
	w      io.Writer
	styles Styles
}

// New creates a Printer for w. Styling is enabled only when w is a
// terminal.
func New(w io.Writer) *Printer {
	styles := PlainStyles()
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		styles = DefaultStyles()
	}
	return &Printer{w: w, styles: styles}
}

// NewStyled creates a Printer with explicit styling, for tests.
func NewStyled(w io.Writer, styles Styles) *Printer {
	return &Printer{w: w, styles: styles}
}

// Banner prints a full-width iteration banner.
func (p *Printer) Banner(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	rule := strings.Repeat("=", max(len(text), 8))
	fmt.Fprintln(p.w, p.styles.Banner.Render(rule))
	fmt.Fprintln(p.w, p.styles.Banner.Render(text))
	fmt.Fprintln(p.w, p.styles.Banner.Render(rule))
}

// Section prints a role/phase header.
func (p *Printer) Section(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Section.Render(fmt.Sprintf(format, args...)))
}

// Error prints an ERROR-prefixed line.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Error.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Subtle prints a de-emphasized line.
func (p *Printer) Subtle(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Subtle.Render(fmt.Sprintf(format, args...)))
}

// Log implements [logging.Logger].
func (p *Printer) Log(msg string) {
	fmt.Fprintln(p.w, msg)
}

// Logf implements [logging.Logger].
func (p *Printer) Logf(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
