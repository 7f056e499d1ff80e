package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme defines the colour palette for terminal output.
type Theme struct {
	// Primary is the main accent colour.
	Primary lipgloss.Color

	// Secondary is the secondary accent colour.
	Secondary lipgloss.Color

	// Muted is for less important text.
	Muted lipgloss.Color

	// Success indicates positive outcomes.
	Success lipgloss.Color

	// Warning indicates caution.
	Warning lipgloss.Color

	// Error indicates problems.
	Error lipgloss.Color

	// Match is the colour of highlighted query terms.
	Match lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Success:   lipgloss.Color("#A6E3A1"), // Green
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
		Match:     lipgloss.Color("#FAB387"), // Peach
	}
}

// Styles renders command output. When plain is set every style is a no-op,
// so piped output carries no escape codes.
type Styles struct {
	plain bool

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Match    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme, plain bool) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		plain:    plain,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Subtitle: lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		Muted:    lipgloss.NewStyle().Foreground(theme.Muted),
		Success:  lipgloss.NewStyle().Foreground(theme.Success),
		Warning:  lipgloss.NewStyle().Foreground(theme.Warning),
		Error:    lipgloss.NewStyle().Foreground(theme.Error),
		Match:    lipgloss.NewStyle().Bold(true).Foreground(theme.Match),
	}
}

// stylesFor returns plain styles unless w is a terminal.
func stylesFor(w io.Writer) *Styles {
	return NewStyles(DefaultTheme(), !isTerminal(w))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Render applies style unless output is plain.
func (s *Styles) Render(style lipgloss.Style, text string) string {
	if s.plain {
		return text
	}
	return style.Render(text)
}

// Highlight replaces <tag>term</tag> markers with the match style. Plain
// output keeps the markers.
func (s *Styles) Highlight(text, tag string) string {
	if s.plain || tag == "" {
		return text
	}

	open, closing := "<"+tag+">", "</"+tag+">"
	var b strings.Builder
	for {
		start := strings.Index(text, open)
		if start < 0 {
			break
		}
		end := strings.Index(text[start+len(open):], closing)
		if end < 0 {
			break
		}
		b.WriteString(text[:start])
		b.WriteString(s.Match.Render(text[start+len(open) : start+len(open)+end]))
		text = text[start+len(open)+end+len(closing):]
	}
	b.WriteString(text)
	return b.String()
}
