package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for command titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle frames a retrieval result.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// OTPStyle highlights a retrieved code.
var OTPStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGreen)

// ErrorStyle renders failure text.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// LabelStyle renders field labels in result panels and tables.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(10)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// SpinnerStyle colors the progress spinner.
var SpinnerStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// AccountStatusStyle returns a color-coded style for an account's
// searchable state.
func AccountStatusStyle(searchable bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if searchable {
		return base.Foreground(ColorGreen)
	}
	return base.Foreground(ColorGray)
}
