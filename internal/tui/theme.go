// Package tui implements the drivelink live monitor: a terminal view of the
// command stream fed by the API's /events endpoint.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme keeps all monitor styling in one place.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusDim     lipgloss.Style

	Border lipgloss.Style
	Title  lipgloss.Style
	Dim    lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusDim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// statusSymbol renders the one-column status marker for a command.
func (t Theme) statusSymbol(status string) string {
	switch status {
	case "running":
		return t.StatusRunning.Render("◉")
	case "succeeded":
		return t.StatusOK.Render("●")
	case "timed_out":
		return t.StatusFailed.Render("◑")
	case "remote_exception", "send_failed", "failed":
		return t.StatusFailed.Render("∅")
	case "local_shutdown", "remote_shutdown":
		return t.StatusDim.Render("◔")
	default:
		return "○"
	}
}
