package tui

import "github.com/charmbracelet/lipgloss"

var styles = newPalette("#E50914", "#04B575", "#FF5F87", "#FFA500", "#626262")

type palette struct {
	title    lipgloss.Style
	selected lipgloss.Style
	ok       lipgloss.Style
	err      lipgloss.Style
	warn     lipgloss.Style
	muted    lipgloss.Style
	box      lipgloss.Style
}

func newPalette(accent, success, failure, warning, muted string) palette {
	return palette{
		title:    bold(accent).MarginBottom(1),
		selected: bold(accent).PaddingLeft(1),
		ok:       bold(success),
		err:      bold(failure),
		warn:     fg(warning),
		muted:    fg(muted).Italic(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(muted)).
			Padding(0, 1),
	}
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bold(color string) lipgloss.Style {
	return fg(color).Bold(true)
}
