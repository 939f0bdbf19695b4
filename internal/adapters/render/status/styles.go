package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title         lipgloss.Style
	header        lipgloss.Style
	stateOK       lipgloss.Style
	stateWarning  lipgloss.Style
	stateAbsent   lipgloss.Style
	identity      lipgloss.Style
	detail        lipgloss.Style
	detailKey     lipgloss.Style
	warning       lipgloss.Style
	empty         lipgloss.Style
	section       lipgloss.Style
	expirySoon    lipgloss.Style
	expiryHealthy lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:         lipgloss.NewStyle().Bold(true),
		header:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		stateOK:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		stateWarning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		stateAbsent:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		identity:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:        lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		detailKey:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		warning:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:         lipgloss.NewStyle().Faint(true),
		section:       lipgloss.NewStyle().MarginTop(1),
		expirySoon:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		expiryHealthy: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}
