package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSecondary = lipgloss.Color("10")  // bright green
	colorDim       = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorBorder    = lipgloss.Color("238") // dark gray
	colorDanger    = lipgloss.Color("9")   // bright red
	colorSpicy     = lipgloss.Color("208") // orange

	// Input area
	styleInput = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	// List items
	styleListSelected = lipgloss.NewStyle().
				Foreground(colorHighlight).
				Bold(true)

	styleListNormal = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	styleGroupLabel = lipgloss.NewStyle().
			Foreground(colorDim).
			Bold(true)

	styleDelete = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(colorDanger).
			Bold(true)

	// Chat feed
	styleAuthorUser = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleAuthorPersona = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	styleAuthorSystem = lipgloss.NewStyle().
				Foreground(colorHighlight).
				Bold(true)

	styleTyping = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	styleModeNormal = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleModeSpicy = lipgloss.NewStyle().
			Foreground(colorSpicy).
			Bold(true)

	// Panels
	stylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorder)

	styleActiveBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary)

	// Status bar
	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1)

	styleError = lipgloss.NewStyle().
			Foreground(colorDanger).
			Padding(0, 1)

	// Panel titles
	styleTitle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)
)
