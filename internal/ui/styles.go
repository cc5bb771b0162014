package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
	ColorBlue    = lipgloss.Color("#5F87FF")
)

// Header and status bar.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ConnectedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	DisconnectedStyle = lipgloss.NewStyle().
				Foreground(ColorRed)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SpeakingDotStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	ProcessingStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	LanguageBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)
)

// Transcript.
var (
	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	AgentLabelStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	SystemLabelStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	LiveBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	ScrollBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)

// Summary panel.
var (
	SummaryTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SummaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimGray).
			Padding(0, 1)

	sentimentPositive = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	sentimentNegative = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	sentimentNeutral  = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
)

// Footer and check report.
var (
	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	CheckOKStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	CheckFailStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)
)

// SentimentStyle picks a color for an overall sentiment label.
func SentimentStyle(overall string) lipgloss.Style {
	switch overall {
	case "positive":
		return sentimentPositive
	case "negative":
		return sentimentNegative
	default:
		return sentimentNeutral
	}
}
