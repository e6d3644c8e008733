package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary = lipgloss.Color("#f97316")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")

	// Progress bar gradient.
	ProgressStart = "#f97316"
	ProgressEnd   = "#facc15"
)

var (
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	SuccessStyle = BoldStyle.Foreground(Success)
	ErrorStyle   = BoldStyle.Foreground(Error)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	// RoomBoxStyle frames the room id and share link.
	RoomBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 3)

	TableHeaderStyle = BoldStyle.Foreground(Primary).Align(lipgloss.Center)
	TableRowStyle    = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("255"))
	TableRowAltStyle = TableRowStyle.Foreground(lipgloss.Color("245"))
)

const (
	IconSend    = "📤"
	IconReceive = "📥"
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconRoom    = "🚪"
	IconLink    = "🔗"
)

func PrintError(msg string) {
	fmt.Println(ErrorStyle.Render(IconError + " " + msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Println(WarningStyle.Render(IconWarning + " " + msg))
}

func PrintSuccess(msg string) {
	fmt.Println(SuccessStyle.Render(IconSuccess) + " " + msg)
}
