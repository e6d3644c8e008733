package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/roomdrop/roomdrop/internal/utils"
)

// FileTableItem is one outgoing file.
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// FileTableView renders the files about to be sent.
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(item.Index),
			utils.TruncateString(item.Name, 50),
			utils.FormatSize(item.Size),
			utils.TruncateString(item.Type, 24),
		})
	}
	return styledTable([]string{"#", "Name", "Size", "Type"}, rows).Render()
}

func RenderFileTable(items []FileTableItem) {
	fmt.Println(FileTableView(items))
}

type TransferSummary struct {
	Status    string
	Files     int
	TotalSize string
	Duration  string
	Speed     string
}

func TransferSummaryView(summary TransferSummary) string {
	rows := [][]string{
		{"Status", summary.Status},
		{"Files", strconv.Itoa(summary.Files)},
		{"Total Size", summary.TotalSize},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	}
	return styledTable([]string{"Metric", "Value"}, rows).Render()
}

func RenderTransferSummary(summary TransferSummary) {
	fmt.Println(TransferSummaryView(summary))
}

// RoomInfoView renders the box shown to the participant who created a room.
func RoomInfoView(roomID, roomLink string) string {
	content := fmt.Sprintf("%s Room created\n\n%s Room ID:   %s\n%s Room link: %s",
		IconRoom,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconLink, MutedStyle.Render(roomLink),
	)
	return RoomBoxStyle.Render(content)
}
