package ui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/utils"
)

// ReceivedItem is a completed inbound transfer and where it was saved.
type ReceivedItem struct {
	Transfer *transfer.ReceivedTransfer
	Path     string
}

// ReceivedTableView lists received files with their checksum status. A
// mismatch is shown rather than hidden.
func ReceivedTableView(items []ReceivedItem) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Name", "Size", "Type", "CRC-32", "Saved to", "Received"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	mismatches := 0
	for i, item := range items {
		rt := item.Transfer
		status := fmt.Sprintf("%08x ok", rt.GeneratedChecksum)
		if rt.Verify() != nil {
			mismatches++
			status = text.FgRed.Sprintf("%08x != %08x", rt.GeneratedChecksum, rt.DeclaredChecksum)
		}

		t.AppendRow(table.Row{
			i + 1,
			utils.TruncateString(rt.Name, 40),
			humanize.IBytes(uint64(rt.Size)),
			utils.TruncateString(rt.MimeType, 24),
			status,
			item.Path,
			humanize.Time(rt.ReceivedAt),
		})
	}

	var footer strings.Builder
	footer.WriteString(humanize.Comma(int64(len(items))))
	footer.WriteString(" received")
	if mismatches > 0 {
		fmt.Fprintf(&footer, ", %d failed verification", mismatches)
	}
	t.AppendFooter(table.Row{"", footer.String()})

	return t.Render()
}

func RenderReceivedTable(items []ReceivedItem) {
	fmt.Println(ReceivedTableView(items))
}
