package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/roomdrop/roomdrop/internal/transfer"
)

func TestTransferModelTracksSequentialFiles(t *testing.T) {
	m := newTransferModel(ModeReceive, nil)

	m.Update(stateMsg("Receiving files"))
	m.Update(fileBeginMsg{name: "a.txt", total: 20000})
	m.Update(fileUpdateMsg(transfer.Progress{Current: 16384, Total: 20000}))

	view := m.View()
	assert.Contains(t, view, "Receiving files")
	assert.Contains(t, view, "a.txt")
	assert.Contains(t, view, "81.9%")

	m.Update(fileEndMsg{})
	m.Update(fileBeginMsg{name: "b.bin", total: 10})
	m.Update(fileEndMsg{note: "checksum mismatch"})

	assert.Len(t, m.files, 2)
	assert.True(t, m.files[0].complete)
	assert.Equal(t, int64(20000), m.files[0].current)
	assert.Contains(t, m.View(), "checksum mismatch")
}

func TestTransferModelCancel(t *testing.T) {
	cancelled := false
	m := newTransferModel(ModeSend, func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestReceivedTableFlagsMismatch(t *testing.T) {
	items := []ReceivedItem{
		{Transfer: &transfer.ReceivedTransfer{Name: "good.txt", MimeType: "text/plain", Size: 2048, DeclaredChecksum: 7, GeneratedChecksum: 7, ReceivedAt: time.Now()}, Path: "out/good.txt"},
		{Transfer: &transfer.ReceivedTransfer{Name: "bad.bin", Size: 10, DeclaredChecksum: 1, GeneratedChecksum: 2, ReceivedAt: time.Now()}, Path: "out/bad.bin"},
	}

	view := ReceivedTableView(items)
	assert.Contains(t, view, "good.txt")
	assert.Contains(t, view, "2.0 KiB")
	assert.Contains(t, view, "00000007 ok")
	assert.Contains(t, view, "00000002 != 00000001")
	assert.Contains(t, view, "1 failed verification")
}

func TestTablesRender(t *testing.T) {
	view := FileTableView([]FileTableItem{{Index: 1, Name: "a.txt", Size: 20000, Type: "text/plain"}})
	assert.Contains(t, view, "a.txt")
	assert.Contains(t, view, "19.53 KB")

	assert.Contains(t, TransferSummaryView(TransferSummary{Status: "Complete", Files: 1}), "Complete")
	assert.Contains(t, RoomInfoView("123456", "http://localhost:3000/r/123456"), "123456")
}
