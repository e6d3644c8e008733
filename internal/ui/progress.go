package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/utils"
)

type Mode int

const (
	ModeSend Mode = iota
	ModeReceive
)

// TransferUI shows live progress for the files moving over one channel,
// one after another.
type TransferUI struct {
	program *tea.Program
	model   *transferModel
	done    chan struct{}
}

type fileRow struct {
	name     string
	total    int64
	current  int64
	started  time.Time
	finished time.Time
	complete bool
	failed   bool
	note     string
}

type transferModel struct {
	mode     Mode
	state    string
	files    []*fileRow
	bar      progress.Model
	spinner  spinner.Model
	onCancel func()
	quitting bool
}

type (
	stateMsg      string
	fileUpdateMsg transfer.Progress
	quitMsg       struct{}
)

type fileBeginMsg struct {
	name  string
	total int64
}

type fileEndMsg struct {
	failed bool
	note   string
}

// NewTransferUI builds the view; onCancel runs when the user presses q or
// ctrl+c.
func NewTransferUI(mode Mode, onCancel func()) *TransferUI {
	return &TransferUI{model: newTransferModel(mode, onCancel), done: make(chan struct{})}
}

func newTransferModel(mode Mode, onCancel func()) *transferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &transferModel{
		mode:     mode,
		state:    "Connecting...",
		bar:      progress.New(progress.WithGradient(ProgressStart, ProgressEnd), progress.WithWidth(30), progress.WithoutPercentage()),
		spinner:  s,
		onCancel: onCancel,
	}
}

// Start runs the program inline, keeping earlier terminal output visible.
func (u *TransferUI) Start() {
	u.program = tea.NewProgram(u.model)
	go func() {
		defer close(u.done)
		if _, err := u.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

func (u *TransferUI) send(msg tea.Msg) {
	if u.program != nil {
		u.program.Send(msg)
	}
}

func (u *TransferUI) SetState(state string) { u.send(stateMsg(state)) }

// Begin adds a row for the next file.
func (u *TransferUI) Begin(name string, total int64) {
	u.send(fileBeginMsg{name: name, total: total})
}

// Update moves the current file's bar.
func (u *TransferUI) Update(p transfer.Progress) { u.send(fileUpdateMsg(p)) }

// End marks the current file finished; a non-empty note on success is shown
// as a warning.
func (u *TransferUI) End(failed bool, note string) {
	u.send(fileEndMsg{failed: failed, note: note})
}

// Stop renders the final frame and waits for the program to exit.
func (u *TransferUI) Stop() {
	if u.program == nil {
		return
	}
	u.send(quitMsg{})
	<-u.done
}

func (m *transferModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *transferModel) current() *fileRow {
	if len(m.files) == 0 {
		return nil
	}
	return m.files[len(m.files)-1]
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(30, msg.Width-60))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = string(msg)

	case fileBeginMsg:
		m.files = append(m.files, &fileRow{name: msg.name, total: msg.total, started: time.Now()})

	case fileUpdateMsg:
		if f := m.current(); f != nil {
			f.current = msg.Current
			f.total = msg.Total
		}

	case fileEndMsg:
		if f := m.current(); f != nil {
			f.finished = time.Now()
			f.failed = msg.failed
			f.complete = !msg.failed
			f.note = msg.note
			if f.complete {
				f.current = f.total
			}
		}

	case quitMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *transferModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	icon, verb := IconSend, "Sending"
	if m.mode == ModeReceive {
		icon, verb = IconReceive, "Receiving"
	}
	fmt.Fprintf(&b, "\n%s %s\n\n", icon, BoldStyle.Render(verb))
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.state)

	for _, f := range m.files {
		var mark string
		switch {
		case f.failed:
			mark = IconError
		case f.complete && f.note != "":
			mark = IconWarning
		case f.complete:
			mark = IconSuccess
		default:
			mark = m.spinner.View()
		}

		fmt.Fprintf(&b, "  %s %-24s ", mark, utils.TruncateString(f.name, 24))

		ratio := 1.0
		if f.total > 0 {
			ratio = float64(f.current) / float64(f.total)
		}
		b.WriteString(m.bar.ViewAs(ratio))
		fmt.Fprintf(&b, " %5.1f%%", ratio*100)

		end := f.finished
		if end.IsZero() {
			end = time.Now()
		}
		if elapsed := end.Sub(f.started).Seconds(); elapsed > 0 && f.current > 0 {
			b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(float64(f.current)/elapsed)))
		}
		if f.note != "" {
			b.WriteString(" " + WarningStyle.Render(f.note))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to cancel") + "\n")
	return b.String()
}
