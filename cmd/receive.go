package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/roomdrop/roomdrop/internal/files"
	"github.com/roomdrop/roomdrop/internal/protocol"
	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/spf13/cobra"
)

var (
	receiveFlags   peerFlags
	flagReceiveDir string
)

var receiveCmd = &cobra.Command{
	Use:     "receive <room-id|url>",
	Aliases: []string{"r"},
	Short:   "Receive files from a sender",
	Long: `Join a room and save every file the other participant sends.

Examples:
  roomdrop receive 123456
  roomdrop receive https://drop.example.com/r/123456
  roomdrop receive 123456 --dir ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return receiveFiles(cmd.Context(), roomID)
	},
}

// inbox saves completed transfers and remembers them for the final table.
type inbox struct {
	dir string
	tui *ui.TransferUI

	mu    sync.Mutex
	items []ui.ReceivedItem
	err   error
}

func (b *inbox) start(meta transfer.Metadata) {
	b.tui.Begin(meta.Name, meta.Size)
}

func (b *inbox) complete(rt *transfer.ReceivedTransfer) {
	path, err := files.Save(b.dir, rt)
	// The bytes are on disk (or lost); keep only the record for the table.
	rt.Data = nil

	note := ""
	if rt.Verify() != nil {
		note = "checksum mismatch"
	}
	b.tui.End(err != nil, note)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.err = errors.Join(b.err, err)
		return
	}
	b.items = append(b.items, ui.ReceivedItem{Transfer: rt, Path: path})
}

func receiveFiles(ctx context.Context, roomID string) error {
	cfg, err := receiveFlags.load()
	if err != nil {
		return err
	}
	logger := slog.Default()

	fmt.Println()
	spinner := ui.NewConnectionSpinner("Connecting to server...").Start()
	if err := signaling.NewRooms(cfg.ServerURL, logger).CheckJoinable(ctx, roomID); err != nil {
		spinner.Stop()
		return transfer.NewError("join room", err)
	}

	session, err := OpenSession(ctx, cfg, roomID, logger)
	if err != nil {
		spinner.Stop()
		return err
	}
	defer session.Close()

	spinner.SetMessage("Connecting to sender...")
	ch, err := session.WaitForPeer(ctx)
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.Success("Sender connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tui := ui.NewTransferUI(ui.ModeReceive, cancel)
	box := &inbox{dir: flagReceiveDir, tui: tui}

	receiver := transfer.NewReceiver(logger)
	receiver.OnStart = box.start
	receiver.OnProgress = tui.Update
	receiver.OnComplete = box.complete

	closed := make(chan struct{})
	if n, ok := ch.(closeNotifier); ok {
		var once sync.Once
		n.OnClose(func() { once.Do(func() { close(closed) }) })
	}

	tui.Start()
	tui.SetState("Receiving files... (the sender closes the room when done)")
	receiver.Attach(ch)

	select {
	case <-closed:
	case <-session.Link.Done():
	case <-ctx.Done():
	}
	receiver.Reset()
	tui.Stop()

	box.mu.Lock()
	items, saveErr := box.items, box.err
	box.mu.Unlock()

	fmt.Println()
	if len(items) > 0 {
		ui.RenderReceivedTable(items)
	}

	if saveErr != nil {
		return saveErr
	}
	if ctx.Err() != nil && len(items) == 0 {
		return fmt.Errorf("transfer cancelled")
	}
	for _, item := range items {
		if err := item.Transfer.Verify(); err != nil {
			ui.PrintWarning(err.Error())
		}
	}
	if len(items) == 0 {
		ui.PrintWarning("No files received")
	}
	return nil
}

// parseRoomInput accepts a bare room id or a share link ending in /r/<id>.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	roomID := input
	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		var err error
		if roomID, err = extractRoomIDFromURL(input); err != nil {
			return "", err
		}
	}

	if !protocol.ValidRoomID(roomID) {
		return "", fmt.Errorf("invalid room ID %q: expected %d digits", roomID, protocol.RoomIDLength)
	}
	return roomID, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", transfer.NewError("parse URL", err)
	}

	parts := strings.Split(strings.TrimSuffix(parsedURL.Path, "/"), "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveFlags.register(receiveCmd)
	receiveCmd.Flags().StringVarP(&flagReceiveDir, "dir", "d", ".", "Directory to save received files")
}
