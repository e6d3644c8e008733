package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roomdrop/roomdrop/internal/files"
	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/roomdrop/roomdrop/internal/utils"
	"github.com/spf13/cobra"
)

var (
	sendFlags    peerFlags
	flagSendRoom string
)

var sendCmd = &cobra.Command{
	Use:     "send <file>...",
	Aliases: []string{"s"},
	Short:   "Send files to a receiver",
	Long: `Create a room (or join one with --room) and send files to the other participant.

Examples:
  roomdrop send file1.txt file2.pdf
  roomdrop send --server https://drop.example.com file.txt
  roomdrop send --room 123456 file.txt
  roomdrop send --relay --turn turn.example.com file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(cmd.Context(), args)
	},
}

func sendFiles(ctx context.Context, paths []string) error {
	infos, err := files.ValidateFiles(paths)
	if err != nil {
		return err
	}
	displayFileTable(infos)

	cfg, err := sendFlags.load()
	if err != nil {
		return err
	}
	logger := slog.Default()
	rooms := signaling.NewRooms(cfg.ServerURL, logger)

	fmt.Println()
	spinner := ui.NewConnectionSpinner("Connecting to server...").Start()
	roomID := flagSendRoom
	if roomID == "" {
		roomID, err = rooms.CreateRoomID(ctx)
	} else {
		err = rooms.CheckJoinable(ctx, roomID)
	}
	if err != nil {
		spinner.Stop()
		return transfer.NewError("prepare room", err)
	}

	session, err := OpenSession(ctx, cfg, roomID, logger)
	spinner.Stop()
	if err != nil {
		return err
	}
	defer session.Close()

	if flagSendRoom == "" {
		fmt.Println(ui.RoomInfoView(roomID, cfg.GetRoomLink(roomID)))
	}

	fmt.Println()
	spinner = ui.NewWaitingSpinner("Waiting for receiver to join...").Start()
	ch, err := session.WaitForPeer(ctx)
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.Success("Receiver connected")

	return streamFiles(ctx, ch, infos, logger)
}

func streamFiles(ctx context.Context, ch transfer.Channel, infos []files.FileInfo, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tui := ui.NewTransferUI(ui.ModeSend, cancel)
	sender := transfer.NewSender(ch, logger)
	sender.OnProgress = tui.Update

	tui.Start()
	tui.SetState("Sending files...")

	start := time.Now()
	var sent int64
	var sendErr error
	for _, info := range infos {
		if sendErr = sendOne(ctx, sender, tui, info); sendErr != nil {
			break
		}
		sent += info.Size
	}

	if sendErr == nil {
		tui.SetState("Waiting for the receiver to catch up...")
		sendErr = sender.WaitForDrain(ctx, transfer.DrainTimeout)
	}
	tui.Stop()

	if sendErr != nil {
		if errors.Is(sendErr, context.Canceled) {
			return fmt.Errorf("transfer cancelled")
		}
		return transfer.NewError("send files", sendErr)
	}

	elapsed := time.Since(start)
	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:    "Complete",
		Files:     len(infos),
		TotalSize: utils.FormatSize(sent),
		Duration:  utils.FormatTimeDuration(elapsed),
		Speed:     utils.FormatSpeed(float64(sent) / max(elapsed.Seconds(), 0.001)),
	})
	return nil
}

func sendOne(ctx context.Context, sender *transfer.Sender, tui *ui.TransferUI, info files.FileInfo) error {
	f, tf, err := info.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	tui.Begin(tf.Name, tf.Size)
	err = sender.Send(ctx, tf)
	tui.End(err != nil, "")
	return err
}

func displayFileTable(infos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(infos))
	for i, f := range infos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	ui.RenderFileTable(items)
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendFlags.register(sendCmd)
	sendCmd.Flags().StringVarP(&flagSendRoom, "room", "r", "", "Join an existing room instead of creating one")
}
