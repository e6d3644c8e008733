package cmd

import (
	"fmt"
	"log/slog"

	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/spf13/cobra"
)

var statusFlags peerFlags

var statusCmd = &cobra.Command{
	Use:   "status <room-id|url>",
	Short: "Check whether a room exists and has space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		cfg, err := statusFlags.load()
		if err != nil {
			return err
		}

		status, err := signaling.NewRooms(cfg.ServerURL, slog.Default()).Status(cmd.Context(), roomID)
		if err != nil {
			return transfer.NewError("room status", err)
		}

		switch {
		case !status.Valid:
			ui.PrintWarning(fmt.Sprintf("Room %s does not exist", roomID))
		case status.Full:
			ui.PrintWarning(fmt.Sprintf("Room %s is full", roomID))
		default:
			ui.PrintSuccess(fmt.Sprintf("Room %s is waiting for a peer", roomID))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusFlags.register(statusCmd)
}
