package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/roomdrop/roomdrop/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomdrop",
	Short: "Peer-to-peer file transfer over WebRTC, paired through a tiny room relay",
	Long: `RoomDrop moves files directly between two devices over a WebRTC data channel.
The relay server only pairs the two peers in a six-digit room and forwards their
connection setup messages; file data never passes through it.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
