package cmd

import (
	"errors"
	"net/http"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/logging"
	"github.com/roomdrop/roomdrop/internal/server"
	"github.com/roomdrop/roomdrop/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagServeHost string
	flagServePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room relay server",
	Long: `Run the relay that pairs peers into rooms and forwards their signaling.

Environment:
  HOST       listen host (default localhost)
  PORT       listen port (default 3000)
  ENV        "development" enables debug logging
  LOG_LEVEL  debug, info, warn or error

Examples:
  roomdrop serve
  roomdrop serve --host 0.0.0.0 --port 8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			Host: flagServeHost,
			Port: flagServePort,
		})
		if err != nil {
			return err
		}

		logger := logging.InitServer(cfg.Env)
		logger.Info("starting relay", "version", version.Version, "env", cfg.Env, "addr", cfg.Addr())

		err = server.New(cfg.Addr(), logger).ListenAndServe(cmd.Context())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("relay stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagServeHost, "host", "", "Listen host (overrides HOST)")
	serveCmd.Flags().StringVarP(&flagServePort, "port", "p", "", "Listen port (overrides PORT)")
}
