package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/server"
	"github.com/luxysiv/player/stream/publish"
	"github.com/luxysiv/player/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sanitizer HTTP API",
	Long: `Run an HTTP server that sanitizes playlists on request and serves the
results.

Endpoints:
  GET|POST /v1/load?url=<playlist>&session=<key>  sanitize and publish
  GET      /playlists/<id>.m3u8                   published playlist
  DELETE   /v1/sessions/<key>                     release a session
  GET      /metrics                               Prometheus metrics
  GET      /healthz                               health check

Examples:
  # Serve on the default address
  hls-sanitizer serve

  # Serve behind a reverse proxy
  hls-sanitizer serve --addr :9000 --base-url https://player.example.com`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("base-url", "", "public base URL of published playlists")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("publisher.base_url", serveCmd.Flags().Lookup("base-url"))
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()

	hlsCfg, err := hlsConfig(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sentryCfg := sentryConfig(v)
	if err := telemetry.InitSentry(sentryCfg, "hls-sanitizer", Version); err != nil {
		return err
	}
	defer telemetry.Flush()

	publisher := publish.NewMemoryPublisherWithConfig(publishConfig(v))
	srv := server.New(serverConfig(v), hlsCfg, nil, publisher)
	if sentryCfg.Enabled() {
		srv.OnError(telemetry.CaptureError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting hls-sanitizer", logging.Fields{
		"version":  Version,
		"addr":     v.GetString("server.addr"),
		"base_url": v.GetString("publisher.base_url"),
	})

	return srv.ListenAndServe(ctx)
}
