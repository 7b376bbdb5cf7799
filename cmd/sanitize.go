package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/stream/hls"
)

var (
	sanitizeOutput  string
	sanitizeTimeout time.Duration
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [url]",
	Short: "Print the sanitized playlist for a URL",
	Long: `Fetch a playlist, descend into master playlists, resolve segment URIs and
strip ad blocks, then print the resulting media playlist.

Examples:
  # Print to stdout
  hls-sanitizer sanitize https://cdn.example.com/live/master.m3u8

  # Write to a file
  hls-sanitizer sanitize -o clean.m3u8 https://cdn.example.com/live/master.m3u8`,
	Args: cobra.ExactArgs(1),
	RunE: runSanitize,
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)

	sanitizeCmd.Flags().StringVarP(&sanitizeOutput, "output", "o", "",
		"write the playlist to a file instead of stdout")
	sanitizeCmd.Flags().DurationVar(&sanitizeTimeout, "timeout", 30*time.Second,
		"operation timeout")
}

func runSanitize(cmd *cobra.Command, args []string) error {
	doc, report, err := process(cmd.Context(), args[0], sanitizeTimeout)
	if err != nil {
		return err
	}

	logging.Info("Playlist sanitized", logging.Fields{
		"media_url":        report.MediaURL,
		"depth":            report.Depth,
		"removed_spans":    report.TotalRemovedSpans(),
		"removed_duration": report.RemovedDuration(),
	})

	if sanitizeOutput != "" {
		return os.WriteFile(sanitizeOutput, []byte(doc.Text), 0o644)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), doc.Text)
	return err
}

// process runs the pipeline without publishing
func process(ctx context.Context, rawURL string, timeout time.Duration) (hls.PlaylistDocument, *hls.SanitizeReport, error) {
	config, err := hlsConfig(viper.GetViper())
	if err != nil {
		return hls.PlaylistDocument{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sanitizer := hls.NewSanitizerWithConfig(config, nil, nil)
	return sanitizer.Process(ctx, rawURL)
}
