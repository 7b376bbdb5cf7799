package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxysiv/player/output"
	"github.com/luxysiv/player/stream"
	"github.com/luxysiv/player/stream/hls"
)

var (
	inspectFormat      string
	inspectPretty      bool
	inspectTimeout     time.Duration
	inspectConcurrency int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [url...]",
	Short: "Report what sanitizing a URL would remove",
	Long: `Run the sanitize pipeline and print a report: the media playlist reached,
the master playlist depth, ad spans removed per signature and a summary of
the playlist before and after.

With several URLs the playlists are processed in parallel and one report is
printed per URL, in argument order.

Examples:
  hls-sanitizer inspect https://cdn.example.com/live/master.m3u8
  hls-sanitizer inspect --format yaml https://cdn.example.com/live/index.m3u8
  hls-sanitizer inspect -f json https://a.example.com/x.m3u8 https://b.example.com/x.m3u8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table",
		"output format: json, yaml, csv or table")
	inspectCmd.Flags().BoolVar(&inspectPretty, "pretty", true,
		"indent JSON output")
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second,
		"per-playlist timeout")
	inspectCmd.Flags().IntVar(&inspectConcurrency, "concurrency", 4,
		"playlists processed at once")
}

func runInspect(cmd *cobra.Command, args []string) error {
	formatter, err := output.NewFormatter(inspectFormat)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		_, report, err := process(cmd.Context(), args[0], inspectTimeout)
		if err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), formatter, report)
	}

	config, err := hlsConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	manager := stream.NewManagerWithConfig(&stream.ManagerConfig{
		StreamTimeout:        inspectTimeout,
		OverallTimeout:       inspectTimeout * time.Duration(len(args)),
		MaxConcurrentStreams: inspectConcurrency,
	}, hls.NewSanitizerWithConfig(config, nil, nil))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	batch, err := manager.InspectParallel(ctx, args)
	if err != nil {
		return err
	}

	switch inspectFormat {
	case "json", "yaml", "yml":
		if err := writeFormatted(cmd.OutOrStdout(), formatter, batch); err != nil {
			return err
		}
	default:
		for i, result := range batch.Results {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if err := writeFormatted(cmd.OutOrStdout(), formatter, result); err != nil {
				return err
			}
		}
	}

	return batch.Err()
}

func writeFormatted(w io.Writer, formatter output.Formatter, data any) error {
	out, err := formatter.Format(data, inspectPretty)
	if err != nil {
		return err
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	_, err = w.Write(out)
	return err
}
