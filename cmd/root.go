// Package cmd implements the hls-sanitizer command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/server"
	"github.com/luxysiv/player/stream/hls"
	"github.com/luxysiv/player/stream/publish"
	"github.com/luxysiv/player/telemetry"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "hls-sanitizer",
	Short: "Strip ad breaks from HLS playlists",
	Long: `hls-sanitizer fetches an HLS playlist, follows master playlists down to a
media playlist, resolves every segment URI against the playlist URL and
removes ad blocks recognised by their structure.

Configuration is read from a YAML file (--config, or hls-sanitizer.yaml in
the working directory or $HOME/.config) and HLS_SANITIZER_* environment
variables, e.g. HLS_SANITIZER_HTTP_USER_AGENT or HLS_SANITIZER_LOG_LEVEL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./hls-sanitizer.yaml or $HOME/.config/hls-sanitizer.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (debug logging)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	setDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("hls-sanitizer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config")
		}
	}

	viper.SetEnvPrefix("HLS_SANITIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

// setDefaults registers every configuration key so environment variables
// can override keys that appear in no config file
func setDefaults(v *viper.Viper) {
	hlsDefaults := hls.DefaultConfig()
	v.SetDefault("http.user_agent", hlsDefaults.HTTP.UserAgent)
	v.SetDefault("http.accept_header", hlsDefaults.HTTP.AcceptHeader)
	v.SetDefault("http.connection_timeout", hlsDefaults.HTTP.ConnectionTimeout)
	v.SetDefault("http.read_timeout", hlsDefaults.HTTP.ReadTimeout)
	v.SetDefault("http.max_redirects", hlsDefaults.HTTP.MaxRedirects)
	v.SetDefault("http.max_playlist_bytes", hlsDefaults.HTTP.MaxPlaylistBytes)
	v.SetDefault("http.custom_headers", map[string]string{})
	v.SetDefault("sanitizer.max_depth", hlsDefaults.Sanitizer.MaxDepth)
	v.SetDefault("sanitizer.strict_urls", hlsDefaults.Sanitizer.StrictURLs)
	v.SetDefault("detection.url_patterns", hlsDefaults.Detection.URLPatterns)
	v.SetDefault("detection.content_types", hlsDefaults.Detection.ContentTypes)

	publishDefaults := publish.DefaultConfig()
	v.SetDefault("publisher.base_url", publishDefaults.BaseURL)
	v.SetDefault("publisher.max_resources", publishDefaults.MaxResources)

	serverDefaults := server.DefaultConfig()
	v.SetDefault("server.addr", serverDefaults.Addr)
	v.SetDefault("server.request_timeout", serverDefaults.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", serverDefaults.ShutdownTimeout)
	v.SetDefault("server.max_sessions", serverDefaults.MaxSessions)

	logDefaults := logging.DefaultConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)

	sentryDefaults := telemetry.DefaultConfig()
	v.SetDefault("sentry.dsn", sentryDefaults.DSN)
	v.SetDefault("sentry.environment", sentryDefaults.Environment)
	v.SetDefault("sentry.sample_rate", sentryDefaults.SampleRate)
}

func setupLogging() {
	level := viper.GetString("log.level")
	if viper.GetBool("verbose") {
		level = "debug"
	}

	logging.SetGlobalLogger(logging.NewLogger(&logging.Config{
		Level:  level,
		Format: viper.GetString("log.format"),
		Output: os.Stderr,
	}))
}
