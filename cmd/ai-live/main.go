package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath  string
	serverURL   string
	inputMode   string
	logFile     string
	verbose     bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "ai-live",
	Short:         "Push-to-talk voice conversations in the terminal",
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `ai-live records an utterance while you hold the talk key (or the left
mouse button), streams it to the voice server over a websocket, and shows the
transcript while the spoken reply plays.

Press e to end the conversation and receive a summary with sentiment.

Quick Start:
  ai-live                                  # connect to http://localhost:8000
  ai-live --server https://voice.example   # use another server
  ai-live --mode hold                      # hold space instead of toggling
  ai-live check                            # verify audio tools and devices`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default ./ai-live.yaml when present)")
	flags.StringVarP(&serverURL, "server", "s", "", "Voice server origin, e.g. http://localhost:8000")
	flags.StringVarP(&inputMode, "mode", "m", "", "Talk key mode: toggle or hold")
	flags.StringVar(&logFile, "log-file", "", `Log file path ("-" for stderr)`)
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
