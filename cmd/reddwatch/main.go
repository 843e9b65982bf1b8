package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "reddwatch"
	version = "v1.2.0"
)

var flagConfig string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Reddit market-chatter ingestion and analysis engine",
		Version: version,
		Long: `reddwatch continuously polls a configured set of subreddits,
extracts tickers, sentiment and speculative signals from each post,
and maintains rolling aggregate statistics behind a read-only query
surface and periodic JSON exports.`,
	}
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file (defaults to built-in settings)")

	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
