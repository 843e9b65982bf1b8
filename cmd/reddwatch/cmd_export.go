package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/analyze"
	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/export"
	"github.com/reddwatch/reddwatch/internal/query"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/internal/telemetry"
)

func newExportCmd() *cobra.Command {
	var flagOut string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch every configured source once and emit an export document",
		Long: `Poll each configured source a single time, run the analysis
pipeline over the results and print the JSON export document to
stdout (or write it with --out). Useful for snapshots and smoke
tests without running the full engine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), cfg, flagOut)
		},
	}

	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the document to this file instead of stdout")
	return cmd
}

func runExport(ctx context.Context, cfg *config.Config, out string) error {
	metrics := telemetry.Default()
	client := reddit.NewClient(cfg.Client, config.CredentialsFromEnv(), metrics)
	analyzer := analyze.New(cfg)
	agg := aggregate.New(cfg.Window(), cfg.Retention.PriorityRing, metrics)

	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, src := range cfg.Sources {
		items, err := client.Fetch(fetchCtx, src.Name, src.Category, src.Limit)
		if err != nil {
			log.Warn().Err(err).Str("source", src.Name).Msg("skipping source")
			continue
		}
		for _, raw := range items {
			agg.Ingest(analyzer.Analyze(raw))
		}
	}

	q := query.New(agg, nil, cfg.Alerts, metrics)
	doc := export.Build(q)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(out, data, 0o644)
}
