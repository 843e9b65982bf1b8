package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/analyze"
	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/export"
	httpserver "github.com/reddwatch/reddwatch/internal/interfaces/http"
	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/monitor"
	"github.com/reddwatch/reddwatch/internal/publish"
	"github.com/reddwatch/reddwatch/internal/query"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/internal/telemetry"
)

func newMonitorCmd() *cobra.Command {
	var (
		flagServe bool
		flagAddr  string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the polling engine until interrupted",
		Long: `Start one polling task per configured source, feed fetched posts
through the analyzer into the rolling aggregate window, and write
periodic JSON exports. With --serve, expose the read-only query API
over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if flagServe {
				cfg.HTTP.Enabled = true
			}
			if flagAddr != "" {
				cfg.HTTP.Addr = flagAddr
			}
			return runMonitor(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&flagServe, "serve", false, "expose the read-only query API over HTTP")
	cmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		log.Info().Msg("no config file given, using built-in defaults")
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

func runMonitor(ctx context.Context, cfg *config.Config) error {
	metrics := telemetry.Default()
	creds := config.CredentialsFromEnv()
	client := reddit.NewClient(cfg.Client, creds, metrics)
	analyzer := analyze.New(cfg)
	agg := aggregate.New(cfg.Window(), cfg.Retention.PriorityRing, metrics)

	writer, err := export.NewWriter(cfg.Export.Dir, metrics)
	if err != nil {
		return err
	}

	var publisher *publish.Publisher
	if cfg.Redis.Enabled {
		publisher, err = publish.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer publisher.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis export publishing enabled")
	}

	var mon *monitor.Monitor
	q := query.New(agg, deferredState{&mon}, cfg.Alerts, metrics)

	exportFn := func(ctx context.Context) error {
		doc := export.Build(q)
		if _, err := writer.Write(doc); err != nil {
			return err
		}
		if publisher != nil {
			return publisher.Publish(ctx, doc)
		}
		return nil
	}

	mon = monitor.New(cfg, client, analyzer, agg, metrics, exportFn)
	mon.Start(ctx)

	var server *httpserver.Server
	if cfg.HTTP.Enabled {
		server = httpserver.NewServer(cfg.HTTP.Addr, q, metrics)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("query server failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case <-ctx.Done():
	}

	mon.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("query server shutdown error")
		}
	}

	// Final export so downstream consumers see the last window.
	if err := exportFn(context.Background()); err != nil {
		log.Warn().Err(err).Msg("final export failed")
	}
	return nil
}

// deferredState lets the query facade read monitor state even though
// the monitor is constructed after the facade (the export closure ties
// them together).
type deferredState struct {
	mon **monitor.Monitor
}

func (d deferredState) State() model.MonitorState {
	if d.mon == nil || *d.mon == nil {
		return model.MonitorState{Sources: map[string]model.SourceState{}}
	}
	return (*d.mon).State()
}
