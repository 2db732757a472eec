package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Chichichkin/docsink/internal/ingest"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow log files and persist their lines until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-path") {
				cfg.Ingest.Root, _ = cmd.Flags().GetString("log-path")
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, ps, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := newSink(cfg, store, logger)
			if err != nil {
				return err
			}

			purgeCtx, stopPurger := context.WithCancel(ctx)
			purgerDone := make(chan struct{})
			go func() {
				defer close(purgerDone)
				if ps != nil && cfg.Store.PurgeInterval > 0 {
					ps.RunPurger(purgeCtx, cfg.Store.PurgeInterval, logger)
				}
			}()

			var in *ingest.Ingester
			if cfg.Ingest.Root != "" {
				in = ingest.New(ctx, cfg.IngestConfig(), s, ingest.WithLogger(logger))
				in.Start()
			} else {
				logger.Warn("no log path configured, nothing to follow")
			}

			logger.Info("docsink running", "store", cfg.Store.Kind, "database", cfg.Sink.Database)
			<-ctx.Done()
			logger.Info("shutting down")

			if in != nil {
				in.Stop()
				st := in.Stats()
				lines, _, malformed := st.Lines()
				logger.Info("ingest stopped",
					"files", len(st.Files),
					"lines", lines,
					"malformed_lines", malformed,
					"failures", st.Failures())
			}
			err = s.Close()
			stopPurger()
			<-purgerDone

			stats := s.Metrics()
			if n := stats.InFlight(); n > 0 {
				logger.Warn("waiting for in-flight commit before closing the store", "records", n)
			}
			<-s.Done()

			stats = s.Metrics()
			logger.Info("sink closed",
				"persisted", stats.RecordsPersisted,
				"dropped", stats.RecordsDropped,
				"filtered", stats.RecordsFiltered)
			return err
		},
	}
	cmd.Flags().String("log-path", "", "Root directory to scan for *.log files (overrides ingest.root)")
	return cmd
}
