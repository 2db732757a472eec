package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Chichichkin/docsink/internal/config"
	"github.com/Chichichkin/docsink/internal/selflog"
	"github.com/Chichichkin/docsink/internal/sink"
	"github.com/Chichichkin/docsink/internal/storage"
	pebblestore "github.com/Chichichkin/docsink/internal/storage/pebble"
	"github.com/Chichichkin/docsink/internal/storage/remote"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "docsink",
		Short:         "Ship structured log events into a document store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("config", os.Getenv("DOCSINK_CONFIG"), "Path to a YAML or JSON config file")
	root.PersistentFlags().String("data-dir", "", "Pebble data directory (overrides store.dataDir)")
	root.PersistentFlags().String("database", "", "Target database (overrides sink.database)")
	root.PersistentFlags().String("log-level", "", "Diagnostics level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "Diagnostics format: text|json")

	root.AddCommand(newRunCmd())
	root.AddCommand(newEmitCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newPurgeCmd())
	return root
}

// loadConfig reads the config file and environment, then applies any
// persistent flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Store.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("database") {
		cfg.Sink.Database, _ = flags.GetString("database")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	return cfg, cfg.Validate()
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	level, err := selflog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return selflog.New(level, cfg.Log.Format, cmd.ErrOrStderr())
}

// openStore opens the configured document store. pebble is non-nil only for
// the embedded store.
func openStore(cfg config.Config, logger *slog.Logger) (store storage.DocumentStore, pebble *pebblestore.Store, err error) {
	switch cfg.Store.Kind {
	case config.StoreRemote:
		client, err := remote.NewClient(cfg.RemoteOptions(logger))
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	default:
		opts, err := cfg.PebbleOptions()
		if err != nil {
			return nil, nil, err
		}
		ps, err := pebblestore.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble store: %w", err)
		}
		return ps, ps, nil
	}
}

func openPebble(cfg config.Config) (*pebblestore.Store, error) {
	if cfg.Store.Kind != config.StorePebble {
		return nil, fmt.Errorf("command requires the pebble store, configured store is %q", cfg.Store.Kind)
	}
	opts, err := cfg.PebbleOptions()
	if err != nil {
		return nil, err
	}
	return pebblestore.Open(opts)
}

func newSink(cfg config.Config, store storage.DocumentStore, logger *slog.Logger) (*sink.Sink, error) {
	sc, err := cfg.SinkConfig()
	if err != nil {
		return nil, err
	}
	return sink.New(store, sc, sink.WithDiagnostics(logger))
}
