package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Chichichkin/docsink/internal/logging"
)

func newEmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit TEMPLATE",
		Short: "Persist a single log record and wait for it to be flushed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}

			levelName, _ := cmd.Flags().GetString("level")
			level, err := logging.ParseLevel(levelName)
			if err != nil {
				return err
			}
			pairs, _ := cmd.Flags().GetStringArray("prop")
			props, err := parseProps(pairs)
			if err != nil {
				return err
			}

			store, _, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := newSink(cfg, store, logger)
			if err != nil {
				return err
			}
			rec := &logging.LogRecord{
				Timestamp:       time.Now(),
				Level:           level,
				MessageTemplate: args[0],
				Properties:      props,
			}
			s.Emit(rec)
			err = s.Close()
			// the deferred store.Close must not run under a commit
			<-s.Done()
			if err != nil {
				return err
			}

			stats := s.Metrics()
			if stats.RecordsPersisted == 0 {
				return fmt.Errorf("record was not persisted (filtered=%d dropped=%d)", stats.RecordsFiltered, stats.RecordsDropped)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.RenderMessage(nil))
			return nil
		},
	}
	cmd.Flags().String("level", "Information", "Record level")
	cmd.Flags().StringArray("prop", nil, "Property as name=value; numbers and booleans are typed")
	return cmd
}

func parseProps(pairs []string) (map[string]logging.PropertyValue, error) {
	props := make(map[string]logging.PropertyValue, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --prop %q, want name=value", p)
		}
		props[name] = logging.Scalar{Value: typedValue(value)}
	}
	return props, nil
}

func typedValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
