package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type queryResult struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Document json.RawMessage   `json:"document"`
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print stored documents as JSON lines (pebble store only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openPebble(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if list, _ := cmd.Flags().GetBool("databases"); list {
				dbs, err := store.Databases()
				if err != nil {
					return err
				}
				for _, db := range dbs {
					fmt.Fprintln(out, db)
				}
				return nil
			}

			enc := json.NewEncoder(out)
			if id, _ := cmd.Flags().GetString("id"); id != "" {
				doc, err := store.Get(cfg.Sink.Database, id)
				if err != nil {
					return err
				}
				return enc.Encode(queryResult{ID: doc.ID, Metadata: doc.Metadata, Document: doc.Body})
			}

			limit, _ := cmd.Flags().GetInt("limit")
			docs, err := store.List(cfg.Sink.Database, limit)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if err := enc.Encode(queryResult{ID: doc.ID, Metadata: doc.Metadata, Document: doc.Body}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("id", "", "Print a single document by id")
	cmd.Flags().Int("limit", 100, "Maximum number of documents (0 for all)")
	cmd.Flags().Bool("databases", false, "List databases instead of documents")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired documents now (pebble store only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openPebble(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Purge(context.Background(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired documents\n", n)
			return nil
		},
	}
}
