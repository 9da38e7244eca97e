package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"ledgermeta/internal/api"
	"ledgermeta/internal/snapshot"
	"ledgermeta/internal/storage"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print snapshot, sync and backfill progress as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, release, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()

			repository, err := storage.NewPostgresRepository(db)
			if err != nil {
				return err
			}
			journal, err := snapshot.Open(ctx, db, cfg.Snapshot.Variant)
			if err != nil {
				return err
			}
			defer journal.Close()

			status, err := api.BuildStatus(ctx, api.StoreStatus{Journal: journal, Progress: repository})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}
