package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	srv "github.com/mohammad-safakhou/casewatch/internal/server"
	"github.com/spf13/cobra"
)

func ingestCMD() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass and print the reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := srv.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			reports, err := app.Pipeline.Run(ctx, collection)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(reports)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "only ingest this collection")
	return cmd
}
