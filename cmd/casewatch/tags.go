package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/casewatch/internal/index"
	"github.com/mohammad-safakhou/casewatch/internal/store"
	"github.com/spf13/cobra"
)

func tagsCMD() *cobra.Command {
	var minCount int
	cmd := &cobra.Command{
		Use:   "tags <collection>",
		Short: "Print tag frequencies of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			backends, err := store.Open(ctx, cfg.Storage, log.New(log.Writer(), "[STORE] ", log.LstdFlags))
			if err != nil {
				return err
			}
			defer backends.Close()
			snap, err := backends.Collections.LoadCollection(ctx, args[0])
			if err != nil {
				return err
			}
			counts := index.TagCounts(snap.Records, minCount)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, %d tags with at least %d uses\n", args[0], len(snap.Records), len(counts), minCount)
			for _, tc := range counts {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s\n", tc.Count, tc.Tag)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minCount, "min", index.DefaultMinTagCount, "minimum number of uses")
	return cmd
}
