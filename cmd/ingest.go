package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BD4L/breachwatch/internal/config"
)

func newIngestCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Runs one ingestion pass over the configured sources",
		Long: `Fetches every configured breach-notification listing once, processes
each row through normalization, document enrichment, and field extraction,
and upserts the results into the record store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.runIngest(cmd.Context(), source); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only ingest the source with this id")
	return cmd
}
