package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tordrt/wshealth"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Manage the metadata database",
}

var metadataMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the metadata tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Metadata.URL == "" {
			return fmt.Errorf("a metadata database url is required (--metadata-url or metadata.url)")
		}

		logger := newLogger(cfg)
		version, err := wshealth.MigrateMetadata(cfg.Metadata.URL)
		if err != nil {
			return err
		}
		logger.Info("metadata database migrated", "version", version)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Metadata database at version %d\n", version)
		return nil
	},
}

func init() {
	metadataCmd.AddCommand(metadataMigrateCmd)
}
