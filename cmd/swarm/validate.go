package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benmeehan/iot-swarm/pkg/file"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, TLS material and dataset without connecting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fileClient := file.NewFileService()
		if _, err := loadTLS(cfg, fileClient); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		if _, err := providerFactory(cfg, fileClient); err != nil {
			return fmt.Errorf("location: %w", err)
		}
		pool, err := loadPool(cfg, fileClient)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d device identities for %s\n", pool.Remaining(), cfg.Broker.Host)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
