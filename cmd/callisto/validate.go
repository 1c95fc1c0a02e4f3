package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderdesk-hq/callisto/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		fmt.Printf("configuration is valid\n")
		fmt.Printf("  state store:     %s\n", cfg.State.Endpoint)
		fmt.Printf("  blob store:      %s\n", cfg.Blob.Endpoint)
		fmt.Printf("  committee pool:  %d providers\n", len(cfg.Committee.Pool))
		fmt.Printf("  listen address:  %s\n", cfg.Server.ListenAddress)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
