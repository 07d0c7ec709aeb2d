package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nvandessel/simdash/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect simdash configuration",
		Long: `View the effective simdash configuration.

Configuration is read from ~/.simdash/config.yaml (or --config) and then
overridden by SIMDASH_* environment variables.

Examples:
  simdash config show          # Effective settings as YAML
  simdash config show --json   # Same, as JSON
  simdash config path          # Where the config file is read from`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				if dir := config.DefaultDir(); dir != "" {
					path = filepath.Join(dir, "config.yaml")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	}
}
