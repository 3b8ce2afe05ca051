package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/sampleops/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load, resolve and validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd.Context(), *configPath); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return err
		},
	}

	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in defaults as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(config.Default()); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(validateCmd, defaultsCmd)
	return cmd
}
