// Command sampleops runs the cache-first, self-recovering generation
// service and its one-shot tooling.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sampleops/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "sampleops",
		Short:         "Cache-first artifact generation with automatic failure recovery",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (built-in defaults when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newGenerateCmd(&configPath),
		newConfigCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}

// loadConfig reads and validates the config at path, or the defaults when
// path is empty.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(ctx, path, nil)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
