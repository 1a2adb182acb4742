// Package main is the entry point for the opsgate CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/intent"
	"github.com/opsgate/opsgate/internal/runbook"
	"github.com/opsgate/opsgate/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsgate",
		Short:         "An audited operations gateway for AI agents, served over MCP on stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), serveCmd(), configCmd(), catalogCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("opsgate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool gateway over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				DataDir:    dataDir,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the persistent data directory")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (%d aliases, %d presets)\n", len(cfg.Aliases), len(cfg.Presets))
			return nil
		},
	})
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog management",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runbooks and capabilities without serving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = app.DefaultDataDir()
			}

			runbooks, err := runbook.LoadCatalog(filepath.Join(dataDir, "runbooks.json"))
			if err != nil {
				return err
			}
			caps, err := intent.LoadCapCatalog(filepath.Join(dataDir, "capabilities.json"))
			if err != nil {
				return err
			}

			fmt.Println("Runbooks:")
			books := runbooks.All()
			if len(books) == 0 {
				fmt.Println("  (none)")
			}
			for _, rb := range books {
				fmt.Printf("  %s (%d steps) %s\n", rb.Name, len(rb.Steps), rb.Description)
			}

			fmt.Println("Capabilities:")
			all := caps.All()
			if len(all) == 0 {
				fmt.Println("  (none)")
			}
			for _, cap := range all {
				fmt.Printf("  %s -> %s (priority %d)\n", cap.Name, cap.IntentType, cap.Priority)
			}
			return nil
		},
	}
	list.Flags().String("data-dir", "", "Override the persistent data directory")
	cmd.AddCommand(list)
	return cmd
}
