package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "beautycity",
		Short:         "Beauty salon booking scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		// без подкоманды запускаем сервер
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config.yaml")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newSyncCatalogCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newSheetsCmd(&configPath))
	root.AddCommand(newBackupCmd(&configPath))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "beautycity %s (%s)\n", Version, CommitSHA)
		},
	}
}
