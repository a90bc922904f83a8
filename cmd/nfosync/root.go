package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmunix/nfosync/internal/config"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nfosync",
	Short: "Sync .nfo sidecar metadata into Plex",
	Long: `nfosync - push .nfo sidecar metadata into a Plex library

Reads title, air date and plot from .nfo files next to your videos,
applies them to the matching Plex items, and optionally uploads the
embedded text subtitle tracks. Runs once or keeps watching for changes.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nfosync %s\n", version)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: discovered)")
	rootCmd.AddCommand(versionCmd)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("nfosync {{.Version}}\n")
}

// resolveConfigPath returns the explicit path, the first positional
// argument, or the discovered config file, in that order.
func resolveConfigPath(args []string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if len(args) > 0 {
		return args[0], nil
	}
	return config.Discover()
}
