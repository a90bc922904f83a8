package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/nfosync/internal/config"
	"github.com/vmunix/nfosync/internal/plex"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Long:  "Writes a commented example config.toml. An existing file is never overwritten.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configTestCmd = &cobra.Command{
	Use:   "test [path]",
	Short: "Validate configuration file",
	Long:  "Validates config.toml syntax, required fields, and environment variable substitution, then checks that Plex accepts the URL, token and library names. Use --offline to skip the server check.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigTest,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configTestCmd)
	configTestCmd.Flags().Bool("offline", false, "Skip contacting the Plex server")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath()
	switch {
	case len(args) > 0:
		path = args[0]
	case configPath != "":
		path = configPath
	}

	if err := config.WriteDefault(path); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists, edit it or remove it first", path)
		}
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nSet PLEX_TOKEN or edit plex.token, then run 'nfosync config test %s'.\n", path, path)
	return nil
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath(args)
	if err != nil {
		return err
	}

	fmt.Printf("Validating %s...\n\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		var configErr *config.Error
		if errors.As(err, &configErr) {
			printConfigErrors(configErr)
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	printConfigSummary(cfg)

	if offline, _ := cmd.Flags().GetBool("offline"); !offline {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		id, serverErr := checkServer(ctx, newPlexClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), cfg)
		if serverErr != nil {
			serverErr.Path = path
			fmt.Println()
			printConfigErrors(serverErr)
			return fmt.Errorf("configuration invalid")
		}
		fmt.Printf("  Server:      %s (v%s)\n", id.Name, id.Version)
	}

	if warns := cfg.Warnings(); len(warns) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warns {
			fmt.Printf("  - %s\n", w)
		}
	}
	fmt.Println("\nConfiguration valid!")
	return nil
}

// serverChecker is the part of the Plex client config test needs.
type serverChecker interface {
	Identity(ctx context.Context) (*plex.Identity, error)
	ResolveSections(ctx context.Context, names []string) ([]plex.Section, error)
}

// checkServer verifies that the server answers with the configured token and
// that every configured library exists. Failures come back as configuration
// errors naming the offending key.
func checkServer(ctx context.Context, c serverChecker, cfg *config.Config) (*plex.Identity, *config.Error) {
	id, err := c.Identity(ctx)
	if err != nil {
		msg := fmt.Sprintf("plex.url: %s is unreachable: %v", cfg.Plex.URL, err)
		if errors.Is(err, plex.ErrUnauthorized) {
			msg = fmt.Sprintf("plex.token: rejected by %s", cfg.Plex.URL)
		}
		return nil, &config.Error{Errors: []string{msg}}
	}
	if _, err := c.ResolveSections(ctx, cfg.Plex.Libraries); err != nil {
		return nil, &config.Error{Errors: []string{fmt.Sprintf("plex.libraries: %v", err)}}
	}
	return id, nil
}

func printConfigErrors(e *config.Error) {
	if len(e.Missing) > 0 {
		fmt.Println("Missing environment variables:")
		for _, m := range e.Missing {
			fmt.Printf("  - %s\n", m)
		}
		fmt.Println()
	}

	if len(e.Errors) > 0 {
		fmt.Println("Validation errors:")
		for _, err := range e.Errors {
			fmt.Printf("  - %s\n", err)
		}
		fmt.Println()
	}
}

func printConfigSummary(cfg *config.Config) {
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Plex:        %s\n", cfg.Plex.URL)
	fmt.Printf("  Libraries:   %s\n", strings.Join(cfg.Plex.Libraries, ", "))
	if cfg.Plex.LocalPath != "" {
		fmt.Printf("  Path map:    %s -> %s\n", cfg.Plex.LocalPath, cfg.Plex.RemotePath)
	}

	dirs := "(library locations)"
	if len(cfg.Sync.Directories) > 0 {
		dirs = strings.Join(cfg.Sync.Directories, ", ")
	}
	fmt.Printf("  Directories: %s\n", dirs)
	fmt.Printf("  Workers:     %d threads, %d concurrent requests, %.2fs apart\n",
		cfg.Sync.Threads, cfg.Sync.MaxConcurrentRequests, float64(cfg.Sync.RequestDelay))
	fmt.Printf("  Retries:     %d, %.2fs apart\n", cfg.Sync.RetryCount, float64(cfg.Sync.RetryDelay))

	var features []string
	if cfg.Sync.Subtitles {
		features = append(features, "subtitles")
	}
	if cfg.Sync.AlwaysApply {
		features = append(features, "always-apply")
	}
	if cfg.Sync.DeleteNFOAfterApply {
		features = append(features, "delete-after-apply")
	}
	if cfg.Watch.Enabled {
		features = append(features, fmt.Sprintf("watch (%.1fs debounce)", float64(cfg.Watch.DebounceDelay)))
	}
	if len(features) > 0 {
		fmt.Printf("  Features:    %s\n", strings.Join(features, ", "))
	}

	stateDB := "disabled"
	if cfg.State.Path != "" {
		stateDB = cfg.State.Path
	}
	fmt.Printf("  State:       %s\n", stateDB)
}
