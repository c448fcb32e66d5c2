package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yunseo-dev/esmchat/internal/config"
)

var (
	configDir  string
	serverFlag string
	moduleFlag string
)

var rootCmd = &cobra.Command{
	Use:   "esmchat",
	Short: "Terminal client for the ESM portal assistant",
	Long: `esmchat is a terminal client for the enterprise service portal assistant.

It streams answers token by token, follows up on recently detected
requests, and keeps a local mirror of your chat history for offline
listing and full-text search.

Quick start:
  esmchat chat                  # Start an interactive chat
  esmchat history list          # List cached sessions
  esmchat history search <q>    # Search cached transcripts`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Assistant server base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&moduleFlag, "module", "", "Module selector sent with each turn (itsm, erp, ...)")
	rootCmd.AddCommand(configCmd)
}

// loadSetup resolves the config manager and effective config, applying flag
// overrides on top of file and environment values.
func loadSetup() (*config.Manager, *config.Config, error) {
	var manager *config.Manager
	if configDir != "" {
		manager = config.NewManagerAt(configDir)
	} else {
		var err error
		manager, err = config.NewManager()
		if err != nil {
			return nil, nil, err
		}
	}

	cfg, err := manager.Load()
	if err != nil {
		return nil, nil, err
	}
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}
	if moduleFlag != "" {
		cfg.ModuleType = moduleFlag
	}
	return manager, cfg, nil
}

// ensureDataDir creates the local state directory and returns the paths of
// the history cache database and the search index.
func ensureDataDir(manager *config.Manager) (dbPath, indexPath string, err error) {
	dir := manager.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return filepath.Join(dir, "history.db"), filepath.Join(dir, "history.bleve"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, cfg, err := loadSetup()
		if err != nil {
			return err
		}
		if !manager.Exists() {
			if err := manager.Save(cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", manager.GetConfigPath())
		}
		fmt.Printf("Config file:  %s\n", manager.GetConfigPath())
		fmt.Printf("Server URL:   %s\n", cfg.ServerURL)
		fmt.Printf("Module:       %s\n", cfg.ModuleType)
		if cfg.FirstName != "" {
			fmt.Printf("First name:   %s\n", cfg.FirstName)
		}
		if cfg.PromptsFile != "" {
			fmt.Printf("Prompts file: %s\n", cfg.PromptsFile)
		}
		return nil
	},
}
