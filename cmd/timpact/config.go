package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/timpact/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage timpact configuration",
	Long:  `View and modify timpact configuration settings.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get configuration value",
	Long: `Get a configuration value.

Examples:
  timpact config get storage.type
  timpact config get analysis.source_dirs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set configuration value",
	Long: `Set a configuration value and save the config file. List values are
comma-separated.

Examples:
  timpact config set storage.type sqlite
  timpact config set analysis.source_dirs src/main/java,lib`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	RunE:  runConfigList,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE:  runConfigInit,
}

var forceInit bool

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return runConfigList(cmd, args)
	}

	key := args[0]
	value, ok := getConfigValue(cfg, key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := setConfigValue(cfg, key, value); err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}
	if err := cfg.ValidateOrError(); err != nil {
		return err
	}

	if err := cfg.Save(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(out, "%s = %s\n", key, value)
	}

	result := cfg.Validate()
	if result.HasErrors() {
		fmt.Fprintf(out, "\n%s", result.Error())
		return nil
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "\nWarning: %s", w)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.Default().Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", configPath)
	return nil
}

// Helper functions

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(".timpact", "config.yaml")
}

var configKeys = []string{
	"storage.type",
	"storage.local_path",
	"storage.postgres_dsn",
	"analysis.source_dirs",
	"analysis.test_dirs",
	"analysis.branch",
	"analysis.include_local_changes",
	"analysis.commit_dirty",
	"analysis.workers",
	"log.level",
	"log.file",
	"log.json",
	"metrics.textfile_path",
}

func getConfigValue(cfg *config.Config, key string) (string, bool) {
	switch key {
	case "storage.type":
		return cfg.Storage.Type, true
	case "storage.local_path":
		return cfg.Storage.LocalPath, true
	case "storage.postgres_dsn":
		return maskDSN(cfg.Storage.PostgresDSN), true
	case "analysis.source_dirs":
		return strings.Join(cfg.Analysis.SourceDirs, ","), true
	case "analysis.test_dirs":
		return strings.Join(cfg.Analysis.TestDirs, ","), true
	case "analysis.branch":
		return cfg.Analysis.Branch, true
	case "analysis.include_local_changes":
		return strconv.FormatBool(cfg.Analysis.IncludeLocalChanges), true
	case "analysis.commit_dirty":
		return strconv.FormatBool(cfg.Analysis.CommitDirty), true
	case "analysis.workers":
		return strconv.Itoa(cfg.Analysis.Workers), true
	case "log.level":
		return cfg.Log.Level, true
	case "log.file":
		return cfg.Log.File, true
	case "log.json":
		return strconv.FormatBool(cfg.Log.JSON), true
	case "metrics.textfile_path":
		return cfg.Metrics.TextfilePath, true
	default:
		return "", false
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "storage.type":
		cfg.Storage.Type = value
	case "storage.local_path":
		cfg.Storage.LocalPath = value
	case "storage.postgres_dsn":
		cfg.Storage.PostgresDSN = value
	case "analysis.source_dirs":
		cfg.Analysis.SourceDirs = splitComma(value)
	case "analysis.test_dirs":
		cfg.Analysis.TestDirs = splitComma(value)
	case "analysis.branch":
		cfg.Analysis.Branch = value
	case "analysis.include_local_changes", "analysis.commit_dirty", "log.json":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		switch key {
		case "analysis.include_local_changes":
			cfg.Analysis.IncludeLocalChanges = b
		case "analysis.commit_dirty":
			cfg.Analysis.CommitDirty = b
		default:
			cfg.Log.JSON = b
		}
	case "analysis.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("analysis.workers expects a number")
		}
		cfg.Analysis.Workers = n
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "metrics.textfile_path":
		cfg.Metrics.TextfilePath = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***:***" + dsn[i:]
		}
	}
	return "***"
}
