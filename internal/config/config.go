package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Analysis settings
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`

	// Logging settings
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "bolt", "sqlite", "postgres"
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type AnalysisConfig struct {
	SourceDirs          []string `yaml:"source_dirs" mapstructure:"source_dirs"`
	TestDirs            []string `yaml:"test_dirs" mapstructure:"test_dirs"`
	Branch              string   `yaml:"branch" mapstructure:"branch"` // Empty = current git branch
	IncludeLocalChanges bool     `yaml:"include_local_changes" mapstructure:"include_local_changes"`
	CommitDirty         bool     `yaml:"commit_dirty" mapstructure:"commit_dirty"` // Persist mappings learned from uncommitted code
	Workers             int      `yaml:"workers" mapstructure:"workers"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:      "bolt",
			LocalPath: filepath.Join(".timpact", "impact.db"),
		},
		Analysis: AnalysisConfig{
			SourceDirs: []string{"src/main/java"},
			TestDirs:   []string{"src/test/java"},
			Workers:    runtime.NumCPU(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)
	v.SetDefault("analysis.source_dirs", cfg.Analysis.SourceDirs)
	v.SetDefault("analysis.test_dirs", cfg.Analysis.TestDirs)
	v.SetDefault("analysis.workers", cfg.Analysis.Workers)
	v.SetDefault("log.level", cfg.Log.Level)

	v.SetEnvPrefix("TIMPACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".timpact")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies environment variable overrides that do not follow
// the TIMPACT_ prefix scheme
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" && cfg.Storage.PostgresDSN == "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("TIMPACT_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}
	if workers := os.Getenv("TIMPACT_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Analysis.Workers = n
		}
	}
	if dirs := os.Getenv("TIMPACT_SOURCE_DIRS"); dirs != "" {
		cfg.Analysis.SourceDirs = splitList(dirs)
	}
	if dirs := os.Getenv("TIMPACT_TEST_DIRS"); dirs != "" {
		cfg.Analysis.TestDirs = splitList(dirs)
	}
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
