package config

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/timpact/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate checks storage and analysis settings
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}
	c.validateStorage(result)
	c.validateAnalysis(result)
	return result
}

// ValidateOrError returns a ConfigError when validation fails
func (c *Config) ValidateOrError() error {
	result := c.Validate()
	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "bolt", "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for %s storage", c.Storage.Type)
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("storage.postgres_dsn (or POSTGRES_DSN) is required for postgres storage")
		}
	default:
		result.AddError("unknown storage type %q (expected bolt, sqlite or postgres)", c.Storage.Type)
	}
}

func (c *Config) validateAnalysis(result *ValidationResult) {
	if len(c.Analysis.SourceDirs) == 0 {
		result.AddError("analysis.source_dirs must list at least one directory")
	}
	if len(c.Analysis.TestDirs) == 0 {
		result.AddError("analysis.test_dirs must list at least one directory")
	}
	if c.Analysis.Workers < 1 {
		result.AddWarning("analysis.workers is %d, using 1", c.Analysis.Workers)
		c.Analysis.Workers = 1
	}
	if c.Analysis.CommitDirty && !c.Analysis.IncludeLocalChanges {
		result.AddWarning("analysis.commit_dirty has no effect without include_local_changes")
	}
}
