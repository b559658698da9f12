package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/timpact/internal/models"
)

// SuiteStatus counts what one suite's record holds
type SuiteStatus struct {
	Name       string    `json:"name" yaml:"name"`
	SourcePath string    `json:"source_path" yaml:"source_path"`
	Classes    int       `json:"classes" yaml:"classes"`
	Methods    int       `json:"methods" yaml:"methods"`
	Unresolved int       `json:"unresolved" yaml:"unresolved"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// StatusReport summarizes a stored mapping
type StatusReport struct {
	Branch          string        `json:"branch" yaml:"branch"`
	BaseRevision    string        `json:"base_revision" yaml:"base_revision"`
	UpdatedAt       time.Time     `json:"updated_at" yaml:"updated_at"`
	CatalogClasses  int           `json:"catalog_classes" yaml:"catalog_classes"`
	TotalMethods    int           `json:"total_methods" yaml:"total_methods"`
	TotalUnresolved int           `json:"total_unresolved" yaml:"total_unresolved"`
	Suites          []SuiteStatus `json:"suites" yaml:"suites"`
}

// NewStatusReport walks m and counts every stored entry
func NewStatusReport(m *models.StoredMapping) *StatusReport {
	report := &StatusReport{Suites: []SuiteStatus{}}
	if m == nil {
		return report
	}
	report.Branch = m.Branch
	report.BaseRevision = m.BaseRevision
	report.UpdatedAt = m.UpdatedAt
	report.CatalogClasses = len(m.Classes)

	var current *SuiteStatus
	var lastClass *models.ClassImpactRecord
	m.Walk(func(suite *models.TestSuiteRecord, class *models.ClassImpactRecord, method *models.MethodFingerprint) {
		if current == nil || current.Name != suite.SuiteName {
			report.Suites = append(report.Suites, SuiteStatus{
				Name:       suite.SuiteName,
				SourcePath: suite.SourcePath,
				UpdatedAt:  suite.UpdatedAt,
			})
			current = &report.Suites[len(report.Suites)-1]
			lastClass = nil
		}
		if class != nil && class != lastClass {
			current.Classes++
			lastClass = class
		}
		if method == nil {
			return
		}
		current.Methods++
		report.TotalMethods++
		if method.Unresolved() {
			current.Unresolved++
			report.TotalUnresolved++
		}
	})
	return report
}

// WriteStatus renders report in format; list and summary both print a table
func WriteStatus(report *StatusReport, format Format, w io.Writer) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}

	if report.BaseRevision == "" {
		fmt.Fprintf(w, "Branch %s has no stored mapping\n", report.Branch)
		return nil
	}
	fmt.Fprintf(w, "Branch: %s\n", report.Branch)
	fmt.Fprintf(w, "Base revision: %s\n", report.BaseRevision)
	fmt.Fprintf(w, "Updated: %s\n", report.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Suites: %d  Classes: %d  Methods: %d  Unresolved: %d\n\n",
		len(report.Suites), report.CatalogClasses, report.TotalMethods, report.TotalUnresolved)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUITE\tCLASSES\tMETHODS\tUNRESOLVED")
	for _, s := range report.Suites {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Name, s.Classes, s.Methods, s.Unresolved)
	}
	return tw.Flush()
}

// BranchStatus is one branch with a stored mapping
type BranchStatus struct {
	Branch       string `json:"branch" yaml:"branch"`
	BaseRevision string `json:"base_revision" yaml:"base_revision"`
}

// WriteBranches renders every stored branch in format
func WriteBranches(branches []BranchStatus, format Format, w io.Writer) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(branches)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(branches); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(branches) == 0 {
		fmt.Fprintln(w, "No stored mappings")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BRANCH\tBASE REVISION")
	for _, b := range branches {
		fmt.Fprintf(tw, "%s\t%s\n", b.Branch, b.BaseRevision)
	}
	return tw.Flush()
}
