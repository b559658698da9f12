package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/timpact/internal/selector"
)

// SelectionReport is what the select command prints
type SelectionReport struct {
	Branch       string                     `json:"branch" yaml:"branch"`
	HeadRevision string                     `json:"head_revision" yaml:"head_revision"`
	BaseRevision string                     `json:"base_revision,omitempty" yaml:"base_revision,omitempty"`
	Cold         bool                       `json:"cold" yaml:"cold"`
	ForceFull    bool                       `json:"force_full" yaml:"force_full"`
	Changed      int                        `json:"changed_files" yaml:"changed_files"`
	Run          []string                   `json:"run" yaml:"run"`
	Skip         []string                   `json:"skip" yaml:"skip"`
	Reasons      map[string]selector.Reason `json:"reasons" yaml:"reasons"`
}

// Formatter writes a selection report
type Formatter interface {
	Format(report *SelectionReport, w io.Writer) error
}

// Format names an output format
type Format string

const (
	FormatList    Format = "list"    // one suite to run per line
	FormatSummary Format = "summary" // human-readable
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
)

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatList, FormatSummary, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want list, summary, json or yaml)", s)
}

// NewFormatter creates the formatter for format
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatList:
		return &ListFormatter{}
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &SummaryFormatter{}
	}
}

// ListFormatter prints the run set only, for piping into a test runner
type ListFormatter struct{}

func (f *ListFormatter) Format(report *SelectionReport, w io.Writer) error {
	for _, s := range report.Run {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}
	return nil
}

// SummaryFormatter prints the decision with the reason behind every run
type SummaryFormatter struct{}

func (f *SummaryFormatter) Format(report *SelectionReport, w io.Writer) error {
	fmt.Fprintf(w, "Test impact selection\n")
	if report.Branch != "" {
		fmt.Fprintf(w, "Branch: %s\n", report.Branch)
	}
	switch {
	case report.Cold:
		fmt.Fprintf(w, "No stored mapping, running every suite\n")
	case report.BaseRevision != "":
		fmt.Fprintf(w, "Changes since %s: %d files\n", short(report.BaseRevision), report.Changed)
	}
	fmt.Fprintf(w, "Run: %d  Skip: %d\n\n", len(report.Run), len(report.Skip))

	if len(report.Run) == 0 {
		fmt.Fprintf(w, "Nothing affected.\n")
		return nil
	}

	byReason := make(map[selector.Reason][]string)
	var reasons []string
	for _, s := range report.Run {
		r := report.Reasons[s]
		if _, ok := byReason[r]; !ok {
			reasons = append(reasons, string(r))
		}
		byReason[r] = append(byReason[r], s)
	}
	sort.Strings(reasons)

	for _, r := range reasons {
		suites := byReason[selector.Reason(r)]
		fmt.Fprintf(w, "%s (%d):\n", r, len(suites))
		for _, s := range suites {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	return nil
}

// JSONFormatter prints the full report as indented JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(report *SelectionReport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// YAMLFormatter prints the full report as YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(report *SelectionReport, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
