package output

import (
	"os"

	"golang.org/x/term"
)

// DefaultFormat picks the format when --format is not given
func DefaultFormat(out *os.File) Format {
	if f, err := ParseFormat(os.Getenv("TIMPACT_FORMAT")); err == nil {
		return f
	}

	// CI logs and pipes get the plain list
	if os.Getenv("CI") == "true" {
		return FormatList
	}
	if out != nil && term.IsTerminal(int(out.Fd())) {
		return FormatSummary
	}
	return FormatList
}
