package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSuiteFile writes one suite name per line to path, replacing it
// atomically. The host test framework reads it to filter suites: the skip set
// to suppress, or the run set to include.
func WriteSuiteFile(path string, suites []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".suites-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, s := range suites {
		fmt.Fprintln(w, s)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
