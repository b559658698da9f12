package git

import (
	"path/filepath"
	"strings"
)

// DetectLanguage returns the language of a source file the fingerprint
// resolver can parse, or "" for anything else
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))

	languageMap := map[string]string{
		".java": "java",
		".go":   "go",
		".py":   "python",
	}

	return languageMap[ext]
}
