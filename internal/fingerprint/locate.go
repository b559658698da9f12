package fingerprint

import (
	"path"
	"strings"

	"github.com/rohankatakam/timpact/internal/git"
)

// JavaSourceSuffix maps "com.acme.Outer$Inner" to "com/acme/Outer.java", the
// conventional location of its top-level type relative to a source root
func JavaSourceSuffix(className string) string {
	if i := strings.IndexByte(className, '$'); i >= 0 {
		className = className[:i]
	}
	return strings.ReplaceAll(className, ".", "/") + ".java"
}

// SourceSuffixes lists the paths, relative to a source root, that may declare
// className, most likely first: the Java file of its top-level type, then
// every Python module named by a prefix of the dotted name.
func SourceSuffixes(className string) []string {
	out := []string{JavaSourceSuffix(className)}
	parts := strings.Split(className, ".")
	for n := len(parts); n > 0; n-- {
		module := strings.Join(parts[:n], "/")
		out = append(out, module+".py", module+"/__init__.py")
	}
	return out
}

// MayDeclare reports whether filePath is a conventional location of
// className. Go files match by the name of their directory, which is the
// package name of className.
func MayDeclare(className, filePath string) bool {
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	if path.Ext(filePath) == ".go" {
		pkg, _, _ := strings.Cut(className, ".")
		return pkg != "" && path.Base(path.Dir(filePath)) == pkg
	}
	for _, suffix := range SourceSuffixes(className) {
		if filePath == suffix || strings.HasSuffix(filePath, "/"+suffix) {
			return true
		}
	}
	return false
}

// EnclosingOwners returns the owners whose top-level state is initialized
// before any code of className runs, innermost first: the package of a Go
// receiver type, the outer classes and module of a Python class. Java
// classes have none.
func EnclosingOwners(className, sourcePath string) []string {
	switch git.DetectLanguage(sourcePath) {
	case "go", "python":
	default:
		return nil
	}
	var owners []string
	for i := strings.LastIndexByte(className, '.'); i > 0; i = strings.LastIndexByte(className[:i], '.') {
		owners = append(owners, className[:i])
	}
	return owners
}
