package analysis

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/models"
)

var javaPackageRe = regexp.MustCompile(`^\s*package\s+([\w.]+)\s*;`)

// DiscoverSuites walks testDirs under root and returns every test suite found,
// sorted by name. Missing test directories are skipped.
//
// Suite names follow what the host frameworks report: the fully qualified
// class name for Java, the dotted module path for Python, and the
// slash-separated file path without extension for Go.
func DiscoverSuites(ctx context.Context, root string, testDirs []string) ([]models.SuiteRef, error) {
	seen := make(map[string]bool)
	var suites []models.SuiteRef

	for _, dir := range testDirs {
		start := filepath.Join(root, filepath.FromSlash(dir))
		if _, err := os.Stat(start); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(start, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if p != start && shouldSkipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			name, ok, err := suiteName(p, rel, dir)
			if err != nil || !ok || seen[name] {
				return err
			}
			seen[name] = true
			suites = append(suites, models.SuiteRef{Name: name, SourcePath: rel})
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.FileSystemErrorf(err, "failed to walk test directory %s", dir)
		}
	}

	sort.Slice(suites, func(i, j int) bool { return suites[i].Name < suites[j].Name })
	return suites, nil
}

// suiteName derives the suite name of a test source file. ok is false for
// files that are not test suites.
func suiteName(absPath, rel, testDir string) (string, bool, error) {
	base := path.Base(rel)
	switch {
	case strings.HasSuffix(base, ".java"):
		class := strings.TrimSuffix(base, ".java")
		if !isJavaTestClass(class) {
			return "", false, nil
		}
		pkg, err := javaPackage(absPath)
		if err != nil {
			return "", false, err
		}
		if pkg == "" {
			return class, true, nil
		}
		return pkg + "." + class, true, nil

	case strings.HasSuffix(base, "_test.go"):
		return strings.TrimSuffix(rel, ".go"), true, nil

	case strings.HasSuffix(base, ".py"):
		module := strings.TrimSuffix(base, ".py")
		if !strings.HasPrefix(module, "test_") && !strings.HasSuffix(module, "_test") {
			return "", false, nil
		}
		// modules are importable relative to the test root's parent
		within := strings.TrimSuffix(rel, ".py")
		if parent := path.Dir(path.Clean(testDir)); parent != "." {
			within = strings.TrimPrefix(within, parent+"/")
		}
		return strings.ReplaceAll(within, "/", "."), true, nil
	}
	return "", false, nil
}

func isJavaTestClass(class string) bool {
	return strings.HasSuffix(class, "Test") ||
		strings.HasSuffix(class, "Tests") ||
		strings.HasSuffix(class, "IT") ||
		(strings.HasPrefix(class, "Test") && len(class) > len("Test"))
}

// javaPackage reads the package declaration of a Java file
func javaPackage(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := javaPackageRe.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1], nil
		}
	}
	return "", scanner.Err()
}

// shouldSkipDir reports build output and tooling directories
func shouldSkipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", "venv", ".venv", "__pycache__",
		"build", "target", "out", "dist", ".pytest_cache", ".tox", ".idea", ".vscode":
		return true
	}
	return false
}
