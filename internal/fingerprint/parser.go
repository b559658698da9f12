package fingerprint

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/git"
	"github.com/rohankatakam/timpact/internal/models"
)

// LanguageParser wraps tree-sitter parser with language-specific grammar.
// A LanguageParser is not safe for concurrent use; always call Close().
type LanguageParser struct {
	parser   *sitter.Parser
	langName string
}

// NewLanguageParser creates a parser for the specified language.
// Supported languages: java, go, python
func NewLanguageParser(lang string) (*LanguageParser, error) {
	var language *sitter.Language
	switch lang {
	case "java":
		language = java.GetLanguage()
	case "go":
		language = golang.GetLanguage()
	case "python":
		language = python.GetLanguage()
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(language)

	return &LanguageParser{
		parser:   parser,
		langName: lang,
	}, nil
}

// Close releases parser resources
func (lp *LanguageParser) Close() {
	if lp.parser != nil {
		lp.parser.Close()
	}
}

// Parse parses source code and returns the syntax tree.
// Caller must call tree.Close() when done
func (lp *LanguageParser) Parse(ctx context.Context, code []byte) (*sitter.Tree, error) {
	tree, err := lp.parser.ParseCtx(ctx, nil, code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse code: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse code")
	}
	return tree, nil
}

// FileMethods is every method declared in one revision of a source file
type FileMethods struct {
	Path     string
	Language string
	Classes  []string
	Methods  []models.MethodFingerprint
}

// ParseSource extracts methods with fingerprints from one revision of a file.
// A file with syntax errors yields a ParseError rather than a partial result.
// sourceRoots are the directories Python module names are relative to.
func ParseSource(ctx context.Context, path, content string, sourceRoots ...string) (*FileMethods, error) {
	lang := git.DetectLanguage(path)
	if lang == "" {
		return nil, errors.ParseError(path, "unsupported file type")
	}

	lp, err := NewLanguageParser(lang)
	if err != nil {
		return nil, errors.ParseError(path, err.Error())
	}
	defer lp.Close()

	code := []byte(content)
	tree, err := lp.Parse(ctx, code)
	if err != nil {
		return nil, errors.ParseError(path, err.Error())
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errors.ParseError(path, fmt.Sprintf("syntax error near line %d", firstErrorLine(root)))
	}

	var decls []declaration
	switch lang {
	case "java":
		decls = extractJava(root, code)
	case "go":
		decls = extractGo(root, code)
	case "python":
		decls = extractPython(root, code, pythonModule(path, sourceRoots))
	}

	result := &FileMethods{Path: path, Language: lang}
	seen := make(map[string]bool)
	for _, d := range decls {
		if d.class != "" && !seen[d.class] {
			seen[d.class] = true
			result.Classes = append(result.Classes, d.class)
		}
		if d.name == "" {
			continue
		}
		result.Methods = append(result.Methods, d.fingerprint(code))
	}
	models.SortMethods(result.Methods)

	return result, nil
}

// firstErrorLine returns the 1-based line of the first ERROR or MISSING node
func firstErrorLine(node *sitter.Node) int {
	if node.IsError() || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.HasError() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}
