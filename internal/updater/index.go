package updater

import (
	"context"
	"path"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/timpact/internal/fingerprint"
	"github.com/rohankatakam/timpact/internal/models"
)

// SourceReader reads the head content of a repository file
type SourceReader interface {
	ReadSource(ctx context.Context, path string) (string, error)
}

// SourceReaderFunc adapts a function to SourceReader
type SourceReaderFunc func(ctx context.Context, path string) (string, error)

// ReadSource implements SourceReader
func (f SourceReaderFunc) ReadSource(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Parser turns file content into methods
type Parser interface {
	ParseFile(ctx context.Context, path, content string) (*fingerprint.FileMethods, error)
}

// ClassIndex maps class names to their full method set at head. It is
// seeded from the files touched this session and grows by parsing further
// files on demand.
type ClassIndex struct {
	parser     Parser
	reader     SourceReader
	sourceDirs []string
	logger     logrus.FieldLogger

	classes map[string]*models.ClassCatalog
	// per class, the methods each parsed file declares for it
	declared map[string]map[string][]models.MethodFingerprint
	// per file, the classes it declared when parsed
	fileClasses map[string][]string
	// paths whose head content is reflected in classes (or known absent)
	settled map[string]bool
	// paths touched by the change set
	touched map[string]bool
	// class names that could not be located
	missing map[string]bool
}

// NewClassIndex creates an empty index. reader may be nil, in which case
// only seeded classes are known.
func NewClassIndex(parser Parser, reader SourceReader, sourceDirs []string, logger logrus.FieldLogger) *ClassIndex {
	return &ClassIndex{
		parser:      parser,
		reader:      reader,
		sourceDirs:  sourceDirs,
		logger:      logger,
		classes:     make(map[string]*models.ClassCatalog),
		declared:    make(map[string]map[string][]models.MethodFingerprint),
		fileClasses: make(map[string][]string),
		settled:     make(map[string]bool),
		touched:     make(map[string]bool),
		missing:     make(map[string]bool),
	}
}

// AddDeltas seeds the index with the head method sets of the change set
func (x *ClassIndex) AddDeltas(deltas []*fingerprint.FileDelta) {
	for _, d := range deltas {
		if d == nil || d.Diff == nil {
			continue
		}
		for _, p := range d.Diff.Paths() {
			x.touched[p] = true
			x.settled[p] = true
		}
		if d.Diff.ChangeKind == models.ChangeDeleted || (d.Current == nil && d.HeadClasses == nil) {
			continue
		}
		x.addFile(d.Diff.Path(), d.HeadClasses, d.Current)
	}
}

// AddFile registers every class of a parsed file
func (x *ClassIndex) AddFile(fm *fingerprint.FileMethods) {
	x.settled[fm.Path] = true
	x.addFile(fm.Path, fm.Classes, fm.Methods)
}

// addFile records what filePath declares at head, replacing whatever an
// earlier parse of the same file contributed. A class declared by several
// files (a Go package) keeps the methods of all of them.
func (x *ClassIndex) addFile(filePath string, classes []string, methods []models.MethodFingerprint) {
	byClass := make(map[string][]models.MethodFingerprint, len(classes))
	for _, c := range classes {
		byClass[c] = []models.MethodFingerprint{}
	}
	for _, m := range methods {
		byClass[m.OwnerClass] = append(byClass[m.OwnerClass], m)
	}

	affected := make(map[string]bool, len(byClass))
	for _, c := range x.fileClasses[filePath] {
		delete(x.declared[c], filePath)
		affected[c] = true
	}

	names := make([]string, 0, len(byClass))
	for c, list := range byClass {
		if x.declared[c] == nil {
			x.declared[c] = make(map[string][]models.MethodFingerprint)
		}
		x.declared[c][filePath] = list
		names = append(names, c)
		affected[c] = true
		delete(x.missing, c)
	}
	x.fileClasses[filePath] = names

	for c := range affected {
		x.rebuild(c)
	}
}

// rebuild merges the per-file declarations of className into its catalog.
// The catalog keeps its source path while that file still declares the class.
func (x *ClassIndex) rebuild(className string) {
	files := x.declared[className]
	if len(files) == 0 {
		delete(x.declared, className)
		delete(x.classes, className)
		return
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	catalog := x.classes[className]
	if catalog == nil {
		catalog = &models.ClassCatalog{ClassName: className}
		x.classes[className] = catalog
	}
	if _, ok := files[catalog.SourcePath]; !ok {
		catalog.SourcePath = paths[0]
	}
	catalog.Methods = []models.MethodFingerprint{}
	for _, p := range paths {
		catalog.Methods = append(catalog.Methods, files[p]...)
	}
}

// Touched reports whether filePath changed in this session
func (x *ClassIndex) Touched(filePath string) bool {
	return x.touched[filePath]
}

// Known returns the catalog of className if its file has been parsed
func (x *ClassIndex) Known(className string) *models.ClassCatalog {
	return x.classes[className]
}

// Settled reports whether the head state of filePath is already reflected
func (x *ClassIndex) Settled(filePath string) bool {
	return x.settled[filePath]
}

// Lookup returns the catalog of className, parsing candidate files when it is
// not yet known. hints are paths the class was last seen at. Returns nil when
// the class cannot be found at head.
func (x *ClassIndex) Lookup(ctx context.Context, className string, hints ...string) *models.ClassCatalog {
	if c := x.classes[className]; c != nil {
		return c
	}
	if x.missing[className] || x.reader == nil {
		return nil
	}

	for _, candidate := range x.candidates(className, hints) {
		if x.settled[candidate] {
			continue
		}
		x.settled[candidate] = true

		content, err := x.reader.ReadSource(ctx, candidate)
		if err != nil {
			continue
		}
		fm, err := x.parser.ParseFile(ctx, candidate, content)
		if err != nil {
			x.logger.WithError(err).WithField("path", candidate).Warn("could not parse invoked class source")
			continue
		}
		x.addFile(candidate, fm.Classes, fm.Methods)
		if c := x.classes[className]; c != nil {
			return c
		}
	}

	x.missing[className] = true
	return nil
}

// candidates lists the files that may declare className, most likely first
func (x *ClassIndex) candidates(className string, hints []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, h := range hints {
		add(h)
	}

	roots := append([]string{""}, x.sourceDirs...)
	for _, suffix := range fingerprint.SourceSuffixes(className) {
		for _, root := range roots {
			add(path.Join(root, suffix))
		}
	}
	return out
}
