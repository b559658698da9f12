package models

import (
	"time"
)

// ChangeKind classifies how a source file changed between two revisions
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeModified ChangeKind = "MODIFIED"
	ChangeDeleted  ChangeKind = "DELETED"
	ChangeRenamed  ChangeKind = "RENAMED"
)

// Valid reports whether k is one of the known change kinds
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeAdded, ChangeModified, ChangeDeleted, ChangeRenamed:
		return true
	}
	return false
}

// SourceFileDiffContext describes one source file touched between the base
// revision and the current state. Content pointers are nil when the file does
// not exist at that side (ADDED has no base, DELETED has no head).
type SourceFileDiffContext struct {
	OldPath       string     `json:"old_path,omitempty"`
	NewPath       string     `json:"new_path,omitempty"`
	ChangeKind    ChangeKind `json:"change_kind"`
	ContentAtBase *string    `json:"-"`
	ContentAtHead *string    `json:"-"`
}

// DiffKey is the identity of a SourceFileDiffContext
type DiffKey struct {
	OldPath    string
	NewPath    string
	ChangeKind ChangeKind
}

// Key returns the identity triple
func (d *SourceFileDiffContext) Key() DiffKey {
	return DiffKey{OldPath: d.OldPath, NewPath: d.NewPath, ChangeKind: d.ChangeKind}
}

// Path returns the most current path of the file
func (d *SourceFileDiffContext) Path() string {
	if d.NewPath != "" {
		return d.NewPath
	}
	return d.OldPath
}

// Paths returns the distinct paths the file occupied on either side
func (d *SourceFileDiffContext) Paths() []string {
	if d.OldPath == "" || d.OldPath == d.NewPath {
		return []string{d.Path()}
	}
	if d.NewPath == "" {
		return []string{d.OldPath}
	}
	return []string{d.OldPath, d.NewPath}
}

// MethodFingerprint identifies one method by a content-derived hash and
// records where it currently lives in its source file. Two fingerprints denote
// the same logical method iff their FingerprintID matches.
type MethodFingerprint struct {
	OwnerClass    string `json:"owner_class"`
	Name          string `json:"name"`
	Descriptor    string `json:"descriptor"`
	FingerprintID string `json:"fingerprint_id,omitempty"`
	LineStart     int    `json:"line_start"`
	LineEnd       int    `json:"line_end"`
}

// SignatureKey returns owner, name and descriptor joined into one key
func (m MethodFingerprint) SignatureKey() string {
	return SignatureKey(m.OwnerClass, m.Name, m.Descriptor)
}

// Unresolved reports whether the method could not be tied to source content.
// Unresolved methods are matched at class level by the selector.
func (m MethodFingerprint) Unresolved() bool {
	return m.FingerprintID == ""
}

// SignatureKey builds the (class, method, descriptor) key
func SignatureKey(class, name, descriptor string) string {
	return class + "#" + name + descriptor
}

// ClassImpactRecord lists the methods of one class a suite invoked
type ClassImpactRecord struct {
	ClassName  string              `json:"class_name"`
	SourcePath string              `json:"source_path,omitempty"`
	Methods    []MethodFingerprint `json:"methods"`
}

// HasUnresolved reports whether any method of the record is unresolved
func (c *ClassImpactRecord) HasUnresolved() bool {
	for _, m := range c.Methods {
		if m.Unresolved() {
			return true
		}
	}
	return false
}

// TestSuiteRecord is the stored dependency record of a single test suite
type TestSuiteRecord struct {
	SuiteName  string              `json:"suite_name"`
	SourcePath string              `json:"source_path"`
	Classes    []ClassImpactRecord `json:"classes"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Class returns the record for className, or nil
func (s *TestSuiteRecord) Class(className string) *ClassImpactRecord {
	for i := range s.Classes {
		if s.Classes[i].ClassName == className {
			return &s.Classes[i]
		}
	}
	return nil
}

// ClassCatalog is the full current method set of a tracked class, invoked or not
type ClassCatalog struct {
	ClassName  string              `json:"class_name"`
	SourcePath string              `json:"source_path"`
	Methods    []MethodFingerprint `json:"methods"`
}

// Invocation is one (class, method) pair observed by the instrumentation
type Invocation struct {
	ClassName  string `json:"class"`
	MethodName string `json:"method"`
	Descriptor string `json:"descriptor,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
}

// CoverageObservation is emitted once or more per executed test suite, by
// every process the suite ran in.
type CoverageObservation struct {
	SuiteName   string       `json:"suite"`
	SuitePath   string       `json:"suite_path,omitempty"`
	ProcessID   string       `json:"process_id,omitempty"`
	Invocations []Invocation `json:"invocations"`
}

// SuiteRef is a test suite known to the current codebase
type SuiteRef struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
}
