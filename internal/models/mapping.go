package models

import (
	"sort"
	"time"
)

// StoredMapping is the persisted impact mapping of one branch. An empty
// BaseRevision means no history exists (cold start).
type StoredMapping struct {
	Branch       string                      `json:"branch"`
	BaseRevision string                      `json:"base_revision,omitempty"`
	Suites       map[string]*TestSuiteRecord `json:"suites"`
	Classes      map[string]*ClassCatalog    `json:"classes"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// NewStoredMapping returns an empty, cold mapping for branch
func NewStoredMapping(branch string) *StoredMapping {
	return &StoredMapping{
		Branch:  branch,
		Suites:  make(map[string]*TestSuiteRecord),
		Classes: make(map[string]*ClassCatalog),
	}
}

// IsCold reports whether the mapping carries no base revision
func (m *StoredMapping) IsCold() bool {
	return m == nil || m.BaseRevision == ""
}

// Suite returns the record of suiteName, or nil
func (m *StoredMapping) Suite(suiteName string) *TestSuiteRecord {
	if m == nil {
		return nil
	}
	return m.Suites[suiteName]
}

// SuiteNames returns the stored suite names in sorted order
func (m *StoredMapping) SuiteNames() []string {
	names := make([]string, 0, len(m.Suites))
	for name := range m.Suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Walk visits every stored (suite, class, method) triple in deterministic order.
// Suites without class records are visited once with nil class and method.
func (m *StoredMapping) Walk(fn func(suite *TestSuiteRecord, class *ClassImpactRecord, method *MethodFingerprint)) {
	for _, name := range m.SuiteNames() {
		suite := m.Suites[name]
		if len(suite.Classes) == 0 {
			fn(suite, nil, nil)
			continue
		}
		for ci := range suite.Classes {
			class := &suite.Classes[ci]
			if len(class.Methods) == 0 {
				fn(suite, class, nil)
				continue
			}
			for mi := range class.Methods {
				fn(suite, class, &class.Methods[mi])
			}
		}
	}
}

// Clone returns a deep copy that shares no memory with m
func (m *StoredMapping) Clone() *StoredMapping {
	if m == nil {
		return nil
	}
	out := &StoredMapping{
		Branch:       m.Branch,
		BaseRevision: m.BaseRevision,
		UpdatedAt:    m.UpdatedAt,
		Suites:       make(map[string]*TestSuiteRecord, len(m.Suites)),
		Classes:      make(map[string]*ClassCatalog, len(m.Classes)),
	}
	for name, suite := range m.Suites {
		cp := *suite
		cp.Classes = make([]ClassImpactRecord, len(suite.Classes))
		for i, class := range suite.Classes {
			cp.Classes[i] = class
			cp.Classes[i].Methods = append([]MethodFingerprint(nil), class.Methods...)
		}
		out.Suites[name] = &cp
	}
	for name, catalog := range m.Classes {
		cp := *catalog
		cp.Methods = append([]MethodFingerprint(nil), catalog.Methods...)
		out.Classes[name] = &cp
	}
	return out
}

// SortClassRecords orders class records by name and methods by line, then signature
func SortClassRecords(classes []ClassImpactRecord) {
	sort.Slice(classes, func(i, j int) bool { return classes[i].ClassName < classes[j].ClassName })
	for i := range classes {
		SortMethods(classes[i].Methods)
	}
}

// SortMethods orders methods by start line, then by signature key
func SortMethods(methods []MethodFingerprint) {
	sort.SliceStable(methods, func(i, j int) bool {
		if methods[i].LineStart != methods[j].LineStart {
			return methods[i].LineStart < methods[j].LineStart
		}
		return methods[i].SignatureKey() < methods[j].SignatureKey()
	})
}
