package selector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/timpact/internal/fingerprint"
	"github.com/rohankatakam/timpact/internal/logging"
	"github.com/rohankatakam/timpact/internal/models"
)

const (
	orderPath  = "src/main/java/com/acme/OrderService.java"
	helperPath = "src/main/java/com/acme/Helper.java"
)

const orderBase = `package com.acme;

public class OrderService {
    public int calcTotal(int a, int b) {
        return a + b;
    }

    public boolean validate(int total) {
        return total > 0;
    }
}
`

const orderHead = `package com.acme;

public class OrderService {
    public int calcTotal(int a, int b) {
        int sum = a + b;
        return sum;
    }

    public boolean validate(int total) {
        return total > 0;
    }
}
`

const helperSrc = `package com.acme;

public class Helper {
    static String pad(String s) {
        return " " + s;
    }
}
`

func str(s string) *string { return &s }

func parse(t *testing.T, path, src string) map[string]models.MethodFingerprint {
	t.Helper()
	fm, err := fingerprint.ParseSource(context.Background(), path, src)
	require.NoError(t, err)
	out := make(map[string]models.MethodFingerprint)
	for _, m := range fm.Methods {
		out[m.Name] = m
	}
	return out
}

func resolve(t *testing.T, diffs ...*models.SourceFileDiffContext) []*fingerprint.FileDelta {
	t.Helper()
	r := fingerprint.NewResolver(2, nil, logging.Discard(), nil)
	deltas, err := r.ResolveAll(context.Background(), diffs)
	require.NoError(t, err)
	return deltas
}

// baseMapping records OrderTest -> OrderService.calcTotal, HelperTest ->
// Helper.pad and MathTest -> OrderService.validate
func baseMapping(t *testing.T) *models.StoredMapping {
	order := parse(t, orderPath, orderBase)
	helper := parse(t, helperPath, helperSrc)

	m := models.NewStoredMapping("main")
	m.BaseRevision = "abc123"
	m.Suites["com.acme.OrderTest"] = &models.TestSuiteRecord{
		SuiteName:  "com.acme.OrderTest",
		SourcePath: "src/test/java/com/acme/OrderTest.java",
		Classes: []models.ClassImpactRecord{{
			ClassName:  "com.acme.OrderService",
			SourcePath: orderPath,
			Methods:    []models.MethodFingerprint{order["calcTotal"]},
		}},
	}
	m.Suites["com.acme.MathTest"] = &models.TestSuiteRecord{
		SuiteName:  "com.acme.MathTest",
		SourcePath: "src/test/java/com/acme/MathTest.java",
		Classes: []models.ClassImpactRecord{{
			ClassName:  "com.acme.OrderService",
			SourcePath: orderPath,
			Methods:    []models.MethodFingerprint{order["validate"]},
		}},
	}
	m.Suites["com.acme.HelperTest"] = &models.TestSuiteRecord{
		SuiteName:  "com.acme.HelperTest",
		SourcePath: "src/test/java/com/acme/HelperTest.java",
		Classes: []models.ClassImpactRecord{{
			ClassName:  "com.acme.Helper",
			SourcePath: helperPath,
			Methods:    []models.MethodFingerprint{helper["pad"]},
		}},
	}
	return m
}

func knownSuites() []models.SuiteRef {
	return []models.SuiteRef{
		{Name: "com.acme.OrderTest", SourcePath: "src/test/java/com/acme/OrderTest.java"},
		{Name: "com.acme.MathTest", SourcePath: "src/test/java/com/acme/MathTest.java"},
		{Name: "com.acme.HelperTest", SourcePath: "src/test/java/com/acme/HelperTest.java"},
	}
}

func TestSelectColdStartRunsEverything(t *testing.T) {
	for name, mapping := range map[string]*models.StoredMapping{
		"nil mapping":   nil,
		"empty mapping": models.NewStoredMapping("main"),
	} {
		t.Run(name, func(t *testing.T) {
			sel := Select(Input{Mapping: mapping, KnownSuites: knownSuites()})
			assert.Equal(t, []string{"com.acme.HelperTest", "com.acme.MathTest", "com.acme.OrderTest"}, sel.Run)
			assert.Empty(t, sel.Skip)
			for _, s := range sel.Run {
				assert.Equal(t, ReasonColdStart, sel.Reasons[s])
			}
		})
	}
}

func TestSelectForceFull(t *testing.T) {
	sel := Select(Input{Mapping: baseMapping(t), KnownSuites: knownSuites(), ForceFull: true})
	assert.Len(t, sel.Run, 3)
	assert.Empty(t, sel.Skip)
	assert.Equal(t, ReasonForced, sel.Reasons["com.acme.OrderTest"])
}

func TestSelectNoChangesSkipsEverything(t *testing.T) {
	sel := Select(Input{Mapping: baseMapping(t), KnownSuites: knownSuites()})
	assert.Empty(t, sel.Run)
	assert.Equal(t, []string{"com.acme.HelperTest", "com.acme.MathTest", "com.acme.OrderTest"}, sel.Skip)
}

func TestSelectChangedMethod(t *testing.T) {
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(orderBase), ContentAtHead: str(orderHead),
	})

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.OrderTest"}, sel.Run)
	assert.Equal(t, ReasonMethodChanged, sel.Reasons["com.acme.OrderTest"])
	assert.Equal(t, []string{"com.acme.HelperTest", "com.acme.MathTest"}, sel.Skip)
	assert.True(t, sel.ShouldRun("com.acme.OrderTest"))
	assert.False(t, sel.ShouldRun("com.acme.MathTest"))
}

func TestSelectIsIdempotent(t *testing.T) {
	mapping := baseMapping(t)
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(orderBase), ContentAtHead: str(orderHead),
	})
	in := Input{Mapping: mapping, Deltas: deltas, KnownSuites: knownSuites()}

	first := Select(in)
	second := Select(in)
	assert.Equal(t, first, second)
}

func TestSelectReformattingSkips(t *testing.T) {
	reformatted := strings.ReplaceAll(orderBase, "        return total > 0;", "        return total\n            > 0;")
	reformatted = "\n\n" + reformatted
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(orderBase), ContentAtHead: str(reformatted),
	})

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Empty(t, sel.Run)
}

func TestSelectDeletedFile(t *testing.T) {
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: helperPath, ChangeKind: models.ChangeDeleted, ContentAtBase: str(helperSrc),
	})

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.HelperTest"}, sel.Run)
	assert.Equal(t, ReasonClassDeleted, sel.Reasons["com.acme.HelperTest"])
}

func TestSelectRenameIsNotAssumedSafe(t *testing.T) {
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: helperPath, NewPath: "src/main/java/com/acme/Helper2.java", ChangeKind: models.ChangeRenamed,
		ContentAtBase: str(helperSrc), ContentAtHead: str(helperSrc),
	})

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: append(knownSuites(),
		models.SuiteRef{Name: "com.acme.Helper2Test", SourcePath: "src/test/java/com/acme/Helper2Test.java"})})

	assert.Equal(t, []string{"com.acme.Helper2Test", "com.acme.HelperTest"}, sel.Run)
	assert.Equal(t, ReasonClassDeleted, sel.Reasons["com.acme.HelperTest"])
	assert.Equal(t, ReasonNewSuite, sel.Reasons["com.acme.Helper2Test"])
}

func TestSelectUnparseableFileRunsReferencingSuites(t *testing.T) {
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(orderBase), ContentAtHead: str("package com.acme; public class OrderService {"),
	})

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.MathTest", "com.acme.OrderTest"}, sel.Run)
	assert.Equal(t, ReasonWholeFile, sel.Reasons["com.acme.MathTest"])
}

func TestSelectMissingContentRunsReferencingSuites(t *testing.T) {
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: helperPath, NewPath: helperPath, ChangeKind: models.ChangeModified,
		ContentAtHead: str(helperSrc),
	})

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.HelperTest"}, sel.Run)
}

func TestSelectSuiteSourceChanged(t *testing.T) {
	deltas := []*fingerprint.FileDelta{{
		Diff: &models.SourceFileDiffContext{
			OldPath: "src/test/java/com/acme/MathTest.java", NewPath: "src/test/java/com/acme/MathTest.java",
			ChangeKind: models.ChangeModified,
		},
	}}

	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.MathTest"}, sel.Run)
	assert.Equal(t, ReasonSuiteChanged, sel.Reasons["com.acme.MathTest"])
}

func TestSelectNewSuite(t *testing.T) {
	suites := append(knownSuites(), models.SuiteRef{Name: "com.acme.NewTest", SourcePath: "src/test/java/com/acme/NewTest.java"})
	sel := Select(Input{Mapping: baseMapping(t), KnownSuites: suites})
	assert.Equal(t, []string{"com.acme.NewTest"}, sel.Run)
	assert.Equal(t, ReasonNewSuite, sel.Reasons["com.acme.NewTest"])
}

func TestSelectAddedFileAffectsNothing(t *testing.T) {
	deltas := resolve(t, &models.SourceFileDiffContext{
		NewPath: "src/main/java/com/acme/Fresh.java", ChangeKind: models.ChangeAdded,
		ContentAtHead: str("package com.acme;\n\npublic class Fresh { void go() {} }\n"),
	})
	sel := Select(Input{Mapping: baseMapping(t), Deltas: deltas, KnownSuites: knownSuites()})
	assert.Empty(t, sel.Run)
}

func TestSelectUnresolvedMethodsMatchAtClassLevel(t *testing.T) {
	mapping := baseMapping(t)
	mapping.Suites["com.acme.HelperTest"].Classes[0].Methods = []models.MethodFingerprint{
		{OwnerClass: "com.acme.Helper", Name: "pad", Descriptor: "(String)"},
	}

	changed := strings.Replace(helperSrc, `" " + s`, `"  " + s`, 1)
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: helperPath, NewPath: helperPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(helperSrc), ContentAtHead: str(changed),
	})

	sel := Select(Input{Mapping: mapping, Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.HelperTest"}, sel.Run)
	assert.Equal(t, ReasonUnresolved, sel.Reasons["com.acme.HelperTest"])
}

func TestSelectStaleFingerprint(t *testing.T) {
	mapping := baseMapping(t)
	mapping.Suites["com.acme.MathTest"].Classes[0].Methods[0].FingerprintID = "ffffffffffffffff"

	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(orderBase), ContentAtHead: str(orderHead),
	})

	sel := Select(Input{Mapping: mapping, Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, ReasonStaleFingerprint, sel.Reasons["com.acme.MathTest"])
}

func TestSelectSoundness(t *testing.T) {
	// every suite referencing an old fingerprint of a changed method runs
	mapping := baseMapping(t)
	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(orderBase), ContentAtHead: str(orderHead),
	})
	sel := Select(Input{Mapping: mapping, Deltas: deltas, KnownSuites: knownSuites()})

	impacted := make(map[string]bool)
	for _, d := range deltas {
		for _, id := range d.ImpactedFingerprints() {
			impacted[id] = true
		}
	}
	require.NotEmpty(t, impacted)

	mapping.Walk(func(suite *models.TestSuiteRecord, _ *models.ClassImpactRecord, m *models.MethodFingerprint) {
		if m != nil && impacted[m.FingerprintID] {
			assert.True(t, sel.ShouldRun(suite.SuiteName), suite.SuiteName)
		}
	})
}

func TestSelectPathlessClassMatchedByConvention(t *testing.T) {
	mapping := baseMapping(t)
	mapping.Suites["com.acme.HelperTest"].Classes[0].SourcePath = ""

	deltas := []*fingerprint.FileDelta{{
		Diff:      &models.SourceFileDiffContext{OldPath: helperPath, ChangeKind: models.ChangeDeleted},
		WholeFile: true,
	}}
	sel := Select(Input{Mapping: mapping, Deltas: deltas, KnownSuites: knownSuites()})
	assert.Equal(t, []string{"com.acme.HelperTest"}, sel.Run)
}

func TestSelectDuplicateKnownSuites(t *testing.T) {
	suites := append(knownSuites(), knownSuites()...)
	sel := Select(Input{Mapping: nil, KnownSuites: suites})
	assert.Len(t, sel.Run, 3)
}

func TestSelectModuleLevelStateChange(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		class  string
		method string
		base   string
		change [2]string
	}{
		{
			name:   "go package const",
			path:   "calc/calc.go",
			class:  "calc",
			method: "Apply",
			base: `package calc

const rate = 1

func Apply(x int) int {
	return x * rate
}
`,
			change: [2]string{"const rate = 1", "const rate = 2"},
		},
		{
			name:   "python module constant",
			path:   "calc.py",
			class:  "calc",
			method: "apply",
			base: `RATE = 1


def apply(x):
    return x * RATE
`,
			change: [2]string{"RATE = 1", "RATE = 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			methods := parse(t, tt.path, tt.base)
			mapping := models.NewStoredMapping("main")
			mapping.BaseRevision = "abc123"
			mapping.Suites["T"] = &models.TestSuiteRecord{
				SuiteName:  "T",
				SourcePath: "tests/t_test",
				Classes: []models.ClassImpactRecord{{
					ClassName:  tt.class,
					SourcePath: tt.path,
					Methods:    []models.MethodFingerprint{methods[tt.method], methods[fingerprint.ClassInitName]},
				}},
			}

			head := strings.Replace(tt.base, tt.change[0], tt.change[1], 1)
			deltas := resolve(t, &models.SourceFileDiffContext{
				OldPath: tt.path, NewPath: tt.path, ChangeKind: models.ChangeModified,
				ContentAtBase: str(tt.base), ContentAtHead: str(head),
			})

			sel := Select(Input{Mapping: mapping, Deltas: deltas, KnownSuites: []models.SuiteRef{{Name: "T", SourcePath: "tests/t_test"}}})
			assert.Equal(t, []string{"T"}, sel.Run)
			assert.Equal(t, ReasonMethodChanged, sel.Reasons["T"])
		})
	}
}

func TestSelectPathlessPythonClassMatchedByConvention(t *testing.T) {
	const calcPath = "lib/pkg/calc.py"
	base := `class Calc:
    def total(self, a, b):
        return a + b
`
	mapping := models.NewStoredMapping("main")
	mapping.BaseRevision = "abc123"
	mapping.Suites["tests.test_calc"] = &models.TestSuiteRecord{
		SuiteName:  "tests.test_calc",
		SourcePath: "tests/test_calc.py",
		Classes: []models.ClassImpactRecord{{
			ClassName: "pkg.calc.Calc",
			Methods:   []models.MethodFingerprint{{OwnerClass: "pkg.calc.Calc", Name: "total"}},
		}},
	}

	deltas := resolve(t, &models.SourceFileDiffContext{
		OldPath: calcPath, NewPath: calcPath, ChangeKind: models.ChangeModified,
		ContentAtBase: str(base), ContentAtHead: str(strings.Replace(base, "a + b", "a - b", 1)),
	})
	sel := Select(Input{Mapping: mapping, Deltas: deltas, KnownSuites: []models.SuiteRef{
		{Name: "tests.test_calc", SourcePath: "tests/test_calc.py"},
	}})
	assert.Equal(t, []string{"tests.test_calc"}, sel.Run)
	assert.Equal(t, ReasonUnresolved, sel.Reasons["tests.test_calc"])
}
