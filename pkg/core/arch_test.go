package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const modulePath = "github.com/leapstack-labs/dbconn"

// packageImports returns the imports of the non-test files in dir, keyed by
// file name.
func packageImports(t *testing.T, dir string) map[string][]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}

	fset := token.NewFileSet()
	out := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}
		for _, imp := range f.Imports {
			out[entry.Name()] = append(out[entry.Name()], strings.Trim(imp.Path.Value, `"`))
		}
	}
	return out
}

// TestCoreImportsOnlyStdlib verifies pkg/core stays a leaf: every adapter and
// the orchestrator share its types, so it must not pull in anything else.
func TestCoreImportsOnlyStdlib(t *testing.T) {
	for file, imports := range packageImports(t, ".") {
		for _, imp := range imports {
			if strings.Contains(imp, ".") {
				t.Errorf("%s imports non-stdlib package: %s", file, imp)
			}
		}
	}
}

// TestLayering verifies the dependency direction between the public packages.
func TestLayering(t *testing.T) {
	adapterDirs, err := filepath.Glob("../adapters/*")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		dirs      []string
		forbidden []string
	}{
		{
			name:      "contract does not know engines or the orchestrator",
			dirs:      []string{"../adapter"},
			forbidden: []string{modulePath + "/pkg/adapters/", modulePath + "/pkg/orchestrator", modulePath + "/pkg/jobs"},
		},
		{
			name:      "engines do not reach up into the orchestrator",
			dirs:      adapterDirs,
			forbidden: []string{modulePath + "/pkg/orchestrator", modulePath + "/pkg/jobs", modulePath + "/pkg/credentials"},
		},
		{
			name:      "job engine is independent of databases",
			dirs:      []string{"../jobs"},
			forbidden: []string{modulePath + "/pkg/"},
		},
		{
			name:      "public packages never import internal ones",
			dirs:      append([]string{".", "../adapter", "../jobs", "../credentials", "../orchestrator"}, adapterDirs...),
			forbidden: []string{modulePath + "/internal/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, dir := range tt.dirs {
				for file, imports := range packageImports(t, dir) {
					for _, imp := range imports {
						for _, bad := range tt.forbidden {
							if strings.HasPrefix(imp, bad) {
								t.Errorf("%s/%s imports %s", dir, file, imp)
							}
						}
					}
				}
			}
		})
	}
}
