package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestRegistry(t *testing.T, root string) *Registry {
	t.Helper()
	r, err := NewRegistry(root, nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())

	tests := []struct {
		name    string
		role    string
		locator string
		wantErr bool
	}{
		{"plain path", "design_doc", "docs/design.md", false},
		{"glob", "source", "src/**", false},
		{"empty role", "", "docs/design.md", true},
		{"absolute", "bad", "/etc/passwd", true},
		{"traversal", "bad", "../outside.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.role, tt.locator)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register(%q, %q) error = %v, wantErr %v", tt.role, tt.locator, err, tt.wantErr)
			}
		})
	}
}

func TestExistsReflectsBackingStore(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(t, root)
	if err := r.Register("design_doc", "docs/design.md"); err != nil {
		t.Fatal(err)
	}

	if r.Exists("design_doc") {
		t.Error("Exists true before file created")
	}

	writeFile(t, root, "docs/design.md")
	if !r.Exists("design_doc") {
		t.Error("Exists false after file created")
	}

	if err := os.Remove(filepath.Join(root, "docs", "design.md")); err != nil {
		t.Fatal(err)
	}
	if r.Exists("design_doc") {
		t.Error("Exists true after file removed; registry must not cache")
	}
}

func TestResolveGlob(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(t, root)
	if err := r.Register("source", "src/**"); err != nil {
		t.Fatal(err)
	}

	if r.Exists("source") {
		t.Error("glob role exists with no files")
	}

	writeFile(t, root, "src/token/token.go")
	writeFile(t, root, "src/main.go")

	res, err := r.Resolve("source")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Paths) != 2 {
		t.Fatalf("Resolve returned %d paths, want 2: %v", len(res.Paths), res.Paths)
	}
	if res.Paths[0] != "src/main.go" {
		t.Errorf("paths not sorted: %v", res.Paths)
	}
}

func TestResolveUnknownRole(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	if _, err := r.Resolve("ghost"); err == nil {
		t.Fatal("Resolve succeeded for unregistered role")
	}
}

func TestScanReportsConflicts(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(t, root)
	if err := r.Register("design_doc", "docs/design.md"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("user_docs", "docs/design.md"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("release_notes", "CHANGELOG.md"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "docs/design.md")
	writeFile(t, root, "CHANGELOG.md")

	present, conflicts := r.Scan()

	if len(conflicts) != 1 {
		t.Fatalf("Scan returned %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.RoleA != "design_doc" || c.RoleB != "user_docs" {
		t.Errorf("conflict pair = (%s, %s)", c.RoleA, c.RoleB)
	}

	// The conflict is scoped to the two colliding roles.
	if _, ok := present["design_doc"]; ok {
		t.Error("conflicting role design_doc still present")
	}
	if _, ok := present["user_docs"]; ok {
		t.Error("conflicting role user_docs still present")
	}
	if _, ok := present["release_notes"]; !ok {
		t.Error("unaffected role release_notes dropped by conflict")
	}
}

func TestScanEmptyProject(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	if err := r.Register("design_doc", "docs/design.md"); err != nil {
		t.Fatal(err)
	}

	present, conflicts := r.Scan()
	if len(present) != 0 || len(conflicts) != 0 {
		t.Errorf("empty project scan = (%v, %v), want empty", present, conflicts)
	}
}

func TestFreshWithoutGitDegradesToExists(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(t, root)
	if err := r.Register("test_report", "reports/test-report.md"); err != nil {
		t.Fatal(err)
	}

	if r.Fresh("test_report") {
		t.Error("Fresh true for missing artifact")
	}
	writeFile(t, root, "reports/test-report.md")
	if !r.Fresh("test_report") {
		t.Error("Fresh false without git history; should degrade to existence")
	}
}
