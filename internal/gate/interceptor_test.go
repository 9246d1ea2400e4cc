package gate

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/phase"
)

type fakeArtifacts struct{ present map[string]bool }

func (f fakeArtifacts) Exists(role string) bool { return f.present[role] }

func newTestInterceptor(t *testing.T, present map[string]bool) *Interceptor {
	t.Helper()
	set, err := phase.FromConfig(&config.PipelineConfig{
		Phases: []config.PhaseConfig{
			{ID: "design", Classification: "process"},
			{ID: "build", Classification: "implementation", EntryArtifacts: []string{"design_doc"}},
			{ID: "ship", Classification: "process", EntryArtifacts: []string{"source", "test_report"}},
		},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	infer := phase.NewInferencer(set, fakeArtifacts{present: present}, nil, nil)

	ic, err := NewInterceptor([]config.ClassifyConfig{
		{Pattern: "docs/design/**", Phase: "design"},
		{Pattern: "src/**", Phase: "build"},
		{Pattern: "dist/**", Phase: "ship", Actions: []string{"write", "delete"}},
	}, set, infer, nil)
	if err != nil {
		t.Fatalf("NewInterceptor: %v", err)
	}
	return ic
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		present  map[string]bool
		action   Kind
		resource string
		allowed  bool
		phase    string
	}{
		{"unmatched path allowed", nil, KindWrite, "README.md", true, ""},
		{"source write blocked without design", nil, KindWrite, "src/main.go", false, "build"},
		{"source write allowed with design", map[string]bool{"design_doc": true}, KindWrite, "src/pkg/a.go", true, ""},
		{"design docs always open", nil, KindWrite, "docs/design/api.md", true, ""},
		{"ship write blocked", map[string]bool{"design_doc": true}, KindWrite, "dist/release.tar.gz", false, "ship"},
		{"ship execute not covered by rule", nil, KindExecute, "dist/release.tar.gz", true, ""},
		{"windows separators normalized", nil, KindWrite, `src\main.go`, false, "build"},
		{"leading dot-slash stripped", nil, KindDelete, "./src/main.go", false, "build"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := newTestInterceptor(t, tt.present)
			d := ic.Evaluate(tt.action, tt.resource)
			if d.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v (reason %q)", d.Allowed, tt.allowed, d.Reason)
			}
			if !tt.allowed {
				if d.RequiredPhase != tt.phase {
					t.Errorf("RequiredPhase = %q, want %q", d.RequiredPhase, tt.phase)
				}
				if len(d.MissingRoles) == 0 {
					t.Error("Block should name missing roles")
				}
				if d.Reason == "" || !strings.Contains(d.Reason, tt.phase) {
					t.Errorf("Reason %q should mention phase %q", d.Reason, tt.phase)
				}
			}
		})
	}
}

func TestFirstMatchWins(t *testing.T) {
	set, _ := phase.FromConfig(&config.PipelineConfig{
		Phases: []config.PhaseConfig{
			{ID: "design", Classification: "process"},
			{ID: "build", Classification: "implementation", EntryArtifacts: []string{"design_doc"}},
		},
	})
	infer := phase.NewInferencer(set, fakeArtifacts{}, nil, nil)
	ic, err := NewInterceptor([]config.ClassifyConfig{
		{Pattern: "src/gen/**", Phase: "design"},
		{Pattern: "src/**", Phase: "build"},
	}, set, infer, nil)
	if err != nil {
		t.Fatalf("NewInterceptor: %v", err)
	}
	if d := ic.Evaluate(KindWrite, "src/gen/schema.go"); !d.Allowed {
		t.Errorf("earlier rule should win, got block: %s", d.Reason)
	}
	if d := ic.Evaluate(KindWrite, "src/main.go"); d.Allowed {
		t.Error("later rule should still apply to non-overlapping paths")
	}
}

func TestUnknownPhaseRejected(t *testing.T) {
	set, _ := phase.FromConfig(&config.PipelineConfig{
		Phases: []config.PhaseConfig{{ID: "design", Classification: "process"}},
	})
	infer := phase.NewInferencer(set, fakeArtifacts{}, nil, nil)
	_, err := NewInterceptor([]config.ClassifyConfig{{Pattern: "x/**", Phase: "nope"}}, set, infer, nil)
	if err == nil {
		t.Fatal("expected error for unknown phase")
	}
}
