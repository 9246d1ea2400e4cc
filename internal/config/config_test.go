package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Project: ProjectConfig{Name: "p", Root: "/proj", StateDir: ".gatehouse"},
		Router:  RouterConfig{ConfidenceFloor: 0.05},
		Dispatch: DispatchConfig{
			Timeout: Duration(time.Minute),
		},
		Pipeline: PipelineConfig{
			Phases: []PhaseConfig{
				{ID: "design", Name: "Design", Classification: "process"},
				{ID: "build", Name: "Build", Classification: "implementation", EntryArtifacts: []string{"design_doc"}},
			},
			Artifacts: []ArtifactConfig{
				{Role: "design_doc", Locator: "docs/design.md"},
				{Role: "source", Locator: "src/**"},
			},
			Checklist: []ChecklistConfig{
				{ID: "design-doc-written", Phase: "design", Required: true, Evidence: EvidenceConfig{Kind: "artifact", Role: "design_doc"}},
				{ID: "design-approved", Phase: "design", Required: true, Evidence: EvidenceConfig{Kind: "approval", Key: "design"}},
			},
			Triggers: []TriggerConfig{
				{Phase: "design", Keywords: []string{"design"}, Weight: 1.0},
			},
			Classification: []ClassifyConfig{
				{Pattern: "src/**", Phase: "build"},
			},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing root", func(c *Config) { c.Project.Root = "" }, "project.root"},
		{"floor out of range", func(c *Config) { c.Router.ConfidenceFloor = 1.5 }, "confidence_floor"},
		{"zero timeout", func(c *Config) { c.Dispatch.Timeout = 0 }, "dispatch.timeout"},
		{"no phases", func(c *Config) { c.Pipeline.Phases = nil }, "at least one phase"},
		{"duplicate phase", func(c *Config) {
			c.Pipeline.Phases = append(c.Pipeline.Phases, PhaseConfig{ID: "design", Classification: "process"})
		}, "duplicate phase"},
		{"bad classification", func(c *Config) { c.Pipeline.Phases[0].Classification = "misc" }, "classification"},
		{"unknown entry role", func(c *Config) { c.Pipeline.Phases[1].EntryArtifacts = []string{"nope"} }, "unknown entry artifact"},
		{"duplicate role", func(c *Config) {
			c.Pipeline.Artifacts = append(c.Pipeline.Artifacts, ArtifactConfig{Role: "source", Locator: "lib/**"})
		}, "duplicate artifact role"},
		{"checklist unknown phase", func(c *Config) { c.Pipeline.Checklist[0].Phase = "nope" }, "unknown phase"},
		{"checklist unknown evidence kind", func(c *Config) { c.Pipeline.Checklist[0].Evidence.Kind = "vibes" }, "unknown evidence kind"},
		{"approval without key", func(c *Config) { c.Pipeline.Checklist[1].Evidence.Key = "" }, "requires a key"},
		{"trigger unknown phase", func(c *Config) { c.Pipeline.Triggers[0].Phase = "nope" }, "unknown phase"},
		{"trigger empty keywords", func(c *Config) { c.Pipeline.Triggers[0].Keywords = nil }, "keywords"},
		{"trigger bad weight", func(c *Config) { c.Pipeline.Triggers[0].Weight = 2 }, "weight"},
		{"classification unknown phase", func(c *Config) { c.Pipeline.Classification[0].Phase = "nope" }, "unknown phase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("duration = %v, want 90s", d.Duration())
	}

	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText accepted negative duration")
	}
	if err := d.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText accepted garbage")
	}
}
