// Package config provides configuration loading for gatehouse.
//
// The pipeline a project is governed by (phases, artifact roles, checklist
// items, trigger patterns, severity policy, classification rules) is
// configuration, not code: gatehouse ships a default pipeline as an embedded
// rule pack and lets projects override any of it from gatehouse.yaml.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Project   ProjectConfig   `koanf:"project"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	HTTP      HTTPConfig      `koanf:"http"`
	Router    RouterConfig    `koanf:"router"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
}

// ProjectConfig identifies the governed project.
type ProjectConfig struct {
	// Name is the project identifier used in logs and telemetry.
	Name string `koanf:"name"`

	// Root is the project root directory all locators resolve against.
	Root string `koanf:"root"`

	// StateDir holds durable engine state (approvals, findings), relative
	// to Root unless absolute.
	StateDir string `koanf:"state_dir"`

	// SourceRoots are the directories whose last change anchors artifact
	// freshness checks.
	SourceRoots []string `koanf:"source_roots"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig controls OTLP export.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// HTTPConfig controls the status API server.
type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// RouterConfig tunes intent routing.
type RouterConfig struct {
	// ConfidenceFloor is the minimum score a phase must reach to be
	// considered a routing candidate. Deliberately low: an unnecessary
	// gate check is cheap, a missed one is not.
	ConfidenceFloor float64 `koanf:"confidence_floor"`
}

// DispatchConfig tunes analyzer dispatch.
type DispatchConfig struct {
	// Timeout bounds a single analyzer run.
	Timeout Duration `koanf:"timeout"`
}

// PipelineConfig is the static rule pack: phases, artifacts, checklist,
// triggers, severity policy, and resource classification.
type PipelineConfig struct {
	Phases         []PhaseConfig      `koanf:"phases"`
	Artifacts      []ArtifactConfig   `koanf:"artifacts"`
	Checklist      []ChecklistConfig  `koanf:"checklist"`
	Triggers       []TriggerConfig    `koanf:"triggers"`
	SeverityPolicy map[string][]string `koanf:"severity_policy"`
	Classification []ClassifyConfig   `koanf:"classification"`
	Analyzers      []AnalyzerConfig   `koanf:"analyzers"`
}

// PhaseConfig declares one phase. Declaration order is significant: it is
// both the execution order and the routing tie-break order.
type PhaseConfig struct {
	ID             string   `koanf:"id"`
	Name           string   `koanf:"name"`
	Classification string   `koanf:"classification"` // "process" or "implementation"
	EntryArtifacts []string `koanf:"entry_artifacts"`
}

// ArtifactConfig maps a logical artifact role to a locator.
// Locator is a path or glob relative to the project root.
type ArtifactConfig struct {
	Role    string `koanf:"role"`
	Locator string `koanf:"locator"`
}

// ChecklistConfig declares one checklist item.
type ChecklistConfig struct {
	ID       string         `koanf:"id"`
	Phase    string         `koanf:"phase"`
	Required bool           `koanf:"required"`
	Evidence EvidenceConfig `koanf:"evidence"`
}

// EvidenceConfig declares the evidence predicate backing a checklist item.
type EvidenceConfig struct {
	// Kind is one of: artifact, fresh_artifact, approval,
	// no_blocking_findings.
	Kind string `koanf:"kind"`

	// Role names the artifact role for artifact/fresh_artifact kinds.
	Role string `koanf:"role"`

	// Key names the approval flag for the approval kind.
	Key string `koanf:"key"`

	// MinSeverity is the lowest severity that blocks for the
	// no_blocking_findings kind.
	MinSeverity string `koanf:"min_severity"`
}

// TriggerConfig declares an intent trigger pattern for a phase.
type TriggerConfig struct {
	Phase    string   `koanf:"phase"`
	Keywords []string `koanf:"keywords"`
	Weight   float64  `koanf:"weight"`
}

// ClassifyConfig maps a resource path pattern to its owning phase for the
// gate interceptor. Rules are evaluated in declaration order, first match
// wins.
type ClassifyConfig struct {
	Pattern string   `koanf:"pattern"`
	Phase   string   `koanf:"phase"`
	Actions []string `koanf:"actions"` // empty means all action kinds
}

// AnalyzerConfig binds an analyzer to a phase with its context bundle.
type AnalyzerConfig struct {
	Phase    string   `koanf:"phase"`
	Analyzer string   `koanf:"analyzer"`
	Roles    []string `koanf:"roles"`
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Project.Root == "" {
		return fmt.Errorf("project.root is required")
	}
	if c.Project.StateDir == "" {
		return fmt.Errorf("project.state_dir is required")
	}
	if c.Router.ConfidenceFloor < 0 || c.Router.ConfidenceFloor > 1 {
		return fmt.Errorf("router.confidence_floor must be in [0,1], got %v", c.Router.ConfidenceFloor)
	}
	if c.Dispatch.Timeout.Duration() <= 0 {
		return fmt.Errorf("dispatch.timeout must be > 0")
	}
	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		return fmt.Errorf("http.port must be in [1,65535], got %d", c.HTTP.Port)
	}
	return c.Pipeline.Validate()
}

// Validate checks the pipeline rule pack for referential integrity.
func (p *PipelineConfig) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("pipeline.phases must declare at least one phase")
	}

	phases := make(map[string]bool, len(p.Phases))
	for _, ph := range p.Phases {
		if ph.ID == "" {
			return fmt.Errorf("pipeline phase with empty id")
		}
		if phases[ph.ID] {
			return fmt.Errorf("duplicate phase id %q", ph.ID)
		}
		if ph.Classification != "process" && ph.Classification != "implementation" {
			return fmt.Errorf("phase %q: classification must be process or implementation, got %q", ph.ID, ph.Classification)
		}
		phases[ph.ID] = true
	}

	roles := make(map[string]bool, len(p.Artifacts))
	for _, a := range p.Artifacts {
		if a.Role == "" || a.Locator == "" {
			return fmt.Errorf("artifact entries require role and locator")
		}
		if roles[a.Role] {
			return fmt.Errorf("duplicate artifact role %q", a.Role)
		}
		roles[a.Role] = true
	}

	for _, ph := range p.Phases {
		for _, role := range ph.EntryArtifacts {
			if !roles[role] {
				return fmt.Errorf("phase %q: unknown entry artifact role %q", ph.ID, role)
			}
		}
	}

	items := make(map[string]bool, len(p.Checklist))
	for _, item := range p.Checklist {
		if item.ID == "" {
			return fmt.Errorf("checklist item with empty id")
		}
		if items[item.ID] {
			return fmt.Errorf("duplicate checklist item id %q", item.ID)
		}
		items[item.ID] = true
		if !phases[item.Phase] {
			return fmt.Errorf("checklist item %q: unknown phase %q", item.ID, item.Phase)
		}
		switch item.Evidence.Kind {
		case "artifact", "fresh_artifact":
			if !roles[item.Evidence.Role] {
				return fmt.Errorf("checklist item %q: unknown artifact role %q", item.ID, item.Evidence.Role)
			}
		case "approval":
			if item.Evidence.Key == "" {
				return fmt.Errorf("checklist item %q: approval evidence requires a key", item.ID)
			}
		case "no_blocking_findings":
			if item.Evidence.MinSeverity == "" {
				return fmt.Errorf("checklist item %q: no_blocking_findings evidence requires min_severity", item.ID)
			}
		default:
			return fmt.Errorf("checklist item %q: unknown evidence kind %q", item.ID, item.Evidence.Kind)
		}
	}

	for _, trig := range p.Triggers {
		if !phases[trig.Phase] {
			return fmt.Errorf("trigger: unknown phase %q", trig.Phase)
		}
		if len(trig.Keywords) == 0 {
			return fmt.Errorf("trigger for phase %q: keywords must not be empty", trig.Phase)
		}
		if trig.Weight <= 0 || trig.Weight > 1 {
			return fmt.Errorf("trigger for phase %q: weight must be in (0,1], got %v", trig.Phase, trig.Weight)
		}
	}

	for _, rule := range p.Classification {
		if rule.Pattern == "" {
			return fmt.Errorf("classification rule with empty pattern")
		}
		if !phases[rule.Phase] {
			return fmt.Errorf("classification rule %q: unknown phase %q", rule.Pattern, rule.Phase)
		}
	}

	for _, an := range p.Analyzers {
		if !phases[an.Phase] {
			return fmt.Errorf("analyzer binding: unknown phase %q", an.Phase)
		}
		if an.Analyzer == "" {
			return fmt.Errorf("analyzer binding for phase %q: analyzer name required", an.Phase)
		}
		for _, role := range an.Roles {
			if !roles[role] {
				return fmt.Errorf("analyzer binding for phase %q: unknown role %q", an.Phase, role)
			}
		}
	}

	return nil
}

// applyDefaults fills zero values that the embedded defaults cannot express
// (paths resolved at runtime).
func applyDefaults(cfg *Config) {
	if cfg.Project.Name == "" {
		cfg.Project.Name = "project"
	}
	if cfg.Project.StateDir == "" {
		cfg.Project.StateDir = ".gatehouse"
	}
	if cfg.Router.ConfidenceFloor == 0 {
		cfg.Router.ConfidenceFloor = 0.05
	}
	if cfg.Dispatch.Timeout.Duration() == 0 {
		cfg.Dispatch.Timeout = Duration(5 * time.Minute)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "localhost"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9180
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "gatehouse"
	}
}
