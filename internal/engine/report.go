package engine

import (
	"github.com/fyrsmithlabs/gatehouse/internal/checklist"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
	"github.com/fyrsmithlabs/gatehouse/internal/intent"
	"github.com/fyrsmithlabs/gatehouse/internal/phase"
)

// PhaseReport is the full standing of one phase.
type PhaseReport struct {
	Phase          phase.Phase      `json:"phase"`
	EntrySatisfied bool             `json:"entry_satisfied"`
	MissingRoles   []string         `json:"missing_roles,omitempty"`
	ExitSatisfied  bool             `json:"exit_satisfied"`
	MissingItems   []string         `json:"missing_items,omitempty"`
	Items          []checklist.Item `json:"items,omitempty"`
}

// RouteResult is a routing outcome with the target phase's standing.
type RouteResult struct {
	Match intent.Match `json:"match"`
	Phase PhaseReport  `json:"phase"`
}

// TransitionResult is a transition decision. When Allowed is false, Reasons
// explains why in full: the caller never has to probe further.
type TransitionResult struct {
	Kind finding.TransitionKind `json:"kind"`
	From string                 `json:"from"`
	To   string                 `json:"to,omitempty"`

	Allowed          bool     `json:"allowed"`
	Reasons          []string `json:"reasons,omitempty"`
	MissingItems     []string `json:"missing_items,omitempty"`
	MissingRoles     []string `json:"missing_roles,omitempty"`
	BlockingFindings []string `json:"blocking_findings,omitempty"`
}

// ProjectStatus is the aggregate derived state.
type ProjectStatus struct {
	Project      string            `json:"project"`
	CurrentPhase string            `json:"current_phase"`
	Phases       []phase.Status    `json:"phases"`
	Findings     []finding.Finding `json:"findings"`
	Conflicts    []string          `json:"conflicts,omitempty"`

	// FsChanges counts filesystem events observed since startup;
	// informational only.
	FsChanges int64 `json:"fs_changes"`
}
