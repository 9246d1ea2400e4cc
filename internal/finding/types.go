// Package finding holds the severity-rated findings produced by analyzers
// and the policy that decides which phase transitions they block.
//
// Findings are append-mostly: they are created by analyzer runs, mutated
// only through explicit status transitions, and never deleted. A finding
// made obsolete by a newer one is marked superseded so the audit history
// stays intact.
package finding

import (
	"fmt"
	"strings"
	"time"
)

// Severity rates how serious a finding is.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

// severityRank orders severities for threshold comparisons. Higher is worse.
var severityRank = map[Severity]int{
	SeverityInformational: 1,
	SeverityLow:           2,
	SeverityMedium:        3,
	SeverityHigh:          4,
	SeverityCritical:      5,
}

// ParseSeverity parses a severity string case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Status is the lifecycle state of a finding.
type Status string

const (
	StatusOpen         Status = "open"
	StatusFixed        Status = "fixed"
	StatusAcceptedRisk Status = "accepted_risk"
)

// TransitionKind names a kind of phase transition the policy can block.
type TransitionKind string

const (
	// TransitionAdvance moves the project to its next phase.
	TransitionAdvance TransitionKind = "advance"

	// TransitionShip is the deployment/release transition.
	TransitionShip TransitionKind = "ship"

	// TransitionRegress re-opens an earlier phase. Always explicit,
	// never automatic.
	TransitionRegress TransitionKind = "regress"
)

// Finding is one severity-rated issue reported by an analyzer.
type Finding struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Location    string   `json:"location"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source"` // analyzer name
	Status      Status   `json:"status"`

	// RegressionEvidence references the regression test or check proving
	// the fix. Required when Status is fixed.
	RegressionEvidence string `json:"regression_evidence,omitempty"`

	// Justification explains why the risk is acceptable. Required when
	// Status is accepted_risk.
	Justification string `json:"justification,omitempty"`

	// SupersededBy points at the finding that replaced this one.
	SupersededBy string `json:"superseded_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Signature identifies a finding across analyzer runs. Two findings with
// the same signature are the same issue.
type Signature struct {
	Title    string `json:"title"`
	Location string `json:"location"`
}

// Sig returns the finding's reconciliation signature.
func (f *Finding) Sig() Signature {
	return Signature{Title: f.Title, Location: f.Location}
}

// Blocks reports whether this finding currently blocks anything: only Open
// findings do. Fixed findings must carry regression evidence to be treated
// as resolved; a fixed finding without evidence still blocks.
func (f *Finding) Blocks() bool {
	switch f.Status {
	case StatusOpen:
		return true
	case StatusFixed:
		return f.RegressionEvidence == ""
	case StatusAcceptedRisk:
		return false
	default:
		return true
	}
}
