package checklist

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
)

// ArtifactChecker is the registry surface evidence predicates need.
type ArtifactChecker interface {
	Exists(role string) bool
	Fresh(role string) bool
}

// FindingSource exposes the current non-superseded finding list.
type FindingSource interface {
	Active() []finding.Finding
}

// BuildPredicate constructs the evidence predicate for a configured item.
//
// Supported kinds:
//   - artifact: the role resolves to at least one existing file
//   - fresh_artifact: the role exists and is not older than the last
//     source change
//   - approval: the key has been explicitly granted
//   - no_blocking_findings: no active Open finding at or above min_severity
func BuildPredicate(spec config.EvidenceConfig, artifacts ArtifactChecker, approvals *Approvals, findings FindingSource) (Predicate, error) {
	switch spec.Kind {
	case "artifact":
		role := spec.Role
		return func(ctx context.Context) (bool, error) {
			return artifacts.Exists(role), nil
		}, nil

	case "fresh_artifact":
		role := spec.Role
		return func(ctx context.Context) (bool, error) {
			return artifacts.Fresh(role), nil
		}, nil

	case "approval":
		key := spec.Key
		return func(ctx context.Context) (bool, error) {
			return approvals.Granted(key), nil
		}, nil

	case "no_blocking_findings":
		minSev, err := finding.ParseSeverity(spec.MinSeverity)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (bool, error) {
			for _, f := range findings.Active() {
				if f.Status == finding.StatusOpen && f.Severity.AtLeast(minSev) {
					return false, nil
				}
			}
			return true, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown evidence kind %q", spec.Kind)
	}
}
