// Package gate decides whether a concrete action on a concrete resource is
// allowed in the project's current phase. It is the second line of defense:
// the router catches intent before work starts, the interceptor catches the
// individual write or command that slipped past it.
package gate

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/gatehouse/internal/artifact"
	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
	"github.com/fyrsmithlabs/gatehouse/internal/phase"
)

// Kind classifies the action being attempted.
type Kind string

const (
	KindWrite   Kind = "write"
	KindExecute Kind = "execute"
	KindDelete  Kind = "delete"
)

// Decision is the interceptor's verdict. Decisions are data: a Block carries
// everything the caller needs to explain itself.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Reason is a human-readable explanation, set on Block.
	Reason string `json:"reason,omitempty"`

	// RequiredPhase is the phase the resource belongs to.
	RequiredPhase string `json:"required_phase,omitempty"`

	// MissingRoles lists the entry artifact roles that would have to exist
	// for RequiredPhase to be open.
	MissingRoles []string `json:"missing_roles,omitempty"`
}

// Allow is the verdict for unclassified resources and satisfied phases.
var Allow = Decision{Allowed: true}

// rule is one compiled classification entry. Rules are evaluated in
// declaration order, first match wins.
type rule struct {
	pattern string
	phase   string
	actions map[Kind]bool // nil means all kinds
}

// Interceptor evaluates actions against the classification rules and the
// inferred phase state.
type Interceptor struct {
	rules  []rule
	phases *phase.Set
	infer  *phase.Inferencer
	logger *logging.Logger
}

// NewInterceptor compiles the classification rules. Rules referring to
// unknown phases are rejected.
func NewInterceptor(rules []config.ClassifyConfig, phases *phase.Set, infer *phase.Inferencer, logger *logging.Logger) (*Interceptor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	ic := &Interceptor{phases: phases, infer: infer, logger: logger}
	for _, rc := range rules {
		if _, ok := phases.Get(rc.Phase); !ok {
			return nil, fmt.Errorf("classification rule %q: unknown phase %q", rc.Pattern, rc.Phase)
		}
		r := rule{pattern: rc.Pattern, phase: rc.Phase}
		if len(rc.Actions) > 0 {
			r.actions = make(map[Kind]bool, len(rc.Actions))
			for _, a := range rc.Actions {
				r.actions[Kind(a)] = true
			}
		}
		ic.rules = append(ic.rules, r)
	}
	return ic, nil
}

// Evaluate classifies resourcePath and checks whether the owning phase's
// entry artifacts exist. Unmatched paths are allowed: the interceptor only
// polices resources the rule pack claims.
func (ic *Interceptor) Evaluate(action Kind, resourcePath string) Decision {
	rel := strings.TrimPrefix(strings.ReplaceAll(resourcePath, "\\", "/"), "./")

	for _, r := range ic.rules {
		if !artifact.Match(r.pattern, rel) {
			continue
		}
		if r.actions != nil && !r.actions[action] {
			continue
		}
		return ic.decide(action, rel, r.phase)
	}
	return Allow
}

func (ic *Interceptor) decide(action Kind, rel, phaseID string) Decision {
	ok, missing := ic.infer.EntrySatisfied(phaseID)
	if ok {
		return Allow
	}
	ph, _ := ic.phases.Get(phaseID)
	return Decision{
		Allowed:       false,
		Reason:        fmt.Sprintf("%s of %s belongs to phase %q, which is not open: missing %s", action, rel, ph.ID, strings.Join(missing, ", ")),
		RequiredPhase: ph.ID,
		MissingRoles:  missing,
	}
}
