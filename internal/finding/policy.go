package finding

import (
	"fmt"
)

// Policy maps each severity to the transition kinds an Open finding of that
// severity blocks. Blocking behavior is configuration, not conditionals
// scattered across phases.
type Policy map[Severity][]TransitionKind

// DefaultPolicy blocks everything on Critical/High, the ship transition on
// Medium, and nothing on Low/Informational.
func DefaultPolicy() Policy {
	return Policy{
		SeverityCritical:      {TransitionAdvance, TransitionShip, TransitionRegress},
		SeverityHigh:          {TransitionAdvance, TransitionShip, TransitionRegress},
		SeverityMedium:        {TransitionShip},
		SeverityLow:           nil,
		SeverityInformational: nil,
	}
}

// PolicyFromConfig builds a Policy from the configuration table
// (severity name -> blocked transition kind names).
func PolicyFromConfig(table map[string][]string) (Policy, error) {
	if len(table) == 0 {
		return DefaultPolicy(), nil
	}
	p := make(Policy, len(table))
	for sevName, kinds := range table {
		sev, err := ParseSeverity(sevName)
		if err != nil {
			return nil, fmt.Errorf("severity policy: %w", err)
		}
		for _, k := range kinds {
			kind := TransitionKind(k)
			switch kind {
			case TransitionAdvance, TransitionShip, TransitionRegress:
			default:
				return nil, fmt.Errorf("severity policy: unknown transition kind %q", k)
			}
			p[sev] = append(p[sev], kind)
		}
		if _, ok := p[sev]; !ok {
			p[sev] = nil
		}
	}
	return p, nil
}

// blocksKind reports whether sev blocks the given kind.
func (p Policy) blocksKind(sev Severity, kind TransitionKind) bool {
	for _, k := range p[sev] {
		if k == kind {
			return true
		}
	}
	return false
}

// TransitionPermitted decides whether a transition of the given kind is
// permitted with the given findings. It is a pure function: permitted iff
// no blocking finding's severity blocks the kind. On denial it returns the
// ids of every finding standing in the way.
func (p Policy) TransitionPermitted(kind TransitionKind, findings []Finding) (bool, []string) {
	var blocking []string
	for i := range findings {
		f := &findings[i]
		if !f.Blocks() {
			continue
		}
		if p.blocksKind(f.Severity, kind) {
			blocking = append(blocking, f.ID)
		}
	}
	return len(blocking) == 0, blocking
}
