package phase

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

// ArtifactChecker is the slice of the artifact registry the inferencer needs.
type ArtifactChecker interface {
	Exists(role string) bool
}

// ChecklistSource answers whether a phase's required checklist items are all
// satisfied.
type ChecklistSource interface {
	AllRequiredSatisfied(ctx context.Context, phaseID string) (bool, []string, error)
}

// Status is the inferred standing of one phase.
type Status struct {
	Phase Phase

	// EntrySatisfied is true when every entry artifact role resolves.
	EntrySatisfied bool

	// MissingRoles lists the entry roles that did not resolve.
	MissingRoles []string

	// ExitSatisfied is true when every required checklist item for the
	// phase verifies. Only meaningful when EntrySatisfied is true.
	ExitSatisfied bool

	// MissingItems lists the required checklist item ids that did not
	// verify.
	MissingItems []string
}

// Inferencer derives phase standing from artifacts and checklist evidence.
// It holds no mutable state of its own.
type Inferencer struct {
	phases    *Set
	artifacts ArtifactChecker
	checklist ChecklistSource
	logger    *logging.Logger
}

func NewInferencer(phases *Set, artifacts ArtifactChecker, checklist ChecklistSource, logger *logging.Logger) *Inferencer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Inferencer{phases: phases, artifacts: artifacts, checklist: checklist, logger: logger}
}

// EntrySatisfied reports whether phaseID's entry artifacts all resolve, and
// which roles are missing. The first declared phase has no entry artifacts,
// so an empty project satisfies it and nothing else.
func (inf *Inferencer) EntrySatisfied(phaseID string) (bool, []string) {
	ph, ok := inf.phases.Get(phaseID)
	if !ok {
		return false, nil
	}
	var missing []string
	for _, role := range ph.EntryArtifacts {
		if !inf.artifacts.Exists(role) {
			missing = append(missing, role)
		}
	}
	sort.Strings(missing)
	return len(missing) == 0, missing
}

// ExitSatisfied reports whether phaseID's required checklist items all
// verify, and which item ids are missing.
func (inf *Inferencer) ExitSatisfied(ctx context.Context, phaseID string) (bool, []string, error) {
	if _, ok := inf.phases.Get(phaseID); !ok {
		return false, nil, nil
	}
	return inf.checklist.AllRequiredSatisfied(ctx, phaseID)
}

// Current returns the most advanced phase whose entry artifacts are all
// present. At least the first phase always qualifies.
func (inf *Inferencer) Current(ctx context.Context) (Status, error) {
	current := inf.phases.First()
	for _, ph := range inf.phases.All() {
		ok, _ := inf.EntrySatisfied(ph.ID)
		if ok {
			current = ph
		}
	}
	return inf.statusOf(ctx, current)
}

// Survey evaluates every phase in declaration order.
func (inf *Inferencer) Survey(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, inf.phases.Len())
	for _, ph := range inf.phases.All() {
		st, err := inf.statusOf(ctx, ph)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (inf *Inferencer) statusOf(ctx context.Context, ph Phase) (Status, error) {
	st := Status{Phase: ph}
	st.EntrySatisfied, st.MissingRoles = inf.EntrySatisfied(ph.ID)

	ok, missing, err := inf.checklist.AllRequiredSatisfied(ctx, ph.ID)
	if err != nil {
		return Status{}, err
	}
	st.ExitSatisfied, st.MissingItems = ok, missing
	return st, nil
}
