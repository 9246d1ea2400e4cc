// Package phase models the pipeline's phase table and infers which phases a
// project can legitimately be in from observable evidence.
//
// A phase is never stored: it is derived. The current position of a project
// is whatever its artifacts and checklist say it is, so a fresh clone and a
// long-lived checkout always agree.
package phase

import (
	"fmt"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
)

// Classification divides phases into work that produces decisions and work
// that produces code.
type Classification string

const (
	ClassProcess        Classification = "process"
	ClassImplementation Classification = "implementation"
)

// Phase is one entry in the pipeline, immutable after construction.
type Phase struct {
	ID             string
	Name           string
	Classification Classification
	EntryArtifacts []string

	// Index is the declaration position, starting at zero. It orders both
	// execution and routing tie-breaks.
	Index int
}

// Set is the immutable, ordered phase table.
type Set struct {
	phases []Phase
	byID   map[string]int
}

// FromConfig builds the phase table from a validated pipeline configuration.
// Declaration order is preserved.
func FromConfig(pipeline *config.PipelineConfig) (*Set, error) {
	if len(pipeline.Phases) == 0 {
		return nil, fmt.Errorf("pipeline declares no phases")
	}

	s := &Set{
		phases: make([]Phase, 0, len(pipeline.Phases)),
		byID:   make(map[string]int, len(pipeline.Phases)),
	}
	for i, pc := range pipeline.Phases {
		if _, dup := s.byID[pc.ID]; dup {
			return nil, fmt.Errorf("duplicate phase id %q", pc.ID)
		}
		s.phases = append(s.phases, Phase{
			ID:             pc.ID,
			Name:           pc.Name,
			Classification: Classification(pc.Classification),
			EntryArtifacts: append([]string(nil), pc.EntryArtifacts...),
			Index:          i,
		})
		s.byID[pc.ID] = i
	}
	return s, nil
}

// All returns the phases in declaration order. The returned slice is a copy.
func (s *Set) All() []Phase {
	out := make([]Phase, len(s.phases))
	copy(out, s.phases)
	return out
}

// Len returns the number of phases.
func (s *Set) Len() int { return len(s.phases) }

// First returns the first declared phase.
func (s *Set) First() Phase { return s.phases[0] }

// Get looks a phase up by id.
func (s *Set) Get(id string) (Phase, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Phase{}, false
	}
	return s.phases[i], true
}

// Next returns the phase declared after id, or false when id is last or
// unknown.
func (s *Set) Next(id string) (Phase, bool) {
	i, ok := s.byID[id]
	if !ok || i+1 >= len(s.phases) {
		return Phase{}, false
	}
	return s.phases[i+1], true
}

// Prev returns the phase declared before id, or false when id is first or
// unknown.
func (s *Set) Prev(id string) (Phase, bool) {
	i, ok := s.byID[id]
	if !ok || i == 0 {
		return Phase{}, false
	}
	return s.phases[i-1], true
}

// Before reports whether phase a is declared before phase b. Unknown ids
// report false.
func (s *Set) Before(a, b string) bool {
	ia, oka := s.byID[a]
	ib, okb := s.byID[b]
	return oka && okb && ia < ib
}
