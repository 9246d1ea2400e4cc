// Package intent routes free-text intent to the phase whose gate should run.
//
// Routing is deliberately dumb and deterministic: weighted keyword overlap
// against configured trigger patterns, no learned models, no network calls.
// The same text against the same project state always routes the same way,
// and when no pattern clears the floor the router says so instead of
// guessing.
package intent

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
	"github.com/fyrsmithlabs/gatehouse/internal/phase"
)

// ErrRoutingAmbiguous is returned when no trigger pattern clears the
// confidence floor. It means "no gate applies", not "pick one anyway".
var ErrRoutingAmbiguous = errors.New("intent matches no configured trigger")

// ExitChecker reports whether a phase's exit gate is already satisfied.
// Used for the process-over-implementation tie-break: a process phase whose
// work is done should not keep capturing intent.
type ExitChecker interface {
	ExitSatisfied(ctx context.Context, phaseID string) (bool, []string, error)
}

// trigger is one compiled pattern.
type trigger struct {
	phase    string
	keywords []string
	weight   float64
}

// Match is a routing outcome with its supporting evidence.
type Match struct {
	PhaseID string   `json:"phase_id"`
	Score   float64  `json:"score"`
	Matched []string `json:"matched,omitempty"`
}

// Router scores intent text against the configured trigger patterns.
type Router struct {
	triggers []trigger
	floor    float64
	phases   *phase.Set
	exits    ExitChecker
	logger   *logging.Logger
}

// NewRouter compiles the trigger patterns. Patterns referring to unknown
// phases are rejected; weights are clamped to [0,1].
func NewRouter(cfg config.RouterConfig, patterns []config.TriggerConfig, phases *phase.Set, exits ExitChecker, logger *logging.Logger) (*Router, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Router{floor: cfg.ConfidenceFloor, phases: phases, exits: exits, logger: logger}
	for _, tc := range patterns {
		if _, ok := phases.Get(tc.Phase); !ok {
			return nil, errors.New("trigger for unknown phase " + tc.Phase)
		}
		w := tc.Weight
		if w <= 0 {
			w = 1
		}
		if w > 1 {
			w = 1
		}
		kws := make([]string, 0, len(tc.Keywords))
		for _, k := range tc.Keywords {
			kws = append(kws, strings.ToLower(k))
		}
		r.triggers = append(r.triggers, trigger{phase: tc.Phase, keywords: kws, weight: w})
	}
	return r, nil
}

// Route scores text and returns the winning match. ErrRoutingAmbiguous when
// nothing clears the floor.
func (r *Router) Route(ctx context.Context, text string) (Match, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Match{}, ErrRoutingAmbiguous
	}

	// Best match per phase; a phase may own several patterns.
	best := make(map[string]Match)
	for _, tr := range r.triggers {
		m := tr.score(tokens)
		if m.Score < r.floor {
			continue
		}
		if prev, ok := best[tr.phase]; !ok || m.Score > prev.Score {
			best[tr.phase] = m
		}
	}
	if len(best) == 0 {
		return Match{}, ErrRoutingAmbiguous
	}

	candidates := make([]Match, 0, len(best))
	for _, m := range best {
		candidates = append(candidates, m)
	}
	winner, err := r.pick(ctx, candidates)
	if err != nil {
		return Match{}, err
	}
	r.logger.Debug(ctx, "intent routed",
		zap.String("phase", winner.PhaseID),
		zap.Float64("score", winner.Score),
		zap.Int("candidates", len(candidates)))
	return winner, nil
}

// pick applies the tie-break ladder: process beats implementation unless the
// process phase's exit gate is satisfied, then highest score, then earliest
// declaration order.
func (r *Router) pick(ctx context.Context, candidates []Match) (Match, error) {
	type ranked struct {
		Match
		process bool
		index   int
	}
	rs := make([]ranked, 0, len(candidates))
	for _, m := range candidates {
		ph, _ := r.phases.Get(m.PhaseID)
		proc := ph.Classification == phase.ClassProcess
		if proc && r.exits != nil {
			done, _, err := r.exits.ExitSatisfied(ctx, m.PhaseID)
			if err != nil {
				return Match{}, err
			}
			if done {
				proc = false
			}
		}
		rs = append(rs, ranked{Match: m, process: proc, index: ph.Index})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].process != rs[j].process {
			return rs[i].process
		}
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].index < rs[j].index
	})
	return rs[0].Match, nil
}

func (tr trigger) score(tokens map[string]bool) Match {
	m := Match{PhaseID: tr.phase}
	if len(tr.keywords) == 0 {
		return m
	}
	for _, kw := range tr.keywords {
		if tokens[kw] {
			m.Matched = append(m.Matched, kw)
		}
	}
	m.Score = tr.weight * float64(len(m.Matched)) / float64(len(tr.keywords))
	return m
}

// tokenize lowercases, strips punctuation, and splits into a word set.
func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
