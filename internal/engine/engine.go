// Package engine is the aggregate root: it wires the artifact registry,
// checklist tracker, phase inferencer, gate interceptor, intent router,
// analyzer dispatcher, and finding store into one serialized decision
// surface.
//
// All state is derived or durable: a restart rebuilds everything from the
// filesystem and the two state files under the project's state directory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/artifact"
	"github.com/fyrsmithlabs/gatehouse/internal/checklist"
	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/dispatch"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
	"github.com/fyrsmithlabs/gatehouse/internal/gate"
	"github.com/fyrsmithlabs/gatehouse/internal/intent"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
	"github.com/fyrsmithlabs/gatehouse/internal/phase"
)

// Errors for engine operations.
var (
	ErrUnknownPhase  = errors.New("unknown phase")
	ErrNotRegression = errors.New("target phase is not earlier than the current phase")
)

// Engine serializes all decisions behind one mutex. Decisions are not
// commutative: a gate check racing a finding commit must observe either the
// state before or the state after, never a blend.
type Engine struct {
	mu sync.Mutex

	cfg    *config.Config
	logger *logging.Logger

	phases     *phase.Set
	registry   *artifact.Registry
	approvals  *checklist.Approvals
	tracker    *checklist.Tracker
	findings   *finding.Store
	policy     finding.Policy
	infer      *phase.Inferencer
	gate       *gate.Interceptor
	router     *intent.Router
	dispatcher *dispatch.Dispatcher
	watcher    *artifact.Watcher
}

// New wires a complete engine from configuration. The state directory is
// created if missing; analyzers are matched against the pipeline's analyzer
// bindings by name.
func New(cfg *config.Config, analyzers []dispatch.Analyzer, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	stateDir := cfg.StatePath()
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	registry, err := artifact.NewRegistry(cfg.Project.Root, cfg.Project.SourceRoots, logger)
	if err != nil {
		return nil, err
	}
	for _, a := range cfg.Pipeline.Artifacts {
		if err := registry.Register(a.Role, a.Locator); err != nil {
			return nil, fmt.Errorf("register artifact %q: %w", a.Role, err)
		}
	}

	approvals, err := checklist.OpenApprovals(filepath.Join(stateDir, "approvals.json"))
	if err != nil {
		return nil, err
	}
	findings, err := finding.OpenStore(filepath.Join(stateDir, "findings.json"), logger)
	if err != nil {
		return nil, err
	}

	tracker := checklist.NewTracker(logger)
	for _, item := range cfg.Pipeline.Checklist {
		pred, err := checklist.BuildPredicate(item.Evidence, registry, approvals, findings)
		if err != nil {
			return nil, fmt.Errorf("checklist item %q: %w", item.ID, err)
		}
		err = tracker.Add(checklist.Item{ID: item.ID, Phase: item.Phase, Required: item.Required}, pred)
		if err != nil {
			return nil, err
		}
	}

	phases, err := phase.FromConfig(&cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	infer := phase.NewInferencer(phases, registry, tracker, logger)

	interceptor, err := gate.NewInterceptor(cfg.Pipeline.Classification, phases, infer, logger)
	if err != nil {
		return nil, err
	}
	router, err := intent.NewRouter(cfg.Router, cfg.Pipeline.Triggers, phases, infer, logger)
	if err != nil {
		return nil, err
	}

	policy := finding.DefaultPolicy()
	if len(cfg.Pipeline.SeverityPolicy) > 0 {
		policy, err = finding.PolicyFromConfig(cfg.Pipeline.SeverityPolicy)
		if err != nil {
			return nil, err
		}
	}

	dispatcher, err := dispatch.NewDispatcher(cfg.Dispatch, cfg.Pipeline.Analyzers, analyzers, registry, findings, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger.Named("engine"),
		phases:     phases,
		registry:   registry,
		approvals:  approvals,
		tracker:    tracker,
		findings:   findings,
		policy:     policy,
		infer:      infer,
		gate:       interceptor,
		router:     router,
		dispatcher: dispatcher,
		watcher:    artifact.NewWatcher(cfg.Project.Root, logger),
	}
	e.logger.Info(context.Background(), "engine ready",
		zap.String("project", cfg.Project.Name),
		zap.Int("phases", phases.Len()),
		zap.Int("checklist_items", len(cfg.Pipeline.Checklist)))
	return e, nil
}

// Phases exposes the phase table for the thin surfaces.
func (e *Engine) Phases() *phase.Set { return e.phases }

// Watch runs the filesystem watcher until ctx is cancelled. Decisions never
// depend on it; it feeds the status surface's change counter.
func (e *Engine) Watch(ctx context.Context) error {
	return e.watcher.Run(ctx)
}

// RouteIntent scores free text and reports the gate that should run, with
// the target phase's current standing attached.
func (e *Engine) RouteIntent(ctx context.Context, text string) (RouteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.router.Route(ctx, text)
	if err != nil {
		return RouteResult{}, err
	}
	report, err := e.phaseReport(ctx, m.PhaseID)
	if err != nil {
		return RouteResult{}, err
	}
	return RouteResult{Match: m, Phase: report}, nil
}

// HandlePhase is the explicit invocation path: it bypasses routing entirely
// and reports the named phase's standing.
func (e *Engine) HandlePhase(ctx context.Context, phaseID string) (PhaseReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phaseReport(ctx, phaseID)
}

// CheckAction evaluates a single concrete action against the gate
// interceptor.
func (e *Engine) CheckAction(ctx context.Context, action gate.Kind, resourcePath string) gate.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.gate.Evaluate(action, resourcePath)
	if !d.Allowed {
		e.logger.Info(ctx, "action blocked",
			zap.String("action", string(action)),
			zap.String("resource", resourcePath),
			zap.String("required_phase", d.RequiredPhase))
	}
	return d
}

// VerifyPhase re-runs every checklist predicate for the phase and reports
// item-level results.
func (e *Engine) VerifyPhase(ctx context.Context, phaseID string) (PhaseReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.phases.Get(phaseID); !ok {
		return PhaseReport{}, fmt.Errorf("%w %q", ErrUnknownPhase, phaseID)
	}
	for _, item := range e.tracker.Items(phaseID) {
		if _, err := e.tracker.Verify(ctx, item.ID); err != nil {
			return PhaseReport{}, err
		}
	}
	return e.phaseReport(ctx, phaseID)
}

// CompletePhase verifies the phase's exit gate and, when analyzers are
// bound to the phase, requires a clean analysis of target first.
func (e *Engine) CompletePhase(ctx context.Context, phaseID, target string) (TransitionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.phases.Get(phaseID); !ok {
		return TransitionResult{}, fmt.Errorf("%w %q", ErrUnknownPhase, phaseID)
	}
	res := TransitionResult{Kind: finding.TransitionAdvance, From: phaseID}
	if next, ok := e.phases.Next(phaseID); ok {
		res.To = next.ID
	}

	if e.dispatcher.Configured(phaseID) {
		if f, failed := e.dispatcher.LastFailure(phaseID, target); failed {
			res.Reasons = append(res.Reasons, fmt.Sprintf("analyzer %s failed: %s", f.Analyzer, f.Err))
		} else if _, ran := e.dispatcher.LastSuccess(phaseID, target); !ran {
			// A never-run analyzer must not read as a clean run.
			res.Reasons = append(res.Reasons, fmt.Sprintf("analysis has not run for phase %s target %s", phaseID, target))
		}
	}
	e.evaluateTransition(ctx, &res, phaseID, finding.TransitionAdvance)
	return res, nil
}

// RunAnalyzer dispatches the phase's bound analyzers against target.
func (e *Engine) RunAnalyzer(ctx context.Context, phaseID, target string) (*finding.Batch, error) {
	// Deliberately not under e.mu: analyzer runs are long and the
	// dispatcher has its own lease. The batch commit inside the store is
	// atomic, which is the consistency the gates rely on.
	if _, ok := e.phases.Get(phaseID); !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPhase, phaseID)
	}
	return e.dispatcher.Run(ctx, phaseID, target)
}

// Advance decides whether the project may leave its current phase via the
// given transition kind.
func (e *Engine) Advance(ctx context.Context, kind finding.TransitionKind) (TransitionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.infer.Current(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	res := TransitionResult{Kind: kind, From: current.Phase.ID}
	if next, ok := e.phases.Next(current.Phase.ID); ok {
		res.To = next.ID
	}
	e.evaluateTransition(ctx, &res, current.Phase.ID, kind)
	return res, nil
}

// Regress is the explicit backward transition: re-opening an earlier phase.
// It is guarded by its own policy kind and is never performed implicitly.
func (e *Engine) Regress(ctx context.Context, phaseID string) (TransitionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.infer.Current(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	if _, ok := e.phases.Get(phaseID); !ok {
		return TransitionResult{}, fmt.Errorf("%w %q", ErrUnknownPhase, phaseID)
	}
	if !e.phases.Before(phaseID, current.Phase.ID) {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", ErrNotRegression, current.Phase.ID, phaseID)
	}

	res := TransitionResult{Kind: finding.TransitionRegress, From: current.Phase.ID, To: phaseID}
	allowed, blocking := e.policy.TransitionPermitted(finding.TransitionRegress, e.findings.Active())
	if !allowed {
		res.BlockingFindings = blocking
		res.Reasons = append(res.Reasons, fmt.Sprintf("open findings block regression: %s", strings.Join(blocking, ", ")))
	}
	res.Allowed = len(res.Reasons) == 0
	return res, nil
}

// RecordApproval grants a named approval key, satisfying approval-backed
// checklist items.
func (e *Engine) RecordApproval(ctx context.Context, key, grantedBy string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.approvals.Grant(key, grantedBy); err != nil {
		return err
	}
	e.logger.Info(ctx, "approval recorded", zap.String("key", key), zap.String("granted_by", grantedBy))
	return nil
}

// ResolveFinding marks a finding fixed with its regression evidence.
func (e *Engine) ResolveFinding(ctx context.Context, id, regressionEvidence string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findings.MarkFixed(id, regressionEvidence)
}

// AcceptRisk marks a finding as accepted risk with its justification.
func (e *Engine) AcceptRisk(ctx context.Context, id, justification string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findings.AcceptRisk(id, justification)
}

// Findings returns the non-superseded finding list.
func (e *Engine) Findings() []finding.Finding {
	return e.findings.Active()
}

// Status reports the full derived project state.
func (e *Engine) Status(ctx context.Context) (ProjectStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status(ctx)
}

// Rebuild rescans the project and recomputes every checklist item, then
// reports status. Used at startup and after external changes.
func (e *Engine) Rebuild(ctx context.Context) (ProjectStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, conflicts := e.registry.Scan()
	for _, c := range conflicts {
		e.logger.Warn(ctx, "artifact conflict", zap.String("role_a", c.RoleA), zap.String("role_b", c.RoleB))
	}
	for _, ph := range e.phases.All() {
		for _, item := range e.tracker.Items(ph.ID) {
			if _, err := e.tracker.Verify(ctx, item.ID); err != nil {
				return ProjectStatus{}, err
			}
		}
	}
	return e.status(ctx)
}

// evaluateTransition fills res with every reason the transition cannot
// happen: unmet exit gate, blocking findings, unmet entry on the successor.
func (e *Engine) evaluateTransition(ctx context.Context, res *TransitionResult, fromPhase string, kind finding.TransitionKind) {
	exitOK, missingItems, err := e.infer.ExitSatisfied(ctx, fromPhase)
	if err != nil {
		res.Reasons = append(res.Reasons, fmt.Sprintf("checklist verification failed: %v", err))
	} else if !exitOK {
		res.MissingItems = missingItems
		res.Reasons = append(res.Reasons, "required checklist items unsatisfied")
	}

	allowed, blocking := e.policy.TransitionPermitted(kind, e.findings.Active())
	if !allowed {
		res.BlockingFindings = blocking
		res.Reasons = append(res.Reasons, fmt.Sprintf("open findings block this transition: %s", strings.Join(blocking, ", ")))
	}

	if res.To != "" {
		// Completing this phase should produce the successor's entry
		// artifacts; report what is still missing.
		if ok, missing := e.infer.EntrySatisfied(res.To); !ok {
			res.MissingRoles = missing
			res.Reasons = append(res.Reasons, fmt.Sprintf("entry artifacts for %s not produced", res.To))
		}
	}
	res.Allowed = len(res.Reasons) == 0
}

func (e *Engine) status(ctx context.Context) (ProjectStatus, error) {
	current, err := e.infer.Current(ctx)
	if err != nil {
		return ProjectStatus{}, err
	}
	survey, err := e.infer.Survey(ctx)
	if err != nil {
		return ProjectStatus{}, err
	}

	_, conflicts := e.registry.Scan()
	st := ProjectStatus{
		Project:      e.cfg.Project.Name,
		CurrentPhase: current.Phase.ID,
		Phases:       survey,
		Findings:     e.findings.Active(),
		FsChanges:    e.watcher.Changes(),
	}
	for _, c := range conflicts {
		st.Conflicts = append(st.Conflicts, c.Error())
	}
	return st, nil
}

func (e *Engine) phaseReport(ctx context.Context, phaseID string) (PhaseReport, error) {
	ph, ok := e.phases.Get(phaseID)
	if !ok {
		return PhaseReport{}, fmt.Errorf("%w %q", ErrUnknownPhase, phaseID)
	}
	entryOK, missingRoles := e.infer.EntrySatisfied(phaseID)
	exitOK, missingItems, err := e.infer.ExitSatisfied(ctx, phaseID)
	if err != nil {
		return PhaseReport{}, err
	}
	return PhaseReport{
		Phase:          ph,
		EntrySatisfied: entryOK,
		MissingRoles:   missingRoles,
		ExitSatisfied:  exitOK,
		MissingItems:   missingItems,
		Items:          e.tracker.Items(phaseID),
	}, nil
}
