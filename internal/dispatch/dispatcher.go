// Package dispatch runs analyzers against a target and reconciles their
// findings into the durable store.
//
// A run either commits its whole batch or leaves the finding list untouched.
// An analyzer failure is remembered and reported as a failure, never as a
// clean bill of health.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/artifact"
	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/gatehouse/internal/dispatch"

// Errors for dispatch operations.
var (
	ErrDispatchInFlight = errors.New("analysis already in flight for this phase and target")
	ErrNoAnalyzer       = errors.New("no analyzer configured for phase")
	ErrAnalyzerFailure  = errors.New("analyzer run failed")
)

// Bundle is the static context handed to an analyzer: the target plus the
// artifact resolutions for the roles its phase binding names. Resolution
// paths are relative to Root.
type Bundle struct {
	PhaseID   string
	Target    string
	Root      string
	Artifacts map[string]artifact.Resolution
}

// Analyzer inspects a bundle and reports findings. Implementations must
// honor ctx cancellation.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, bundle Bundle) (*finding.Batch, error)
}

// Resolver is the slice of the artifact registry the dispatcher needs.
type Resolver interface {
	Root() string
	Resolve(role string) (artifact.Resolution, error)
}

// Failure records the most recent failed run for a phase and target.
type Failure struct {
	PhaseID  string
	Target   string
	Analyzer string
	Err      string
	At       time.Time
}

type leaseKey struct {
	phase  string
	target string
}

// binding is one compiled (phase, analyzer, roles) entry.
type binding struct {
	analyzer Analyzer
	roles    []string
}

// Dispatcher owns analyzer execution. At most one run per (phase, target)
// is in flight; distinct targets run in parallel.
type Dispatcher struct {
	timeout  time.Duration
	bindings map[string][]binding
	resolver Resolver
	store    *finding.Store
	logger   *logging.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	runCounter     metric.Int64Counter
	failCounter    metric.Int64Counter
	findingCounter metric.Int64Counter

	mu        sync.Mutex
	inFlight  map[leaseKey]bool
	failures  map[leaseKey]Failure
	successes map[leaseKey]time.Time
}

// NewDispatcher compiles the analyzer bindings. Every binding must name a
// registered analyzer.
func NewDispatcher(cfg config.DispatchConfig, bindings []config.AnalyzerConfig, analyzers []Analyzer, resolver Resolver, store *finding.Store, logger *logging.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	byName := make(map[string]Analyzer, len(analyzers))
	for _, a := range analyzers {
		byName[a.Name()] = a
	}

	d := &Dispatcher{
		timeout:  cfg.Timeout.Duration(),
		bindings: make(map[string][]binding),
		resolver: resolver,
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		inFlight:  make(map[leaseKey]bool),
		failures:  make(map[leaseKey]Failure),
		successes: make(map[leaseKey]time.Time),
	}
	for _, b := range bindings {
		a, ok := byName[b.Analyzer]
		if !ok {
			return nil, fmt.Errorf("phase %q: unknown analyzer %q", b.Phase, b.Analyzer)
		}
		d.bindings[b.Phase] = append(d.bindings[b.Phase], binding{analyzer: a, roles: b.Roles})
	}
	d.initMetrics()
	return d, nil
}

func (d *Dispatcher) initMetrics() {
	var err error

	d.runCounter, err = d.meter.Int64Counter(
		"gatehouse.dispatch.runs_total",
		metric.WithDescription("Total number of analyzer runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create run counter", zap.Error(err))
	}

	d.failCounter, err = d.meter.Int64Counter(
		"gatehouse.dispatch.failures_total",
		metric.WithDescription("Total number of failed analyzer runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create failure counter", zap.Error(err))
	}

	d.findingCounter, err = d.meter.Int64Counter(
		"gatehouse.dispatch.findings_total",
		metric.WithDescription("Total number of findings committed"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create finding counter", zap.Error(err))
	}
}

// Configured reports whether any analyzer is bound to phaseID.
func (d *Dispatcher) Configured(phaseID string) bool {
	return len(d.bindings[phaseID]) > 0
}

// LastFailure returns the recorded failure for (phaseID, target), if any.
// A recorded failure means the phase's analysis obligation is unmet.
func (d *Dispatcher) LastFailure(phaseID, target string) (Failure, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.failures[leaseKey{phase: phaseID, target: target}]
	return f, ok
}

// LastSuccess returns when (phaseID, target) last completed a clean run.
// No recorded success means the analysis obligation is still outstanding.
func (d *Dispatcher) LastSuccess(phaseID, target string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.successes[leaseKey{phase: phaseID, target: target}]
	return at, ok
}

// Run executes every analyzer bound to phaseID against target and commits
// the merged batch. On any analyzer error, timeout, or cancellation nothing
// is committed and the failure is recorded.
func (d *Dispatcher) Run(ctx context.Context, phaseID, target string) (*finding.Batch, error) {
	bindings := d.bindings[phaseID]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoAnalyzer, phaseID)
	}

	key := leaseKey{phase: phaseID, target: target}
	d.mu.Lock()
	if d.inFlight[key] {
		d.mu.Unlock()
		return nil, ErrDispatchInFlight
	}
	d.inFlight[key] = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}()

	ctx, span := d.tracer.Start(ctx, "dispatch.Run",
		trace.WithAttributes(
			attribute.String("phase", phaseID),
			attribute.String("target", target),
		))
	defer span.End()

	if d.runCounter != nil {
		d.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phaseID)))
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	merged := &finding.Batch{Resolved: make(map[finding.Signature]string)}
	var sources []string
	for _, b := range bindings {
		bundle, err := d.assemble(phaseID, target, b.roles)
		if err != nil {
			return nil, d.fail(ctx, key, b.analyzer.Name(), err)
		}
		batch, err := b.analyzer.Analyze(runCtx, bundle)
		if err != nil {
			return nil, d.fail(ctx, key, b.analyzer.Name(), err)
		}
		sources = append(sources, b.analyzer.Name())
		merged.Findings = append(merged.Findings, batch.Findings...)
		for sig, evidence := range batch.Resolved {
			merged.Resolved[sig] = evidence
		}
	}
	merged.Source = sources[0]
	if len(sources) > 1 {
		merged.Source = fmt.Sprintf("%s(+%d)", sources[0], len(sources)-1)
	}

	added, err := d.store.CommitBatch(ctx, merged)
	if err != nil {
		return nil, d.fail(ctx, key, merged.Source, err)
	}

	d.mu.Lock()
	delete(d.failures, key)
	d.successes[key] = time.Now().UTC()
	d.mu.Unlock()

	if d.findingCounter != nil {
		d.findingCounter.Add(ctx, int64(added), metric.WithAttributes(attribute.String("phase", phaseID)))
	}
	d.logger.Info(ctx, "analysis complete",
		zap.String("phase", phaseID),
		zap.String("target", target),
		zap.Int("findings", len(merged.Findings)),
		zap.Int("new", added))
	return merged, nil
}

// assemble resolves the bound artifact roles into a bundle. Roles that do
// not resolve are fatal: an analyzer running on a partial bundle would
// report a misleadingly clean result.
func (d *Dispatcher) assemble(phaseID, target string, roles []string) (Bundle, error) {
	b := Bundle{PhaseID: phaseID, Target: target, Root: d.resolver.Root(), Artifacts: make(map[string]artifact.Resolution, len(roles))}
	for _, role := range roles {
		res, err := d.resolver.Resolve(role)
		if err != nil {
			return Bundle{}, fmt.Errorf("assemble bundle role %q: %w", role, err)
		}
		b.Artifacts[role] = res
	}
	return b, nil
}

func (d *Dispatcher) fail(ctx context.Context, key leaseKey, analyzer string, cause error) error {
	f := Failure{
		PhaseID:  key.phase,
		Target:   key.target,
		Analyzer: analyzer,
		Err:      cause.Error(),
		At:       time.Now().UTC(),
	}
	d.mu.Lock()
	d.failures[key] = f
	d.mu.Unlock()

	if d.failCounter != nil {
		d.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", key.phase)))
	}
	d.logger.Error(ctx, "analysis failed",
		zap.String("phase", key.phase),
		zap.String("target", key.target),
		zap.String("analyzer", analyzer),
		zap.Error(cause))
	return fmt.Errorf("%w: %s: %v", ErrAnalyzerFailure, analyzer, cause)
}
