package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/gatehouse/internal/checklist"
	"github.com/fyrsmithlabs/gatehouse/internal/engine"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
	"github.com/fyrsmithlabs/gatehouse/internal/gate"
)

type routeIntentInput struct {
	Text string `json:"text" jsonschema:"required,Free-text description of the work about to start"`
}

type routeIntentOutput struct {
	Phase          string   `json:"phase" jsonschema:"Phase whose gate applies"`
	Score          float64  `json:"score" jsonschema:"Routing confidence in [0,1]"`
	Matched        []string `json:"matched,omitempty" jsonschema:"Keywords that matched"`
	EntrySatisfied bool     `json:"entry_satisfied" jsonschema:"Whether the phase's entry artifacts exist"`
	ExitSatisfied  bool     `json:"exit_satisfied" jsonschema:"Whether the phase's required checklist is complete"`
	MissingRoles   []string `json:"missing_roles,omitempty" jsonschema:"Entry artifact roles still missing"`
	MissingItems   []string `json:"missing_items,omitempty" jsonschema:"Required checklist items still unsatisfied"`
}

type gateCheckInput struct {
	Action   string `json:"action" jsonschema:"required,Action kind: write execute or delete"`
	Resource string `json:"resource" jsonschema:"required,Resource path relative to the project root"`
}

type gateCheckOutput struct {
	Allowed       bool     `json:"allowed" jsonschema:"Whether the action may proceed"`
	Reason        string   `json:"reason,omitempty" jsonschema:"Why the action is blocked"`
	RequiredPhase string   `json:"required_phase,omitempty" jsonschema:"Phase the resource belongs to"`
	MissingRoles  []string `json:"missing_roles,omitempty" jsonschema:"Artifact roles that would open the phase"`
}

type phaseStatusInput struct {
	Phase string `json:"phase,omitempty" jsonschema:"Phase id; empty means the current phase"`
}

type phaseStatusOutput struct {
	CurrentPhase string             `json:"current_phase" jsonschema:"The project's inferred current phase"`
	Report       engine.PhaseReport `json:"report" jsonschema:"Standing of the requested phase"`
}

func (s *Server) registerRoutingTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "route_intent",
		Description: "Declare intended work and learn which phase gate applies before starting",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args routeIntentInput) (*mcp.CallToolResult, routeIntentOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "route_intent", time.Since(start), toolErr) }()

		res, err := s.engine.RouteIntent(ctx, args.Text)
		if err != nil {
			toolErr = err
			return nil, routeIntentOutput{}, err
		}
		out := routeIntentOutput{
			Phase:          res.Match.PhaseID,
			Score:          res.Match.Score,
			Matched:        res.Match.Matched,
			EntrySatisfied: res.Phase.EntrySatisfied,
			ExitSatisfied:  res.Phase.ExitSatisfied,
			MissingRoles:   res.Phase.MissingRoles,
			MissingItems:   res.Phase.MissingItems,
		}
		return textResult("intent routed to phase %s", out.Phase), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "gate_check",
		Description: "Check whether a concrete action on a resource is allowed right now",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args gateCheckInput) (*mcp.CallToolResult, gateCheckOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "gate_check", time.Since(start), toolErr) }()

		kind := gate.Kind(strings.ToLower(args.Action))
		switch kind {
		case gate.KindWrite, gate.KindExecute, gate.KindDelete:
		default:
			toolErr = fmt.Errorf("invalid action %q", args.Action)
			return nil, gateCheckOutput{}, toolErr
		}

		d := s.engine.CheckAction(ctx, kind, args.Resource)
		out := gateCheckOutput{
			Allowed:       d.Allowed,
			Reason:        d.Reason,
			RequiredPhase: d.RequiredPhase,
			MissingRoles:  d.MissingRoles,
		}
		if d.Allowed {
			return textResult("allowed"), out, nil
		}
		s.metrics.RecordBlock(ctx, "gate_check", d.RequiredPhase)
		return textResult("blocked: %s", d.Reason), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "phase_status",
		Description: "Report the standing of a phase, or of the project's current phase",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args phaseStatusInput) (*mcp.CallToolResult, phaseStatusOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "phase_status", time.Since(start), toolErr) }()

		st, err := s.engine.Status(ctx)
		if err != nil {
			toolErr = err
			return nil, phaseStatusOutput{}, err
		}
		phaseID := args.Phase
		if phaseID == "" {
			phaseID = st.CurrentPhase
		}
		report, err := s.engine.HandlePhase(ctx, phaseID)
		if err != nil {
			toolErr = err
			return nil, phaseStatusOutput{}, err
		}
		out := phaseStatusOutput{CurrentPhase: st.CurrentPhase, Report: report}
		return textResult("current phase %s", st.CurrentPhase), out, nil
	})
}

type verifyChecklistInput struct {
	Phase string `json:"phase" jsonschema:"required,Phase whose checklist to verify"`
}

type verifyChecklistOutput struct {
	ExitSatisfied bool             `json:"exit_satisfied" jsonschema:"Whether all required items are satisfied"`
	MissingItems  []string         `json:"missing_items,omitempty" jsonschema:"Required items still unsatisfied"`
	Items         []checklist.Item `json:"items" jsonschema:"Item-level verification results"`
}

type recordApprovalInput struct {
	Key       string `json:"key" jsonschema:"required,Approval key from the pipeline configuration"`
	GrantedBy string `json:"granted_by" jsonschema:"required,Who granted the approval"`
}

type recordApprovalOutput struct {
	Key     string `json:"key" jsonschema:"The granted approval key"`
	Granted bool   `json:"granted" jsonschema:"Always true on success"`
}

type advancePhaseInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"Transition kind: advance ship or regress (default advance)"`
	To   string `json:"to,omitempty" jsonschema:"Target phase for regress"`
}

type advancePhaseOutput struct {
	Allowed          bool     `json:"allowed" jsonschema:"Whether the transition may happen"`
	From             string   `json:"from" jsonschema:"Current phase"`
	To               string   `json:"to,omitempty" jsonschema:"Destination phase"`
	Reasons          []string `json:"reasons,omitempty" jsonschema:"Every reason the transition is blocked"`
	MissingItems     []string `json:"missing_items,omitempty" jsonschema:"Unsatisfied required checklist items"`
	MissingRoles     []string `json:"missing_roles,omitempty" jsonschema:"Missing entry artifacts of the destination"`
	BlockingFindings []string `json:"blocking_findings,omitempty" jsonschema:"IDs of findings blocking the transition"`
}

func (s *Server) registerChecklistTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "verify_checklist",
		Description: "Re-verify every checklist item of a phase against current evidence",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args verifyChecklistInput) (*mcp.CallToolResult, verifyChecklistOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "verify_checklist", time.Since(start), toolErr) }()

		report, err := s.engine.VerifyPhase(ctx, args.Phase)
		if err != nil {
			toolErr = err
			return nil, verifyChecklistOutput{}, err
		}
		out := verifyChecklistOutput{
			ExitSatisfied: report.ExitSatisfied,
			MissingItems:  report.MissingItems,
			Items:         report.Items,
		}
		return textResult("%d items verified for %s", len(out.Items), args.Phase), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "record_approval",
		Description: "Record an explicit approval, satisfying approval-backed checklist items",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args recordApprovalInput) (*mcp.CallToolResult, recordApprovalOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "record_approval", time.Since(start), toolErr) }()

		if args.Key == "" || args.GrantedBy == "" {
			toolErr = fmt.Errorf("key and granted_by are required")
			return nil, recordApprovalOutput{}, toolErr
		}
		if err := s.engine.RecordApproval(ctx, args.Key, args.GrantedBy); err != nil {
			toolErr = err
			return nil, recordApprovalOutput{}, err
		}
		out := recordApprovalOutput{Key: args.Key, Granted: true}
		return textResult("approval %s recorded", args.Key), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "advance_phase",
		Description: "Request a phase transition; reports every blocker when denied",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args advancePhaseInput) (*mcp.CallToolResult, advancePhaseOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "advance_phase", time.Since(start), toolErr) }()

		kind := finding.TransitionKind(args.Kind)
		if args.Kind == "" {
			kind = finding.TransitionAdvance
		}

		var res engine.TransitionResult
		var err error
		switch kind {
		case finding.TransitionRegress:
			if args.To == "" {
				toolErr = fmt.Errorf("regress requires a target phase")
				return nil, advancePhaseOutput{}, toolErr
			}
			res, err = s.engine.Regress(ctx, args.To)
		case finding.TransitionAdvance, finding.TransitionShip:
			res, err = s.engine.Advance(ctx, kind)
		default:
			toolErr = fmt.Errorf("invalid transition kind %q", args.Kind)
			return nil, advancePhaseOutput{}, toolErr
		}
		if err != nil {
			toolErr = err
			return nil, advancePhaseOutput{}, err
		}

		out := advancePhaseOutput{
			Allowed:          res.Allowed,
			From:             res.From,
			To:               res.To,
			Reasons:          res.Reasons,
			MissingItems:     res.MissingItems,
			MissingRoles:     res.MissingRoles,
			BlockingFindings: res.BlockingFindings,
		}
		if !res.Allowed {
			s.metrics.RecordBlock(ctx, "advance_phase", res.From)
			return textResult("transition blocked: %s", strings.Join(res.Reasons, "; ")), out, nil
		}
		return textResult("%s from %s permitted", kind, res.From), out, nil
	})
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}
