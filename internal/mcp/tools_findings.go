package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/gatehouse/internal/finding"
)

type runAnalyzerInput struct {
	Phase  string `json:"phase" jsonschema:"required,Phase whose bound analyzers to run"`
	Target string `json:"target,omitempty" jsonschema:"Analysis target, e.g. a component name (default repo)"`
}

type runAnalyzerOutput struct {
	Source   string          `json:"source" jsonschema:"Analyzer(s) that produced the batch"`
	Findings []findingRecord `json:"findings" jsonschema:"Findings observed by this run"`
	Count    int             `json:"count" jsonschema:"Number of findings in the batch"`
}

type findingRecord struct {
	ID       string `json:"id,omitempty" jsonschema:"Finding ID once stored"`
	Title    string `json:"title" jsonschema:"Short description of the issue"`
	Severity string `json:"severity" jsonschema:"Severity rating"`
	Location string `json:"location" jsonschema:"Where the issue was observed"`
	Status   string `json:"status" jsonschema:"Lifecycle status"`
}

type resolveFindingInput struct {
	ID       string `json:"id" jsonschema:"required,Finding ID"`
	Evidence string `json:"evidence" jsonschema:"required,Reference to the regression test or check proving the fix"`
}

type acceptRiskInput struct {
	ID            string `json:"id" jsonschema:"required,Finding ID"`
	Justification string `json:"justification" jsonschema:"required,Why the risk is acceptable"`
}

type findingMutationOutput struct {
	ID     string `json:"id" jsonschema:"The mutated finding ID"`
	Status string `json:"status" jsonschema:"New lifecycle status"`
}

func (s *Server) registerFindingTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_analyzer",
		Description: "Run the phase's bound analyzers and reconcile their findings",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args runAnalyzerInput) (*mcp.CallToolResult, runAnalyzerOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "run_analyzer", time.Since(start), toolErr) }()

		target := args.Target
		if target == "" {
			target = "repo"
		}
		batch, err := s.engine.RunAnalyzer(ctx, args.Phase, target)
		if err != nil {
			toolErr = err
			return nil, runAnalyzerOutput{}, err
		}

		out := runAnalyzerOutput{Source: batch.Source, Count: len(batch.Findings)}
		for _, f := range batch.Findings {
			out.Findings = append(out.Findings, findingRecord{
				ID:       f.ID,
				Title:    f.Title,
				Severity: string(f.Severity),
				Location: f.Location,
				Status:   string(f.Status),
			})
		}
		return textResult("analysis complete: %d findings", out.Count), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "resolve_finding",
		Description: "Mark a finding fixed, with the regression evidence that proves it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args resolveFindingInput) (*mcp.CallToolResult, findingMutationOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "resolve_finding", time.Since(start), toolErr) }()

		if err := s.engine.ResolveFinding(ctx, args.ID, args.Evidence); err != nil {
			toolErr = err
			return nil, findingMutationOutput{}, err
		}
		out := findingMutationOutput{ID: args.ID, Status: string(finding.StatusFixed)}
		return textResult("finding %s marked fixed", args.ID), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "accept_risk",
		Description: "Accept a finding's risk with an explicit justification",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args acceptRiskInput) (*mcp.CallToolResult, findingMutationOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() { s.metrics.RecordInvocation(ctx, "accept_risk", time.Since(start), toolErr) }()

		if err := s.engine.AcceptRisk(ctx, args.ID, args.Justification); err != nil {
			toolErr = err
			return nil, findingMutationOutput{}, err
		}
		out := findingMutationOutput{ID: args.ID, Status: string(finding.StatusAcceptedRisk)}
		return textResult("finding %s accepted as risk", args.ID), out, nil
	})
}
