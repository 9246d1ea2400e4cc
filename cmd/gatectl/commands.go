package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gatehoused server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/healthz")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project's inferred phase state",
	Long: `Show the project's derived state: current phase, per-phase entry and
exit standing, active findings, and artifact conflicts.

Examples:
  gatectl status
  gatectl status --server http://localhost:9180`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/status")
	},
}

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List non-superseded findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/findings")
	},
}

// GateRequest matches internal/http/server.go GateRequest
type GateRequest struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

var checkCmd = &cobra.Command{
	Use:     "check <action> <resource>",
	Aliases: []string{"gate"},
	Short:   "Evaluate a gate decision for an action on a resource",
	Long: `Evaluate whether an action on a resource is allowed in the project's
current phase.

Examples:
  gatectl check write src/main.go
  gatectl check delete dist/release.tar.gz`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/gate", GateRequest{Action: args[0], Resource: args[1]})
	},
}

// RouteRequest matches internal/http/server.go RouteRequest
type RouteRequest struct {
	Text string `json:"text"`
}

var routeCmd = &cobra.Command{
	Use:   "route <text>...",
	Short: "Route an intent description to its governing phase",
	Long: `Route a free-form intent description to its governing phase and report
that phase's standing.

Examples:
  gatectl route implement the retry loop
  gatectl route "design the storage schema"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/route", RouteRequest{Text: strings.Join(args, " ")})
	},
}

// VerifyRequest matches internal/http/server.go VerifyRequest
type VerifyRequest struct {
	Phase string `json:"phase"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify <phase>",
	Short: "Re-run a phase's checklist and report item-level results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/verify", VerifyRequest{Phase: args[0]})
	},
}

// ApproveRequest matches internal/http/server.go ApproveRequest
type ApproveRequest struct {
	Key       string `json:"key"`
	GrantedBy string `json:"granted_by"`
}

var approveBy string

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Grant a named approval",
	Long: `Grant a named approval key, satisfying approval-backed checklist items.

Examples:
  gatectl approve design --by alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/approve", ApproveRequest{Key: args[0], GrantedBy: approveBy})
	},
}

// AdvanceRequest matches internal/http/server.go AdvanceRequest
type AdvanceRequest struct {
	Kind string `json:"kind"`
	To   string `json:"to"`
}

var (
	advanceKind string
	advanceTo   string
)

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Request a phase transition; reports every blocker when denied",
	Long: `Request a phase transition from the project's inferred current phase.

Examples:
  gatectl advance
  gatectl advance --kind ship
  gatectl advance --kind regress --to design`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/advance", AdvanceRequest{Kind: advanceKind, To: advanceTo})
	},
}

// AnalyzeRequest matches internal/http/server.go AnalyzeRequest
type AnalyzeRequest struct {
	Phase  string `json:"phase"`
	Target string `json:"target"`
}

var analyzeTarget string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <phase>",
	Short: "Run the analyzers bound to a phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/analyze", AnalyzeRequest{Phase: args[0], Target: analyzeTarget})
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveBy, "by", "", "who grants the approval")
	advanceCmd.Flags().StringVar(&advanceKind, "kind", "advance", "transition kind: advance, ship, or regress")
	advanceCmd.Flags().StringVar(&advanceTo, "to", "", "target phase for regress")
	analyzeCmd.Flags().StringVar(&analyzeTarget, "target", "repo", "analysis target")
}
