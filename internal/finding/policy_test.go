package finding

import (
	"testing"
)

func open(sev Severity) Finding {
	return Finding{ID: "f-" + string(sev), Title: "t", Location: "l", Severity: sev, Status: StatusOpen}
}

func TestTransitionPermittedBlocksOnCriticalAndHigh(t *testing.T) {
	p := DefaultPolicy()
	kinds := []TransitionKind{TransitionAdvance, TransitionShip, TransitionRegress}

	for _, sev := range []Severity{SeverityCritical, SeverityHigh} {
		findings := []Finding{open(sev)}
		for _, kind := range kinds {
			ok, blocking := p.TransitionPermitted(kind, findings)
			if ok {
				t.Errorf("%s finding did not block %s", sev, kind)
			}
			if len(blocking) != 1 || blocking[0] != findings[0].ID {
				t.Errorf("%s/%s blocking ids = %v, want the finding id", sev, kind, blocking)
			}
		}
	}
}

func TestTransitionPermittedMediumBlocksOnlyShip(t *testing.T) {
	p := DefaultPolicy()
	findings := []Finding{open(SeverityMedium)}

	if ok, _ := p.TransitionPermitted(TransitionShip, findings); ok {
		t.Error("medium finding did not block ship")
	}
	if ok, _ := p.TransitionPermitted(TransitionAdvance, findings); !ok {
		t.Error("medium finding blocked advance")
	}
}

func TestTransitionPermittedLowAndInformational(t *testing.T) {
	p := DefaultPolicy()
	findings := []Finding{open(SeverityLow), open(SeverityInformational)}

	for _, kind := range []TransitionKind{TransitionAdvance, TransitionShip, TransitionRegress} {
		if ok, _ := p.TransitionPermitted(kind, findings); !ok {
			t.Errorf("low/informational findings blocked %s", kind)
		}
	}
}

func TestAcceptedRiskDoesNotBlock(t *testing.T) {
	p := DefaultPolicy()
	f := open(SeverityCritical)
	f.Status = StatusAcceptedRisk
	f.Justification = "isolated test harness, not reachable in production"

	if ok, _ := p.TransitionPermitted(TransitionShip, []Finding{f}); !ok {
		t.Error("accepted-risk finding blocked ship")
	}
}

func TestFixedWithoutEvidenceStillBlocks(t *testing.T) {
	p := DefaultPolicy()
	f := open(SeverityHigh)
	f.Status = StatusFixed

	if ok, _ := p.TransitionPermitted(TransitionAdvance, []Finding{f}); ok {
		t.Error("fixed finding without regression evidence did not block")
	}

	f.RegressionEvidence = "TestDepositOverflowRegression"
	if ok, _ := p.TransitionPermitted(TransitionAdvance, []Finding{f}); !ok {
		t.Error("fixed finding with regression evidence blocked")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig(map[string][]string{
		"critical": {"advance", "ship"},
		"medium":   {"ship"},
		"low":      {},
	})
	if err != nil {
		t.Fatalf("PolicyFromConfig failed: %v", err)
	}
	if ok, _ := p.TransitionPermitted(TransitionShip, []Finding{open(SeverityMedium)}); ok {
		t.Error("configured medium policy did not block ship")
	}

	if _, err := PolicyFromConfig(map[string][]string{"bogus": {"ship"}}); err == nil {
		t.Error("PolicyFromConfig accepted unknown severity")
	}
	if _, err := PolicyFromConfig(map[string][]string{"high": {"teleport"}}); err == nil {
		t.Error("PolicyFromConfig accepted unknown transition kind")
	}
}

func TestParseSeverity(t *testing.T) {
	if sev, err := ParseSeverity("HIGH"); err != nil || sev != SeverityHigh {
		t.Errorf("ParseSeverity(HIGH) = %v, %v", sev, err)
	}
	if _, err := ParseSeverity("urgent"); err == nil {
		t.Error("ParseSeverity accepted unknown value")
	}
	if !SeverityCritical.AtLeast(SeverityMedium) {
		t.Error("critical not AtLeast medium")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Error("low AtLeast medium")
	}
}
