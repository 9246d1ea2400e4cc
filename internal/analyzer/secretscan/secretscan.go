// Package secretscan is the built-in analyzer that scans artifact bundles
// for leaked credentials using the Gitleaks rule set.
package secretscan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/fyrsmithlabs/gatehouse/internal/dispatch"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
)

// Name is the analyzer's registered name, referenced from pipeline
// configuration.
const Name = "secretscan"

// maxFileSize caps how much of a single file the scanner reads. Secrets in
// files beyond this size are vanishingly rare compared to the scan cost.
const maxFileSize = 1 << 20

// Analyzer scans every file in the bundle's artifact resolutions with the
// default Gitleaks detector.
type Analyzer struct {
	detector *detect.Detector
}

// New builds the analyzer with the default Gitleaks configuration.
func New() (*Analyzer, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("init gitleaks detector: %w", err)
	}
	return &Analyzer{detector: d}, nil
}

func (a *Analyzer) Name() string { return Name }

// Analyze scans the bundle's files. Every detected secret becomes a
// critical finding: a leaked credential is never a matter of degree.
func (a *Analyzer) Analyze(ctx context.Context, bundle dispatch.Bundle) (*finding.Batch, error) {
	batch := &finding.Batch{Source: Name}
	for _, res := range bundle.Artifacts {
		for _, rel := range res.Paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			findings, err := a.scanFile(bundle.Root, rel)
			if err != nil {
				return nil, err
			}
			batch.Findings = append(batch.Findings, findings...)
		}
	}
	return batch, nil
}

// scanFile scans one file. rel is the registry-relative path; it is joined
// with the bundle root for I/O and kept as-is in finding locations.
func (a *Analyzer) scanFile(root, rel string) ([]finding.Finding, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() || info.Size() > maxFileSize {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var out []finding.Finding
	for _, f := range a.detector.DetectString(string(data)) {
		out = append(out, finding.Finding{
			Title:       fmt.Sprintf("secret detected: %s", f.RuleID),
			Severity:    finding.SeverityCritical,
			Location:    fmt.Sprintf("%s:%d", rel, f.StartLine),
			Description: f.Description,
			Source:      Name,
		})
	}
	return out, nil
}
