package finding

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "findings.json"), nil)
	require.NoError(t, err)
	return s
}

func batch(source string, findings ...Finding) *Batch {
	return &Batch{Source: source, Findings: findings}
}

func TestCommitBatchAppends(t *testing.T) {
	s := newTestStore(t)

	added, err := s.CommitBatch(context.Background(), batch("secretscan",
		Finding{Title: "hardcoded key", Severity: SeverityCritical, Location: "src/main.go:10"},
		Finding{Title: "weak rng", Severity: SeverityMedium, Location: "src/rand.go:4"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	all := s.All()
	require.Len(t, all, 2)
	for _, f := range all {
		assert.NotEmpty(t, f.ID)
		assert.Equal(t, StatusOpen, f.Status)
		assert.Equal(t, "secretscan", f.Source)
	}
}

func TestCommitBatchDeduplicatesBySignature(t *testing.T) {
	s := newTestStore(t)
	b := batch("secretscan",
		Finding{Title: "hardcoded key", Severity: SeverityCritical, Location: "src/main.go:10"},
	)

	_, err := s.CommitBatch(context.Background(), b)
	require.NoError(t, err)
	first := s.All()[0]

	// Same inputs, second run: same cardinality, status untouched.
	added, err := s.CommitBatch(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	require.Len(t, s.All(), 1)
	assert.Equal(t, first.ID, s.All()[0].ID)
	assert.Equal(t, StatusOpen, s.All()[0].Status)
}

func TestCommitBatchResolvedClosesExisting(t *testing.T) {
	s := newTestStore(t)
	sig := Signature{Title: "hardcoded key", Location: "src/main.go:10"}

	_, err := s.CommitBatch(context.Background(), batch("secretscan",
		Finding{Title: sig.Title, Severity: SeverityCritical, Location: sig.Location},
	))
	require.NoError(t, err)

	_, err = s.CommitBatch(context.Background(), &Batch{
		Source:   "secretscan",
		Resolved: map[Signature]string{sig: "rerun clean at HEAD"},
	})
	require.NoError(t, err)

	f := s.All()[0]
	assert.Equal(t, StatusFixed, f.Status)
	assert.Equal(t, "rerun clean at HEAD", f.RegressionEvidence)
	assert.False(t, f.Blocks())
}

func TestStatusTransitionGuards(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CommitBatch(context.Background(), batch("secretscan",
		Finding{Title: "hardcoded key", Severity: SeverityHigh, Location: "src/a.go:1"},
	))
	require.NoError(t, err)
	id := s.All()[0].ID

	assert.ErrorIs(t, s.MarkFixed(id, ""), ErrEvidenceRequired)
	assert.ErrorIs(t, s.AcceptRisk(id, ""), ErrJustificationRequired)
	assert.ErrorIs(t, s.MarkFixed("ghost", "evidence"), ErrFindingNotFound)

	require.NoError(t, s.AcceptRisk(id, "test credential, rotated weekly"))
	f, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusAcceptedRisk, f.Status)
	assert.False(t, f.Blocks())

	require.NoError(t, s.Reopen(id))
	f, _ = s.Get(id)
	assert.Equal(t, StatusOpen, f.Status)
	assert.Empty(t, f.Justification)
}

func TestSupersedeKeepsHistory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CommitBatch(context.Background(), batch("secretscan",
		Finding{Title: "old", Severity: SeverityLow, Location: "src/a.go:1"},
		Finding{Title: "new", Severity: SeverityLow, Location: "src/a.go:2"},
	))
	require.NoError(t, err)

	all := s.All()
	require.NoError(t, s.Supersede(all[0].ID, all[1].ID))

	assert.Len(t, s.All(), 2, "superseded findings stay in the store")
	active := s.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "new", active[0].Title)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "findings.json")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	_, err = s.CommitBatch(context.Background(), batch("secretscan",
		Finding{Title: "hardcoded key", Severity: SeverityCritical, Location: "src/main.go:10"},
	))
	require.NoError(t, err)

	reopened, err := OpenStore(path, nil)
	require.NoError(t, err)
	require.Len(t, reopened.All(), 1)
	assert.Equal(t, s.All()[0].ID, reopened.All()[0].ID)
}
