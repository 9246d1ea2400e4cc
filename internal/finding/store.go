package finding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

// Errors for store operations.
var (
	ErrFindingNotFound       = errors.New("finding not found")
	ErrEvidenceRequired      = errors.New("regression evidence is required to mark a finding fixed")
	ErrJustificationRequired = errors.New("justification is required to accept a risk")
	ErrStoreCorrupted        = errors.New("finding store file corrupted")
)

// Batch is the normalized output of one analyzer run.
type Batch struct {
	// Source is the analyzer that produced the batch.
	Source string

	// Findings are the issues observed by this run.
	Findings []Finding

	// Resolved lists signatures the run explicitly reports as no longer
	// present, with the evidence reference proving it.
	Resolved map[Signature]string
}

// storeData is the persisted structure.
type storeData struct {
	Version  int       `json:"version"`
	Findings []Finding `json:"findings"`
}

// Store is the durable finding list. Batches become visible all at once:
// the store persists the whole updated list before swapping it in memory,
// so an interrupted commit never leaves partial state.
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     *storeData
	logger   *logging.Logger
	now      func() time.Time
}

// OpenStore loads (or initializes) the finding store at filePath.
func OpenStore(filePath string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Store{
		filePath: filePath,
		data:     &storeData{Version: 1},
		logger:   logger.Named("findings"),
		now:      time.Now,
	}

	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read finding store: %w", err)
	}
	var data storeData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	s.data = &data
	return s, nil
}

// All returns a copy of every finding, superseded ones included.
func (s *Store) All() []Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Finding, len(s.data.Findings))
	copy(out, s.data.Findings)
	return out
}

// Active returns findings that are not superseded.
func (s *Store) Active() []Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Finding, 0, len(s.data.Findings))
	for _, f := range s.data.Findings {
		if f.SupersededBy == "" {
			out = append(out, f)
		}
	}
	return out
}

// Get returns a finding by id.
func (s *Store) Get(id string) (Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.data.Findings {
		if f.ID == id {
			return f, nil
		}
	}
	return Finding{}, fmt.Errorf("%w: %s", ErrFindingNotFound, id)
}

// CommitBatch reconciles an analyzer batch against the existing list and
// persists the result atomically.
//
// Reconciliation by (title, location) signature: an exact repeat of an
// existing finding is not duplicated and its status is left untouched; a
// signature in batch.Resolved moves the existing Open finding to Fixed with
// the run's evidence reference; everything else is appended as a new Open
// finding.
func (s *Store) CommitBatch(ctx context.Context, batch *Batch) (added int, err error) {
	if batch == nil {
		return 0, fmt.Errorf("nil batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Finding, len(s.data.Findings))
	copy(next, s.data.Findings)

	existing := make(map[Signature]int, len(next))
	for i := range next {
		if next[i].SupersededBy == "" {
			existing[next[i].Sig()] = i
		}
	}

	now := s.now()
	for _, f := range batch.Findings {
		if _, seen := existing[f.Sig()]; seen {
			continue
		}
		f.ID = uuid.NewString()
		f.Source = batch.Source
		f.Status = StatusOpen
		f.CreatedAt = now
		f.UpdatedAt = now
		next = append(next, f)
		existing[f.Sig()] = len(next) - 1
		added++
	}

	for sig, evidence := range batch.Resolved {
		idx, ok := existing[sig]
		if !ok || next[idx].Status != StatusOpen {
			continue
		}
		next[idx].Status = StatusFixed
		next[idx].RegressionEvidence = evidence
		next[idx].UpdatedAt = now
	}

	if err := s.persist(&storeData{Version: s.data.Version, Findings: next}); err != nil {
		return 0, err
	}
	s.data.Findings = next
	s.logger.Info(ctx, "finding batch committed",
		zap.String("source", batch.Source),
		zap.Int("reported", len(batch.Findings)),
		zap.Int("added", added))
	return added, nil
}

// MarkFixed transitions a finding to Fixed. Regression evidence is
// mandatory: a fix without a regression reference still blocks.
func (s *Store) MarkFixed(id, regressionEvidence string) error {
	if regressionEvidence == "" {
		return ErrEvidenceRequired
	}
	return s.mutate(id, func(f *Finding) {
		f.Status = StatusFixed
		f.RegressionEvidence = regressionEvidence
	})
}

// AcceptRisk transitions a finding to AcceptedRisk. The justification must
// be non-empty; acceptance is never inferred.
func (s *Store) AcceptRisk(id, justification string) error {
	if justification == "" {
		return ErrJustificationRequired
	}
	return s.mutate(id, func(f *Finding) {
		f.Status = StatusAcceptedRisk
		f.Justification = justification
	})
}

// Reopen moves a finding back to Open, clearing prior resolution fields.
func (s *Store) Reopen(id string) error {
	return s.mutate(id, func(f *Finding) {
		f.Status = StatusOpen
		f.RegressionEvidence = ""
		f.Justification = ""
	})
}

// Supersede marks oldID as replaced by newID. The record stays in the
// store for audit history.
func (s *Store) Supersede(oldID, newID string) error {
	if _, err := s.Get(newID); err != nil {
		return err
	}
	return s.mutate(oldID, func(f *Finding) {
		f.SupersededBy = newID
	})
}

func (s *Store) mutate(id string, apply func(*Finding)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Finding, len(s.data.Findings))
	copy(next, s.data.Findings)

	idx := -1
	for i := range next {
		if next[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrFindingNotFound, id)
	}

	apply(&next[idx])
	next[idx].UpdatedAt = s.now()

	if err := s.persist(&storeData{Version: s.data.Version, Findings: next}); err != nil {
		return err
	}
	s.data.Findings = next
	return nil
}

// persist writes the whole store to a temp file and renames it into place.
func (s *Store) persist(data *storeData) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write findings: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace findings file: %w", err)
	}
	return nil
}
