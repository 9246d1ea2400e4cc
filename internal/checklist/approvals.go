package checklist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Approval records one explicit confirmation. Approvals are settable only
// through Grant, never inferred from silence, and are durable so project
// state can be rebuilt from disk.
type Approval struct {
	Key       string    `json:"key"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// approvalsData is the persisted structure.
type approvalsData struct {
	Version   int                 `json:"version"`
	Approvals map[string]Approval `json:"approvals"`
}

// Approvals is the durable approval flag store.
type Approvals struct {
	mu       sync.RWMutex
	filePath string
	data     *approvalsData
}

// OpenApprovals loads (or initializes) the approvals file.
func OpenApprovals(filePath string) (*Approvals, error) {
	a := &Approvals{
		filePath: filePath,
		data:     &approvalsData{Version: 1, Approvals: make(map[string]Approval)},
	}

	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read approvals: %w", err)
	}
	var data approvalsData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("approvals file corrupted: %w", err)
	}
	if data.Approvals == nil {
		data.Approvals = make(map[string]Approval)
	}
	a.data = &data
	return a, nil
}

// Granted reports whether the key has been explicitly approved.
func (a *Approvals) Granted(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.data.Approvals[key]
	return ok
}

// Grant records an approval and persists it.
func (a *Approvals) Grant(key, grantedBy string) error {
	if key == "" {
		return fmt.Errorf("approval key is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data.Approvals[key] = Approval{Key: key, GrantedBy: grantedBy, GrantedAt: time.Now()}
	return a.persist()
}

// Revoke withdraws an approval and persists the change.
func (a *Approvals) Revoke(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data.Approvals, key)
	return a.persist()
}

func (a *Approvals) persist() error {
	if err := os.MkdirAll(filepath.Dir(a.filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	content, err := json.MarshalIndent(a.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode approvals: %w", err)
	}
	tmp := a.filePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write approvals: %w", err)
	}
	if err := os.Rename(tmp, a.filePath); err != nil {
		return fmt.Errorf("failed to replace approvals file: %w", err)
	}
	return nil
}
