package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

// Errors for registry operations.
var (
	ErrUnknownRole      = errors.New("unknown artifact role")
	ErrInvalidLocator   = errors.New("invalid artifact locator")
	ErrArtifactConflict = errors.New("artifact roles resolve to the same file")
)

// Resolution is the physical resolution of a role at scan time.
type Resolution struct {
	Role    string    `json:"role"`
	Paths   []string  `json:"paths"`
	ModTime time.Time `json:"mod_time"`
}

// Conflict reports two roles colliding on one physical file. It is a
// configuration defect scoped to the two roles, never fatal to the engine.
type Conflict struct {
	RoleA string `json:"role_a"`
	RoleB string `json:"role_b"`
	Path  string `json:"path"`
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%v: %s and %s both resolve to %s", ErrArtifactConflict, c.RoleA, c.RoleB, c.Path)
}

func (c Conflict) Unwrap() error { return ErrArtifactConflict }

// Registry maps logical artifact roles to locators under one project root.
type Registry struct {
	root      string
	freshness *freshness
	logger    *logging.Logger

	mu    sync.RWMutex
	roles map[string]string // role -> locator
	order []string          // registration order, for stable Scan output
}

// NewRegistry creates a registry rooted at root. sourceRoots anchor
// freshness checks; pass nil to disable freshness (Fresh == Exists).
func NewRegistry(root string, sourceRoots []string, logger *logging.Logger) (*Registry, error) {
	if root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		root:      root,
		freshness: newFreshness(root, sourceRoots),
		logger:    logger.Named("artifact"),
		roles:     make(map[string]string),
	}, nil
}

// Root returns the project root all resolutions are relative to.
func (r *Registry) Root() string { return r.root }

// Register binds a role to a locator. Re-registering a role supersedes the
// previous locator; roles are never deleted.
func (r *Registry) Register(role, locator string) error {
	if role == "" {
		return fmt.Errorf("%w: empty role", ErrInvalidLocator)
	}
	locator = filepath.ToSlash(locator)
	if locator == "" || strings.HasPrefix(locator, "/") || strings.Contains(locator, "..") {
		return fmt.Errorf("%w: %q must be relative to the project root", ErrInvalidLocator, locator)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.roles[role]; !exists {
		r.order = append(r.order, role)
	}
	r.roles[role] = locator
	return nil
}

// Roles returns all registered roles in registration order.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Exists reports whether the role resolves to at least one existing file.
// It stats on demand; there is no cache to go stale.
func (r *Registry) Exists(role string) bool {
	res, err := r.Resolve(role)
	return err == nil && len(res.Paths) > 0
}

// Resolve expands a role's locator against the current filesystem.
func (r *Registry) Resolve(role string) (Resolution, error) {
	r.mu.RLock()
	locator, ok := r.roles[role]
	r.mu.RUnlock()
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	res := Resolution{Role: role}
	if !hasMeta(locator) {
		full := filepath.Join(r.root, filepath.FromSlash(locator))
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return res, nil
			}
			return res, fmt.Errorf("stat %s: %w", full, err)
		}
		if info.IsDir() {
			// A directory counts once it contains any regular file.
			return r.resolveGlob(role, locator+"/**")
		}
		res.Paths = []string{locator}
		res.ModTime = info.ModTime()
		return res, nil
	}

	return r.resolveGlob(role, locator)
}

func (r *Registry) resolveGlob(role, pattern string) (Resolution, error) {
	res := Resolution{Role: role}

	walkRoot := filepath.Join(r.root, filepath.FromSlash(patternRoot(pattern)))
	if _, err := os.Stat(walkRoot); err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("stat %s: %w", walkRoot, err)
	}

	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchPattern(pattern, rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		res.Paths = append(res.Paths, rel)
		if info.ModTime().After(res.ModTime) {
			res.ModTime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk %s: %w", walkRoot, err)
	}
	sort.Strings(res.Paths)
	return res, nil
}

// Fresh reports whether the role exists and its newest file is not older
// than the last recorded source change. Projects without git history treat
// any existing artifact as fresh.
func (r *Registry) Fresh(role string) bool {
	res, err := r.Resolve(role)
	if err != nil || len(res.Paths) == 0 {
		return false
	}
	anchor, ok := r.freshness.lastSourceChange()
	if !ok {
		return true
	}
	return !res.ModTime.Before(anchor)
}

// Scan rescans the backing store for every registered role. It returns the
// roles that currently exist and any detected conflicts. A conflict only
// invalidates the checks of the two colliding roles; all other resolutions
// remain usable.
func (r *Registry) Scan() (map[string]Resolution, []Conflict) {
	roles := r.Roles()

	present := make(map[string]Resolution, len(roles))
	owner := make(map[string]string) // physical path -> role
	var conflicts []Conflict

	for _, role := range roles {
		res, err := r.Resolve(role)
		if err != nil {
			r.logger.Warn(context.Background(), "artifact resolution failed",
				zap.String("role", role), zap.Error(err))
			continue
		}
		if len(res.Paths) == 0 {
			continue
		}
		for _, p := range res.Paths {
			if prev, taken := owner[p]; taken {
				conflicts = append(conflicts, Conflict{RoleA: prev, RoleB: role, Path: p})
				continue
			}
			owner[p] = role
		}
		present[role] = res
	}

	for _, c := range conflicts {
		delete(present, c.RoleA)
		delete(present, c.RoleB)
	}
	return present, conflicts
}
