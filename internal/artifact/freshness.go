package artifact

import (
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// freshness resolves the "last source change" anchor for freshness checks
// from the project's git history.
type freshness struct {
	root        string
	sourceRoots []string
}

func newFreshness(root string, sourceRoots []string) *freshness {
	normalized := make([]string, 0, len(sourceRoots))
	for _, s := range sourceRoots {
		s = strings.Trim(filepath.ToSlash(s), "/")
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	return &freshness{root: root, sourceRoots: normalized}
}

// lastSourceChange returns the committer time of the most recent commit
// touching any configured source root. ok is false when the project has no
// usable git history, in which case freshness degrades to existence.
func (f *freshness) lastSourceChange() (time.Time, bool) {
	repo, err := git.PlainOpen(f.root)
	if err != nil {
		return time.Time{}, false
	}
	head, err := repo.Head()
	if err != nil {
		return time.Time{}, false
	}

	opts := &git.LogOptions{From: head.Hash()}
	if len(f.sourceRoots) > 0 {
		opts.PathFilter = f.underSourceRoots
	}
	iter, err := repo.Log(opts)
	if err != nil {
		return time.Time{}, false
	}
	defer iter.Close()

	var commit *object.Commit
	commit, err = iter.Next()
	if err != nil || commit == nil {
		return time.Time{}, false
	}
	return commit.Committer.When, true
}

func (f *freshness) underSourceRoots(path string) bool {
	path = filepath.ToSlash(path)
	for _, root := range f.sourceRoots {
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}
