package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitSource serves units from the tree of a single git commit
type GitSource struct {
	url    string
	commit plumbing.Hash

	// go-git trees are not safe for concurrent reads
	mu   sync.Mutex
	tree *object.Tree
}

// NewGitSource opens the repository at url, which is either a local path or
// a remote URL cloned into memory, and pins revision. An empty revision
// means HEAD.
func NewGitSource(ctx context.Context, url, revision string) (*GitSource, error) {
	repo, err := openRepository(ctx, url)
	if err != nil {
		return nil, err
	}

	if revision == "" {
		revision = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %s: %w", revision, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", hash, err)
	}

	return &GitSource{
		url:    url,
		commit: *hash,
		tree:   tree,
	}, nil
}

func openRepository(ctx context.Context, url string) (*git.Repository, error) {
	if info, err := os.Stat(url); err == nil && info.IsDir() {
		repo, err := git.PlainOpen(url)
		if err != nil {
			return nil, fmt.Errorf("failed to open repository %s: %w", url, err)
		}
		return repo, nil
	}

	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:      url,
		Progress: io.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository %s: %w", url, err)
	}
	return repo, nil
}

// Commit returns the pinned commit hash
func (s *GitSource) Commit() string { return s.commit.String() }

func (s *GitSource) Location() string {
	return fmt.Sprintf("git://%s@%s", s.url, s.commit.String()[:7])
}

func (s *GitSource) Kind() string { return KindGit }

// Find looks up path in the pinned tree
func (s *GitSource) Find(p string) (*Resource, bool) {
	s.mu.Lock()
	f, err := s.tree.File(p)
	s.mu.Unlock()
	if err != nil {
		return nil, false
	}
	return NewResource(p, s.Location(), KindGit, nil, func() (io.ReadCloser, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		contents, err := f.Contents()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		return io.NopCloser(bytes.NewReader([]byte(contents))), nil
	}), true
}
