// Package repository drives the on-disk working copy of the analyzed project.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/dbsmedya/refmetrics/internal/logger"
)

var (
	// ErrUnknownRevision is returned when a commit id cannot be resolved in
	// the working copy.
	ErrUnknownRevision = errors.New("unknown revision")

	// ErrNoParent is returned when the parent of a root commit is requested.
	ErrNoParent = errors.New("commit has no parent")
)

// GitDriver performs clone and checkout operations on one working copy per
// project key, stored under a common root directory.
//
// Every operation is retried according to the driver's RetryPolicy. Unknown
// revisions and parent-less commits fail immediately.
type GitDriver struct {
	root   string
	policy RetryPolicy
	logger *logger.Logger
}

// NewGitDriver creates a driver whose working copies live under root.
func NewGitDriver(root string, policy RetryPolicy, log *logger.Logger) (*GitDriver, error) {
	if root == "" {
		return nil, fmt.Errorf("projects root is empty")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &GitDriver{
		root:   root,
		policy: policy,
		logger: log,
	}, nil
}

// Path returns the working copy directory for projectKey.
func (d *GitDriver) Path(projectKey string) string {
	return filepath.Join(d.root, projectKey)
}

// Prepare removes any existing working copy for projectKey and clones
// repoURL into it.
func (d *GitDriver) Prepare(ctx context.Context, projectKey, repoURL string) error {
	path := d.Path(projectKey)

	return Retry(ctx, d.policy, d.logger, "clone "+repoURL, func(ctx context.Context) error {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d.root, err)
		}

		_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
			URL: repoURL,
		})
		if err != nil {
			if isPermanentCloneError(err) {
				return Permanent(fmt.Errorf("clone failed: %w", err))
			}
			return fmt.Errorf("clone failed: %w", err)
		}
		return nil
	})
}

// CheckoutExact forces the working copy to commitID, discarding local changes.
func (d *GitDriver) CheckoutExact(ctx context.Context, projectKey, commitID string) error {
	return Retry(ctx, d.policy, d.logger, "checkout "+commitID, func(ctx context.Context) error {
		repo, err := d.open(projectKey)
		if err != nil {
			return err
		}

		hash, err := resolve(repo, commitID)
		if err != nil {
			return err
		}

		return forceCheckout(repo, hash)
	})
}

// CheckoutParent forces the working copy to commitID and then to its first
// parent, discarding local changes.
func (d *GitDriver) CheckoutParent(ctx context.Context, projectKey, commitID string) error {
	return Retry(ctx, d.policy, d.logger, "checkout parent of "+commitID, func(ctx context.Context) error {
		repo, err := d.open(projectKey)
		if err != nil {
			return err
		}

		hash, err := resolve(repo, commitID)
		if err != nil {
			return err
		}

		if err := forceCheckout(repo, hash); err != nil {
			return err
		}

		commit, err := repo.CommitObject(hash)
		if err != nil {
			return fmt.Errorf("failed to read commit %s: %w", hash, err)
		}
		if commit.NumParents() == 0 {
			return Permanent(fmt.Errorf("%w: %s", ErrNoParent, commitID))
		}

		return forceCheckout(repo, commit.ParentHashes[0])
	})
}

// Head returns the hash the working copy is currently checked out at.
func (d *GitDriver) Head(projectKey string) (string, error) {
	repo, err := d.open(projectKey)
	if err != nil {
		return "", err
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

func (d *GitDriver) open(projectKey string) (*git.Repository, error) {
	repo, err := git.PlainOpen(d.Path(projectKey))
	if err != nil {
		return nil, fmt.Errorf("failed to open working copy %s: %w", d.Path(projectKey), err)
	}
	return repo, nil
}

// isPermanentCloneError reports clone failures that no retry can fix.
func isPermanentCloneError(err error) bool {
	return errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository)
}

// resolve turns a full or abbreviated commit id into a hash.
func resolve(repo *git.Repository, commitID string) (plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(commitID))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return plumbing.ZeroHash, Permanent(fmt.Errorf("%w: %s", ErrUnknownRevision, commitID))
		}
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve %s: %w", commitID, err)
	}
	return *hash, nil
}

// forceCheckout detaches HEAD at hash and hard-resets the worktree.
func forceCheckout(repo *git.Repository, hash plumbing.Hash) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s failed: %w", hash, err)
	}

	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset %s failed: %w", hash, err)
	}

	return nil
}
