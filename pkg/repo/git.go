package repo

import (
	"context"
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// tokenUser is the username GitHub expects next to a personal access token
// when authenticating over HTTPS.
const tokenUser = "x-access-token"

// TokenAuth builds the transport auth for a GitHub token. A missing token
// yields nil auth so public repositories still work.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUser, Password: token}
}

// Workspace is a local clone the coding assistant edits.
type Workspace struct {
	dir  string
	auth transport.AuthMethod
	repo *git.Repository
}

// Dir returns the root directory of the clone.
func (w *Workspace) Dir() string {
	return w.dir
}

type CloneParams struct {
	URL   string
	Dir   string
	Token string
}

// Clone checks out a fresh copy of the repository, replacing anything
// already at the target directory.
func Clone(ctx context.Context, params CloneParams) (*Workspace, error) {
	if err := os.RemoveAll(params.Dir); err != nil {
		return nil, errors.Wrap(err, "cleaning workspace directory")
	}
	if err := os.MkdirAll(params.Dir, os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "creating workspace directory")
	}

	auth := TokenAuth(params.Token)
	repository, err := git.PlainCloneContext(ctx, params.Dir, false, &git.CloneOptions{
		URL:  params.URL,
		Auth: auth,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cloning %s", params.URL)
	}
	log.Ctx(ctx).Info().Str("URL", params.URL).Str("Dir", params.Dir).Msg("cloned repository")

	return &Workspace{
		dir:  params.Dir,
		auth: auth,
		repo: repository,
	}, nil
}

// Open attaches to an existing clone.
func Open(dir string, token string) (*Workspace, error) {
	repository, err := git.PlainOpen(dir)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		dir:  dir,
		auth: TokenAuth(token),
		repo: repository,
	}, nil
}

// SetIdentity writes the commit identity into the clone's local git config,
// so commits carry the agent's configured name and email.
func (w *Workspace) SetIdentity(name, email string) error {
	cfg, err := w.repo.Config()
	if err != nil {
		return err
	}
	cfg.User.Name = name
	cfg.User.Email = email
	return w.repo.SetConfig(cfg)
}

// CheckoutBranch switches to the named branch, creating it from the current
// HEAD when it does not exist yet.
func (w *Workspace) CheckoutBranch(name string) error {
	worktree, err := w.repo.Worktree()
	if err != nil {
		return err
	}
	branch := plumbing.NewBranchReferenceName(name)
	if err = worktree.Checkout(&git.CheckoutOptions{Branch: branch}); err == nil {
		return nil
	}
	return worktree.Checkout(&git.CheckoutOptions{Branch: branch, Create: true})
}

// CurrentBranch returns the name of the branch HEAD points at.
func (w *Workspace) CurrentBranch() (string, error) {
	head, err := w.repo.Head()
	if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return "", errors.New("HEAD is detached")
	}
	return head.Name().Short(), nil
}

// HasChanges reports whether the worktree has uncommitted edits, including
// untracked files.
func (w *Workspace) HasChanges() (bool, error) {
	worktree, err := w.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := worktree.Status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

// CommitAll stages every change and commits it with the configured identity.
// Returns false without error when the worktree is clean, which happens when
// the assistant finishes without touching anything.
func (w *Workspace) CommitAll(message string, name, email string) (bool, error) {
	worktree, err := w.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := worktree.Status()
	if err != nil {
		return false, err
	}
	if status.IsClean() {
		log.Debug().Str("Dir", w.dir).Msg("no changes detected, nothing to commit")
		return false, nil
	}

	if err = worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, errors.Wrap(err, "staging changes")
	}
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  name,
			Email: email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "committing changes")
	}
	return true, nil
}

// HeadDiff returns the textual patch the HEAD commit introduces over its
// first parent, or empty for a root commit.
func (w *Workspace) HeadDiff(ctx context.Context) (string, error) {
	head, err := w.repo.Head()
	if err != nil {
		return "", err
	}
	commit, err := w.repo.CommitObject(head.Hash())
	if err != nil {
		return "", err
	}
	if commit.NumParents() == 0 {
		return "", nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return "", err
	}
	patch, err := parent.PatchContext(ctx, commit)
	if err != nil {
		return "", errors.Wrap(err, "diffing HEAD against its parent")
	}
	return patch.String(), nil
}

// Reword replaces the HEAD commit's message, keeping its tree and parent.
func (w *Workspace) Reword(message string, name, email string) error {
	worktree, err := w.repo.Worktree()
	if err != nil {
		return err
	}
	_, err = worktree.Commit(message, &git.CommitOptions{
		Amend: true,
		Author: &object.Signature{
			Name:  name,
			Email: email,
			When:  time.Now(),
		},
	})
	return errors.Wrap(err, "rewording HEAD commit")
}

// Push uploads the current branch to origin, returning false when the remote
// is already up to date.
func (w *Workspace) Push(ctx context.Context) (bool, error) {
	branch, err := w.CurrentBranch()
	if err != nil {
		return false, err
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       w.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		log.Ctx(ctx).Debug().Str("Branch", branch).Msg("no new commits to push")
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "pushing %s", branch)
	}
	return true, nil
}
