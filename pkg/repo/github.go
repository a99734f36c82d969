package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v53/github"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNoChanges is returned by CreatePullRequest when the fork branch holds
// nothing the target branch does not already have.
var ErrNoChanges = errors.New("no changes between the fork and the target branch")

const (
	forkWaitAttempts = 5
	forkWaitDelay    = 2 * time.Second
)

// GitHub wraps the API operations the solver needs on top of a personal
// access token.
type GitHub struct {
	client *github.Client
	login  string
}

func NewGitHub(ctx context.Context, token string) *GitHub {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHub{
		client: github.NewClient(oauth2.NewClient(ctx, source)),
	}
}

// Login returns the authenticated user, cached after the first call.
func (g *GitHub) Login(ctx context.Context) (string, error) {
	if g.login != "" {
		return g.login, nil
	}
	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", errors.Wrap(err, "fetching authenticated user")
	}
	g.login = user.GetLogin()
	return g.login, nil
}

// Fork creates (or reuses) a fork of the repository and returns the fork's
// clone URL. GitHub forks asynchronously, so we wait for the fork to become
// visible before handing it to the clone step.
func (g *GitHub) Fork(ctx context.Context, repoURL string) (string, error) {
	owner, name, err := Split(repoURL)
	if err != nil {
		return "", err
	}

	fork, _, err := g.client.Repositories.CreateFork(ctx, owner, name, nil)
	if err != nil {
		var accepted *github.AcceptedError
		if !errors.As(err, &accepted) {
			return "", errors.Wrapf(err, "forking %s/%s", owner, name)
		}
	}
	if fork == nil {
		return "", fmt.Errorf("fork of %s/%s was not returned", owner, name)
	}

	forkOwner := fork.GetOwner().GetLogin()
	forkName := fork.GetName()
	for attempt := 0; attempt < forkWaitAttempts; attempt++ {
		if _, _, err = g.client.Repositories.Get(ctx, forkOwner, forkName); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(forkWaitDelay):
		}
	}
	if err != nil {
		return "", errors.Wrapf(err, "waiting for fork %s/%s", forkOwner, forkName)
	}

	log.Ctx(ctx).Info().Str("Fork", fork.GetCloneURL()).Msg("forked repo")
	return fork.GetCloneURL(), nil
}

// SyncFork fast-forwards the fork's default branch from its upstream, so
// the clone starts from the freshest upstream state.
func (g *GitHub) SyncFork(ctx context.Context, forkURL string) error {
	owner, name, err := Split(forkURL)
	if err != nil {
		return err
	}
	forkRepo, _, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return errors.Wrapf(err, "looking up fork %s/%s", owner, name)
	}
	result, _, err := g.client.Repositories.MergeUpstream(ctx, owner, name, &github.RepoMergeUpstreamRequest{
		Branch: github.String(forkRepo.GetDefaultBranch()),
	})
	if err != nil {
		return errors.Wrapf(err, "syncing fork %s/%s with upstream", owner, name)
	}
	log.Ctx(ctx).Debug().Str("Fork", owner+"/"+name).Str("Result", result.GetMessage()).Msg("synced fork with upstream")
	return nil
}

type PullRequestParams struct {
	// SourceRepoURL is the fork holding the branch with the changes.
	SourceRepoURL string
	// TargetRepoURL is the upstream repository the PR is opened against.
	TargetRepoURL string
	Branch        string
	Title         string
	Body          string
}

// CreatePullRequest opens a PR from the fork branch against the target's
// main branch, falling back to master when main does not exist. Returns
// ErrNoChanges when the branches do not differ.
func (g *GitHub) CreatePullRequest(ctx context.Context, params PullRequestParams) (string, error) {
	sourceOwner, sourceName, err := Split(params.SourceRepoURL)
	if err != nil {
		return "", err
	}
	targetOwner, targetName, err := Split(params.TargetRepoURL)
	if err != nil {
		return "", err
	}

	if _, _, err = g.client.Repositories.Get(ctx, targetOwner, targetName); err != nil {
		return "", errors.Wrapf(err, "target repository not found: %s/%s", targetOwner, targetName)
	}
	if _, _, err = g.client.Repositories.Get(ctx, sourceOwner, sourceName); err != nil {
		return "", errors.Wrapf(err, "source repository not found: %s/%s", sourceOwner, sourceName)
	}

	head := sourceOwner + ":" + params.Branch
	base := "main"
	comparison, resp, err := g.client.Repositories.CompareCommits(ctx, targetOwner, targetName, base, head, nil)
	if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
		log.Ctx(ctx).Warn().Msgf("base branch %q not found, trying master", base)
		base = "master"
		comparison, _, err = g.client.Repositories.CompareCommits(ctx, targetOwner, targetName, base, head, nil)
	}
	if err != nil {
		return "", errors.Wrap(err, "comparing branches")
	}
	if comparison.GetTotalCommits() == 0 {
		return "", ErrNoChanges
	}

	title := params.Title
	if title == "" {
		title = "Automated changes from fork at " + time.Now().UTC().Format("2006-01-02 15:04:05")
	}
	body := params.Body
	if body == "" {
		body = "This pull request contains automated changes pushed to the forked repository."
	}

	log.Ctx(ctx).Info().Str("Head", head).Str("Base", base).Msg("creating pull request")
	pullRequest, _, err := g.client.PullRequests.Create(ctx, targetOwner, targetName, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return "", errors.Wrapf(err, "creating pull request with head %s and base %s", head, base)
	}
	return pullRequest.GetHTMLURL(), nil
}

// PullRequestComments returns the PR's diff and full comment threads as a
// text block for the assistant prompt. The second return is false when there
// are no comments, or when the newest comment is the agent's own and there
// is nothing new to respond to.
func (g *GitHub) PullRequestComments(ctx context.Context, prURL string) (string, bool, error) {
	owner, name, number, err := ParsePullRequestURL(prURL)
	if err != nil {
		return "", false, err
	}

	issueComments, _, err := g.client.Issues.ListComments(ctx, owner, name, number, nil)
	if err != nil {
		return "", false, errors.Wrap(err, "listing issue comments")
	}
	reviewComments, _, err := g.client.PullRequests.ListComments(ctx, owner, name, number, nil)
	if err != nil {
		return "", false, errors.Wrap(err, "listing review comments")
	}

	var lastAuthor string
	var lastCreated time.Time
	if len(issueComments) > 0 {
		last := issueComments[len(issueComments)-1]
		lastAuthor, lastCreated = last.GetUser().GetLogin(), last.GetCreatedAt().Time
	}
	if len(reviewComments) > 0 {
		last := reviewComments[len(reviewComments)-1]
		if last.GetCreatedAt().After(lastCreated) {
			lastAuthor, lastCreated = last.GetUser().GetLogin(), last.GetCreatedAt().Time
		}
	}
	if lastAuthor == "" {
		return "", false, nil
	}

	login, err := g.Login(ctx)
	if err != nil {
		return "", false, err
	}
	if lastAuthor == login {
		return "", false, nil
	}

	files, _, err := g.client.PullRequests.ListFiles(ctx, owner, name, number, nil)
	if err != nil {
		return "", false, errors.Wrap(err, "listing pull request files")
	}

	var diff []string
	for _, file := range files {
		patch := file.GetPatch()
		if patch == "" {
			patch = "No patch available"
		}
		diff = append(diff,
			fmt.Sprintf("File: %s", file.GetFilename()),
			fmt.Sprintf("Status: %s", file.GetStatus()),
			fmt.Sprintf("Changes: +%d -%d", file.GetAdditions(), file.GetDeletions()),
			fmt.Sprintf("Patch:\n%s\n", patch),
		)
	}

	var comments []string
	for _, comment := range issueComments {
		comments = append(comments,
			fmt.Sprintf("Comment by %s at %s:", comment.GetUser().GetLogin(), comment.GetCreatedAt().Format(time.RFC3339)),
			comment.GetBody(),
			"---",
		)
	}
	for _, comment := range reviewComments {
		comments = append(comments,
			fmt.Sprintf("Review comment by %s at %s:", comment.GetUser().GetLogin(), comment.GetCreatedAt().Format(time.RFC3339)),
			fmt.Sprintf("File: %s, Line: %d", comment.GetPath(), comment.GetLine()),
			comment.GetBody(),
			"---",
		)
	}

	result := strings.Join([]string{
		"DIFF",
		strings.Join(diff, "\n"),
		"COMMENTS",
		strings.Join(comments, "\n"),
	}, "\n")
	return result, true, nil
}

// CommentOnPullRequest posts a comment on the PR's conversation thread.
func (g *GitHub) CommentOnPullRequest(ctx context.Context, prURL string, body string) error {
	owner, name, number, err := ParsePullRequestURL(prURL)
	if err != nil {
		return err
	}
	_, _, err = g.client.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
		Body: github.String(body),
	})
	return errors.Wrapf(err, "commenting on %s", prURL)
}

// AcceptInvitations accepts every pending repository invitation, so the
// agent can work on private repositories it is invited to. Returns how many
// invitations were accepted.
func (g *GitHub) AcceptInvitations(ctx context.Context) (int, error) {
	invitations, _, err := g.client.Users.ListInvitations(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return 0, errors.Wrap(err, "listing repository invitations")
	}

	accepted := 0
	for _, invitation := range invitations {
		if _, err = g.client.Users.AcceptInvitation(ctx, invitation.GetID()); err != nil {
			return accepted, errors.Wrapf(err, "accepting invitation to %s", invitation.GetRepo().GetFullName())
		}
		log.Ctx(ctx).Info().Str("Repo", invitation.GetRepo().GetFullName()).Msg("accepted repository invitation")
		accepted++
	}
	return accepted, nil
}
