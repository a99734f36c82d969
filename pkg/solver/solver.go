package solver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"github.com/prospector-bot/prospector/pkg/executor"
	"github.com/prospector-bot/prospector/pkg/llm"
	"github.com/prospector-bot/prospector/pkg/logger"
	"github.com/prospector-bot/prospector/pkg/models"
	"github.com/prospector-bot/prospector/pkg/repo"
	"github.com/prospector-bot/prospector/pkg/store"
)

// API is the slice of the marketplace client the solver uses.
type API interface {
	ListProposals(ctx context.Context) ([]models.Proposal, error)
	GetInstance(ctx context.Context, instanceID string) (models.Instance, error)
	GetChat(ctx context.Context, instanceID string) (models.Chat, error)
	SendMessage(ctx context.Context, instanceID string, message string) error
	ReportSolved(ctx context.Context, instanceID string) error
}

// Hub is the slice of the GitHub client the solver uses.
type Hub interface {
	Fork(ctx context.Context, repoURL string) (string, error)
	SyncFork(ctx context.Context, forkURL string) error
	CreatePullRequest(ctx context.Context, params repo.PullRequestParams) (string, error)
	PullRequestComments(ctx context.Context, prURL string) (string, bool, error)
	CommentOnPullRequest(ctx context.Context, prURL string, body string) error
	AcceptInvitations(ctx context.Context) (int, error)
}

var _ Hub = (*repo.GitHub)(nil)

// Workspace is one local clone being prepared and published.
type Workspace interface {
	Dir() string
	CheckoutBranch(name string) error
	SetIdentity(name, email string) error
	CommitAll(message string, name, email string) (bool, error)
	HeadDiff(ctx context.Context) (string, error)
	Reword(message string, name, email string) error
	Push(ctx context.Context) (bool, error)
}

var _ Workspace = (*repo.Workspace)(nil)

// Git produces workspaces from remote repositories.
type Git interface {
	Clone(ctx context.Context, params repo.CloneParams) (Workspace, error)
}

// localGit is the production Git, backed by clones on disk.
type localGit struct{}

func (localGit) Clone(ctx context.Context, params repo.CloneParams) (Workspace, error) {
	workspace, err := repo.Clone(ctx, params)
	if err != nil {
		return nil, err
	}
	return workspace, nil
}

type SolverParams struct {
	Market   API
	Store    store.Store
	Hub      Hub
	Executor executor.Executor
	LLM      *llm.Client
	// Git is swappable for tests; nil means real clones on disk.
	Git Git
	// Interval is the interval at which solve passes run.
	Interval time.Duration
	// ProposalMaxAge filters out awarded proposals older than this.
	ProposalMaxAge time.Duration
	// AssistantTimeout bounds one assistant run. Zero means no limit.
	AssistantTimeout time.Duration
	// AwardedStatus is the proposal status code the marketplace uses for
	// proposals it has awarded to this agent.
	AwardedStatus models.ProposalStatus
	// ResolvedStatus is the instance status code for instances awaiting
	// their solution.
	ResolvedStatus models.InstanceStatus
	// WorkspaceDir is where clones are placed. Empty means the system temp
	// directory.
	WorkspaceDir string
	// GitHubToken authenticates clones and pushes.
	GitHubToken string
	// GitHubUsername and GitHubEmail form the commit identity.
	GitHubUsername string
	GitHubEmail    string
	// AcceptInvitations makes each pass accept pending repository
	// invitations before solving.
	AcceptInvitations bool
	// RelayChat enables reading the instance chat into prompts and
	// reporting outcomes back to the requester.
	RelayChat bool
	// Clock is the clock used for time-based operations.
	// If not provided, the system clock is used.
	Clock clock.Clock
}

// Solver polls the marketplace for awarded proposals and delivers a solution
// for each: it runs the coding assistant against a fork of the target
// repository and publishes the result as a pull request. A failed attempt
// leaves the instance unsolved, later passes retry it.
type Solver struct {
	market            API
	store             store.Store
	hub               Hub
	executor          executor.Executor
	llm               *llm.Client
	git               Git
	interval          time.Duration
	proposalMaxAge    time.Duration
	assistantTimeout  time.Duration
	awardedStatus     models.ProposalStatus
	resolvedStatus    models.InstanceStatus
	workspaceDir      string
	githubToken       string
	githubUsername    string
	githubEmail       string
	acceptInvitations bool
	relayChat         bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	waitGroup sync.WaitGroup
	running   *atomic.Bool
	clock     clock.Clock
}

func NewSolver(params SolverParams) (*Solver, error) {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Git == nil {
		params.Git = localGit{}
	}
	if params.WorkspaceDir == "" {
		params.WorkspaceDir = os.TempDir()
	}

	var err *multierror.Error
	if params.Market == nil {
		err = multierror.Append(err, errors.New("market client cannot be nil"))
	}
	if params.Store == nil {
		err = multierror.Append(err, errors.New("record store cannot be nil"))
	}
	if params.Hub == nil {
		err = multierror.Append(err, errors.New("github client cannot be nil"))
	}
	if params.Executor == nil {
		err = multierror.Append(err, errors.New("executor cannot be nil"))
	}
	if params.LLM == nil {
		err = multierror.Append(err, errors.New("llm client cannot be nil"))
	}
	if params.Interval <= 0 {
		err = multierror.Append(err, errors.New("interval must be greater than zero"))
	}
	if params.ProposalMaxAge <= 0 {
		err = multierror.Append(err, errors.New("proposal max age must be greater than zero"))
	}
	if params.GitHubUsername == "" || params.GitHubEmail == "" {
		err = multierror.Append(err, errors.New("github username and email are required"))
	}
	if err.ErrorOrNil() != nil {
		return nil, fmt.Errorf("error validating solver params: %w", err)
	}

	return &Solver{
		market:            params.Market,
		store:             params.Store,
		hub:               params.Hub,
		executor:          params.Executor,
		llm:               params.LLM,
		git:               params.Git,
		interval:          params.Interval,
		proposalMaxAge:    params.ProposalMaxAge,
		assistantTimeout:  params.AssistantTimeout,
		awardedStatus:     params.AwardedStatus,
		resolvedStatus:    params.ResolvedStatus,
		workspaceDir:      params.WorkspaceDir,
		githubToken:       params.GitHubToken,
		githubUsername:    params.GitHubUsername,
		githubEmail:       params.GitHubEmail,
		acceptInvitations: params.AcceptInvitations,
		relayChat:         params.RelayChat,
		stopChan:          make(chan struct{}),
		running:           atomic.NewBool(false),
		clock:             params.Clock,
	}, nil
}

// IsRunning returns true if the solve loop is running.
func (s *Solver) IsRunning() bool {
	return s.running.Load()
}

// Start starts the solve loop. The first pass happens immediately, later
// ones on every interval tick.
func (s *Solver) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.waitGroup.Add(1)
		go s.run(ctx)
	})
}

// Stop stops the solve loop and waits for an in-flight pass to complete, or
// until the context is done.
func (s *Solver) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopChan)

		waitGroupDone := make(chan struct{})
		go func() {
			s.waitGroup.Wait()
			close(waitGroupDone)
		}()

		select {
		case <-waitGroupDone:
		case <-ctx.Done():
		}
	})
}

func (s *Solver) run(ctx context.Context) {
	s.running.Store(true)
	defer func() {
		s.running.Store(false)
		s.waitGroup.Done()
	}()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.solveAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			s.solveAndLog(ctx)
		case <-ctx.Done():
			log.Ctx(ctx).Debug().Msg("Context cancelled, stopping instance solver")
			return
		case <-s.stopChan:
			log.Ctx(ctx).Debug().Msg("Stop channel closed, stopping instance solver")
			return
		}
	}
}

func (s *Solver) solveAndLog(ctx context.Context) {
	if err := s.SolveOnce(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("solve pass failed")
	}
}

// SolveOnce runs a single solve pass over every live awarded proposal. One
// bad instance does not stop the pass.
func (s *Solver) SolveOnce(ctx context.Context) error {
	if s.acceptInvitations {
		if accepted, err := s.hub.AcceptInvitations(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to accept repository invitations")
		} else if accepted > 0 {
			log.Ctx(ctx).Info().Int("Accepted", accepted).Msg("accepted repository invitations")
		}
	}

	proposals, err := s.market.ListProposals(ctx)
	if err != nil {
		return fmt.Errorf("failed to list proposals: %w", err)
	}
	awarded := s.awardedProposals(proposals)
	log.Ctx(ctx).Info().Int("Awarded", len(awarded)).Msg("found awarded proposals")

	var mErr *multierror.Error
	for _, proposal := range awarded {
		instanceCtx := logger.ContextWithInstanceIDLogger(ctx, proposal.InstanceID)
		if err := s.solveProposal(instanceCtx, proposal); err != nil {
			log.Ctx(instanceCtx).Error().Err(err).Msg("failed to solve instance")
			mErr = multierror.Append(mErr, err)
		}
	}
	return mErr.ErrorOrNil()
}

// awardedProposals keeps the proposals the marketplace awarded to this agent
// recently enough to still act on.
func (s *Solver) awardedProposals(proposals []models.Proposal) []models.Proposal {
	cutoff := s.clock.Now().UTC().Add(-s.proposalMaxAge)
	return lo.Filter(proposals, func(p models.Proposal, _ int) bool {
		return p.Status == s.awardedStatus && p.CreationDate.After(cutoff)
	})
}

func (s *Solver) solveProposal(ctx context.Context, proposal models.Proposal) error {
	work, err := s.examine(ctx, proposal.InstanceID)
	if err != nil {
		return err
	}
	if work == nil {
		return nil
	}

	outcome, err := s.solveInstance(ctx, work)
	if err != nil {
		return err
	}
	if outcome == "" || !s.relayChat {
		return nil
	}
	if err := s.market.SendMessage(ctx, work.instance.ID, outcome); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to send outcome message")
	}
	return nil
}

// solveWork is everything known about an instance before an attempt: the
// instance itself, the repository it points at, and what already happened on
// the chat and the pull request.
type solveWork struct {
	instance            models.Instance
	repoURL             string
	prURL               string
	prComments          string
	requesterTranscript string
	startedSolving      bool
	recordState         store.RecordState
}

// examine decides whether the instance is actionable and gathers the context
// a solve attempt needs. A nil result means there is nothing to do.
func (s *Solver) examine(ctx context.Context, instanceID string) (*solveWork, error) {
	state := store.RecordStateUndefined
	record, err := s.store.GetRecord(ctx, instanceID)
	var notFound store.ErrRecordNotFound
	switch {
	case err == nil:
		state = record.State
	case errors.As(err, &notFound):
	default:
		return nil, fmt.Errorf("failed to load record for instance %s: %w", instanceID, err)
	}

	instance, err := s.market.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}
	if instance.Status != s.resolvedStatus {
		log.Ctx(ctx).Debug().Str("Status", instance.Status.String()).Msg("instance is not awaiting a solution, skipping")
		return nil, nil
	}

	repoURL, found := repo.FindGitHubURL(instance.Background)
	if !found {
		log.Ctx(ctx).Info().Msg("instance background does not reference a github repository, skipping")
		return nil, nil
	}

	work := &solveWork{
		instance:    instance,
		repoURL:     repoURL,
		recordState: state,
	}

	if s.relayChat {
		if err := s.readChat(ctx, work); err != nil {
			return nil, err
		}
	}

	interaction := work.prComments != "" || work.requesterTranscript != ""
	switch {
	case state == store.RecordStateSolved:
		if !interaction {
			log.Ctx(ctx).Debug().Msg("instance already solved and nothing new to react to, skipping")
			return nil, nil
		}
	case state == store.RecordStateFailed || state == store.RecordStateSolving:
		// the last attempt did not deliver, always retry
	default:
		if work.startedSolving && !interaction {
			log.Ctx(ctx).Debug().Msg("solve already started and nothing new to react to, skipping")
			return nil, nil
		}
	}
	return work, nil
}

// readChat folds the instance chat into the work: whether this agent already
// spoke, whether the requester is waiting on an answer, and the pull request
// opened by an earlier pass, with any fresh comments on it.
func (s *Solver) readChat(ctx context.Context, work *solveWork) error {
	chat, err := s.market.GetChat(ctx, work.instance.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch chat for instance %s: %w", work.instance.ID, err)
	}
	if len(chat) == 0 {
		return nil
	}

	work.startedSolving = chat.HasProviderMessage()
	transcript := formatTranscript(chat)
	if chat.LastSender() == models.SenderRequester {
		work.requesterTranscript = transcript
	}

	prURL, found := repo.FindPullRequestURL(transcript)
	if !found {
		return nil
	}
	work.prURL = prURL

	comments, fresh, err := s.hub.PullRequestComments(ctx, prURL)
	if err != nil {
		return fmt.Errorf("failed to fetch comments for %s: %w", prURL, err)
	}
	if fresh {
		work.prComments = comments
	}
	return nil
}

// solveInstance runs one attempt end to end and returns the outcome message
// for the instance chat. Empty means there is nothing to tell the requester.
func (s *Solver) solveInstance(ctx context.Context, work *solveWork) (string, error) {
	instanceID := work.instance.ID
	log.Ctx(ctx).Info().Str("Repo", work.repoURL).Msg("solving instance")

	if work.recordState != store.RecordStateSolved {
		if err := s.markSolving(ctx, work); err != nil {
			return "", err
		}
	}

	prompt := scrubURLs(buildPrompt(work.instance.Background, work.prComments, work.requesterTranscript))

	forkURL, err := s.hub.Fork(ctx, work.repoURL)
	if err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to fork %s: %w", work.repoURL, err))
	}
	if err := s.hub.SyncFork(ctx, forkURL); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to sync fork with upstream, continuing with its current state")
	}

	workDir := filepath.Join(s.workspaceDir, instanceID)
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("Dir", workDir).Msg("failed to clean up workspace")
		}
	}()

	workspace, err := s.git.Clone(ctx, repo.CloneParams{URL: forkURL, Dir: workDir, Token: s.githubToken})
	if err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to clone fork: %w", err))
	}
	if err := workspace.CheckoutBranch(instanceID); err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to check out branch %s: %w", instanceID, err))
	}
	if err := workspace.SetIdentity(s.githubUsername, s.githubEmail); err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to set commit identity: %w", err))
	}

	result, err := s.executor.Run(ctx, executor.RunRequest{
		InstanceID:   instanceID,
		WorkspaceDir: workspace.Dir(),
		Prompt:       prompt,
		Timeout:      s.assistantTimeout,
	})
	if err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to run assistant: %w", err))
	}
	logs := s.llm.TidyLogs(ctx, result.Logs)
	if result.Failed() {
		reason := fmt.Errorf("assistant exited with code %d", result.ExitCode)
		if result.TimedOut {
			reason = fmt.Errorf("assistant timed out after %s", s.assistantTimeout)
		}
		return "", s.failed(ctx, work, reason)
	}

	if work.prURL != "" && logs != "" {
		if err := s.hub.CommentOnPullRequest(ctx, work.prURL, logs); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("PR", work.prURL).Msg("failed to post logs on pull request")
		}
	}

	committed, err := workspace.CommitAll(llm.FallbackCommitMessage, s.githubUsername, s.githubEmail)
	if err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to commit changes: %w", err))
	}
	if committed {
		s.rewordCommit(ctx, workspace)
	}

	pushed, err := workspace.Push(ctx)
	if err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to push changes: %w", err))
	}

	if !pushed {
		if work.prURL != "" {
			log.Ctx(ctx).Info().Msg("no new commits, only logs were delivered")
			s.settleSolved(ctx, work, "logs posted to pull request")
			return logs, nil
		}
		return "", s.failed(ctx, work, errors.New("assistant produced no changes"))
	}

	if work.prURL != "" {
		s.settleSolved(ctx, work, "pull request updated")
		return "Added comments to PR", nil
	}

	prURL, err := s.openPullRequest(ctx, work, forkURL, logs)
	if err != nil {
		return "", s.failed(ctx, work, err)
	}
	if err := s.market.ReportSolved(ctx, instanceID); err != nil {
		return "", s.failed(ctx, work, fmt.Errorf("failed to report instance solved: %w", err))
	}
	s.settleSolved(ctx, work, "pull request "+prURL)

	log.Ctx(ctx).Info().Str("PR", prURL).Msg("instance solved")
	return fmt.Sprintf("Solved instance %s with PR %s", instanceID, prURL), nil
}

// openPullRequest opens the PR for the instance branch, with a generated
// title and body when the helper model is available.
func (s *Solver) openPullRequest(ctx context.Context, work *solveWork, forkURL string, logs string) (string, error) {
	title, err := s.llm.PullRequestTitle(ctx, work.instance.Background)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to generate pull request title, using default")
	}
	body, err := s.llm.PullRequestBody(ctx, work.instance.Background, logs)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to generate pull request body, using default")
	}

	prURL, err := s.hub.CreatePullRequest(ctx, repo.PullRequestParams{
		SourceRepoURL: forkURL,
		TargetRepoURL: work.repoURL,
		Branch:        work.instance.ID,
		Title:         title,
		Body:          body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}
	return prURL, nil
}

// markSolving transitions the record into solving, creating it when the
// scanner never saw the instance (for example after a restart with a fresh
// in-memory store).
func (s *Solver) markSolving(ctx context.Context, work *solveWork) error {
	if work.recordState == store.RecordStateUndefined {
		record := store.NewRecord(work.instance.ID)
		record.State = store.RecordStateSolving
		if err := s.store.CreateRecord(ctx, record); err != nil {
			return fmt.Errorf("failed to create record for instance %s: %w", work.instance.ID, err)
		}
		return nil
	}
	if err := s.store.UpdateRecordState(ctx, store.UpdateRecordStateRequest{
		InstanceID: work.instance.ID,
		NewState:   store.RecordStateSolving,
		Comment:    "solve attempt started",
	}); err != nil {
		return fmt.Errorf("failed to mark instance %s solving: %w", work.instance.ID, err)
	}
	return nil
}

// failed flips the record to failed so a later pass retries, and hands the
// reason back as the per-instance error. Records already solved stay solved.
func (s *Solver) failed(ctx context.Context, work *solveWork, reason error) error {
	if work.recordState == store.RecordStateSolved {
		return reason
	}
	if err := s.store.UpdateRecordState(ctx, store.UpdateRecordStateRequest{
		InstanceID: work.instance.ID,
		NewState:   store.RecordStateFailed,
		Comment:    reason.Error(),
	}); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to mark record failed")
	}
	return reason
}

// settleSolved parks the record at solved once a pull request carries the
// delivery. ReportSolved is not repeated here: it fires only on the pass
// that created the pull request.
func (s *Solver) settleSolved(ctx context.Context, work *solveWork, comment string) {
	if work.recordState == store.RecordStateSolved {
		return
	}
	if err := s.store.UpdateRecordState(ctx, store.UpdateRecordStateRequest{
		InstanceID: work.instance.ID,
		NewState:   store.RecordStateSolved,
		Comment:    comment,
	}); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to mark record solved")
	}
}

// rewordCommit swaps the placeholder commit message for one generated from
// the diff. Best effort, the placeholder stays when generation fails.
func (s *Solver) rewordCommit(ctx context.Context, workspace Workspace) {
	diff, err := workspace.HeadDiff(ctx)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("failed to diff HEAD, keeping placeholder commit message")
		return
	}
	message, err := s.llm.CommitMessage(ctx, diff)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("failed to generate commit message, keeping placeholder")
		return
	}
	if message == llm.FallbackCommitMessage {
		return
	}
	if err := workspace.Reword(message, s.githubUsername, s.githubEmail); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("failed to reword commit, keeping placeholder message")
	}
}
