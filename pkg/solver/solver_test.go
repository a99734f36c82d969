//go:build unit || !integration

package solver_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/prospector-bot/prospector/pkg/executor"
	"github.com/prospector-bot/prospector/pkg/llm"
	"github.com/prospector-bot/prospector/pkg/logger"
	"github.com/prospector-bot/prospector/pkg/models"
	"github.com/prospector-bot/prospector/pkg/repo"
	"github.com/prospector-bot/prospector/pkg/solver"
	"github.com/prospector-bot/prospector/pkg/store"
	"github.com/prospector-bot/prospector/pkg/store/inmemory"
)

const (
	testInstanceID = "inst-1"
	testRepoURL    = "https://github.com/example/widget"
	testForkURL    = "https://github.com/prospector-bot/widget.git"
	testPRURL      = "https://github.com/example/widget/pull/12"
)

type fakeMarket struct {
	mu        sync.Mutex
	proposals []models.Proposal
	instances map[string]models.Instance
	chats     map[string]models.Chat
	sent      map[string][]string
	solved    map[string]int
	listCalls int
	chatCalls int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		instances: make(map[string]models.Instance),
		chats:     make(map[string]models.Chat),
		sent:      make(map[string][]string),
		solved:    make(map[string]int),
	}
}

func (f *fakeMarket) ListProposals(ctx context.Context) ([]models.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]models.Proposal{}, f.proposals...), nil
}

func (f *fakeMarket) GetInstance(ctx context.Context, instanceID string) (models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	instance, ok := f.instances[instanceID]
	if !ok {
		return models.Instance{}, fmt.Errorf("no instance %s", instanceID)
	}
	return instance, nil
}

func (f *fakeMarket) GetChat(ctx context.Context, instanceID string) (models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	return append(models.Chat{}, f.chats[instanceID]...), nil
}

func (f *fakeMarket) SendMessage(ctx context.Context, instanceID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[instanceID] = append(f.sent[instanceID], message)
	f.chats[instanceID] = append(f.chats[instanceID], models.ChatMessage{
		Message:   message,
		Sender:    models.SenderProvider,
		Timestamp: models.NewTimestamp(time.Now()),
	})
	return nil
}

func (f *fakeMarket) ReportSolved(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solved[instanceID]++
	return nil
}

func (f *fakeMarket) sentMessages(instanceID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.sent[instanceID]...)
}

func (f *fakeMarket) solvedCount(instanceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.solved[instanceID]
}

type fakeHub struct {
	mu          sync.Mutex
	forks       []string
	syncs       []string
	prs         []repo.PullRequestParams
	createErr   error
	queriedPRs  []string
	prComments  string
	freshest    bool
	posted      []string
	invitations int
	acceptCalls int
}

func (f *fakeHub) Fork(ctx context.Context, repoURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forks = append(f.forks, repoURL)
	return testForkURL, nil
}

func (f *fakeHub) SyncFork(ctx context.Context, forkURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, forkURL)
	return nil
}

func (f *fakeHub) CreatePullRequest(ctx context.Context, params repo.PullRequestParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.prs = append(f.prs, params)
	return testPRURL, nil
}

func (f *fakeHub) PullRequestComments(ctx context.Context, prURL string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queriedPRs = append(f.queriedPRs, prURL)
	return f.prComments, f.freshest, nil
}

func (f *fakeHub) CommentOnPullRequest(ctx context.Context, prURL string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, body)
	return nil
}

func (f *fakeHub) AcceptInvitations(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptCalls++
	return f.invitations, nil
}

type fakeWorkspace struct {
	mu            sync.Mutex
	dir           string
	branch        string
	identityName  string
	identityEmail string
	dirty         bool
	willPush      bool
	commits       []string
	reworded      []string
	pushes        int
}

func (w *fakeWorkspace) Dir() string { return w.dir }

func (w *fakeWorkspace) CheckoutBranch(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.branch = name
	return nil
}

func (w *fakeWorkspace) SetIdentity(name, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.identityName, w.identityEmail = name, email
	return nil
}

func (w *fakeWorkspace) CommitAll(message string, name, email string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty {
		return false, nil
	}
	w.dirty = false
	w.commits = append(w.commits, message)
	return true, nil
}

func (w *fakeWorkspace) HeadDiff(ctx context.Context) (string, error) {
	return "diff --git a/fix.txt b/fix.txt\n+patched\n", nil
}

func (w *fakeWorkspace) Reword(message string, name, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reworded = append(w.reworded, message)
	return nil
}

func (w *fakeWorkspace) Push(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.willPush {
		return false, nil
	}
	w.willPush = false
	w.pushes++
	return true, nil
}

type fakeGit struct {
	mu        sync.Mutex
	clones    []repo.CloneParams
	workspace *fakeWorkspace
}

func (g *fakeGit) Clone(ctx context.Context, params repo.CloneParams) (solver.Workspace, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clones = append(g.clones, params)
	return g.workspace, nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	runs   []executor.RunRequest
	result executor.RunResult
	err    error
}

func (e *fakeExecutor) Run(ctx context.Context, request executor.RunRequest) (executor.RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, request)
	return e.result, e.err
}

func (e *fakeExecutor) IsInstalled(ctx context.Context) (bool, error) {
	return true, nil
}

func (e *fakeExecutor) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

type SolverSuite struct {
	suite.Suite
	ctx     context.Context
	market  *fakeMarket
	hub     *fakeHub
	git     *fakeGit
	ws      *fakeWorkspace
	exec    *fakeExecutor
	records store.Store
}

func TestSolverSuite(t *testing.T) {
	suite.Run(t, new(SolverSuite))
}

func (s *SolverSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.market = newFakeMarket()
	s.hub = &fakeHub{}
	s.ws = &fakeWorkspace{dir: s.T().TempDir(), dirty: true, willPush: true}
	s.git = &fakeGit{workspace: s.ws}
	s.exec = &fakeExecutor{result: executor.RunResult{Logs: "assistant output", ExitCode: 0}}
	s.records = inmemory.NewStore()

	s.market.proposals = []models.Proposal{{
		InstanceID:   testInstanceID,
		Status:       models.ProposalStatusAwarded,
		CreationDate: models.NewTimestamp(time.Now()),
	}}
	s.market.instances[testInstanceID] = models.Instance{
		ID:         testInstanceID,
		Background: "Fix the widget.\nRepository URL: " + testRepoURL,
		Status:     models.InstanceStatusResolved,
	}
}

type solverOverrides func(params *solver.SolverParams)

func (s *SolverSuite) newSolver(overrides ...solverOverrides) *solver.Solver {
	llmClient, err := llm.NewClient(llm.Params{})
	s.Require().NoError(err)

	params := solver.SolverParams{
		Market:            s.market,
		Store:             s.records,
		Hub:               s.hub,
		Executor:          s.exec,
		LLM:               llmClient,
		Git:               s.git,
		Interval:          25 * time.Millisecond,
		ProposalMaxAge:    24 * time.Hour,
		AssistantTimeout:  time.Minute,
		AwardedStatus:     models.ProposalStatusAwarded,
		ResolvedStatus:    models.InstanceStatusResolved,
		WorkspaceDir:      s.T().TempDir(),
		GitHubToken:       "token",
		GitHubUsername:    "prospector",
		GitHubEmail:       "bot@example.com",
		AcceptInvitations: false,
		RelayChat:         true,
	}
	for _, override := range overrides {
		override(&params)
	}
	sol, err := solver.NewSolver(params)
	s.Require().NoError(err)
	return sol
}

func (s *SolverSuite) recordState(instanceID string) store.RecordState {
	record, err := s.records.GetRecord(s.ctx, instanceID)
	s.Require().NoError(err)
	return record.State
}

func (s *SolverSuite) TestSolvesFreshInstance() {
	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))

	// the assistant ran in the cloned fork with a scrubbed prompt
	s.Require().Equal(1, s.exec.runCount())
	request := s.exec.runs[0]
	s.Equal(testInstanceID, request.InstanceID)
	s.Equal(s.ws.dir, request.WorkspaceDir)
	s.Contains(request.Prompt, "Fix the widget.")
	s.Contains(request.Prompt, "=== SYSTEM INSTRUCTIONS ===")
	s.NotContains(request.Prompt, "https://")
	s.NotContains(request.Prompt, "Repository URL:")

	// fork, clone, branch and identity
	s.Equal([]string{testRepoURL}, s.hub.forks)
	s.Equal([]string{testForkURL}, s.hub.syncs)
	s.Require().Len(s.git.clones, 1)
	s.Equal(testForkURL, s.git.clones[0].URL)
	s.Equal("token", s.git.clones[0].Token)
	s.Equal(testInstanceID, s.ws.branch)
	s.Equal("prospector", s.ws.identityName)
	s.Equal("bot@example.com", s.ws.identityEmail)
	s.Equal([]string{llm.FallbackCommitMessage}, s.ws.commits)

	// pull request against the upstream, solved reported exactly once
	s.Require().Len(s.hub.prs, 1)
	s.Equal(testForkURL, s.hub.prs[0].SourceRepoURL)
	s.Equal(testRepoURL, s.hub.prs[0].TargetRepoURL)
	s.Equal(testInstanceID, s.hub.prs[0].Branch)
	s.Equal(1, s.market.solvedCount(testInstanceID))
	s.Equal(store.RecordStateSolved, s.recordState(testInstanceID))

	messages := s.market.sentMessages(testInstanceID)
	s.Require().Len(messages, 1)
	s.Equal(fmt.Sprintf("Solved instance %s with PR %s", testInstanceID, testPRURL), messages[0])
}

func (s *SolverSuite) TestSolvedInstanceIsNotSolvedTwice() {
	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Require().NoError(sol.SolveOnce(s.ctx))

	s.Equal(1, s.exec.runCount())
	s.Equal(1, s.market.solvedCount(testInstanceID))
	s.Len(s.market.sentMessages(testInstanceID), 1)
}

func (s *SolverSuite) TestFailedRunIsRetriedNextPass() {
	s.exec.result = executor.RunResult{Logs: "boom", ExitCode: 1}

	sol := s.newSolver()
	err := sol.SolveOnce(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "exited with code 1")
	s.Equal(store.RecordStateFailed, s.recordState(testInstanceID))
	s.Empty(s.hub.prs)
	s.Equal(0, s.market.solvedCount(testInstanceID))
	s.Empty(s.market.sentMessages(testInstanceID))

	// next pass retries and succeeds
	s.exec.result = executor.RunResult{Logs: "fixed", ExitCode: 0}
	s.ws.dirty = true
	s.ws.willPush = true
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(2, s.exec.runCount())
	s.Equal(store.RecordStateSolved, s.recordState(testInstanceID))
	s.Equal(1, s.market.solvedCount(testInstanceID))
}

func (s *SolverSuite) TestTimedOutRunMarksFailed() {
	s.exec.result = executor.RunResult{Logs: "partial", ExitCode: -1, TimedOut: true}

	sol := s.newSolver()
	err := sol.SolveOnce(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "timed out")
	s.Equal(store.RecordStateFailed, s.recordState(testInstanceID))
	s.Equal(0, s.market.solvedCount(testInstanceID))
}

func (s *SolverSuite) TestNoChangesMarksFailed() {
	s.ws.dirty = false
	s.ws.willPush = false

	sol := s.newSolver()
	err := sol.SolveOnce(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "no changes")
	s.Equal(store.RecordStateFailed, s.recordState(testInstanceID))
	s.Empty(s.hub.prs)
	s.Empty(s.market.sentMessages(testInstanceID))
}

func (s *SolverSuite) TestSolvesWhenAssistantCommitsItself() {
	// aider commits its own edits, the worktree comes back clean but ahead
	s.ws.dirty = false
	s.ws.willPush = true

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))

	s.Empty(s.ws.commits)
	s.Require().Len(s.hub.prs, 1)
	s.Equal(1, s.market.solvedCount(testInstanceID))
}

func (s *SolverSuite) TestSkipsInstanceStillInAuction() {
	instance := s.market.instances[testInstanceID]
	instance.Status = models.InstanceStatusOpen
	s.market.instances[testInstanceID] = instance

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(0, s.exec.runCount())
	s.Empty(s.hub.forks)
}

func (s *SolverSuite) TestSkipsInstanceWithoutRepoURL() {
	instance := s.market.instances[testInstanceID]
	instance.Background = "no repository referenced here"
	s.market.instances[testInstanceID] = instance

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(0, s.exec.runCount())
}

func (s *SolverSuite) TestSkipsStaleAndUnawardedProposals() {
	s.market.proposals = []models.Proposal{
		{
			InstanceID:   testInstanceID,
			Status:       models.ProposalStatusAwarded,
			CreationDate: models.NewTimestamp(time.Now().Add(-25 * time.Hour)),
		},
		{
			InstanceID:   testInstanceID,
			Status:       models.ProposalStatusPending,
			CreationDate: models.NewTimestamp(time.Now()),
		},
	}

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(0, s.exec.runCount())
}

func (s *SolverSuite) TestSkipsStartedSolveWithNothingNew() {
	// a previous process lifetime already spoke, and nobody answered
	s.market.chats[testInstanceID] = models.Chat{{
		Message:   "working on it",
		Sender:    models.SenderProvider,
		Timestamp: models.NewTimestamp(time.Now()),
	}}

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(0, s.exec.runCount())
}

func (s *SolverSuite) TestRequesterMessageTriggersFollowUp() {
	now := time.Now()
	s.market.chats[testInstanceID] = models.Chat{
		{Message: "working on it", Sender: models.SenderProvider, Timestamp: models.NewTimestamp(now)},
		{Message: "please also update the docs", Sender: models.SenderRequester, Timestamp: models.NewTimestamp(now.Add(time.Minute))},
	}

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))

	s.Require().Equal(1, s.exec.runCount())
	s.Contains(s.exec.runs[0].Prompt, "=== USER MESSAGES ===")
	s.Contains(s.exec.runs[0].Prompt, "please also update the docs")
}

func (s *SolverSuite) TestFreshPRCommentsTriggerFollowUp() {
	prURL := "https://github.com/example/widget/pull/7"
	s.market.chats[testInstanceID] = models.Chat{{
		Message:   "Solved instance " + testInstanceID + " with PR " + prURL,
		Sender:    models.SenderProvider,
		Timestamp: models.NewTimestamp(time.Now()),
	}}
	s.hub.prComments = "DIFF\n...\nCOMMENTS\nreviewer wants a test"
	s.hub.freshest = true

	record := store.NewRecord(testInstanceID)
	s.Require().NoError(s.records.CreateRecord(s.ctx, record))
	s.Require().NoError(s.records.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: testInstanceID,
		NewState:   store.RecordStateSolved,
	}))

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))

	s.Require().Equal(1, s.exec.runCount())
	s.Contains(s.exec.runs[0].Prompt, "=== PULL REQUEST COMMENTS ===")
	s.Contains(s.exec.runs[0].Prompt, "reviewer wants a test")
	s.Equal([]string{prURL}, s.hub.queriedPRs)

	// logs land on the existing pull request, no new one is opened and the
	// instance is not reported solved again
	s.Require().Len(s.hub.posted, 1)
	s.Contains(s.hub.posted[0], "assistant output")
	s.Empty(s.hub.prs)
	s.Equal(0, s.market.solvedCount(testInstanceID))
	s.Equal(store.RecordStateSolved, s.recordState(testInstanceID))

	messages := s.market.sentMessages(testInstanceID)
	s.Require().Len(messages, 1)
	s.Equal("Added comments to PR", messages[0])
}

func (s *SolverSuite) TestSolvedInstanceWithoutNewsIsLeftAlone() {
	prURL := "https://github.com/example/widget/pull/7"
	s.market.chats[testInstanceID] = models.Chat{{
		Message:   "Solved instance " + testInstanceID + " with PR " + prURL,
		Sender:    models.SenderProvider,
		Timestamp: models.NewTimestamp(time.Now()),
	}}

	record := store.NewRecord(testInstanceID)
	s.Require().NoError(s.records.CreateRecord(s.ctx, record))
	s.Require().NoError(s.records.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: testInstanceID,
		NewState:   store.RecordStateSolved,
	}))

	sol := s.newSolver()
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(0, s.exec.runCount())
}

func (s *SolverSuite) TestAcceptsInvitationsWhenEnabled() {
	s.hub.invitations = 2

	sol := s.newSolver(func(params *solver.SolverParams) {
		params.AcceptInvitations = true
	})
	s.Require().NoError(sol.SolveOnce(s.ctx))
	s.Equal(1, s.hub.acceptCalls)

	other := s.newSolver()
	s.Require().NoError(other.SolveOnce(s.ctx))
	s.Equal(1, s.hub.acceptCalls)
}

func (s *SolverSuite) TestRelayChatDisabledStaysSilent() {
	sol := s.newSolver(func(params *solver.SolverParams) {
		params.RelayChat = false
	})
	s.Require().NoError(sol.SolveOnce(s.ctx))

	s.Equal(0, s.market.chatCalls)
	s.Empty(s.market.sentMessages(testInstanceID))
	s.Equal(1, s.market.solvedCount(testInstanceID))
	s.Equal(store.RecordStateSolved, s.recordState(testInstanceID))
}

func (s *SolverSuite) TestStartStop() {
	s.market.proposals = nil

	sol := s.newSolver()
	sol.Start(s.ctx)
	s.Require().Eventually(func() bool {
		s.market.mu.Lock()
		defer s.market.mu.Unlock()
		return s.market.listCalls >= 2
	}, 5*time.Second, 10*time.Millisecond)
	s.True(sol.IsRunning())

	sol.Stop(s.ctx)
	s.False(sol.IsRunning())
}
