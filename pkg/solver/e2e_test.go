//go:build unit || !integration

package solver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prospector-bot/prospector/pkg/executor"
	"github.com/prospector-bot/prospector/pkg/llm"
	"github.com/prospector-bot/prospector/pkg/logger"
	"github.com/prospector-bot/prospector/pkg/marketplace"
	"github.com/prospector-bot/prospector/pkg/models"
	"github.com/prospector-bot/prospector/pkg/scanner"
	"github.com/prospector-bot/prospector/pkg/solver"
	"github.com/prospector-bot/prospector/pkg/store"
	"github.com/prospector-bot/prospector/pkg/store/inmemory"
)

// marketServer is an in-memory marketplace that awards every proposal on the
// spot, so one process can play both sides of the bid-then-solve flow.
type marketServer struct {
	mu        sync.Mutex
	instance  models.Instance
	proposals []models.Proposal
	chat      models.Chat
	reported  int
}

func (m *marketServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/instances/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
		switch {
		case rest == "":
			status := models.InstanceStatusOpen
			open := []models.Instance{}
			if strings.Contains(r.URL.RawQuery, "instance_status") && m.instance.Status == status {
				open = append(open, m.instance)
			}
			_ = json.NewEncoder(w).Encode(open)
		case strings.HasSuffix(rest, "/report-solved"):
			m.reported++
		default:
			_ = json.NewEncoder(w).Encode(m.instance)
		}
	})
	mux.HandleFunc("/v1/proposals/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(m.proposals)
	})
	mux.HandleFunc("/v1/proposals/create/for-instance/", func(w http.ResponseWriter, r *http.Request) {
		instanceID := strings.TrimPrefix(r.URL.Path, "/v1/proposals/create/for-instance/")
		var body struct {
			MaxBid float64 `json:"max_bid"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		m.mu.Lock()
		defer m.mu.Unlock()
		proposal := models.Proposal{
			ID:           "prop-" + instanceID,
			InstanceID:   instanceID,
			MaxBid:       body.MaxBid,
			Status:       models.ProposalStatusAwarded,
			CreationDate: models.NewTimestamp(time.Now()),
		}
		m.proposals = append(m.proposals, proposal)
		m.instance.Status = models.InstanceStatusResolved
		_ = json.NewEncoder(w).Encode(proposal)
	})
	mux.HandleFunc("/v1/chat/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/chat/")
		if strings.HasPrefix(rest, "send-message/") {
			var body struct {
				Message string `json:"message"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			m.mu.Lock()
			defer m.mu.Unlock()
			m.chat = append(m.chat, models.ChatMessage{
				Message:   body.Message,
				Sender:    models.SenderProvider,
				Timestamp: models.NewTimestamp(time.Now()),
			})
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(m.chat)
	})
	return mux
}

func (m *marketServer) listProposals() []models.Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Proposal{}, m.proposals...)
}

func (m *marketServer) reportedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reported
}

// TestBidSolveReportFlow walks an instance through the whole pipeline: the
// scanner bids on it, the marketplace awards the proposal, the solver runs
// the assistant and opens a pull request, and the instance is reported
// solved. Repeating both passes must change nothing.
func TestBidSolveReportFlow(t *testing.T) {
	logger.ConfigureTestLogging(t)
	ctx := context.Background()

	const maxBid = 0.01
	market := &marketServer{
		instance: models.Instance{
			ID:         "inst-e2e",
			Background: "Fix the widget.\nRepository URL: " + testRepoURL,
			MaxPrice:   0.005,
			Status:     models.InstanceStatusOpen,
		},
	}
	server := httptest.NewServer(market.handler())
	t.Cleanup(server.Close)

	client, err := marketplace.NewClient(marketplace.Params{URL: server.URL, APIKey: "test-key", RetryMax: 1})
	require.NoError(t, err)

	records := inmemory.NewStore()
	sc, err := scanner.NewScanner(scanner.ScannerParams{
		Market:       client,
		Store:        records,
		Interval:     time.Second,
		MaxBid:       maxBid,
		OpenStatus:   models.InstanceStatusOpen,
		WorkspaceDir: t.TempDir(),
	})
	require.NoError(t, err)

	hub := &fakeHub{}
	workspace := &fakeWorkspace{dir: t.TempDir(), dirty: true, willPush: true}
	exec := &fakeExecutor{result: executor.RunResult{Logs: "assistant output", ExitCode: 0}}
	llmClient, err := llm.NewClient(llm.Params{})
	require.NoError(t, err)

	sol, err := solver.NewSolver(solver.SolverParams{
		Market:           client,
		Store:            records,
		Hub:              hub,
		Executor:         exec,
		LLM:              llmClient,
		Git:              &fakeGit{workspace: workspace},
		Interval:         time.Second,
		ProposalMaxAge:   24 * time.Hour,
		AssistantTimeout: time.Minute,
		AwardedStatus:    models.ProposalStatusAwarded,
		ResolvedStatus:   models.InstanceStatusResolved,
		WorkspaceDir:     t.TempDir(),
		GitHubToken:      "token",
		GitHubUsername:   "prospector",
		GitHubEmail:      "bot@example.com",
		RelayChat:        true,
	})
	require.NoError(t, err)

	// scan pass: one proposal within the cap, instantly awarded
	require.NoError(t, sc.ScanOnce(ctx))
	proposals := market.listProposals()
	require.Len(t, proposals, 1)
	require.LessOrEqual(t, proposals[0].MaxBid, maxBid)
	require.Equal(t, 0.005, proposals[0].MaxBid)

	// scan again: the instance is no longer open, nothing new to bid on
	require.NoError(t, sc.ScanOnce(ctx))
	require.Len(t, market.listProposals(), 1)

	// solve pass: assistant run, pull request, reported solved
	require.NoError(t, sol.SolveOnce(ctx))
	require.Equal(t, 1, exec.runCount())
	require.Len(t, hub.prs, 1)
	require.Equal(t, 1, market.reportedCount())

	record, err := records.GetRecord(ctx, "inst-e2e")
	require.NoError(t, err)
	require.Equal(t, store.RecordStateSolved, record.State)

	// solve again: already solved, nothing fresh on the chat or the PR
	require.NoError(t, sol.SolveOnce(ctx))
	require.Equal(t, 1, exec.runCount())
	require.Len(t, hub.prs, 1)
	require.Equal(t, 1, market.reportedCount())
}
