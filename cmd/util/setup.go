package util

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/prospector-bot/prospector/pkg/config/types"
	"github.com/prospector-bot/prospector/pkg/executor"
	"github.com/prospector-bot/prospector/pkg/executor/docker"
	"github.com/prospector-bot/prospector/pkg/executor/process"
	"github.com/prospector-bot/prospector/pkg/llm"
	"github.com/prospector-bot/prospector/pkg/marketplace"
	"github.com/prospector-bot/prospector/pkg/models"
	"github.com/prospector-bot/prospector/pkg/repo"
	"github.com/prospector-bot/prospector/pkg/scanner"
	"github.com/prospector-bot/prospector/pkg/solver"
	"github.com/prospector-bot/prospector/pkg/store"
	"github.com/prospector-bot/prospector/pkg/store/boltdb"
	"github.com/prospector-bot/prospector/pkg/store/inmemory"
)

func GetMarketClient(cfg types.ProspectorConfig) (*marketplace.Client, error) {
	return marketplace.NewClient(marketplace.Params{
		URL:            cfg.Market.URL,
		APIKey:         cfg.Market.APIKey,
		RequestTimeout: cfg.Market.RequestTimeout.AsTimeDuration(),
		RetryMax:       cfg.Market.RetryMax,
	})
}

// GetStore builds the record store selected by the config. The store is
// registered with the cleanup manager so it is closed on shutdown.
func GetStore(ctx context.Context, cfg types.ProspectorConfig) (store.Store, error) {
	var (
		recordStore store.Store
		err         error
	)
	switch cfg.Store.Type {
	case "", "inmemory":
		recordStore = inmemory.NewStore()
	case "boltdb":
		if cfg.Store.Path == "" {
			return nil, errors.New("boltdb record store requires a path")
		}
		recordStore, err = boltdb.NewStore(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown record store type %q", cfg.Store.Type)
	}

	GetCleanupManager(ctx).RegisterCallbackWithContext(recordStore.Close)
	return recordStore, nil
}

// GetExecutor builds the assistant backend selected by the config.
func GetExecutor(cfg types.ProspectorConfig) (executor.Executor, error) {
	if cfg.Agent.Type == models.AgentTypeProcess {
		return process.NewExecutor(process.ExecutorParams{Agent: cfg.Agent}), nil
	}
	return docker.NewExecutor(docker.ExecutorParams{
		Agent:  cfg.Agent,
		GitHub: cfg.GitHub,
	})
}

func GetScanner(cfg types.ProspectorConfig, market *marketplace.Client, recordStore store.Store) (*scanner.Scanner, error) {
	return scanner.NewScanner(scanner.ScannerParams{
		Market:       market,
		Store:        recordStore,
		Interval:     cfg.Scanner.Interval.AsTimeDuration(),
		MaxBid:       cfg.Scanner.MaxBid,
		OpenStatus:   models.InstanceStatus(cfg.Market.OpenInstanceCode),
		WorkspaceDir: cfg.Solver.WorkspaceDir,
		MinFreeSpace: cfg.Solver.MinFreeSpace,
	})
}

func GetSolver(ctx context.Context, cfg types.ProspectorConfig, market *marketplace.Client, recordStore store.Store) (*solver.Solver, error) {
	assistant, err := GetExecutor(cfg)
	if err != nil {
		return nil, err
	}
	if installed, err := assistant.IsInstalled(ctx); err == nil && !installed {
		log.Ctx(ctx).Warn().
			Str("Agent", cfg.Agent.Type.String()).
			Msg("assistant backend does not look usable on this machine, solve attempts will fail")
	}
	llmClient, err := llm.NewClient(llm.Params{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	return solver.NewSolver(solver.SolverParams{
		Market:            market,
		Store:             recordStore,
		Hub:               repo.NewGitHub(ctx, cfg.GitHub.Token),
		Executor:          assistant,
		LLM:               llmClient,
		Interval:          cfg.Solver.Interval.AsTimeDuration(),
		ProposalMaxAge:    cfg.Solver.ProposalMaxAge.AsTimeDuration(),
		AssistantTimeout:  cfg.Solver.AssistantTimeout.AsTimeDuration(),
		AwardedStatus:     models.ProposalStatus(cfg.Market.AwardedProposalCode),
		ResolvedStatus:    models.InstanceStatus(cfg.Market.ResolvedInstanceCode),
		WorkspaceDir:      cfg.Solver.WorkspaceDir,
		GitHubToken:       cfg.GitHub.Token,
		GitHubUsername:    cfg.GitHub.Username,
		GitHubEmail:       cfg.GitHub.Email,
		AcceptInvitations: cfg.Solver.AcceptInvitations,
		RelayChat:         cfg.Solver.RelayChat,
	})
}
