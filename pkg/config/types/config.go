package types

import (
	"errors"

	"github.com/c2h5oh/datasize"
	"github.com/hashicorp/go-multierror"

	"github.com/prospector-bot/prospector/pkg/models"
)

type ProspectorConfig struct {
	Market  MarketConfig
	Scanner ScannerConfig
	Solver  SolverConfig
	GitHub  GitHubConfig
	Agent   AgentConfig
	LLM     LLMConfig
	Store   StoreConfig
	Update  UpdateConfig
}

type MarketConfig struct {
	// URL is the base URL of the marketplace API.
	URL string
	// APIKey authenticates this agent against the marketplace.
	APIKey string
	// RequestTimeout bounds individual API calls.
	RequestTimeout Duration
	// RetryMax bounds retries of failed API calls.
	RetryMax int

	// The marketplace owns its numeric status code space. These map the
	// codes the agent reacts to and exist so a code renumbering on the
	// marketplace side is a config change, not a release.
	OpenInstanceCode     int
	ResolvedInstanceCode int
	AwardedProposalCode  int
}

type ScannerConfig struct {
	// Interval between market scans.
	Interval Duration
	// MaxBid is the hard ceiling for any proposal this agent submits.
	MaxBid float64
}

type SolverConfig struct {
	// Interval between solve passes.
	Interval Duration
	// ProposalMaxAge filters out awarded proposals older than this.
	ProposalMaxAge Duration
	// AssistantTimeout bounds one assistant run. A run that exceeds it is
	// killed and the instance is retried on a later pass.
	AssistantTimeout Duration
	// WorkspaceDir is where clones are placed. Empty means the system
	// temp directory.
	WorkspaceDir string
	// MinFreeSpace is the free disk space required on the workspace volume
	// before bidding on or cloning new work.
	MinFreeSpace datasize.ByteSize
	// AcceptInvitations makes each solve pass accept pending GitHub
	// repository invitations, which private-repo tasks depend on.
	AcceptInvitations bool
	// RelayChat enables reading the instance chat into prompts and
	// reporting outcomes back to the requester.
	RelayChat bool
}

type GitHubConfig struct {
	// Token is a PAT with repo scope, used for forks, pushes and PRs.
	Token    string
	Username string
	Email    string
}

type AgentConfig struct {
	// Type selects the assistant backend.
	Type models.AgentType
	// Model is the foundation model handed to the assistant.
	Model string
	// Command is the assistant binary for the process backend.
	Command string
	// Params carries per-backend overrides such as a custom image or cache
	// directory. Keys are backend specific.
	Params map[string]interface{}
	// Keys forwarded to the assistant so it can reach its own providers.
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

type LLMConfig struct {
	// APIKey enables the helper model used for PR titles, commit messages
	// and log cleanup. Helpers degrade to local fallbacks without it.
	APIKey string
	Model  string
	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string
}

type StoreConfig struct {
	// Type is "inmemory" or "boltdb".
	Type string
	// Path of the boltdb file, ignored for the in-memory store.
	Path string
}

type UpdateConfig struct {
	// SkipChecks disables the periodic check for newer releases.
	SkipChecks bool
	// CheckFrequency is the interval between release checks.
	CheckFrequency Duration
}

// ValidateMarket checks the fields every command talking to the marketplace
// needs.
func (c ProspectorConfig) ValidateMarket() error {
	var err *multierror.Error
	if c.Market.URL == "" {
		err = multierror.Append(err, errors.New("market URL is required"))
	}
	if c.Market.APIKey == "" {
		err = multierror.Append(err, errors.New("market API key is required"))
	}
	return err.ErrorOrNil()
}

// ValidateScanner checks the fields the market scanner needs on top of
// ValidateMarket.
func (c ProspectorConfig) ValidateScanner() error {
	var err *multierror.Error
	err = multierror.Append(err, c.ValidateMarket())
	if c.Scanner.MaxBid <= 0 {
		err = multierror.Append(err, errors.New("scanner max bid must be greater than zero"))
	}
	return err.ErrorOrNil()
}

// ValidateSolver checks the fields the instance solver needs on top of
// ValidateMarket.
func (c ProspectorConfig) ValidateSolver() error {
	var err *multierror.Error
	err = multierror.Append(err, c.ValidateMarket())
	if c.GitHub.Token == "" {
		err = multierror.Append(err, errors.New("github token is required"))
	}
	if c.GitHub.Username == "" {
		err = multierror.Append(err, errors.New("github username is required"))
	}
	if c.GitHub.Email == "" {
		err = multierror.Append(err, errors.New("github email is required"))
	}
	if !models.IsValidAgentType(c.Agent.Type) {
		err = multierror.Append(err, errors.New("agent type is not valid"))
	}
	return err.ErrorOrNil()
}
