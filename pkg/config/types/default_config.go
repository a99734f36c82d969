package types

import (
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/prospector-bot/prospector/pkg/models"
)

const (
	Second = Duration(time.Second)
	Minute = Duration(time.Minute)
	Hour   = Duration(time.Hour)
)

// Default returns the stock configuration. Every value can be overridden by
// config file or PROSPECTOR_* environment variables.
func Default() ProspectorConfig {
	return ProspectorConfig{
		Market: MarketConfig{
			URL:                  "https://api.agent.market",
			RequestTimeout:       10 * Second,
			RetryMax:             3,
			OpenInstanceCode:     int(models.InstanceStatusOpen),
			ResolvedInstanceCode: int(models.InstanceStatusResolved),
			AwardedProposalCode:  int(models.ProposalStatusAwarded),
		},
		Scanner: ScannerConfig{
			Interval: 10 * Second,
			MaxBid:   0.01,
		},
		Solver: SolverConfig{
			Interval:          30 * Second,
			ProposalMaxAge:    24 * Hour,
			AssistantTimeout:  30 * Minute,
			MinFreeSpace:      datasize.GB,
			AcceptInvitations: true,
			RelayChat:         true,
		},
		Agent: AgentConfig{
			Type:  models.AgentTypeAider,
			Model: "gpt-4o",
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		Store: StoreConfig{
			Type: "inmemory",
		},
		Update: UpdateConfig{
			CheckFrequency: 24 * Hour,
		},
	}
}
