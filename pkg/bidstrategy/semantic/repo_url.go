package semantic

import (
	"context"

	"github.com/prospector-bot/prospector/pkg/bidstrategy"
	"github.com/prospector-bot/prospector/pkg/repo"
)

// Compile-time check of interface implementation
var _ bidstrategy.SemanticBidStrategy = (*RepoURLStrategy)(nil)

// RepoURLStrategy rejects instances whose background gives the coding
// assistant no repository to work on.
type RepoURLStrategy struct{}

func NewRepoURLStrategy() *RepoURLStrategy {
	return &RepoURLStrategy{}
}

const repoURLReason = "bid on instances that reference a GitHub repository"

func (s *RepoURLStrategy) ShouldBid(
	ctx context.Context,
	request bidstrategy.BidStrategyRequest) (bidstrategy.BidStrategyResponse, error) {
	_, found := repo.FindGitHubURL(request.Instance.Background)
	return bidstrategy.NewBidResponse(found, repoURLReason), nil
}
