package semantic

import (
	"context"

	"github.com/prospector-bot/prospector/pkg/bidstrategy"
)

type MaxPriceStrategyParams struct {
	MaxBid float64
}

// MaxPriceStrategy rejects instances whose price ceiling exceeds the bid this
// agent is configured to place. Instances that advertise no price pass, the
// scanner bids its configured maximum on those.
type MaxPriceStrategy struct {
	maxBid float64
}

func NewMaxPriceStrategy(params MaxPriceStrategyParams) *MaxPriceStrategy {
	return &MaxPriceStrategy{
		maxBid: params.MaxBid,
	}
}

const maxPriceReason = "bid on instances with a price ceiling within %v (ceiling is %v)"

func (s *MaxPriceStrategy) ShouldBid(
	ctx context.Context,
	request bidstrategy.BidStrategyRequest) (bidstrategy.BidStrategyResponse, error) {
	if !request.Instance.Priced() {
		return bidstrategy.NewBidResponse(true, "bid on instances without an advertised price"), nil
	}
	withinCeiling := request.Instance.MaxPrice <= s.maxBid
	return bidstrategy.NewBidResponse(withinCeiling, maxPriceReason, s.maxBid, request.Instance.MaxPrice), nil
}

// compile-time interface check
var _ bidstrategy.SemanticBidStrategy = (*MaxPriceStrategy)(nil)
