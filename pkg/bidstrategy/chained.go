package bidstrategy

import (
	"context"
	"reflect"

	"github.com/c2h5oh/datasize"
	"github.com/rs/zerolog/log"
)

type ChainedBidStrategy struct {
	Semantics []SemanticBidStrategy
	Resources []ResourceBidStrategy
}

func NewChainedBidStrategy(semantics []SemanticBidStrategy, resources []ResourceBidStrategy) *ChainedBidStrategy {
	return &ChainedBidStrategy{Semantics: semantics, Resources: resources}
}

// AddSemanticStrategy adds a new strategy to the end of the semantic chain
func (c *ChainedBidStrategy) AddSemanticStrategy(strategy SemanticBidStrategy) {
	c.Semantics = append(c.Semantics, strategy)
}

// AddResourceStrategy adds a new strategy to the end of the resource chain
func (c *ChainedBidStrategy) AddResourceStrategy(strategy ResourceBidStrategy) {
	c.Resources = append(c.Resources, strategy)
}

// ShouldBid iterates over the semantic strategies, and returns should bid if
// no error is thrown and none of the strategies return should not bid.
func (c *ChainedBidStrategy) ShouldBid(ctx context.Context, request BidStrategyRequest) (BidStrategyResponse, error) {
	for _, strategy := range c.Semantics {
		response, err := strategy.ShouldBid(ctx, request)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msgf("error asking bidding strategy %s if we should bid",
				reflect.TypeOf(strategy).String())
			return BidStrategyResponse{}, err
		}
		if !response.ShouldBid {
			log.Ctx(ctx).Debug().Msgf("bidding strategy %s returned should not bid due to: %s",
				reflect.TypeOf(strategy).String(), response.Reason)
			return response, nil
		}
	}
	return BidStrategyResponse{ShouldBid: true}, nil
}

// ShouldBidBasedOnCapacity iterates over the resource strategies the same way.
func (c *ChainedBidStrategy) ShouldBidBasedOnCapacity(
	ctx context.Context, request BidStrategyRequest, freeSpace datasize.ByteSize) (BidStrategyResponse, error) {
	for _, strategy := range c.Resources {
		response, err := strategy.ShouldBidBasedOnCapacity(ctx, request, freeSpace)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msgf("error asking bidding strategy %s if we should bid",
				reflect.TypeOf(strategy).String())
			return BidStrategyResponse{}, err
		}
		if !response.ShouldBid {
			log.Ctx(ctx).Debug().Msgf("bidding strategy %s returned should not bid due to: %s",
				reflect.TypeOf(strategy).String(), response.Reason)
			return response, nil
		}
	}
	return BidStrategyResponse{ShouldBid: true}, nil
}

var _ BidStrategy = (*ChainedBidStrategy)(nil)
