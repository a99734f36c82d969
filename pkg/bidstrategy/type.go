package bidstrategy

import (
	"context"
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"

	"github.com/prospector-bot/prospector/pkg/models"
)

type BidStrategyRequest struct {
	Instance models.Instance
}

type BidStrategyResponse struct {
	ShouldBid bool   `json:"shouldBid"`
	Reason    string `json:"reason"`
}

// NewBidResponse is a helper that combines the passed reason with whether the
// agent is willing to bid, so strategies phrase their reason constants as
// "bid on instances that ..." style verb phrases.
func NewBidResponse(bid bool, reason string, args ...any) BidStrategyResponse {
	return BidStrategyResponse{
		ShouldBid: bid,
		Reason:    fmt.Sprintf(fmt.Sprintf("this agent does%s %s", lo.Ternary(bid, "", " not"), reason), args...),
	}
}

// SemanticBidStrategy accepts or rejects an instance based on what the
// instance asks for.
type SemanticBidStrategy interface {
	ShouldBid(ctx context.Context, request BidStrategyRequest) (BidStrategyResponse, error)
}

// ResourceBidStrategy accepts or rejects an instance based on the capacity
// available to solve it.
type ResourceBidStrategy interface {
	ShouldBidBasedOnCapacity(ctx context.Context, request BidStrategyRequest, freeSpace datasize.ByteSize) (BidStrategyResponse, error)
}

type BidStrategy interface {
	SemanticBidStrategy
	ResourceBidStrategy
}
