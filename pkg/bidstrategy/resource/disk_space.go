package resource

import (
	"context"

	"github.com/c2h5oh/datasize"

	"github.com/prospector-bot/prospector/pkg/bidstrategy"
)

type DiskSpaceStrategyParams struct {
	MinFreeSpace datasize.ByteSize
}

// DiskSpaceStrategy stops the agent taking on new work when the workspace
// volume is running out of room for clones and assistant scratch files.
type DiskSpaceStrategy struct {
	minFreeSpace datasize.ByteSize
}

func NewDiskSpaceStrategy(params DiskSpaceStrategyParams) *DiskSpaceStrategy {
	return &DiskSpaceStrategy{
		minFreeSpace: params.MinFreeSpace,
	}
}

const diskSpaceReason = "accept new work with this much free workspace space (%s free but %s is required)"

func (s *DiskSpaceStrategy) ShouldBidBasedOnCapacity(
	ctx context.Context, request bidstrategy.BidStrategyRequest, freeSpace datasize.ByteSize) (bidstrategy.BidStrategyResponse, error) {
	return bidstrategy.NewBidResponse(
		freeSpace >= s.minFreeSpace, diskSpaceReason, freeSpace.HumanReadable(), s.minFreeSpace.HumanReadable()), nil
}

// compile-time interface check
var _ bidstrategy.ResourceBidStrategy = (*DiskSpaceStrategy)(nil)
