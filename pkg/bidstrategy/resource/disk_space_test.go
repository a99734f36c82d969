//go:build unit || !integration

package resource_test

import (
	"context"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/prospector-bot/prospector/pkg/bidstrategy"
	"github.com/prospector-bot/prospector/pkg/bidstrategy/resource"
)

func TestDiskSpace(t *testing.T) {
	testCases := []struct {
		name              string
		minFreeSpace      datasize.ByteSize
		freeSpace         datasize.ByteSize
		expectedShouldBid bool
	}{
		{"plenty of space -> should accept", 1 * datasize.GB, 20 * datasize.GB, true},
		{"exactly enough space -> should accept", 1 * datasize.GB, 1 * datasize.GB, true},
		{"volume nearly full -> should reject", 1 * datasize.GB, 100 * datasize.MB, false},
		{"no requirement -> should accept", 0, 0, true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			strategy := resource.NewDiskSpaceStrategy(resource.DiskSpaceStrategyParams{
				MinFreeSpace: testCase.minFreeSpace,
			})

			response, err := strategy.ShouldBidBasedOnCapacity(
				context.Background(), bidstrategy.BidStrategyRequest{}, testCase.freeSpace)
			require.NoError(t, err)
			require.Equal(t, testCase.expectedShouldBid, response.ShouldBid)
			require.NotEmpty(t, response.Reason)
		})
	}
}
