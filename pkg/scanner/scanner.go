package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/c2h5oh/datasize"
	"github.com/hashicorp/go-multierror"
	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"github.com/prospector-bot/prospector/pkg/bidstrategy"
	"github.com/prospector-bot/prospector/pkg/bidstrategy/resource"
	"github.com/prospector-bot/prospector/pkg/bidstrategy/semantic"
	"github.com/prospector-bot/prospector/pkg/logger"
	"github.com/prospector-bot/prospector/pkg/marketplace"
	"github.com/prospector-bot/prospector/pkg/models"
	"github.com/prospector-bot/prospector/pkg/store"
)

type ScannerParams struct {
	Market *marketplace.Client
	Store  store.Store
	// Interval is the interval at which the market is scanned.
	Interval time.Duration
	// MaxBid is the hard ceiling for any proposal this scanner submits.
	MaxBid float64
	// OpenStatus is the instance status code the marketplace uses for
	// instances still accepting proposals.
	OpenStatus models.InstanceStatus
	// WorkspaceDir is the volume whose free space gates new bids. Empty
	// means the system temp directory.
	WorkspaceDir string
	// MinFreeSpace is how much of that volume must be free before bidding.
	MinFreeSpace datasize.ByteSize
	// Clock is the clock used for time-based operations.
	// If not provided, the system clock is used.
	Clock clock.Clock
}

// Scanner polls the marketplace for open instances and places a proposal on
// every instance the bid strategies accept. It never bids twice on the same
// instance: the marketplace's own proposal list is the source of truth,
// backed by the local record store.
type Scanner struct {
	market       *marketplace.Client
	store        store.Store
	interval     time.Duration
	maxBid       float64
	openStatus   models.InstanceStatus
	workspaceDir string
	strategy     bidstrategy.BidStrategy

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	waitGroup sync.WaitGroup
	running   *atomic.Bool
	clock     clock.Clock
}

func NewScanner(params ScannerParams) (*Scanner, error) {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.WorkspaceDir == "" {
		params.WorkspaceDir = os.TempDir()
	}

	var err *multierror.Error
	if params.Market == nil {
		err = multierror.Append(err, errors.New("market client cannot be nil"))
	}
	if params.Store == nil {
		err = multierror.Append(err, errors.New("record store cannot be nil"))
	}
	if params.Interval <= 0 {
		err = multierror.Append(err, errors.New("interval must be greater than zero"))
	}
	if params.MaxBid <= 0 {
		err = multierror.Append(err, errors.New("max bid must be greater than zero"))
	}
	if err.ErrorOrNil() != nil {
		return nil, fmt.Errorf("error validating scanner params: %w", err)
	}

	strategy := bidstrategy.NewChainedBidStrategy(
		[]bidstrategy.SemanticBidStrategy{
			semantic.NewRepoURLStrategy(),
			semantic.NewMaxPriceStrategy(semantic.MaxPriceStrategyParams{MaxBid: params.MaxBid}),
		},
		[]bidstrategy.ResourceBidStrategy{
			resource.NewDiskSpaceStrategy(resource.DiskSpaceStrategyParams{MinFreeSpace: params.MinFreeSpace}),
		},
	)

	return &Scanner{
		market:       params.Market,
		store:        params.Store,
		interval:     params.Interval,
		maxBid:       params.MaxBid,
		openStatus:   params.OpenStatus,
		workspaceDir: params.WorkspaceDir,
		strategy:     strategy,
		stopChan:     make(chan struct{}),
		running:      atomic.NewBool(false),
		clock:        params.Clock,
	}, nil
}

// IsRunning returns true if the scan loop is running.
func (s *Scanner) IsRunning() bool {
	return s.running.Load()
}

// Start starts the scan loop. The first scan happens immediately, later ones
// on every interval tick.
func (s *Scanner) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.waitGroup.Add(1)
		go s.run(ctx)
	})
}

// Stop stops the scan loop and waits for an in-flight scan to complete, or
// until the context is done.
func (s *Scanner) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopChan)

		waitGroupDone := make(chan struct{})
		go func() {
			s.waitGroup.Wait()
			close(waitGroupDone)
		}()

		select {
		case <-waitGroupDone:
		case <-ctx.Done():
		}
	})
}

func (s *Scanner) run(ctx context.Context) {
	s.running.Store(true)
	defer func() {
		s.running.Store(false)
		s.waitGroup.Done()
	}()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.scanAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			s.scanAndLog(ctx)
		case <-ctx.Done():
			log.Ctx(ctx).Debug().Msg("Context cancelled, stopping market scanner")
			return
		case <-s.stopChan:
			log.Ctx(ctx).Debug().Msg("Stop channel closed, stopping market scanner")
			return
		}
	}
}

func (s *Scanner) scanAndLog(ctx context.Context) {
	if err := s.ScanOnce(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("market scan failed")
	}
}

// ScanOnce runs a single scan pass: list open instances, filter out the ones
// already bid on, ask the bid strategies about the rest, and submit a
// proposal for every accepted instance. One bad instance does not stop the
// pass.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	instances, err := s.market.ListInstances(ctx, s.openStatus)
	if err != nil {
		return fmt.Errorf("failed to list open instances: %w", err)
	}

	proposals, err := s.market.ListProposals(ctx)
	if err != nil {
		return fmt.Errorf("failed to list own proposals: %w", err)
	}
	bidded := lo.SliceToMap(proposals, func(p models.Proposal) (string, struct{}) {
		return p.InstanceID, struct{}{}
	})

	freeSpace := s.freeWorkspaceSpace()

	var mErr *multierror.Error
	submitted := 0
	for _, instance := range instances {
		instanceCtx := logger.ContextWithInstanceIDLogger(ctx, instance.ID)

		ok, err := s.shouldBid(instanceCtx, instance, bidded, freeSpace)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}
		if !ok {
			continue
		}

		bid := s.bidAmount(instance)
		if _, err := s.market.CreateProposal(instanceCtx, instance.ID, bid); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("failed to submit proposal for instance %s: %w", instance.ID, err))
			continue
		}
		if err := s.store.CreateRecord(instanceCtx, store.NewRecord(instance.ID)); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("failed to record proposal for instance %s: %w", instance.ID, err))
		}
		submitted++
		log.Ctx(instanceCtx).Info().Float64("Bid", bid).Msg("submitted proposal")
	}

	log.Ctx(ctx).Info().
		Int("OpenInstances", len(instances)).
		Int("Submitted", submitted).
		Msg("market scan complete")
	return mErr.ErrorOrNil()
}

func (s *Scanner) shouldBid(
	ctx context.Context,
	instance models.Instance,
	bidded map[string]struct{},
	freeSpace datasize.ByteSize,
) (bool, error) {
	if _, ok := bidded[instance.ID]; ok {
		log.Ctx(ctx).Debug().Msg("already bid on instance, skipping")
		return false, nil
	}
	// the record store also remembers instances whose proposal the
	// marketplace has not listed back yet
	if has, err := s.store.HasRecord(ctx, instance.ID); err != nil {
		return false, fmt.Errorf("failed to check record for instance %s: %w", instance.ID, err)
	} else if has {
		log.Ctx(ctx).Debug().Msg("instance already has a record, skipping")
		return false, nil
	}

	request := bidstrategy.BidStrategyRequest{Instance: instance}
	response, err := s.strategy.ShouldBid(ctx, request)
	if err != nil {
		return false, fmt.Errorf("bid strategy failed for instance %s: %w", instance.ID, err)
	}
	if !response.ShouldBid {
		log.Ctx(ctx).Debug().Str("Reason", response.Reason).Msg("not bidding on instance")
		return false, nil
	}

	response, err = s.strategy.ShouldBidBasedOnCapacity(ctx, request, freeSpace)
	if err != nil {
		return false, fmt.Errorf("capacity strategy failed for instance %s: %w", instance.ID, err)
	}
	if !response.ShouldBid {
		log.Ctx(ctx).Debug().Str("Reason", response.Reason).Msg("not bidding on instance")
		return false, nil
	}
	return true, nil
}

// bidAmount matches the requester's ceiling when one is advertised and falls
// back to the configured maximum otherwise. The max price strategy has
// already rejected instances whose ceiling exceeds the configured maximum,
// so the returned bid never does either.
func (s *Scanner) bidAmount(instance models.Instance) float64 {
	return lo.Ternary(instance.Priced(), instance.MaxPrice, s.maxBid)
}

// freeWorkspaceSpace measures the free bytes on the volume backing the
// workspace directory.
func (s *Scanner) freeWorkspaceSpace() datasize.ByteSize {
	return datasize.ByteSize(du.NewDiskUsage(s.workspaceDir).Available())
}
