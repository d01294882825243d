package demo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/deliberate/internal/config"
	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/environment"
	"github.com/xkilldash9x/deliberate/pkg/platform"
	"github.com/xkilldash9x/deliberate/pkg/suspend"
)

// Report summarizes a demo run.
type Report struct {
	Buyers  int            `json:"buyers"`
	Deaths  int64          `json:"deaths"`
	Deals   []Receipt      `json:"deals"`
	Elapsed string         `json:"elapsed"`
	Stats   platform.Stats `json:"stats"`
}

// PlatformOptions maps the scheduler configuration onto platform options.
func PlatformOptions(cfg config.SchedulerConfig) []platform.Option {
	opts := []platform.Option{platform.WithWorkers(cfg.Workers)}
	if cfg.TurnRate > 0 {
		opts = append(opts, platform.WithTurnRate(rate.Limit(cfg.TurnRate), cfg.TurnBurst))
	}
	return opts
}

// Run starts one seller and cfg.Demo.Buyers buyers, lets them negotiate until
// every buyer is done or cfg.Demo.Duration passes, then halts the platform.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...platform.Option) (*Report, error) {
	started := time.Now()

	exec, err := suspend.NewExecutor(cfg.Executor.MaxConcurrent, logger)
	if err != nil {
		return nil, err
	}
	defer exec.Close()

	clock, err := environment.NewClock(logger)
	if err != nil {
		return nil, err
	}

	p, err := platform.New(logger, append(PlatformOptions(cfg.Scheduler), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to start platform: %w", err)
	}

	halted := false
	defer func() {
		if halted {
			return
		}
		haltCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.HaltTimeout)
		defer cancel()
		if err := p.Halt(haltCtx); err != nil {
			logger.Warn("Platform did not halt cleanly.", zap.Error(err))
		}
	}()

	ledger := &Ledger{}
	if err := p.AddFactory(SellerBuilder(&SellerTerms{Ask: cfg.Demo.AskPrice, Ledger: ledger}, exec)); err != nil {
		return nil, err
	}
	if err := p.AddFactory(BuyerBuilder()); err != nil {
		return nil, err
	}

	seller, err := p.NewAgent(SellerType, nil)
	if err != nil {
		return nil, err
	}

	var deaths atomic.Int64
	var buyers sync.WaitGroup
	for i := 0; i < cfg.Demo.Buyers; i++ {
		h, err := p.NewAgent(BuyerType, BuyerArgs{
			Seller: seller.ID(),
			Start:  cfg.Demo.AskPrice - (i+1)*bidStep,
			Max:    cfg.Demo.MaxBid,
		})
		if err != nil {
			return nil, err
		}
		buyers.Add(1)
		h.AddDeathListener(agent.DeathListenerFunc(func(id agent.ID) {
			deaths.Add(1)
			buyers.Done()
		}))
		if _, err := clock.Every(cfg.Demo.Tick, "retry", h); err != nil {
			return nil, err
		}
	}

	clock.Start()
	allDone := make(chan struct{})
	go func() {
		buyers.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		logger.Info("All buyers are done.")
	case <-time.After(cfg.Demo.Duration):
		logger.Info("Demo duration elapsed.")
	case <-ctx.Done():
		logger.Info("Demo cancelled.", zap.Error(ctx.Err()))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.HaltTimeout)
	defer cancel()
	if err := ledger.Settled(stopCtx); err != nil {
		logger.Warn("Deals still unsettled at shutdown.", zap.Error(err))
	}
	if err := clock.Stop(stopCtx); err != nil {
		logger.Warn("Clock did not stop cleanly.", zap.Error(err))
	}
	halted = true
	if err := p.Halt(stopCtx); err != nil {
		return nil, err
	}
	<-allDone

	return &Report{
		Buyers:  cfg.Demo.Buyers,
		Deaths:  deaths.Load(),
		Deals:   ledger.Receipts(),
		Elapsed: time.Since(started).Round(time.Millisecond).String(),
		Stats:   p.Stats(),
	}, nil
}
