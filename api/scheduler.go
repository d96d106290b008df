/*
scheduler.go - Automated batch job scheduler

PURPOSE:
  Periodically triggers the two date-gated batch jobs (monthly accrual,
  year-end rollover) so they run without an admin clicking a button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Never forces: the period gate decides whether a run is due, so
    firing every hour is harmless
  - A refused run (already done this period) is logged at debug level

USAGE:
  scheduler := NewJobScheduler(engine, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccrual/RunRollover (manual, can force)
  - ledger/gate.go: the period gate
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/pto-ledger/ledger"
	"go.uber.org/zap"
)

const schedulerActor = "scheduler"

// JobScheduler triggers the gated batch jobs on a timer.
type JobScheduler struct {
	Engine        *ledger.Engine
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewJobScheduler creates a scheduler with the default hourly interval.
func NewJobScheduler(engine *ledger.Engine, log *zap.Logger) *JobScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobScheduler{
		Engine:        engine,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (js *JobScheduler) Start() {
	js.mu.Lock()
	defer js.mu.Unlock()

	if !js.Enabled {
		js.Log.Info("scheduler disabled, not starting")
		return
	}

	js.ticker = time.NewTicker(js.CheckInterval)
	js.wg.Add(1)

	go js.run()

	js.Log.Info("scheduler started", zap.Duration("interval", js.CheckInterval))
}

// Stop stops the scheduler.
func (js *JobScheduler) Stop() {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.ticker != nil {
		js.ticker.Stop()
		close(js.stop)
		js.wg.Wait()
		js.Log.Info("scheduler stopped")
	}
}

func (js *JobScheduler) run() {
	defer js.wg.Done()

	// Run immediately on start
	js.checkAndRun()

	for {
		select {
		case <-js.ticker.C:
			js.checkAndRun()
		case <-js.stop:
			return
		}
	}
}

func (js *JobScheduler) checkAndRun() {
	ctx := context.Background()

	if result, err := js.Engine.RunMonthlyAccrual(ctx, schedulerActor, false); err != nil {
		js.Log.Error("scheduled monthly accrual failed", zap.Error(err))
	} else if !result.Ran {
		js.Log.Debug("monthly accrual already run", zap.String("period", result.Period))
	}

	if result, err := js.Engine.RunYearEndRollover(ctx, schedulerActor, false); err != nil {
		js.Log.Error("scheduled year-end rollover failed", zap.Error(err))
	} else if !result.Ran {
		js.Log.Debug("year-end rollover already run", zap.String("period", result.Period))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (js *JobScheduler) RunNow() {
	js.checkAndRun()
}
