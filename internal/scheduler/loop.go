// Package scheduler runs the periodic trigger loop that discovers due
// schedules and hands them to the execution engine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/journalpost/internal/models"
	"github.com/journalpost/internal/store"
	"go.uber.org/zap"
)

// Executor runs one claimed schedule to a terminal log state.
type Executor interface {
	Execute(ctx context.Context, sched *models.Schedule, passphrase string)
}

// Loop polls the store on a fixed interval and dispatches claimed schedules
// to a bounded worker pool so a burst of due schedules cannot spawn unbounded
// goroutines and a slow render never blocks the next tick.
type Loop struct {
	store    store.ScheduleStore
	executor Executor
	interval time.Duration
	workers  chan struct{}
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

func New(st store.ScheduleStore, executor Executor, interval time.Duration, maxWorkers int, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Loop{
		store:    st,
		executor: executor,
		interval: interval,
		workers:  make(chan struct{}, maxWorkers),
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the loop in a background goroutine. Calling Start on a
// running loop is a no-op.
func (l *Loop) Start(parent context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.started = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		l.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.runOnce(ctx)
			}
		}
	}()

	l.logger.Info("trigger loop started",
		zap.Duration("interval", l.interval), zap.Int("max_workers", cap(l.workers)))
}

// Stop cancels the loop and waits for in-flight executions to reach a
// terminal log state. Calling Stop on a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info("trigger loop stopped")
}

// runOnce drains due schedules until the store reports none, the pool is
// saturated, or the context is cancelled. Store outages are transient: log
// and retry on the next tick.
func (l *Loop) runOnce(ctx context.Context) {
	for {
		select {
		case l.workers <- struct{}{}:
		default:
			return
		}

		sched, err := l.store.ClaimDue(ctx, l.now())
		if err != nil {
			<-l.workers
			l.logger.Warn("claim failed, retrying next tick", zap.Error(err))
			return
		}
		if sched == nil {
			<-l.workers
			return
		}

		l.logger.Info("claimed due schedule",
			zap.String("schedule_id", sched.ID), zap.String("name", sched.Name))

		l.wg.Add(1)
		go func(sched *models.Schedule) {
			defer l.wg.Done()
			defer func() { <-l.workers }()
			// A claimed job runs to a terminal log state even if the loop is
			// stopped underneath it.
			l.executor.Execute(context.WithoutCancel(ctx), sched, "")
		}(sched)
	}
}
