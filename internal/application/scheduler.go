package application

import (
	"context"
	"sync"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

// Scheduler drives the synchronizer: an initial delayed cycle, then a
// periodic one, plus on-demand triggers. Cycles never overlap; a trigger
// arriving while a cycle runs is dropped.
type Scheduler struct {
	log  *zap.Logger
	sync *Synchronizer
	cfg  domain.ConfigStore

	mu       sync.Mutex
	running  bool
	inFlight bool
	stopCh   chan struct{}
	triggers chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(log *zap.Logger, s *Synchronizer, cfg domain.ConfigStore) *Scheduler {
	sched := &Scheduler{
		log:      log,
		sync:     s,
		cfg:      cfg,
		triggers: make(chan struct{}, 1),
	}
	s.SetCycleRequester(sched.trigger)
	return sched
}

// Start launches the timer loop. A no-op while already running or when
// monitoring is disabled in the config.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	if !s.cfg.Enabled() {
		s.log.Info("monitoring disabled, scheduler not started")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
	s.log.Info("scheduler started",
		zap.Duration("initial_delay", s.cfg.InitialDelay()),
		zap.Duration("interval", s.cfg.RefreshInterval()),
	)
}

// Stop halts the timer loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	select {
	case <-s.triggers:
		// Discard a trigger left over from the old loop so it does not
		// fire a cycle right after the next Start.
	default:
	}
	s.log.Info("scheduler stopped")
}

// Restart applies a changed interval or enabled flag by cycling the loop.
func (s *Scheduler) Restart(ctx context.Context) {
	s.Stop()
	s.Start(ctx)
}

// TriggerUserRefresh runs an immediate cycle on its own worker, bypassing
// the timer and lifting transient suppressions. It works even while the
// timer loop is stopped; a cycle already in flight absorbs the request.
func (s *Scheduler) TriggerUserRefresh(ctx context.Context) {
	go s.runCycle(ctx, true)
}

// OnRepositoriesReady runs the first remote discovery as soon as the git
// roots have been scanned.
func (s *Scheduler) OnRepositoriesReady() { s.trigger() }

func (s *Scheduler) trigger() {
	s.mu.Lock()
	idle := s.running && !s.inFlight
	s.mu.Unlock()
	if !idle {
		s.log.Debug("scheduler stopped or cycle running, dropping trigger")
		return
	}
	select {
	case s.triggers <- struct{}{}:
	default:
		// A trigger is already queued; one pending cycle is enough.
	}
}

func (s *Scheduler) loop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	delay := time.NewTimer(s.cfg.InitialDelay())
	defer delay.Stop()

	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-s.triggers:
			s.runCycle(ctx, false)
		case <-delay.C:
			s.runCycle(ctx, false)
			waiting = false
		}
	}

	t := time.NewTicker(s.cfg.RefreshInterval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C:
			s.runCycle(ctx, false)
			drainTick(t.C)
		case <-s.triggers:
			s.runCycle(ctx, false)
			drainTick(t.C)
		}
	}
}

// drainTick discards a tick that fired while a cycle was running so it does
// not cause an immediate back-to-back cycle.
func drainTick(c <-chan time.Time) {
	select {
	case <-c:
	default:
	}
}

// runCycle enforces the single-flight rule: overlapping triggers are
// dropped, not queued behind the running cycle.
func (s *Scheduler) runCycle(ctx context.Context, byUser bool) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Debug("cycle already running, dropping trigger")
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if !byUser && !s.cfg.Enabled() {
		return
	}
	s.sync.RunCycle(ctx, byUser)
}
