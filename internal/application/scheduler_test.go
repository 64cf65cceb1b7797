package application

import (
	"context"
	"testing"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

func newSchedFixture(cfg *domain.MockConfig) (*syncFixture, *Scheduler) {
	f := &syncFixture{
		gl:     &domain.MockGitlab{},
		git:    &domain.MockGit{},
		creds:  &domain.MockCredentials{},
		note:   &domain.MockNotifier{},
		cfg:    cfg,
		sink:   &domain.MockSink{},
		prober: &domain.MockProber{},
	}
	f.cfg.MappingList = []domain.Mapping{testMapping()}
	f.git.Repos = []domain.Repository{{Remotes: []string{testRemote}}}
	f.gl.Pipelines = map[string][]domain.PipelineStatus{testRemote: {
		{ID: 1, BranchName: "main", Status: "success"},
	}}

	log := zap.NewNop()
	f.syncer = NewSynchronizer(log, f.cfg, f.gl, f.git, f.creds, f.note, NewResolver(log, f.prober), f.sink, Events{})
	return f, NewScheduler(log, f.syncer, f.cfg)
}

func TestScheduler_InitialDelayThenCycle(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Delay: 5 * time.Millisecond, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	waitFor(t, "initial cycle", func() bool { return f.syncer.Snapshot().Taken != (time.Time{}) })
}

func TestScheduler_DisabledConfigDoesNotStart(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Disabled: true, Delay: time.Millisecond, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if !f.syncer.Snapshot().Taken.IsZero() {
		t.Error("no cycle must run while monitoring is disabled")
	}
}

func TestScheduler_UserTriggerBeatsInitialDelay(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Delay: time.Hour, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	sched.TriggerUserRefresh(ctx)

	waitFor(t, "triggered cycle", func() bool { return f.syncer.Snapshot().Taken != (time.Time{}) })
}

func TestScheduler_UserRefreshRunsWhileStopped(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Delay: time.Hour, Interval: time.Hour})

	sched.TriggerUserRefresh(context.Background())

	waitFor(t, "user cycle", func() bool { return f.syncer.Snapshot().Taken != (time.Time{}) })
}

func TestScheduler_TriggerDroppedWhileCycleRuns(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Delay: time.Hour, Interval: time.Hour})

	sched.mu.Lock()
	sched.running = true
	sched.inFlight = true
	sched.mu.Unlock()

	sched.TriggerUserRefresh(context.Background())
	time.Sleep(50 * time.Millisecond)
	if !f.syncer.Snapshot().Taken.IsZero() {
		t.Error("user trigger must be dropped while a cycle is in flight")
	}

	sched.trigger()
	select {
	case <-sched.triggers:
		t.Error("trigger must be dropped while a cycle is in flight")
	default:
	}
}

func TestScheduler_TriggerWhileStoppedDoesNotFireOnNextStart(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Delay: time.Hour, Interval: time.Hour})

	sched.OnRepositoriesReady()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	time.Sleep(50 * time.Millisecond)
	if !f.syncer.Snapshot().Taken.IsZero() {
		t.Error("a trigger sent while stopped must not fire after the next start")
	}
}

func TestScheduler_DrainTickDiscardsBufferedTick(t *testing.T) {
	ch := make(chan time.Time, 1)
	ch <- time.Now()

	drainTick(ch)
	if len(ch) != 0 {
		t.Error("buffered tick must be discarded")
	}
	drainTick(ch) // must not block on an empty channel
}

func TestScheduler_StopIsIdempotentAndRestartWorks(t *testing.T) {
	f, sched := newSchedFixture(&domain.MockConfig{Delay: time.Millisecond, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	waitFor(t, "first cycle", func() bool { return f.syncer.Snapshot().Taken != (time.Time{}) })

	sched.Stop()
	sched.Stop()

	first := f.syncer.Snapshot().Taken
	sched.Restart(ctx)
	defer sched.Stop()

	waitFor(t, "cycle after restart", func() bool { return f.syncer.Snapshot().Taken.After(first) })
}
