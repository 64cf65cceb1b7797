package application

import (
	"context"
	"sync"
	"testing"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (r *recordingSender) Notify(ctx context.Context, title, body, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return nil
}

func notifySnapshot(status string, id int64) domain.Snapshot {
	return domain.Snapshot{
		Mappings: map[string]domain.Mapping{testRemote: testMapping()},
		Statuses: map[string][]domain.PipelineStatus{testRemote: {
			{ID: id, BranchName: "main", Status: status, WebURL: "https://gitlab.com/group/proj/-/pipelines/1"},
		}},
	}
}

func newNotifyFixture() (*recordingSender, *NotifyUseCase) {
	sender := &recordingSender{}
	git := &domain.MockGit{Branches: map[string][]string{testRemote: {"main"}}}
	uc := NewNotifyUseCase(zap.NewNop(), git, sender, NewPipelineFilter(&domain.MockConfig{}))
	return sender, uc
}

func TestOnReload_FirstSnapshotOnlySeeds(t *testing.T) {
	sender, uc := newNotifyFixture()

	uc.OnReload(notifySnapshot("running", 1))

	if len(sender.titles) != 0 {
		t.Errorf("first snapshot must not notify, got %v", sender.titles)
	}
}

func TestOnReload_StatusChangeNotifies(t *testing.T) {
	sender, uc := newNotifyFixture()

	uc.OnReload(notifySnapshot("running", 1))
	uc.OnReload(notifySnapshot("success", 1))

	if len(sender.titles) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sender.titles))
	}
	if sender.titles[0] != "✅ CI: success" {
		t.Errorf("wrong title: %q", sender.titles[0])
	}
	if sender.bodies[0] != "Pipeline #1 (main)" {
		t.Errorf("wrong body: %q", sender.bodies[0])
	}
}

func TestOnReload_UnchangedStatusStaysQuiet(t *testing.T) {
	sender, uc := newNotifyFixture()

	uc.OnReload(notifySnapshot("success", 1))
	uc.OnReload(notifySnapshot("success", 1))
	uc.OnReload(notifySnapshot("success", 1))

	if len(sender.titles) != 0 {
		t.Errorf("unchanged status must not notify, got %v", sender.titles)
	}
}

func TestOnReload_NewPipelineOnSameBranchNotifies(t *testing.T) {
	sender, uc := newNotifyFixture()

	uc.OnReload(notifySnapshot("success", 1))
	uc.OnReload(notifySnapshot("success", 2))

	if len(sender.titles) != 1 {
		t.Errorf("expected 1 notification for the new pipeline, got %d", len(sender.titles))
	}
}

func TestOnReload_IgnoredBranchNeverNotifies(t *testing.T) {
	sender := &recordingSender{}
	git := &domain.MockGit{Branches: map[string][]string{testRemote: {"main"}}}
	cfg := &domain.MockConfig{IgnoreList: []string{"main"}}
	uc := NewNotifyUseCase(zap.NewNop(), git, sender, NewPipelineFilter(cfg))

	uc.OnReload(notifySnapshot("running", 1))
	uc.OnReload(notifySnapshot("failed", 1))

	if len(sender.titles) != 0 {
		t.Errorf("ignored branch must not notify, got %v", sender.titles)
	}
}
