package application

import (
	"context"
	"strconv"
	"sync"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

type branchKey struct {
	remote string
	branch string
}

// NotifyUseCase watches published snapshots and raises a desktop
// notification whenever the newest pipeline of a watched branch changes
// its status. The very first snapshot only seeds the baseline.
type NotifyUseCase struct {
	log    *zap.Logger
	git    domain.GitProvider
	note   notifySender
	filter *PipelineFilter

	mu     sync.Mutex
	seeded bool
	last   map[branchKey]struct {
		id     int64
		status string
	}
}

// notifySender is the subset of the libnotify adapter used here; the
// domain.Notifier port only covers plain info/error messages.
type notifySender interface {
	Notify(ctx context.Context, title, body, url string) error
}

func NewNotifyUseCase(log *zap.Logger, git domain.GitProvider, sender notifySender, filter *PipelineFilter) *NotifyUseCase {
	return &NotifyUseCase{
		log:    log,
		git:    git,
		note:   sender,
		filter: filter,
		last: make(map[branchKey]struct {
			id     int64
			status string
		}),
	}
}

// OnReload is wired as the synchronizer's reload event.
func (uc *NotifyUseCase) OnReload(snap domain.Snapshot) {
	ctx := context.Background()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	firstRun := !uc.seeded
	uc.seeded = true

	for remote, statuses := range snap.Statuses {
		branches, err := uc.git.TrackedBranches(ctx, remote)
		if err != nil {
			uc.log.Debug("tracked branches unavailable", zap.String("remote", remote), zap.Error(err))
		}

		newest := newestPerBranch(uc.filter.Filter(statuses, branches, snap.MergeRequests))
		for branch, st := range newest {
			key := branchKey{remote: remote, branch: branch}
			prev, seen := uc.last[key]
			uc.last[key] = struct {
				id     int64
				status string
			}{st.ID, st.Status}

			if firstRun {
				continue
			}
			if seen && prev.id == st.ID && prev.status == st.Status {
				continue
			}

			title := titleFor(st.Status)
			body := "Pipeline #" + strconv.FormatInt(st.ID, 10) + " (" + branch + ")"
			if err := uc.note.Notify(ctx, title, body, st.WebURL); err != nil {
				uc.log.Debug("notification failed", zap.Error(err))
			}
		}
	}
}

// newestPerBranch relies on statuses being sorted newest first.
func newestPerBranch(statuses []domain.PipelineStatus) map[string]domain.PipelineStatus {
	out := make(map[string]domain.PipelineStatus)
	for _, st := range statuses {
		if _, ok := out[st.BranchName]; !ok {
			out[st.BranchName] = st
		}
	}
	return out
}

func titleFor(status string) string {
	switch status {
	case "success":
		return "✅ CI: success"
	case "failed":
		return "❌ CI: failed"
	case "running":
		return "▶️ CI: running"
	case "canceled":
		return "⛔ CI: canceled"
	default:
		return "ℹ️ CI: " + status
	}
}
