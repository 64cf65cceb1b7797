package application

import (
	"strings"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
)

// PipelineFilter narrows a snapshot's statuses down to the branches the
// user cares about: branches tracked locally or on the watch list, minus
// the ignore list, minus stale entries.
type PipelineFilter struct {
	cfg domain.ConfigStore
	now func() time.Time
}

func NewPipelineFilter(cfg domain.ConfigStore) *PipelineFilter {
	return &PipelineFilter{cfg: cfg, now: time.Now}
}

// Filter returns the statuses to surface for one remote. trackedBranches
// are the branches of the local repository behind the remote; mergeRequests
// are the open merge requests of the cycle's snapshot, whose head pipeline
// refs keep their pipelines visible even on untracked branches.
func (f *PipelineFilter) Filter(statuses []domain.PipelineStatus, trackedBranches []string, mergeRequests []domain.MergeRequestSummary) []domain.PipelineStatus {
	watch := f.cfg.BranchesToWatch()
	ignore := f.cfg.BranchesToIgnore()

	var cutoff time.Time
	if days := f.cfg.MaxAgeDays(); days > 0 {
		cutoff = f.now().AddDate(0, 0, -days)
	}

	var out []domain.PipelineStatus
	for _, st := range statuses {
		if matchesAny(st.BranchName, ignore) {
			continue
		}
		if !containsString(trackedBranches, st.BranchName) &&
			!matchesAny(st.BranchName, watch) &&
			!matchesMergeRequestHead(st.BranchName, mergeRequests) {
			continue
		}
		if !cutoff.IsZero() && !st.UpdatedAt.IsZero() && st.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, st)
	}
	return out
}

// matchesMergeRequestHead reports whether branch is the head pipeline ref
// of an open merge request.
func matchesMergeRequestHead(branch string, mrs []domain.MergeRequestSummary) bool {
	for _, mr := range mrs {
		if mr.HeadPipelineRef != "" && mr.HeadPipelineRef == branch {
			return true
		}
	}
	return false
}

func matchesAny(branch string, patterns []string) bool {
	for _, p := range patterns {
		if branchMatches(branch, p) {
			return true
		}
	}
	return false
}

// branchMatches compares case-insensitively. A sole "*" matches every
// branch and a trailing "*" turns the pattern into a prefix match. There
// is no regex syntax: ".*" is a prefix match on "." and matches nothing
// a branch would normally be called.
func branchMatches(branch, pattern string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	b := strings.ToLower(branch)
	p := strings.ToLower(pattern)
	if strings.HasSuffix(p, "*") {
		return strings.HasPrefix(b, strings.TrimSuffix(p, "*"))
	}
	return b == p
}
