package application

import (
	"testing"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBranchMatches(t *testing.T) {
	tests := []struct {
		branch  string
		pattern string
		want    bool
	}{
		{"main", "main", true},
		{"MAIN", "main", true},
		{"main", "MAIN", true},
		{"main", "master", false},
		{"feature/login", "feature/*", true},
		{"Feature/Login", "feature/*", true},
		{"bugfix/login", "feature/*", false},
		{"anything", "*", true},
		{"", "*", true},
		{"main", ".*", false},
		{"main", "", false},
		{"release-1.2", "release-*", true},
		{"release", "release-*", false},
	}

	for _, tc := range tests {
		got := branchMatches(tc.branch, tc.pattern)
		assert.Equal(t, tc.want, got, "branch %q pattern %q", tc.branch, tc.pattern)
	}
}

func TestFilter_TrackedAndWatchedBranches(t *testing.T) {
	cfg := &domain.MockConfig{WatchList: []string{"release-*"}}
	f := NewPipelineFilter(cfg)

	statuses := []domain.PipelineStatus{
		{ID: 1, BranchName: "main"},
		{ID: 2, BranchName: "release-1.2"},
		{ID: 3, BranchName: "someone-elses-feature"},
	}

	out := f.Filter(statuses, []string{"main"}, nil)

	var ids []int64
	for _, st := range out {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestFilter_IgnoreListWinsOverTracked(t *testing.T) {
	cfg := &domain.MockConfig{IgnoreList: []string{"wip/*"}}
	f := NewPipelineFilter(cfg)

	statuses := []domain.PipelineStatus{
		{ID: 1, BranchName: "wip/spike"},
		{ID: 2, BranchName: "main"},
	}

	out := f.Filter(statuses, []string{"wip/spike", "main"}, nil)

	assert.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].ID)
}

func TestFilter_MergeRequestHeadRefRetained(t *testing.T) {
	cfg := &domain.MockConfig{IgnoreList: []string{"wip/*"}}
	f := NewPipelineFilter(cfg)

	statuses := []domain.PipelineStatus{
		{ID: 1, BranchName: "main"},
		{ID: 2, BranchName: "colleague/feature"},
		{ID: 3, BranchName: "wip/feature"},
		{ID: 4, BranchName: "unrelated"},
	}
	mrs := []domain.MergeRequestSummary{
		{SourceBranch: "colleague/feature", HeadPipelineRef: "colleague/feature"},
		{SourceBranch: "wip/feature", HeadPipelineRef: "wip/feature"},
	}

	out := f.Filter(statuses, []string{"main"}, mrs)

	var ids []int64
	for _, st := range out {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []int64{1, 2}, ids,
		"merge request head refs keep untracked branches visible, ignore list still wins")
}

func TestFilter_MaxAge(t *testing.T) {
	cfg := &domain.MockConfig{MaxAge: 7}
	f := NewPipelineFilter(cfg)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	statuses := []domain.PipelineStatus{
		{ID: 1, BranchName: "main", UpdatedAt: now.AddDate(0, 0, -1)},
		{ID: 2, BranchName: "main", UpdatedAt: now.AddDate(0, 0, -30)},
		{ID: 3, BranchName: "main"}, // no update time, always kept
	}

	out := f.Filter(statuses, []string{"main"}, nil)

	var ids []int64
	for _, st := range out {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
}
