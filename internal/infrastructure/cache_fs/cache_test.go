package cache_fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_SnapshotAsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "snapshot.json")
	c := New(path)

	remote := "git@gitlab.example.com:group/proj.git"
	snap := domain.Snapshot{
		Taken: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Mappings: map[string]domain.Mapping{remote: {
			Remote:      remote,
			ProjectPath: "group/proj",
		}},
		Statuses: map[string][]domain.PipelineStatus{remote: {
			{
				ID:               7,
				BranchName:       "main",
				Status:           "success",
				StatusGroup:      "success-with-warnings",
				WebURL:           "https://gitlab.example.com/group/proj/-/pipelines/7",
				MergeRequestLink: "https://gitlab.example.com/group/proj/-/merge_requests/3",
			},
		}},
	}

	require.NoError(t, c.Write(context.Background(), snap))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Taken    time.Time `json:"taken"`
		Projects []struct {
			Remote   string `json:"remote"`
			Project  string `json:"project"`
			Statuses []struct {
				ID       int64  `json:"id"`
				Branch   string `json:"branch"`
				Status   string `json:"status"`
				Group    string `json:"status_group"`
				MergeURL string `json:"merge_request_url"`
			} `json:"statuses"`
		} `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(b, &doc))

	assert.Equal(t, snap.Taken, doc.Taken)
	require.Len(t, doc.Projects, 1)
	assert.Equal(t, "group/proj", doc.Projects[0].Project)
	require.Len(t, doc.Projects[0].Statuses, 1)
	assert.Equal(t, int64(7), doc.Projects[0].Statuses[0].ID)
	assert.Equal(t, "success-with-warnings", doc.Projects[0].Statuses[0].Group)
}

func TestWrite_EmptyPathFails(t *testing.T) {
	c := New("")
	err := c.Write(context.Background(), domain.Snapshot{})
	assert.Error(t, err)
}

func TestWrite_OverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	c := New(path)

	first := domain.Snapshot{Taken: time.Now().Add(-time.Hour)}
	second := domain.Snapshot{Taken: time.Now()}

	require.NoError(t, c.Write(context.Background(), first))
	require.NoError(t, c.Write(context.Background(), second))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Taken time.Time `json:"taken"`
	}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.True(t, doc.Taken.After(first.Taken))
}
