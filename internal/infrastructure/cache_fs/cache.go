package cache_fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
)

// FSCache writes the latest published snapshot as JSON, so status bars and
// scripts can read it without talking to gitlab themselves.
type FSCache struct {
	path string
}

func New(path string) *FSCache { return &FSCache{path: path} }

func (c *FSCache) Write(_ context.Context, s domain.Snapshot) error {
	if c.path == "" {
		return errors.New("cache path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(c.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	type statusOut struct {
		ID          int64     `json:"id"`
		Branch      string    `json:"branch"`
		Status      string    `json:"status"`
		StatusGroup string    `json:"status_group,omitempty"`
		URL         string    `json:"url"`
		MergeURL    string    `json:"merge_request_url,omitempty"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
	type projectOut struct {
		Remote   string      `json:"remote"`
		Project  string      `json:"project"`
		Statuses []statusOut `json:"statuses"`
	}
	type out struct {
		Taken    time.Time    `json:"taken"`
		Projects []projectOut `json:"projects"`
	}

	doc := out{Taken: s.Taken}
	for remote, statuses := range s.Statuses {
		p := projectOut{Remote: remote}
		if m, ok := s.Mappings[remote]; ok {
			p.Project = m.ProjectPath
		}
		for _, st := range statuses {
			p.Statuses = append(p.Statuses, statusOut{
				ID:          st.ID,
				Branch:      st.BranchName,
				Status:      st.Status,
				StatusGroup: st.StatusGroup,
				URL:         st.WebURL,
				MergeURL:    st.MergeRequestLink,
				UpdatedAt:   st.UpdatedAt,
			})
		}
		doc.Projects = append(doc.Projects, p)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}
