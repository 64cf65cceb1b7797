package git_gogit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func initRepo(t *testing.T, dir, remoteURL string, trackedBranches ...string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})
	require.NoError(t, err)

	cfg, err := repo.Config()
	require.NoError(t, err)
	for _, b := range trackedBranches {
		cfg.Branches[b] = &gitconfig.Branch{
			Name:   b,
			Remote: "origin",
			Merge:  plumbing.NewBranchReferenceName(b),
		}
	}
	require.NoError(t, repo.SetConfig(cfg))
}

func TestListRepositories(t *testing.T) {
	tmp := t.TempDir()
	repoDir := filepath.Join(tmp, "proj")
	initRepo(t, repoDir, "git@gitlab.example.com:group/proj.git")

	p := New(zap.NewNop(), []string{repoDir, filepath.Join(tmp, "not-a-repo")})

	repos, err := p.ListRepositories(context.Background())
	require.NoError(t, err)

	require.Len(t, repos, 1, "non-repo roots are skipped")
	assert.Equal(t, repoDir, repos[0].Root)
	assert.Equal(t, []string{"git@gitlab.example.com:group/proj.git"}, repos[0].Remotes)
}

func TestTrackedBranches(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, "git@gitlab.example.com:group/proj.git", "main", "feature/x")

	p := New(zap.NewNop(), []string{dir})

	branches, err := p.TrackedBranches(context.Background(), "git@gitlab.example.com:group/proj.git")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "feature/x"}, branches)
}

func TestTrackedBranches_UnknownRemote(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, "git@gitlab.example.com:group/proj.git", "main")

	p := New(zap.NewNop(), []string{dir})

	branches, err := p.TrackedBranches(context.Background(), "git@elsewhere.example.com:other.git")
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestUpdateRoots(t *testing.T) {
	tmp := t.TempDir()
	first := filepath.Join(tmp, "first")
	second := filepath.Join(tmp, "second")
	initRepo(t, first, "git@gitlab.example.com:group/first.git")
	initRepo(t, second, "git@gitlab.example.com:group/second.git")

	p := New(zap.NewNop(), []string{first})
	p.UpdateRoots([]string{second})

	repos, err := p.ListRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, second, repos[0].Root)
}
