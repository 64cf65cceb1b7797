package application

import (
	"context"
	"errors"
	"testing"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolve_SSHRemote(t *testing.T) {
	r := NewResolver(zap.NewNop(), &domain.MockProber{})

	tests := []struct {
		remote  string
		host    string
		project string
	}{
		{"git@gitlab.example.com:group/proj.git", "https://gitlab.example.com", "group/proj"},
		{"git@gitlab.com:ppiwowarski/waybar-crypto.git", "https://gitlab.com", "ppiwowarski/waybar-crypto"},
		{"git@git.internal:team/sub/tool.GIT", "https://git.internal", "team/sub/tool"},
		{"git@host:project", "https://host", "project"},
	}

	for _, tc := range tests {
		hp, ok := r.Resolve(context.Background(), tc.remote, nil)
		require.True(t, ok, tc.remote)
		assert.Equal(t, tc.host, hp.Host, tc.remote)
		assert.Equal(t, tc.project, hp.ProjectPath, tc.remote)
	}
}

func TestResolve_GitlabCom(t *testing.T) {
	prober := &domain.MockProber{}
	r := NewResolver(zap.NewNop(), prober)

	hp, ok := r.Resolve(context.Background(), "https://gitlab.com/group/sub/proj.git", nil)

	require.True(t, ok)
	assert.Equal(t, "https://gitlab.com", hp.Host)
	assert.Equal(t, "group/sub/proj", hp.ProjectPath)
	assert.Empty(t, prober.Probed, "gitlab.com remotes must not be probed")
}

func TestResolve_KnownMappingWins(t *testing.T) {
	prober := &domain.MockProber{}
	r := NewResolver(zap.NewNop(), prober)

	known := []domain.Mapping{{
		Remote: "https://git.company.io/other/repo.git",
		Host:   "https://git.company.io",
	}}

	hp, ok := r.Resolve(context.Background(), "https://git.company.io/group/proj.git", known)

	require.True(t, ok)
	assert.Equal(t, "https://git.company.io", hp.Host)
	assert.Equal(t, "group/proj", hp.ProjectPath)
	assert.Empty(t, prober.Probed, "known mapping must short-circuit probing")
}

func TestResolve_SelfHostedProbing(t *testing.T) {
	prober := &domain.MockProber{Bodies: map[string]string{
		"https://company.io/":     "<html>corporate portal</html>",
		"https://company.io/git/": "<html>GitLab Community Edition</html>",
	}}
	r := NewResolver(zap.NewNop(), prober)

	hp, ok := r.Resolve(context.Background(), "https://company.io/git/group/proj.git", nil)

	require.True(t, ok)
	assert.Equal(t, "https://company.io/git", hp.Host)
	assert.Equal(t, "group/proj", hp.ProjectPath)
	assert.Equal(t, []string{"https://company.io/", "https://company.io/git/"}, prober.Probed)
}

func TestResolve_ProbeStopsBeforeConsumingWholeRemote(t *testing.T) {
	prober := &domain.MockProber{Bodies: map[string]string{
		"https://code.example.com/":          "<html>corporate portal</html>",
		"https://code.example.com/proj.git/": "<html>GitLab sign in</html>",
	}}
	r := NewResolver(zap.NewNop(), prober)

	hp, ok := r.Resolve(context.Background(), "https://code.example.com/proj.git", nil)

	require.True(t, ok)
	assert.Equal(t, "https://code.example.com", hp.Host)
	assert.Equal(t, "proj", hp.ProjectPath)
	assert.Equal(t, []string{"https://code.example.com/"}, prober.Probed,
		"a candidate that leaves no project path must not be probed")
}

func TestResolve_ProbeFailureFallsBackToBestGuess(t *testing.T) {
	prober := &domain.MockProber{Err: errors.New("connect refused")}
	r := NewResolver(zap.NewNop(), prober)

	hp, ok := r.Resolve(context.Background(), "https://git.company.io/group/proj.git", nil)

	require.True(t, ok)
	assert.Equal(t, "https://git.company.io", hp.Host)
	assert.Equal(t, "group/proj", hp.ProjectPath)
}

func TestResolve_NothingRecognizable(t *testing.T) {
	r := NewResolver(zap.NewNop(), &domain.MockProber{})

	_, ok := r.Resolve(context.Background(), "file:///srv/repos/thing.git", nil)

	assert.False(t, ok)
}

func TestResolve_Idempotent(t *testing.T) {
	prober := &domain.MockProber{Bodies: map[string]string{
		"https://git.example.org/": "gitlab",
	}}
	r := NewResolver(zap.NewNop(), prober)

	first, ok1 := r.Resolve(context.Background(), "https://git.example.org/a/b.git", nil)
	second, ok2 := r.Resolve(context.Background(), "https://git.example.org/a/b.git", nil)

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}
