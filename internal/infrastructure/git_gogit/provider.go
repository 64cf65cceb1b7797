package git_gogit

import (
	"context"
	"sync"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// Provider enumerates local repositories via go-git. Each configured root
// is expected to be (or contain, via .git detection) one working copy.
type Provider struct {
	log *zap.Logger

	mu    sync.RWMutex
	roots []string
}

func New(log *zap.Logger, roots []string) *Provider {
	return &Provider{log: log, roots: roots}
}

// UpdateRoots replaces the set of repository roots after a config reload.
func (p *Provider) UpdateRoots(roots []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots = roots
}

func (p *Provider) ListRepositories(ctx context.Context) ([]domain.Repository, error) {
	p.mu.RLock()
	roots := make([]string, len(p.roots))
	copy(roots, p.roots)
	p.mu.RUnlock()

	var out []domain.Repository
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			p.log.Warn("not a git repository", zap.String("root", root), zap.Error(err))
			continue
		}

		remotes, err := repo.Remotes()
		if err != nil {
			p.log.Warn("listing remotes failed", zap.String("root", root), zap.Error(err))
			continue
		}

		var urls []string
		for _, r := range remotes {
			urls = append(urls, r.Config().URLs...)
		}
		out = append(out, domain.Repository{Root: root, Remotes: urls})
	}
	return out, nil
}

// TrackedBranches returns the local branches with a configured upstream in
// the repository owning the given remote URL.
func (p *Provider) TrackedBranches(ctx context.Context, remoteURL string) ([]string, error) {
	repos, err := p.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidate := range repos {
		if !contains(candidate.Remotes, remoteURL) {
			continue
		}

		repo, err := git.PlainOpenWithOptions(candidate.Root, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, err
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, err
		}

		var branches []string
		for name, branch := range cfg.Branches {
			if branch.Remote != "" {
				branches = append(branches, name)
			}
		}
		return branches, nil
	}

	// Can happen during shutdown or when the repo moved away. Nothing to
	// track then.
	return nil, nil
}

func contains(urls []string, url string) bool {
	for _, u := range urls {
		if u == url {
			return true
		}
	}
	return false
}
