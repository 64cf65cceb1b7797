package application

import (
	"context"
	"regexp"
	"strings"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

var (
	sshRemotePattern  = regexp.MustCompile(`^git@([^:]+):(.+)$`)
	httpRemotePattern = regexp.MustCompile(`^(https?://)(.*)$`)
	bestGuessPattern  = regexp.MustCompile(`^(https?://[^/]*)/(.+)$`)
)

const gitlabComPrefix = "https://gitlab.com/"

// Resolver guesses the gitlab host and project path behind a remote URL.
// For self-hosted HTTP remotes there is no way to tell where the host ends
// and the project path begins, so candidate hosts are probed over the
// network until one answers with something that looks like gitlab.
type Resolver struct {
	log    *zap.Logger
	prober domain.Prober
}

func NewResolver(log *zap.Logger, prober domain.Prober) *Resolver {
	return &Resolver{log: log, prober: prober}
}

// Resolve tries, in order: a known mapping whose host prefixes the remote,
// the SSH form, the gitlab.com HTTP form, probed self-hosted HTTP forms,
// and finally an unverified best guess for the user to confirm. The second
// return is false only when even the best-guess pattern fails.
func (r *Resolver) Resolve(ctx context.Context, remote string, known []domain.Mapping) (domain.HostAndProjectPath, bool) {
	for _, m := range known {
		if m.Host != "" && strings.HasPrefix(remote, m.Host) {
			hp := domain.HostAndProjectPath{
				Host:        m.Host,
				ProjectPath: cleanProjectPath(remote[len(m.Host):]),
			}
			r.log.Debug("resolved remote from similar mapping",
				zap.String("remote", remote),
				zap.String("host", hp.Host),
				zap.String("project", hp.ProjectPath),
			)
			return hp, true
		}
	}

	if m := sshRemotePattern.FindStringSubmatch(remote); m != nil {
		hp := domain.HostAndProjectPath{
			Host:        "https://" + m[1],
			ProjectPath: trimGitSuffix(m[2]),
		}
		r.log.Debug("resolved ssh remote",
			zap.String("remote", remote),
			zap.String("host", hp.Host),
			zap.String("project", hp.ProjectPath),
		)
		return hp, true
	}

	if m := httpRemotePattern.FindStringSubmatch(remote); m != nil {
		if strings.HasPrefix(remote, gitlabComPrefix) {
			return domain.HostAndProjectPath{
				Host:        "https://gitlab.com",
				ProjectPath: cleanProjectPath(remote[len(gitlabComPrefix):]),
			}, true
		}
		if hp, ok := r.probeSelfHosted(ctx, remote, m[1], m[2]); ok {
			return hp, true
		}
	}

	return r.bestGuess(remote)
}

// probeSelfHosted grows a candidate host one path segment at a time and
// issues a GET against it; the first response containing "gitlab" wins.
// Any probe failure aborts in favour of the best-guess fallback.
func (r *Resolver) probeSelfHosted(ctx context.Context, remote, scheme, rest string) (domain.HostAndProjectPath, bool) {
	candidate := scheme
	for _, part := range strings.Split(rest, "/") {
		candidate += part + "/"
		if len(candidate) >= len(remote) {
			// The candidate swallowed the whole remote, leaving no
			// project path to resolve.
			break
		}

		r.log.Debug("probing candidate host", zap.String("url", candidate))
		body, err := r.prober.Probe(ctx, candidate)
		if err != nil {
			r.log.Info("host probe failed",
				zap.String("remote", remote),
				zap.String("url", candidate),
				zap.Error(err),
			)
			return domain.HostAndProjectPath{}, false
		}
		if strings.Contains(strings.ToLower(body), "gitlab") {
			hp := domain.HostAndProjectPath{
				Host:        strings.TrimSuffix(candidate, "/"),
				ProjectPath: cleanProjectPath(remote[len(candidate):]),
			}
			r.log.Info("resolved self-hosted remote by probing",
				zap.String("remote", remote),
				zap.String("host", hp.Host),
				zap.String("project", hp.ProjectPath),
			)
			return hp, true
		}
	}
	return domain.HostAndProjectPath{}, false
}

// bestGuess splits the remote into host and project path without any
// verification, so the user can confirm or edit it.
func (r *Resolver) bestGuess(remote string) (domain.HostAndProjectPath, bool) {
	m := bestGuessPattern.FindStringSubmatch(remote)
	if m == nil {
		r.log.Info("no meaningful data in remote", zap.String("remote", remote))
		return domain.HostAndProjectPath{}, false
	}
	return domain.HostAndProjectPath{
		Host:        m[1],
		ProjectPath: trimGitSuffix(m[2]),
	}, true
}

func cleanProjectPath(p string) string {
	return strings.TrimPrefix(trimGitSuffix(p), "/")
}

func trimGitSuffix(p string) string {
	if len(p) >= 4 && strings.EqualFold(p[len(p)-4:], ".git") {
		return p[:len(p)-4]
	}
	return p
}
