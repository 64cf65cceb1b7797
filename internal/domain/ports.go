package domain

import (
	"context"
	"time"
)

// GitlabClient is the low-level gitlab transport.
type GitlabClient interface {
	// FetchPipelines loads the first two pages of pipelines for a mapping,
	// retried per the client's policy. Errors are *Failure values.
	FetchPipelines(ctx context.Context, m Mapping, token string) ([]PipelineStatus, error)
	// ProjectInfo runs the lightweight project query (name, id, jobsEnabled).
	ProjectInfo(ctx context.Context, host, projectPath, token string) (ProjectInfo, error)
	// ProjectDetails runs the combined enrichment query. Never retried; a
	// failure degrades that cycle's enrichment.
	ProjectDetails(ctx context.Context, m Mapping, token string, sourceBranches []string) (*ProjectDetails, error)
}

// GitProvider enumerates local repositories and their branches.
type GitProvider interface {
	ListRepositories(ctx context.Context) ([]Repository, error)
	// TrackedBranches returns local branches with an upstream, for the
	// repository owning the given remote URL.
	TrackedBranches(ctx context.Context, remoteURL string) ([]string, error)
}

// CredentialStore holds access tokens keyed by remote URL.
type CredentialStore interface {
	Token(key string) (string, TokenKind, error)
	// SetToken stores token under key; an empty token deletes the entry.
	SetToken(key, token string, kind TokenKind) error
}

// ConfigStore is the engine's view of persisted configuration. Mutators
// persist immediately.
type ConfigStore interface {
	Enabled() bool
	RefreshInterval() time.Duration
	InitialDelay() time.Duration
	ConnectTimeout() time.Duration
	ShowConnectionErrors() bool
	ShowProgress() bool

	Mappings() []Mapping
	MappingByRemote(url string) (Mapping, bool)
	AddMapping(m Mapping) error

	IgnoredRemotes() []string
	AddIgnoredRemote(url string) error
	AlwaysMonitorHosts() []string

	BranchesToWatch() []string
	BranchesToIgnore() []string
	MaxAgeDays() int
}

// Notifier shows user-facing notifications.
type Notifier interface {
	ShowInfo(ctx context.Context, text string) error
	ShowError(ctx context.Context, text string) error
}

// SnapshotSink receives every published snapshot.
type SnapshotSink interface {
	Write(ctx context.Context, s Snapshot) error
}

// Prober issues a plain GET and returns the body, used by the remote
// resolver's host guessing. Kept narrow so tests can script it.
type Prober interface {
	Probe(ctx context.Context, url string) (string, error)
}
