package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

// Hosting providers that will never answer like a gitlab instance.
var incompatibleRemotes = []string{"github.com", "bitbucket"}

// Events are the callbacks the synchronizer fires towards the presentation
// layer. Nil callbacks are skipped.
type Events struct {
	UntrackedRemoteFound func(domain.UntrackedRemote)
	Reload               func(domain.Snapshot)
}

// Synchronizer runs refresh cycles: discover unmapped remotes, fetch
// pipelines, enrich from graphql, publish a snapshot. A failed cycle
// leaves the previous snapshot intact.
type Synchronizer struct {
	log      *zap.Logger
	cfg      domain.ConfigStore
	gitlab   domain.GitlabClient
	git      domain.GitProvider
	creds    domain.CredentialStore
	notifier domain.Notifier
	resolver *Resolver
	sink     domain.SnapshotSink
	events   Events

	authRequests chan domain.AuthRequest
	// requestCycle asks the scheduler for an immediate extra cycle, e.g.
	// after the user entered a new token.
	requestCycle func()

	snapshot atomic.Pointer[domain.Snapshot]

	mu             sync.Mutex
	checking       bool
	pendingDialogs map[string]struct{} // remotes with an open token dialog
	pendingPrompts map[string]struct{} // remotes with an open untracked-remote prompt
	suppressed     map[string]struct{} // remotes skipped until user trigger or restart
	errorStreak    bool
}

func NewSynchronizer(
	log *zap.Logger,
	cfg domain.ConfigStore,
	gitlab domain.GitlabClient,
	git domain.GitProvider,
	creds domain.CredentialStore,
	notifier domain.Notifier,
	resolver *Resolver,
	sink domain.SnapshotSink,
	events Events,
) *Synchronizer {
	s := &Synchronizer{
		log:            log,
		cfg:            cfg,
		gitlab:         gitlab,
		git:            git,
		creds:          creds,
		notifier:       notifier,
		resolver:       resolver,
		sink:           sink,
		events:         events,
		authRequests:   make(chan domain.AuthRequest, 4),
		pendingDialogs: make(map[string]struct{}),
		pendingPrompts: make(map[string]struct{}),
		suppressed:     make(map[string]struct{}),
	}
	empty := domain.Snapshot{
		Mappings: map[string]domain.Mapping{},
		Statuses: map[string][]domain.PipelineStatus{},
	}
	s.snapshot.Store(&empty)
	return s
}

// AuthRequests is consumed by the presentation layer; each request must be
// answered on its Reply channel.
func (s *Synchronizer) AuthRequests() <-chan domain.AuthRequest { return s.authRequests }

// SetCycleRequester wires the scheduler callback used to trigger an
// on-demand cycle after a token change.
func (s *Synchronizer) SetCycleRequester(fn func()) { s.requestCycle = fn }

// Snapshot returns the last published snapshot. Safe for concurrent use;
// the returned value is never mutated after publication.
func (s *Synchronizer) Snapshot() domain.Snapshot { return *s.snapshot.Load() }

// UntrackedHandled tells the synchronizer that the prompt for an untracked
// remote was answered (or dismissed), allowing future cycles to raise it
// again.
func (s *Synchronizer) UntrackedHandled(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingPrompts, url)
}

// RunCycle executes one full refresh cycle. triggeredByUser lifts the
// transient suppressions and forces error notifications.
func (s *Synchronizer) RunCycle(ctx context.Context, triggeredByUser bool) {
	if triggeredByUser {
		s.mu.Lock()
		s.suppressed = make(map[string]struct{})
		s.mu.Unlock()
		if s.cfg.ShowProgress() {
			_ = s.notifier.ShowInfo(ctx, "Refreshing gitlab pipelines")
		}
	}

	s.CheckForUnmappedRemotes(ctx, triggeredByUser)

	snap, fetchErr, fatal := s.fetchPipelines(ctx, triggeredByUser)
	if fatal != nil {
		// Local git trouble, not a gitlab connection problem. The previous
		// snapshot stays published.
		s.log.Warn("cycle aborted", zap.Error(fatal))
		return
	}

	s.enrich(ctx, snap)
	s.publish(ctx, snap)

	if fetchErr != nil {
		s.reportConnectionError(ctx, fetchErr, triggeredByUser)
	} else {
		s.mu.Lock()
		s.errorStreak = false
		s.mu.Unlock()
	}
}

// CheckForUnmappedRemotes walks all local remotes and tries to map the
// unknown ones, either automatically (always-monitor hosts) or by prompting
// the user.
func (s *Synchronizer) CheckForUnmappedRemotes(ctx context.Context, triggeredByUser bool) {
	s.mu.Lock()
	if s.checking {
		s.mu.Unlock()
		return
	}
	s.checking = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.checking = false
		s.mu.Unlock()
	}()

	repos, err := s.git.ListRepositories(ctx)
	if err != nil {
		s.log.Warn("listing repositories failed", zap.Error(err))
		return
	}

	s.log.Debug("checking for unmapped remotes", zap.Int("repositories", len(repos)))
	for _, repo := range repos {
		for _, url := range repo.Remotes {
			if !s.cfg.Enabled() {
				return
			}
			s.checkRemote(ctx, url, triggeredByUser)
		}
	}
}

func (s *Synchronizer) checkRemote(ctx context.Context, url string, triggeredByUser bool) {
	log := s.log.With(zap.String("remote", url))

	if containsString(s.cfg.IgnoredRemotes(), url) {
		log.Debug("remote is ignored")
		return
	}
	if s.isSuppressed(url) && !triggeredByUser {
		log.Debug("remote suppressed until next user trigger or restart")
		return
	}
	if isIncompatibleRemote(url) {
		log.Debug("remote belongs to an incompatible hosting provider")
		return
	}
	if s.isPromptPending(url) {
		log.Debug("remote already waiting for an answer")
		return
	}
	if _, ok := s.cfg.MappingByRemote(url); ok {
		return
	}

	guess, ok := s.resolver.Resolve(ctx, url, s.cfg.Mappings())

	if ok && s.ciDisabled(ctx, url, guess) {
		return
	}

	if ok && containsString(s.cfg.AlwaysMonitorHosts(), guess.Host) {
		log.Debug("host is always monitored", zap.String("host", guess.Host))
		if s.autoMap(ctx, url, guess) {
			return
		}
		_ = s.notifier.ShowError(ctx, "Unable to automatically create mapping for project on host "+guess.Host)
	}

	log.Debug("announcing untracked remote")
	s.mu.Lock()
	s.pendingPrompts[url] = struct{}{}
	s.mu.Unlock()
	if s.events.UntrackedRemoteFound != nil {
		event := domain.UntrackedRemote{URL: url}
		if ok {
			g := guess
			event.BestGuess = &g
		}
		s.events.UntrackedRemoteFound(event)
	}
}

// ciDisabled checks whether the gitlab project has CI turned off; if so
// the remote is added to the ignore list and skipped.
func (s *Synchronizer) ciDisabled(ctx context.Context, url string, guess domain.HostAndProjectPath) bool {
	token, _, _ := s.creds.Token(url)
	info, err := s.gitlab.ProjectInfo(ctx, guess.Host, guess.ProjectPath, token)
	if err != nil {
		s.log.Debug("cannot determine if CI is enabled", zap.String("remote", url), zap.Error(err))
		return false
	}
	if info.JobsEnabled {
		return false
	}

	s.log.Info("CI is disabled for project, ignoring remote", zap.String("remote", url))
	_ = s.notifier.ShowInfo(ctx, "Gitlab CI is disabled for "+url+". Ignoring it.")
	if err := s.cfg.AddIgnoredRemote(url); err != nil {
		s.log.Warn("saving ignored remote failed", zap.Error(err))
	}
	return true
}

// autoMap creates a mapping without user interaction, looking up the
// project name and id first.
func (s *Synchronizer) autoMap(ctx context.Context, url string, guess domain.HostAndProjectPath) bool {
	token, kind, _ := s.creds.Token(url)
	info, err := s.gitlab.ProjectInfo(ctx, guess.Host, guess.ProjectPath, token)
	if err != nil {
		s.log.Info("automatic mapping failed", zap.String("remote", url), zap.Error(err))
		return false
	}

	m := domain.Mapping{
		Remote:      url,
		Host:        guess.Host,
		ProjectPath: guess.ProjectPath,
		ProjectID:   info.ID,
		ProjectName: info.Name,
	}
	if token != "" {
		if err := s.creds.SetToken(url, token, kind); err != nil {
			s.log.Warn("saving token failed", zap.Error(err))
		}
	}
	if err := s.cfg.AddMapping(m); err != nil {
		s.log.Warn("saving mapping failed", zap.Error(err))
		return false
	}

	s.log.Info("created mapping automatically",
		zap.String("remote", url),
		zap.String("project", info.Name),
	)
	_ = s.notifier.ShowInfo(ctx, "Now monitoring gitlab project "+info.Name)
	if s.requestCycle != nil {
		s.requestCycle()
	}
	return true
}

// fetchPipelines builds a fresh snapshot from the pipelines endpoint. soft
// carries a per-mapping IO failure the cycle survives (it still publishes
// what succeeded); err is fatal and aborts the cycle.
func (s *Synchronizer) fetchPipelines(ctx context.Context, triggeredByUser bool) (snap *domain.Snapshot, soft, err error) {
	repos, err := s.git.ListRepositories(ctx)
	if err != nil {
		return nil, nil, err
	}

	snap = &domain.Snapshot{
		Mappings: make(map[string]domain.Mapping),
		Statuses: make(map[string][]domain.PipelineStatus),
	}

	ignored := s.cfg.IgnoredRemotes()
	for _, repo := range repos {
		for _, url := range repo.Remotes {
			if containsString(ignored, url) {
				continue
			}
			mapping, ok := s.cfg.MappingByRemote(url)
			if !ok {
				s.log.Debug("no mapping for remote", zap.String("remote", url))
				continue
			}
			if s.isSuppressed(url) && !triggeredByUser {
				s.log.Debug("not loading pipelines, remote suppressed", zap.String("remote", url))
				continue
			}
			if s.isDialogPending(url) {
				// No sense making queries that will fail again.
				s.log.Debug("not loading pipelines, token dialog open", zap.String("remote", url))
				continue
			}

			token, _, _ := s.creds.Token(url)
			statuses, err := s.gitlab.FetchPipelines(ctx, mapping, token)
			if err != nil {
				if domain.IsLoginFailure(err) {
					s.log.Info("login failure, starting token recovery", zap.String("remote", url))
					s.recoverAuth(ctx, mapping)
					continue
				}
				s.log.Warn("loading pipelines failed", zap.String("remote", url), zap.Error(err))
				soft = err
				continue
			}

			sortStatuses(statuses)
			snap.Mappings[url] = mapping
			snap.Statuses[url] = statuses
		}
	}

	return snap, soft, nil
}

// sortStatuses orders newest update first; entries without an update time
// sort before dated ones. Ties on the update time fall back to the
// pipeline id so the order stays deterministic.
func sortStatuses(statuses []domain.PipelineStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		switch {
		case a.UpdatedAt.IsZero() && b.UpdatedAt.IsZero():
			return a.ID > b.ID
		case a.UpdatedAt.IsZero():
			return true
		case b.UpdatedAt.IsZero():
			return false
		case !a.UpdatedAt.Equal(b.UpdatedAt):
			return a.UpdatedAt.After(b.UpdatedAt)
		default:
			return a.ID > b.ID
		}
	})
}

// enrich attaches merge request links and detailed status groups to the
// fetched statuses. Failure for one mapping degrades only that mapping.
func (s *Synchronizer) enrich(ctx context.Context, snap *domain.Snapshot) {
	for url, mapping := range snap.Mappings {
		branches, err := s.git.TrackedBranches(ctx, url)
		if err != nil {
			s.log.Debug("listing tracked branches failed", zap.String("remote", url), zap.Error(err))
		}

		token, _, _ := s.creds.Token(url)
		details, err := s.gitlab.ProjectDetails(ctx, mapping, token, branches)
		if err != nil {
			s.log.Info("enrichment failed, keeping bare statuses",
				zap.String("remote", url),
				zap.Error(err),
			)
			continue
		}

		snap.MergeRequests = append(snap.MergeRequests, details.MergeRequests...)

		// Merge requests arrive newest first; only the first per source
		// branch is used for linking.
		newestBySourceBranch := make(map[string]domain.MergeRequestSummary)
		for _, mr := range details.MergeRequests {
			if _, ok := newestBySourceBranch[mr.SourceBranch]; !ok {
				newestBySourceBranch[mr.SourceBranch] = mr
			}
		}

		statuses := snap.Statuses[url]
		for i := range statuses {
			if mr, ok := newestBySourceBranch[statuses[i].BranchName]; ok {
				statuses[i].MergeRequestLink = mr.WebURL
			}
			if group, ok := details.StatusGroups[statuses[i].ID]; ok {
				statuses[i].StatusGroup = group
			}
		}
	}
}

// publish swaps in the new snapshot and fans it out. Readers only ever see
// the previous or the new snapshot, never a mix.
func (s *Synchronizer) publish(ctx context.Context, snap *domain.Snapshot) {
	snap.Taken = time.Now()
	s.snapshot.Store(snap)

	if s.sink != nil {
		if err := s.sink.Write(ctx, *snap); err != nil {
			s.log.Warn("writing snapshot cache failed", zap.Error(err))
		}
	}
	if s.events.Reload != nil {
		s.events.Reload(*snap)
	}
	s.log.Debug("snapshot published",
		zap.Int("mappings", len(snap.Mappings)),
		zap.Int("merge_requests", len(snap.MergeRequests)),
	)
}

// recoverAuth starts the interactive token recovery for a mapping unless a
// dialog is already pending. It runs off the cycle worker.
func (s *Synchronizer) recoverAuth(ctx context.Context, mapping domain.Mapping) {
	s.mu.Lock()
	if _, open := s.pendingDialogs[mapping.Remote]; open {
		s.mu.Unlock()
		s.log.Debug("token dialog already open", zap.String("remote", mapping.Remote))
		return
	}
	s.pendingDialogs[mapping.Remote] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.pendingDialogs, mapping.Remote)
			s.mu.Unlock()
		}()

		oldToken, kind, _ := s.creds.Token(mapping.Remote)
		req := domain.AuthRequest{
			Mapping:  mapping,
			OldToken: oldToken,
			Kind:     kind,
			Reply:    make(chan domain.AuthResponse, 1),
		}

		select {
		case s.authRequests <- req:
		case <-ctx.Done():
			return
		}

		var resp domain.AuthResponse
		select {
		case resp = <-req.Reply:
		case <-ctx.Done():
			return
		}

		if !resp.Submitted {
			s.log.Info("token prompt declined, suppressing remote until user trigger",
				zap.String("remote", mapping.Remote),
			)
			s.suppress(mapping.Remote)
			return
		}

		if err := s.creds.SetToken(mapping.Remote, resp.Token, resp.Kind); err != nil {
			s.log.Warn("saving token failed", zap.Error(err))
			return
		}
		s.unsuppress(mapping.Remote)
		// Token changed, the user probably wants to retry right away.
		if s.requestCycle != nil {
			s.requestCycle()
		}
	}()
}

// reportConnectionError shows at most one notification per failure streak;
// user-triggered cycles always notify.
func (s *Synchronizer) reportConnectionError(ctx context.Context, err error, triggeredByUser bool) {
	s.mu.Lock()
	firstOfStreak := !s.errorStreak
	s.errorStreak = true
	s.mu.Unlock()

	if !s.cfg.ShowConnectionErrors() {
		return
	}
	if firstOfStreak || triggeredByUser {
		_ = s.notifier.ShowError(ctx, "Unable to connect to gitlab: "+err.Error())
	}
}

func (s *Synchronizer) isSuppressed(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.suppressed[url]
	return ok
}

func (s *Synchronizer) suppress(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressed[url] = struct{}{}
}

func (s *Synchronizer) unsuppress(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.suppressed, url)
}

func (s *Synchronizer) isDialogPending(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendingDialogs[url]
	return ok
}

func (s *Synchronizer) isPromptPending(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendingPrompts[url]
	return ok
}

func isIncompatibleRemote(url string) bool {
	lower := strings.ToLower(url)
	for _, host := range incompatibleRemotes {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
