package domain

import (
	"context"
	"errors"
	"sync"
	"time"
)

type MockGitlab struct {
	mu sync.Mutex

	Pipelines    map[string][]PipelineStatus // keyed by remote URL
	PipelinesErr map[string]error
	Infos        map[string]ProjectInfo // keyed by host + "/" + projectPath
	InfoErr      error
	Details      map[string]*ProjectDetails // keyed by remote URL
	DetailsErr   map[string]error

	FetchCalls   int
	DetailsCalls int
}

func (m *MockGitlab) FetchPipelines(ctx context.Context, mp Mapping, token string) ([]PipelineStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if err := m.PipelinesErr[mp.Remote]; err != nil {
		return nil, err
	}
	return m.Pipelines[mp.Remote], nil
}

func (m *MockGitlab) ProjectInfo(ctx context.Context, host, projectPath, token string) (ProjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InfoErr != nil {
		return ProjectInfo{}, m.InfoErr
	}
	info, ok := m.Infos[host+"/"+projectPath]
	if !ok {
		return ProjectInfo{}, NewFailure(FailureIO, host, errors.New("no such project"))
	}
	return info, nil
}

func (m *MockGitlab) ProjectDetails(ctx context.Context, mp Mapping, token string, sourceBranches []string) (*ProjectDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DetailsCalls++
	if err := m.DetailsErr[mp.Remote]; err != nil {
		return nil, err
	}
	if d, ok := m.Details[mp.Remote]; ok {
		return d, nil
	}
	return &ProjectDetails{}, nil
}

type MockGit struct {
	Repos    []Repository
	Branches map[string][]string // keyed by remote URL
	Err      error
}

func (g *MockGit) ListRepositories(ctx context.Context) ([]Repository, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Repos, nil
}

func (g *MockGit) TrackedBranches(ctx context.Context, remoteURL string) ([]string, error) {
	return g.Branches[remoteURL], nil
}

type MockCredentials struct {
	mu     sync.Mutex
	Tokens map[string]string
	Kinds  map[string]TokenKind
}

func (c *MockCredentials) Token(key string) (string, TokenKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, ok := c.Kinds[key]
	if !ok {
		kind = TokenPersonal
	}
	return c.Tokens[key], kind, nil
}

func (c *MockCredentials) SetToken(key, token string, kind TokenKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Tokens == nil {
		c.Tokens = make(map[string]string)
	}
	if c.Kinds == nil {
		c.Kinds = make(map[string]TokenKind)
	}
	if token == "" {
		delete(c.Tokens, key)
		delete(c.Kinds, key)
		return nil
	}
	c.Tokens[key] = token
	c.Kinds[key] = kind
	return nil
}

type MockNotifier struct {
	mu     sync.Mutex
	Infos  []string
	Errors []string
}

func (n *MockNotifier) ShowInfo(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Infos = append(n.Infos, text)
	return nil
}

func (n *MockNotifier) ShowError(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Errors = append(n.Errors, text)
	return nil
}

func (n *MockNotifier) InfoCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Infos)
}

func (n *MockNotifier) ErrorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Errors)
}

type MockSink struct {
	mu        sync.Mutex
	Snapshots []Snapshot
	Err       error
}

func (s *MockSink) Write(ctx context.Context, snap Snapshot) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots = append(s.Snapshots, snap)
	return nil
}

// MockConfig is an in-memory ConfigStore for tests.
type MockConfig struct {
	mu sync.Mutex

	Disabled       bool
	Interval       time.Duration
	Delay          time.Duration
	Timeout        time.Duration
	HideConnErrors bool
	HideProgress   bool

	MappingList []Mapping
	Ignored     []string
	AlwaysHosts []string
	WatchList   []string
	IgnoreList  []string
	MaxAge      int
}

func (c *MockConfig) Enabled() bool { return !c.Disabled }

func (c *MockConfig) RefreshInterval() time.Duration {
	if c.Interval == 0 {
		return 30 * time.Second
	}
	return c.Interval
}

func (c *MockConfig) InitialDelay() time.Duration   { return c.Delay }
func (c *MockConfig) ConnectTimeout() time.Duration { return c.Timeout }
func (c *MockConfig) ShowConnectionErrors() bool    { return !c.HideConnErrors }
func (c *MockConfig) ShowProgress() bool            { return !c.HideProgress }

func (c *MockConfig) Mappings() []Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Mapping, len(c.MappingList))
	copy(out, c.MappingList)
	return out
}

func (c *MockConfig) MappingByRemote(url string) (Mapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.MappingList {
		if m.Remote == url {
			return m, true
		}
	}
	return Mapping{}, false
}

func (c *MockConfig) AddMapping(m Mapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MappingList = append(c.MappingList, m)
	return nil
}

func (c *MockConfig) IgnoredRemotes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Ignored))
	copy(out, c.Ignored)
	return out
}

func (c *MockConfig) AddIgnoredRemote(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ignored = append(c.Ignored, url)
	return nil
}

func (c *MockConfig) AlwaysMonitorHosts() []string { return c.AlwaysHosts }
func (c *MockConfig) BranchesToWatch() []string    { return c.WatchList }
func (c *MockConfig) BranchesToIgnore() []string   { return c.IgnoreList }
func (c *MockConfig) MaxAgeDays() int              { return c.MaxAge }

// MockProber answers host probes from a canned body map and records the
// URLs it was asked about.
type MockProber struct {
	Bodies map[string]string
	Err    error
	Probed []string
}

func (p *MockProber) Probe(ctx context.Context, url string) (string, error) {
	p.Probed = append(p.Probed, url)
	if p.Err != nil {
		return "", p.Err
	}
	body, ok := p.Bodies[url]
	if !ok {
		return "", nil
	}
	return body, nil
}
