package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

// Store wraps a loaded Config behind the engine's accessor interface.
// Mutators persist to disk immediately; Reload swaps in a config picked up
// by the file watcher.
type Store struct {
	log  *zap.Logger
	path string

	mu  sync.RWMutex
	cfg Config
}

func NewStore(log *zap.Logger, path string, cfg Config) *Store {
	return &Store{log: log, path: path, cfg: cfg}
}

// Reload replaces the in-memory config wholesale. Runtime mutators save to
// disk immediately, so the file being read back already carries their edits.
func (s *Store) Reload(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.log.Info("config reloaded",
		zap.Int("mappings", len(cfg.Mappings)),
		zap.Duration("interval", time.Duration(cfg.Monitor.Interval)),
	)
}

// Current returns a copy of the underlying config, for CLI display.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.Enabled
}

func (s *Store) RefreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.cfg.Monitor.Interval)
}

func (s *Store) InitialDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.cfg.Monitor.InitialDelay)
}

func (s *Store) ConnectTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.cfg.GitLab.ConnectTimeout)
}

func (s *Store) ShowConnectionErrors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.ShowConnectionErrors
}

func (s *Store) ShowProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.ShowProgress
}

func (s *Store) Mappings() []domain.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Mapping, 0, len(s.cfg.Mappings))
	for _, m := range s.cfg.Mappings {
		out = append(out, toDomain(m))
	}
	return out
}

func (s *Store) MappingByRemote(url string) (domain.Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.cfg.Mappings {
		if m.Remote == url {
			return toDomain(m), true
		}
	}
	return domain.Mapping{}, false
}

// AddMapping appends (or replaces, keyed by remote URL) a mapping and
// saves the config.
func (s *Store) AddMapping(m domain.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Mapping{
		Remote:      m.Remote,
		Host:        m.Host,
		ProjectPath: m.ProjectPath,
		ProjectID:   m.ProjectID,
		ProjectName: m.ProjectName,
	}

	replaced := false
	for i := range s.cfg.Mappings {
		if s.cfg.Mappings[i].Remote == m.Remote {
			s.cfg.Mappings[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.cfg.Mappings = append(s.cfg.Mappings, entry)
	}

	if err := Save(s.path, s.cfg); err != nil {
		return fmt.Errorf("saving mapping for %s: %w", m.Remote, err)
	}
	s.log.Info("mapping saved",
		zap.String("remote", m.Remote),
		zap.String("project", m.ProjectPath),
	)
	return nil
}

func (s *Store) IgnoredRemotes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.cfg.IgnoredRemotes))
	copy(out, s.cfg.IgnoredRemotes)
	return out
}

func (s *Store) AddIgnoredRemote(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.cfg.IgnoredRemotes {
		if r == url {
			return nil
		}
	}
	s.cfg.IgnoredRemotes = append(s.cfg.IgnoredRemotes, url)
	if err := Save(s.path, s.cfg); err != nil {
		return fmt.Errorf("saving ignored remote %s: %w", url, err)
	}
	return nil
}

func (s *Store) AlwaysMonitorHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.GitLab.AlwaysMonitorHosts
}

func (s *Store) BranchesToWatch() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.BranchesToWatch
}

func (s *Store) BranchesToIgnore() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.BranchesToIgnore
}

func (s *Store) MaxAgeDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.MaxAgeDays
}

func toDomain(m Mapping) domain.Mapping {
	return domain.Mapping{
		Remote:      m.Remote,
		Host:        m.Host,
		ProjectPath: m.ProjectPath,
		ProjectID:   m.ProjectID,
		ProjectName: m.ProjectName,
	}
}
