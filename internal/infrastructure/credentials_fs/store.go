package credentials_fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"gopkg.in/yaml.v3"
)

type entry struct {
	Token string `yaml:"token"`
	Kind  string `yaml:"kind"`
}

// Store keeps access tokens in a yaml file, keyed by remote URL. The file
// is written with owner-only permissions.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store { return &Store{path: path} }

func (s *Store) Token(key string) (string, domain.TokenKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", domain.TokenPersonal, err
	}

	e, ok := entries[key]
	if !ok {
		return "", domain.TokenPersonal, nil
	}
	kind := domain.TokenKind(e.Kind)
	if kind != domain.TokenProject {
		kind = domain.TokenPersonal
	}
	return e.Token, kind, nil
}

// SetToken stores token under key. An empty token deletes the entry.
func (s *Store) SetToken(key, token string, kind domain.TokenKind) error {
	if s.path == "" {
		return errors.New("credentials path is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	if token == "" {
		delete(entries, key)
	} else {
		entries[key] = entry{Token: token, Kind: string(kind)}
	}
	return s.save(entries)
}

func (s *Store) load() (map[string]entry, error) {
	entries := make(map[string]entry)
	if s.path == "" {
		return entries, nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) save(entries map[string]entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	b, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
