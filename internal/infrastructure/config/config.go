package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration supports the "30s" / "5m" notation in yaml, which plain
// time.Duration fields do not.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Mapping is the persisted association between a local remote URL and a
// gitlab project.
type Mapping struct {
	Remote      string `yaml:"remote"`
	Host        string `yaml:"host"`
	ProjectPath string `yaml:"project_path"`
	ProjectID   string `yaml:"project_id"`
	ProjectName string `yaml:"project_name,omitempty"`
}

type Config struct {
	GitLab struct {
		ConnectTimeout     Duration `yaml:"connect_timeout"`
		AlwaysMonitorHosts []string `yaml:"always_monitor_hosts,omitempty"`
	} `yaml:"gitlab"`

	Monitor struct {
		Enabled              bool     `yaml:"enabled"`
		Interval             Duration `yaml:"interval"`
		InitialDelay         Duration `yaml:"initial_delay"`
		ShowConnectionErrors bool     `yaml:"show_connection_errors"`
		ShowProgress         bool     `yaml:"show_progress"`
		BranchesToWatch      []string `yaml:"branches_to_watch,omitempty"`
		BranchesToIgnore     []string `yaml:"branches_to_ignore,omitempty"`
		MaxAgeDays           int      `yaml:"max_age_days,omitempty"`
	} `yaml:"monitor"`

	Git struct {
		Roots []string `yaml:"roots"`
	} `yaml:"git"`

	Mappings       []Mapping `yaml:"mappings,omitempty"`
	IgnoredRemotes []string  `yaml:"ignored_remotes,omitempty"`

	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`

	Credentials struct {
		Path string `yaml:"path"`
	} `yaml:"credentials"`

	Log struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"log"`
}

// DefaultPath is the config location used when --config is not given.
func DefaultPath() string {
	return expandHome("~/.config/pipeline-monitor/config.yaml")
}

func Load(path string) (Config, error) {
	var c Config

	c.GitLab.ConnectTimeout = Duration(10 * time.Second)
	c.Monitor.Enabled = true
	c.Monitor.Interval = Duration(30 * time.Second)
	c.Monitor.InitialDelay = Duration(5 * time.Second)
	c.Monitor.ShowConnectionErrors = true
	c.Monitor.ShowProgress = true
	c.Cache.Path = expandHome("~/.cache/pipeline-monitor/snapshot.json")
	c.Credentials.Path = expandHome("~/.config/pipeline-monitor/credentials.yaml")

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, err
			}
		}
	}

	if v := os.Getenv("GITLAB_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GitLab.ConnectTimeout = Duration(d)
		}
	}

	if v := os.Getenv("MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.Interval = Duration(d)
		}
	}

	if v := os.Getenv("GIT_ROOTS"); v != "" {
		var roots []string
		for _, r := range strings.Split(v, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roots = append(roots, expandHome(r))
			}
		}
		if len(roots) > 0 {
			c.Git.Roots = roots
		}
	}

	if v := os.Getenv("CACHE_PATH"); v != "" {
		c.Cache.Path = expandHome(v)
	}

	if v := os.Getenv("CREDENTIALS_PATH"); v != "" {
		c.Credentials.Path = expandHome(v)
	}

	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Log.Path = expandHome(v)
	}

	for i, r := range c.Git.Roots {
		c.Git.Roots[i] = expandHome(r)
	}
	c.Cache.Path = expandHome(c.Cache.Path)
	c.Credentials.Path = expandHome(c.Credentials.Path)

	if len(c.Git.Roots) == 0 {
		c.Git.Roots = []string{"."}
	}

	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = Duration(30 * time.Second)
	}

	if c.Monitor.InitialDelay < 0 {
		c.Monitor.InitialDelay = 0
	}

	if c.GitLab.ConnectTimeout <= 0 {
		c.GitLab.ConnectTimeout = Duration(10 * time.Second)
	}

	return c, nil
}

func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockFile := path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
