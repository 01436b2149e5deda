// Package config loads and saves the telsync configuration file.
//
// The file is TOML with global settings followed by one [[host]] table per
// remote server:
//
//	default_host = "devbox"
//	port = 23
//	local_path = "/src/project"
//	monitor = "snapshot"
//
//	[[host]]
//	name = "devbox"
//	username = "user"
//	password = "secret"
//	remote_path = "app/src"
//	script = "setenv.sh"
//
// Save takes an advisory file lock so two telsync processes never
// interleave writes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
)

const (
	// DefaultPath is used when neither a flag nor EnvPath names a file.
	DefaultPath = "telsync.toml"
	// EnvPath names the environment variable holding the config path.
	EnvPath = "TELSYNC_CONFIG"

	// DefaultPort is the Telnet port.
	DefaultPort = 23
	// DefaultSnapshotPath is relative to the local path.
	DefaultSnapshotPath = ".telsync/snapshot.yaml"
)

// Change detection strategies.
const (
	MonitorSnapshot  = "snapshot"
	MonitorGit       = "git"
	MonitorGitBranch = "git-branch"
)

var (
	// ErrHostNotFound is returned when a named host has no [[host]] entry.
	ErrHostNotFound = errors.New("host not found")
	// ErrHostExists is returned by AddHost for a duplicate name.
	ErrHostExists = errors.New("host already exists")
	// ErrInvalid is wrapped by every Validate failure.
	ErrInvalid = errors.New("invalid configuration")
)

// Host holds the credentials and paths for one remote server.
type Host struct {
	Name       string `toml:"name"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	RemotePath string `toml:"remote_path,omitempty"`
	Script     string `toml:"script,omitempty"`
}

// Config is the whole configuration file.
type Config struct {
	DefaultHost   string `toml:"default_host"`
	Port          int    `toml:"port"`
	LocalPath     string `toml:"local_path"`
	Difftool      string `toml:"difftool,omitempty"`
	SnapshotPath  string `toml:"snapshot_path,omitempty"`
	Monitor       string `toml:"monitor"`
	CompareBranch string `toml:"compare_branch,omitempty"`

	Hosts []Host `toml:"host"`

	path string
}

// Default returns the configuration written when no file exists yet.
func Default() *Config {
	return &Config{
		DefaultHost:  "devbox",
		Port:         DefaultPort,
		LocalPath:    ".",
		SnapshotPath: DefaultSnapshotPath,
		Monitor:      MonitorSnapshot,
		Hosts: []Host{{
			Name:     "devbox",
			Username: "username",
			Password: "password",
		}},
	}
}

// Path picks the config file: flagValue if set, then $TELSYNC_CONFIG, then
// DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads the file at path. A missing file yields Default, bound to path
// so that Save creates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Monitor == "" {
		c.Monitor = MonitorSnapshot
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = DefaultSnapshotPath
	}
}

// File returns the path the configuration was loaded from.
func (c *Config) File() string {
	return c.path
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no file path")
	}
	return c.SaveAs(c.path)
}

// SaveAs writes the configuration to path and binds it to that path.
func (c *Config) SaveAs(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire config lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, ".telsync-*.toml")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())

	// The file holds passwords.
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	c.path = path
	return nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}

	switch c.Monitor {
	case MonitorSnapshot, MonitorGit:
	case MonitorGitBranch:
		if c.CompareBranch == "" {
			return fmt.Errorf("%w: monitor %q needs compare_branch", ErrInvalid, c.Monitor)
		}
	default:
		return fmt.Errorf("%w: unknown monitor %q", ErrInvalid, c.Monitor)
	}

	seen := make(map[string]bool, len(c.Hosts))
	for i, h := range c.Hosts {
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("%w: host entry %d missing name", ErrInvalid, i+1)
		}
		if seen[h.Name] {
			return fmt.Errorf("%w: duplicate host %q", ErrInvalid, h.Name)
		}
		seen[h.Name] = true
	}

	if c.DefaultHost != "" && !seen[c.DefaultHost] {
		return fmt.Errorf("%w: default_host %q has no [[host]] entry", ErrInvalid, c.DefaultHost)
	}
	return nil
}

// Host returns the entry for name.
func (c *Config) Host(name string) (Host, bool) {
	for _, h := range c.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// CurrentHost returns the default host's entry.
func (c *Config) CurrentHost() (Host, error) {
	h, ok := c.Host(c.DefaultHost)
	if !ok {
		return Host{}, fmt.Errorf("%w: %q", ErrHostNotFound, c.DefaultHost)
	}
	return h, nil
}

// HostNames lists the configured hosts in file order.
func (c *Config) HostNames() []string {
	names := make([]string, len(c.Hosts))
	for i, h := range c.Hosts {
		names[i] = h.Name
	}
	return names
}

// AddHost appends a host entry.
func (c *Config) AddHost(h Host) error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: host name is empty", ErrInvalid)
	}
	if _, ok := c.Host(h.Name); ok {
		return fmt.Errorf("%w: %q", ErrHostExists, h.Name)
	}
	c.Hosts = append(c.Hosts, h)
	return nil
}

// DeleteHost removes a host entry. Deleting the default host also clears
// default_host.
func (c *Config) DeleteHost(name string) error {
	for i, h := range c.Hosts {
		if h.Name == name {
			c.Hosts = append(c.Hosts[:i], c.Hosts[i+1:]...)
			if c.DefaultHost == name {
				c.DefaultHost = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrHostNotFound, name)
}

// SetDefaultHost selects the host used when none is named.
func (c *Config) SetDefaultHost(name string) error {
	if _, ok := c.Host(name); !ok {
		return fmt.Errorf("%w: %q", ErrHostNotFound, name)
	}
	c.DefaultHost = name
	return nil
}

// SnapshotFile resolves the snapshot path against the local path.
func (c *Config) SnapshotFile() string {
	if filepath.IsAbs(c.SnapshotPath) {
		return c.SnapshotPath
	}
	return filepath.Join(c.LocalPath, c.SnapshotPath)
}
