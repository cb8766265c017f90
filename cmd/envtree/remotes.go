package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
)

// RemotesConfig is the remotes.toml file: named server profiles and the
// one used when no flag or environment variable says otherwise.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is a named server profile.
type Remote struct {
	URL      string `toml:"url"`
	GRPCAddr string `toml:"grpc_addr,omitempty"`
	Token    string `toml:"token,omitempty"`
	NATSURL  string `toml:"nats_url,omitempty"`
}

func (r Remote) validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote url %q must be an http or https URL", r.URL)
	}
	return nil
}

// Add stores r under name. The first remote, or any added with use set,
// becomes active.
func (c *RemotesConfig) Add(name string, r Remote, use bool) error {
	if name == "" {
		return errors.New("remote name is required")
	}
	if err := r.validate(); err != nil {
		return err
	}
	c.Remotes[name] = r
	if use || len(c.Remotes) == 1 {
		c.Active = name
	}
	return nil
}

func (c *RemotesConfig) Use(name string) error {
	if _, err := c.Get(name); err != nil {
		return err
	}
	c.Active = name
	return nil
}

// Remove deletes name and clears Active if it pointed there.
func (c *RemotesConfig) Remove(name string) error {
	if _, err := c.Get(name); err != nil {
		return err
	}
	delete(c.Remotes, name)
	if c.Active == name {
		c.Active = ""
	}
	return nil
}

func (c *RemotesConfig) Get(name string) (Remote, error) {
	r, ok := c.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return r, nil
}

// Names returns the remote names in sorted order.
func (c *RemotesConfig) Names() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// remotesPath is ENVTREE_REMOTES or <user config dir>/envtree/remotes.toml.
func remotesPath() (string, error) {
	if p := os.Getenv("ENVTREE_REMOTES"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating remotes file: %w", err)
	}
	return filepath.Join(dir, "envtree", "remotes.toml"), nil
}

// loadRemotes reads the remotes file. A missing file is an empty config.
func loadRemotes() (*RemotesConfig, error) {
	path, err := remotesPath()
	if err != nil {
		return nil, err
	}
	cfg := &RemotesConfig{}
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// saveRemotes writes cfg readable by the owner only, since it holds tokens.
func saveRemotes(cfg *RemotesConfig) error {
	path, err := remotesPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// updateRemotes loads the file, applies fn and saves the result unless fn
// fails.
func updateRemotes(fn func(*RemotesConfig) error) error {
	cfg, err := loadRemotes()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return saveRemotes(cfg)
}

var (
	remoteOnce   sync.Once
	cachedRemote Remote
)

// activeRemote returns the profile named by ENVTREE_REMOTE, or the active
// one from the remotes file. It is resolved once per process; an unknown
// name or unreadable file yields the zero Remote.
func activeRemote() Remote {
	remoteOnce.Do(func() {
		cfg, err := loadRemotes()
		if err != nil {
			return
		}
		name := os.Getenv("ENVTREE_REMOTE")
		if name == "" {
			name = cfg.Active
		}
		cachedRemote = cfg.Remotes[name]
	})
	return cachedRemote
}
