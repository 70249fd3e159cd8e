// Copyright 2026 The Svcmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package svcmux

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultGraceTime    = 5 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// ServiceManifest is the on-disk form of a ServiceSpec.  Since YAML is a
// superset of JSON, manifests may be written in either.
type ServiceManifest struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Command     []string      `yaml:"command"`
	Directory   string        `yaml:"directory"`
	Env         []string      `yaml:"env"`
	Required    bool          `yaml:"required"`
	Health      string        `yaml:"health"`
	Settle      time.Duration `yaml:"settle"`
	Credential  string        `yaml:"credential"`
}

// Config is the top-level manifest consumed by svcmuxd.
type Config struct {
	Name          string            `yaml:"name"`
	Root          string            `yaml:"root"`
	EnvFile       string            `yaml:"envFile"`
	PollInterval  time.Duration     `yaml:"pollInterval"`
	GraceTime     time.Duration     `yaml:"graceTime"`
	ProbeTimeout  time.Duration     `yaml:"probeTimeout"`
	RequiredFiles []string          `yaml:"requiredFiles"`
	Services      []ServiceManifest `yaml:"services"`
}

// Selection carries the command line toggles that trim the service list.
type Selection struct {
	Skip         []string // Service names to leave out
	RequiredOnly bool     // Keep only required services
}

func (sel Selection) skips(m ServiceManifest) bool {
	if sel.RequiredOnly && !m.Required {
		return true
	}
	for _, n := range sel.Skip {
		if n == m.Name {
			return true
		}
	}
	return false
}

// LoadConfig decodes a manifest, and fills in defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if e := dec.Decode(c); e != nil {
		return nil, e
	}
	c.setDefaults()
	return c, nil
}

// LoadConfigFile is LoadConfig on a named file.  A relative Root is taken
// relative to the directory holding the file.
func LoadConfigFile(name string) (*Config, error) {
	f, e := os.Open(name)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	c, e := LoadConfig(f)
	if e != nil {
		return nil, e
	}
	if !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(filepath.Dir(name), c.Root)
	}
	// Children run with Root as their directory, and exec resolves a
	// relative command against that, so Root must not depend on ours.
	if c.Root, e = filepath.Abs(c.Root); e != nil {
		return nil, e
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "svcmux"
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.GraceTime == 0 {
		c.GraceTime = DefaultGraceTime
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
}

func (c *Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// EnvPath is where the env file is expected, or "" if there is none.
func (c *Config) EnvPath() string {
	return c.path(c.EnvFile)
}

// Specs returns the selected services in declaration order.  Relative
// directories are resolved against Root, as is any command that contains
// a path separator.  Such a command is made absolute, since the child's
// working directory is not ours.
func (c *Config) Specs(sel Selection) []ServiceSpec {
	specs := make([]ServiceSpec, 0, len(c.Services))
	for _, m := range c.Services {
		if sel.skips(m) {
			continue
		}
		cmd := append([]string(nil), m.Command...)
		if len(cmd) > 0 && strings.ContainsRune(cmd[0], '/') {
			cmd[0] = c.path(cmd[0])
			if abs, e := filepath.Abs(cmd[0]); e == nil {
				cmd[0] = abs
			}
		}
		dir := c.path(m.Directory)
		if dir == "" {
			dir = c.Root
		}
		specs = append(specs, ServiceSpec{
			Name:        m.Name,
			Description: m.Description,
			Command:     cmd,
			Directory:   dir,
			Env:         append([]string(nil), m.Env...),
			Required:    m.Required,
			HealthURL:   m.Health,
			SettleDelay: m.Settle,
			Credential:  m.Credential,
		})
	}
	return specs
}

// DefaultConfig describes the stock stack: the API server as the required
// core service, the bot as the optional messaging service, and the static
// web interface.
func DefaultConfig(root string) *Config {
	c := &Config{
		Name:    "svcmux",
		Root:    root,
		EnvFile: ".env",
		RequiredFiles: []string{
			"core/env/bin/python3",
			"core/server.py",
		},
		Services: []ServiceManifest{
			{
				Name:        "core",
				Description: "API server",
				Command:     []string{"core/env/bin/python3", "core/server.py"},
				Required:    true,
				Health:      "http://127.0.0.1:8888/health",
				Settle:      8 * time.Second,
			},
			{
				Name:        "messaging",
				Description: "Message polling bot",
				Command:     []string{"node", "bot.js"},
				Settle:      3 * time.Second,
				Credential:  "BOT_TOKEN",
			},
			{
				Name:        "web",
				Description: "Static web interface",
				Command:     []string{"php", "-S", "localhost:8080"},
				Directory:   "web-interface",
				Settle:      2 * time.Second,
			},
		},
	}
	c.setDefaults()
	return c
}

// EnvStore is a read-only key/value store used to look up credential
// markers.  Keys from an env file take precedence over the process
// environment.
type EnvStore struct {
	vars map[string]string
}

// Lookup returns the value for key, checking the file first.
func (s *EnvStore) Lookup(key string) (string, bool) {
	if s != nil {
		if v, ok := s.vars[key]; ok {
			return v, true
		}
	}
	return os.LookupEnv(key)
}

// ParseEnv reads KEY=VALUE lines.  Blank lines and # comments are
// ignored, an optional "export " prefix is stripped, and one level of
// matching quotes is removed from the value.
func ParseEnv(r io.Reader) (*EnvStore, error) {
	s := &EnvStore{vars: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		s.vars[k] = v
	}
	return s, scanner.Err()
}

// LoadEnvFile reads an env file.  A missing file yields an empty store and
// the os.ErrNotExist error, so callers can warn and carry on.
func LoadEnvFile(name string) (*EnvStore, error) {
	f, e := os.Open(name)
	if e != nil {
		return &EnvStore{vars: map[string]string{}}, e
	}
	defer f.Close()
	return ParseEnv(f)
}
