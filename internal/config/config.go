package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/pepperpark/imapmover/internal/imaputil"
	"github.com/pepperpark/imapmover/internal/syncer"
)

// Config holds the settings of one sync run.
type Config struct {
	Source              Server       `yaml:"source"`
	Destination         Server       `yaml:"destination"`
	Filters             []FilterRule `yaml:"filters"`
	DryRun              bool         `yaml:"dry_run"`
	SeparatorSubstitute string       `yaml:"separator_substitute"`
	ChunkSize           int64        `yaml:"chunk_size"` // bytes per bulk fetch
}

// Server holds the connection settings of one side.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	NoSSL    bool   `yaml:"no_ssl"`
	StartTLS bool   `yaml:"starttls"`
}

// FilterRule is one list entry; exactly one of the fields is set.
//
//	filters:
//	  - exclude: "*"
//	  - include: "Archive/*"
type FilterRule struct {
	Include string `yaml:"include,omitempty"`
	Exclude string `yaml:"exclude,omitempty"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Source:              Server{Host: "localhost"},
		Destination:         Server{Host: "localhost"},
		SeparatorSubstitute: syncer.DefaultSeparatorSubstitute,
		ChunkSize:           syncer.DefaultChunkBytes,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that do not depend on the command line.
func (c *Config) Validate() error {
	for i, f := range c.Filters {
		if (f.Include == "") == (f.Exclude == "") {
			return fmt.Errorf("filter %d: exactly one of include or exclude must be set", i+1)
		}
	}
	if err := syncer.CompileRules(c.Rules()); err != nil {
		return err
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must not be negative")
	}
	if len([]rune(c.SeparatorSubstitute)) > 1 {
		return fmt.Errorf("separator_substitute must be a single character")
	}
	for _, p := range []int{c.Source.Port, c.Destination.Port} {
		if p < 0 || p > 65535 {
			return fmt.Errorf("port %d out of range", p)
		}
	}
	return nil
}

// Rules converts the filter list into ordered syncer rules.
func (c *Config) Rules() []syncer.Rule {
	rules := make([]syncer.Rule, 0, len(c.Filters))
	for _, f := range c.Filters {
		if f.Include != "" {
			rules = append(rules, syncer.IncludeRule(f.Include))
		} else if f.Exclude != "" {
			rules = append(rules, syncer.ExcludeRule(f.Exclude))
		}
	}
	return rules
}

// ServerInfo converts the settings into connection parameters.
func (s Server) ServerInfo() imaputil.ServerInfo {
	return imaputil.ServerInfo{
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Password,
		TLS:      !s.NoSSL,
		StartTLS: s.StartTLS,
	}
}
