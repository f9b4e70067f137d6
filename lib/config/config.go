// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads prololo's configuration.
//
// Configuration is a single YAML file passed via --config. There are
// no fallbacks or automatic discovery, and environment variables do
// not override file values — deterministic, auditable configuration
// with no hidden overrides.
//
// The file is fully validated at load: every routing rule pattern must
// compile, every room reference must parse, and every source secret
// must be readable. A process that cannot trust its configuration must
// not start; silent misrouting or an unverified source would be worse
// than refusing to run.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prologin/prololo/lib/ref"
)

// Source kinds. The kind selects both the verification scheme and the
// event dispatch table for a webhook source.
const (
	// KindGitHub verifies HMAC-SHA256 signatures from the
	// X-Hub-Signature-256 header and dispatches GitHub event types.
	KindGitHub = "github"

	// KindSite verifies a shared bearer token from the Authorization
	// header and dispatches prolosite event types.
	KindSite = "site"
)

// Config is the master configuration for prololo.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.prologin.org").
	Homeserver string `yaml:"homeserver"`

	// User is the bot's fully-qualified Matrix user ID.
	User ref.UserID `yaml:"user"`

	// PasswordFile is the path to a file holding the bot account
	// password. Mutually exclusive with AccessTokenFile.
	PasswordFile string `yaml:"password_file"`

	// AccessTokenFile is the path to a file holding an existing
	// access token. Mutually exclusive with PasswordFile.
	AccessTokenFile string `yaml:"access_token_file"`

	// Listen is the TCP address for webhook ingestion.
	// Default: 127.0.0.1:9876 — external access goes through a
	// reverse proxy.
	Listen string `yaml:"listen"`

	// Metrics enables the Prometheus /metrics endpoint on the
	// webhook listener. Default: true.
	Metrics *bool `yaml:"metrics"`

	// LogLevel is the minimum slog level: debug, info, warn, error.
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// Delivery tunes the delivery engine.
	Delivery DeliveryConfig `yaml:"delivery"`

	// Sources lists the webhook sources prololo accepts.
	Sources []*SourceConfig `yaml:"sources"`
}

// DeliveryConfig tunes retry and deduplication behavior.
type DeliveryConfig struct {
	// MaxAttempts is the per-message send attempt ceiling, counting
	// the first attempt. Default: 5.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the delay before the first retry; it doubles
	// after every failed attempt. Default: 500ms.
	InitialBackoff Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the doubling. Default: 30s.
	MaxBackoff Duration `yaml:"max_backoff"`

	// DedupWindow is how long delivery IDs are remembered for replay
	// suppression. Must exceed the sender's maximum retry interval.
	// Default: 24h.
	DedupWindow Duration `yaml:"dedup_window"`
}

// SourceConfig describes one webhook-emitting source. Immutable after
// Load returns.
type SourceConfig struct {
	// ID is the source identifier; it forms the ingestion URL path
	// (/api/webhooks/{id}) and must be unique.
	ID string `yaml:"id"`

	// Kind is the source kind: "github" or "site".
	Kind string `yaml:"kind"`

	// SecretFile is the path to the shared secret used to
	// authenticate this source's requests.
	SecretFile string `yaml:"secret_file"`

	// DefaultRoom receives events that match no routing rule. When
	// empty, unmatched events are dropped.
	DefaultRoom ref.RoomTarget `yaml:"default_room"`

	// Rules is the ordered routing rule list. The first matching rule
	// wins unless it sets continue: true.
	Rules []*RoutingRule `yaml:"rules"`

	// Secret is the loaded shared secret. Populated by Load.
	Secret []byte `yaml:"-"`
}

// RoutingRule maps a routing key pattern to a destination room.
type RoutingRule struct {
	// Pattern is an RE2 regular expression matched against the
	// event's routing key (e.g., "org/repo:main").
	Pattern string `yaml:"pattern"`

	// Room is the destination for events matching Pattern.
	Room ref.RoomTarget `yaml:"room"`

	// Continue makes the rule non-exclusive: evaluation proceeds to
	// later rules after a match instead of stopping.
	Continue bool `yaml:"continue"`

	// Regexp is the compiled Pattern. Populated by Load.
	Regexp *regexp.Regexp `yaml:"-"`
}

// Duration is a time.Duration that YAML-decodes from strings like
// "500ms" or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MetricsEnabled reports whether the /metrics endpoint should be
// served (default true).
func (c *Config) MetricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}

// Source returns the source with the given ID, or nil.
func (c *Config) Source(id string) *SourceConfig {
	for _, source := range c.Sources {
		if source.ID == id {
			return source
		}
	}
	return nil
}

// Load reads, defaults, and validates the configuration file at path.
// Any validation failure is fatal to startup by design.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:9876"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Delivery.MaxAttempts == 0 {
		c.Delivery.MaxAttempts = 5
	}
	if c.Delivery.InitialBackoff == 0 {
		c.Delivery.InitialBackoff = Duration(500 * time.Millisecond)
	}
	if c.Delivery.MaxBackoff == 0 {
		c.Delivery.MaxBackoff = Duration(30 * time.Second)
	}
	if c.Delivery.DedupWindow == 0 {
		c.Delivery.DedupWindow = Duration(24 * time.Hour)
	}
}

func (c *Config) validate() error {
	if c.Homeserver == "" {
		return fmt.Errorf("homeserver is required")
	}
	if c.User.IsZero() {
		return fmt.Errorf("user is required")
	}
	if c.PasswordFile == "" && c.AccessTokenFile == "" {
		return fmt.Errorf("one of password_file or access_token_file is required")
	}
	if c.PasswordFile != "" && c.AccessTokenFile != "" {
		return fmt.Errorf("password_file and access_token_file are mutually exclusive")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, source := range c.Sources {
		if err := source.validate(); err != nil {
			return fmt.Errorf("source %d (%q): %w", i, source.ID, err)
		}
		if seen[source.ID] {
			return fmt.Errorf("duplicate source id %q", source.ID)
		}
		seen[source.ID] = true
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(s.ID, "/ ") {
		return fmt.Errorf("id %q must not contain '/' or spaces", s.ID)
	}
	if s.Kind != KindGitHub && s.Kind != KindSite {
		return fmt.Errorf("unknown kind %q (want %q or %q)", s.Kind, KindGitHub, KindSite)
	}

	if s.SecretFile == "" {
		return fmt.Errorf("secret_file is required")
	}
	secret, err := os.ReadFile(s.SecretFile)
	if err != nil {
		return fmt.Errorf("reading secret: %w", err)
	}
	s.Secret = []byte(strings.TrimSpace(string(secret)))
	if len(s.Secret) == 0 {
		return fmt.Errorf("secret file %s is empty", s.SecretFile)
	}

	for i, rule := range s.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rule %d: pattern is required", i)
		}
		if rule.Room.IsZero() {
			return fmt.Errorf("rule %d: room is required", i)
		}
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		rule.Regexp = compiled
	}
	return nil
}
