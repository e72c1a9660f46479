// Package config provides YAML configuration parsing and validation for
// the RADIUS UDP transport core: listener sockets, their authorized
// clients, and the upstream servers reachable through the outbound socket
// pool.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRADIUSPort is the default listen and destination port for this
// protocol when a config entry omits one.
const DefaultRADIUSPort = 1812

// MaxRetryCount and MaxRetryInterval bound the retry parameters an
// upstream server entry may declare.
const (
	MaxRetryCount    = 10
	MaxRetryInterval = 60 * time.Second
)

// Config is the complete configuration for one transport core instance.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Listeners []ListenerConfig `yaml:"listeners"`
	Upstreams []ServerConfig   `yaml:"upstreams"`
}

// ListenerConfig describes one UDP socket to bind and the clients
// authorized to send datagrams to it.
type ListenerConfig struct {
	Name        string         `yaml:"name"`
	BindAddress string         `yaml:"bind_address"`
	Clients     []ClientConfig `yaml:"clients"`
}

// ClientConfig is one address authorized to send datagrams to a listener.
type ClientConfig struct {
	Address string `yaml:"address"`
}

// ServerConfig describes one upstream RADIUS server reachable through the
// outbound socket pool.
type ServerConfig struct {
	Name          string        `yaml:"name"`
	Address       string        `yaml:"address"`
	Source        string        `yaml:"source"`
	RetryCount    int           `yaml:"retry_count"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Default returns a Config with the ambient defaults applied, before any
// YAML is unmarshalled on top of it.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Parse parses configuration from YAML bytes, applying defaults first and
// validating the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency: resolvable
// bind/destination addresses, unique listener and server names, and retry
// parameters within their bounds.
func (c *Config) Validate() error {
	var errs []string

	seenListener := make(map[string]bool)
	for _, l := range c.Listeners {
		if l.Name == "" {
			errs = append(errs, "listener with empty name")
			continue
		}
		if seenListener[l.Name] {
			errs = append(errs, fmt.Sprintf("duplicate listener name %q", l.Name))
		}
		seenListener[l.Name] = true

		if _, err := net.ResolveUDPAddr("udp", withDefaultPort(l.BindAddress)); err != nil {
			errs = append(errs, fmt.Sprintf("listener %q: bind_address %q: %v", l.Name, l.BindAddress, err))
		}
	}

	seenServer := make(map[string]bool)
	for _, s := range c.Upstreams {
		if s.Name == "" {
			errs = append(errs, "upstream with empty name")
			continue
		}
		if seenServer[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate upstream name %q", s.Name))
		}
		seenServer[s.Name] = true

		if _, err := net.ResolveUDPAddr("udp", withDefaultPort(s.Address)); err != nil {
			errs = append(errs, fmt.Sprintf("upstream %q: address %q: %v", s.Name, s.Address, err))
		}
		if s.Source != "" {
			if _, err := net.ResolveUDPAddr("udp", withDefaultPort(s.Source)); err != nil {
				errs = append(errs, fmt.Sprintf("upstream %q: source %q: %v", s.Name, s.Source, err))
			}
		}
		if s.RetryCount < 0 || s.RetryCount > MaxRetryCount {
			errs = append(errs, fmt.Sprintf("upstream %q: retry_count %d out of range [0, %d]", s.Name, s.RetryCount, MaxRetryCount))
		}
		if s.RetryInterval < 0 || s.RetryInterval > MaxRetryInterval {
			errs = append(errs, fmt.Sprintf("upstream %q: retry_interval %s out of range [0, %s]", s.Name, s.RetryInterval, MaxRetryInterval))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// withDefaultPort appends DefaultRADIUSPort to addr if it carries no port
// of its own.
func withDefaultPort(addr string) string {
	if addr == "" {
		return addr
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return fmt.Sprintf("%s:%d", addr, DefaultRADIUSPort)
}
