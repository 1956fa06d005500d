// Package config loads and validates the declarative gateway configuration:
// clients, routes and the server block, from a YAML document.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top level configuration document.
type Config struct {
	Clients map[string]ClientDefinition `yaml:"clients"`
	Routes  []RouteDefinition           `yaml:"routes"`
	Server  ServerConfig                `yaml:"server"`
}

// ServerConfig holds process-wide, ambient settings: none of it is part of
// the C1-C7 orchestration core, but a running gateway needs all of it.
type ServerConfig struct {
	Listen      string           `yaml:"listen"`
	Timeout     int              `yaml:"timeout"`       // seconds, global request timeout
	MaxBodySize int64            `yaml:"max_body_size"` // bytes
	CORS        *CORSConfig      `yaml:"cors"`
	Logging     LoggingConfig    `yaml:"logging"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit"`
	Security    SecurityConfig   `yaml:"security"`
}

// CORSConfig mirrors original_source's CorsConfig.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// LoggingConfig controls the access-log middleware.
type LoggingConfig struct {
	LogRequestBody  bool `yaml:"log_request_body"`
	LogResponseBody bool `yaml:"log_response_body"`
	LogHeaders      bool `yaml:"log_headers"`
}

// RateLimitConfig is a simple token-bucket limiter, ambient to the core.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// SecurityConfig is the supplemented security block (api keys, JWT, IP filter).
type SecurityConfig struct {
	APIKeys  *APIKeyConfig   `yaml:"api_keys"`
	JWT      *JWTConfig      `yaml:"jwt"`
	IPFilter *IPFilterConfig `yaml:"ip_filter"`
}

// APIKeyConfig validates a static header-carried API key.
type APIKeyConfig struct {
	Header string   `yaml:"header"`
	Keys   []string `yaml:"keys"`
}

// JWTConfig validates a bearer JWT using golang-jwt/jwt.
type JWTConfig struct {
	Secret       string `yaml:"secret"`
	Algorithm    string `yaml:"algorithm"`
	ValidateExp  bool   `yaml:"validate_exp"`
}

// IPFilterConfig allow/block-lists client IPs.
type IPFilterConfig struct {
	Allowlist []string `yaml:"allowlist"`
	Blocklist []string `yaml:"blocklist"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:      ":8080",
		Timeout:     30,
		MaxBodySize: 10 * 1024 * 1024,
		Logging:     LoggingConfig{LogHeaders: true},
	}
}

var envPattern = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// interpolateEnv replaces ${env:NAME} and ${env:NAME:default} in raw config
// text. It runs strictly before YAML parsing, never at request time. A
// missing variable with no default leaves the literal token in place.
func interpolateEnv(raw string) string {
	return envPattern.ReplaceAllStringFunc(raw, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		name, def := sub[1], sub[2]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if len(sub) > 2 && hasDefault(match) {
			return def
		}
		return match
	})
}

func hasDefault(match string) bool {
	// ${env:NAME:default} always contains a second colon inside the braces.
	inner := match[len("${env:") : len(match)-1]
	for i, r := range inner {
		if r == ':' {
			_ = i
			return true
		}
	}
	return false
}

// Load reads a YAML config file from path, applies environment-variable
// substitution, parses it, and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(raw)
}

// Parse interpolates env vars, unmarshals and validates a raw YAML document.
func Parse(raw []byte) (*Config, error) {
	interpolated := interpolateEnv(string(raw))

	if err := ValidateSchema([]byte(interpolated)); err != nil {
		return nil, errors.Wrap(err, "config: schema validation failed")
	}

	cfg := &Config{Server: defaultServerConfig()}
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse failed")
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 10 * 1024 * 1024
	}
	for id, c := range cfg.Clients {
		cfg.Clients[id] = c.withDefaults()
	}
	for i := range cfg.Routes {
		if cfg.Routes[i].ExecutionMode == "" {
			cfg.Routes[i].ExecutionMode = ExecutionParallel
		}
		for j := range cfg.Routes[i].Subrequests {
			cfg.Routes[i].Subrequests[j].Index = j
		}
		if cfg.Routes[i].TrafficSplit != nil {
			for v := range cfg.Routes[i].TrafficSplit.Variants {
				variant := &cfg.Routes[i].TrafficSplit.Variants[v]
				for j := range variant.Subrequests {
					variant.Subrequests[j].Index = j
				}
			}
		}
	}
}

// Validate checks the static invariants spec.md §3/§8 require at load time:
// every client_id referenced by a subrequest resolves, every depends_on name
// resolves to a named subrequest in the same route, and names within a route
// are unique. Circular dependencies are deliberately left for request time
// (spec.md allows either; the orchestrator's wave scheduler already detects
// them per request and this keeps Validate a pure, cheap static check).
func (c *Config) Validate() error {
	for _, route := range c.Routes {
		names := map[string]bool{}
		for _, sr := range route.Subrequests {
			if sr.Name != "" {
				if names[sr.Name] {
					return fmt.Errorf("route %s %s: duplicate subrequest name %q", route.Method, route.Path, sr.Name)
				}
				names[sr.Name] = true
			}
		}
		for _, sr := range route.Subrequests {
			if _, ok := c.Clients[sr.ClientID]; !ok {
				return fmt.Errorf("route %s %s: unknown client_id %q", route.Method, route.Path, sr.ClientID)
			}
			for _, dep := range sr.DependsOn {
				if !names[dep] {
					return fmt.Errorf("route %s %s: subrequest %q depends_on unknown name %q", route.Method, route.Path, sr.Name, dep)
				}
			}
		}
	}
	return nil
}

// UnusedClients returns client ids configured but never referenced by a
// route's subrequests -- used by the validation CLI's warnings.
func (c *Config) UnusedClients() []string {
	used := map[string]bool{}
	for _, route := range c.Routes {
		for _, sr := range route.Subrequests {
			used[sr.ClientID] = true
		}
	}
	var unused []string
	for id := range c.Clients {
		if !used[id] {
			unused = append(unused, id)
		}
	}
	return unused
}

// ClientBreakdown counts configured clients per kind.
func (c *Config) ClientBreakdown() map[string]int {
	counts := map[string]int{}
	for _, cl := range c.Clients {
		counts[string(cl.Kind)]++
	}
	return counts
}
