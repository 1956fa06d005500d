package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClientKind discriminates the backend kind of a ClientDefinition.
type ClientKind string

const (
	KindHTTP     ClientKind = "http"
	KindPostgres ClientKind = "postgres"
	KindMySQL    ClientKind = "mysql"
	KindSQLite   ClientKind = "sqlite"
	KindMongoDB  ClientKind = "mongodb"
	KindRedis    ClientKind = "redis"
)

// LoadBalanceStrategy picks a backend URL for a multi-backend HTTP client.
type LoadBalanceStrategy string

const (
	RoundRobin       LoadBalanceStrategy = "round-robin"
	Random           LoadBalanceStrategy = "random"
	LeastConnections LoadBalanceStrategy = "least-connections"
)

// UnmarshalYAML accepts either hyphenated (round-robin) or underscored
// (round_robin) spelling, normalizing to the hyphenated form used throughout
// this package and in spec prose.
func (s *LoadBalanceStrategy) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	norm := strings.ReplaceAll(raw, "_", "-")
	switch LoadBalanceStrategy(norm) {
	case RoundRobin, Random, LeastConnections, "":
		*s = LoadBalanceStrategy(norm)
		return nil
	default:
		return fmt.Errorf("client: unknown load_balance strategy %q", raw)
	}
}

// RetryConfig parameterizes C5's retry wrapper.
type RetryConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms"`
}

func defaultRetry() RetryConfig {
	return RetryConfig{MaxRetries: 0, InitialBackoffMs: 100, MaxBackoffMs: 5000}
}

// CircuitBreakerConfig parameterizes C5's circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
}

// ClientDefinition is a tagged union over the six backend kinds (spec.md §3).
// It is held by shared reference once constructed and never mutated by a
// request.
type ClientDefinition struct {
	ID   string
	Kind ClientKind

	// HTTP
	BaseURL        string
	Backends       []string
	LoadBalance    LoadBalanceStrategy
	Headers        map[string]string
	MinConnections int
	MaxConnections int
	TimeoutSeconds int
	Retry          *RetryConfig
	CircuitBreaker *CircuitBreakerConfig

	// SQL (postgres/mysql/sqlite)
	ConnectionString string
	DatabasePath     string

	// Mongo
	Database string
}

func (c ClientDefinition) withDefaults() ClientDefinition {
	if c.MaxConnections == 0 {
		c.MaxConnections = 10
	}
	if c.MinConnections == 0 {
		c.MinConnections = 1
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.Retry != nil {
		r := defaultRetry()
		if c.Retry.MaxRetries != 0 {
			r.MaxRetries = c.Retry.MaxRetries
		}
		if c.Retry.InitialBackoffMs != 0 {
			r.InitialBackoffMs = c.Retry.InitialBackoffMs
		}
		if c.Retry.MaxBackoffMs != 0 {
			r.MaxBackoffMs = c.Retry.MaxBackoffMs
		}
		c.Retry = &r
	}
	if c.CircuitBreaker != nil {
		if c.CircuitBreaker.FailureThreshold == 0 {
			c.CircuitBreaker.FailureThreshold = 5
		}
		if c.CircuitBreaker.TimeoutSeconds == 0 {
			c.CircuitBreaker.TimeoutSeconds = 30
		}
	}
	return c
}

type rawClient struct {
	Type string `yaml:"type"`

	BaseURL        string                `yaml:"base_url"`
	Backends       []string              `yaml:"backends"`
	LoadBalance    LoadBalanceStrategy   `yaml:"load_balance"`
	Headers        map[string]string     `yaml:"headers"`
	MinConnections int                   `yaml:"min_connections"`
	MaxConnections int                   `yaml:"max_connections"`
	Timeout        int                   `yaml:"timeout"`
	Retry          *RetryConfig          `yaml:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`

	ConnectionString string `yaml:"connection_string"`
	DatabasePath     string `yaml:"database_path"`
	Database         string `yaml:"database"`
}

// UnmarshalYAML implements the `type`-tagged union decoding for ClientDefinition.
func (c *ClientDefinition) UnmarshalYAML(value *yaml.Node) error {
	var raw rawClient
	if err := value.Decode(&raw); err != nil {
		return err
	}
	kind := ClientKind(raw.Type)
	switch kind {
	case KindHTTP, KindPostgres, KindMySQL, KindSQLite, KindMongoDB, KindRedis:
	default:
		return fmt.Errorf("client: unknown type %q", raw.Type)
	}
	*c = ClientDefinition{
		Kind:             kind,
		BaseURL:          raw.BaseURL,
		Backends:         raw.Backends,
		LoadBalance:      raw.LoadBalance,
		Headers:          raw.Headers,
		MinConnections:   raw.MinConnections,
		MaxConnections:   raw.MaxConnections,
		TimeoutSeconds:   raw.Timeout,
		Retry:            raw.Retry,
		CircuitBreaker:   raw.CircuitBreaker,
		ConnectionString: raw.ConnectionString,
		DatabasePath:     raw.DatabasePath,
		Database:         raw.Database,
	}
	return nil
}

// URLs returns the set of backend URLs an HTTP client load-balances across.
func (c ClientDefinition) URLs() []string {
	if len(c.Backends) > 0 {
		return c.Backends
	}
	if c.BaseURL != "" {
		return []string{c.BaseURL}
	}
	return nil
}
