// Package config provides unified configuration for the podexec binaries.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RUNPOD_*, MAX_EXECUTION_TIME, PODEXEC_*)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Default endpoint values used when nothing else is configured.
const (
	DefaultBaseURL           = "https://api.runpod.ai/v2"
	DefaultEndpointID        = "p1abozuh79miw9"
	DefaultManagementBaseURL = "https://rest.runpod.io/v1"
)

// Config holds all configuration for the dispatcher, the MCP tool server,
// the executor worker and the pod management client.
type Config struct {
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	MCP           MCPConfig           `yaml:"mcp"`
	Worker        WorkerConfig        `yaml:"worker"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Management    ManagementConfig    `yaml:"management"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DispatcherConfig holds settings for submitting code to the remote endpoint.
type DispatcherConfig struct {
	BaseURL          string        `yaml:"base_url"`           // default: https://api.runpod.ai/v2
	EndpointID       string        `yaml:"endpoint_id"`        // default: p1abozuh79miw9
	APIKey           string        `yaml:"api_key"`            // optional, reported at call time when missing
	APIKeyFile       string        `yaml:"api_key_file"`       // _file variant for api_key
	MaxExecutionTime time.Duration `yaml:"max_execution_time"` // default: 30s
	TimeoutMargin    time.Duration `yaml:"timeout_margin"`     // default: 5s
	HealthTimeout    time.Duration `yaml:"health_timeout"`     // default: 10s
}

// MCPConfig holds tool server settings.
type MCPConfig struct {
	Transport string `yaml:"transport"` // "stdio" or "streamable-http", default: "stdio"
	Addr      string `yaml:"addr"`      // listen address for streamable-http, default: ":8000"
}

// WorkerConfig holds executor host HTTP server settings.
type WorkerConfig struct {
	Port          int           `yaml:"port"`           // default: 8080
	EndpointID    string        `yaml:"endpoint_id"`    // optional, restricts served endpoint
	MaxConcurrent int           `yaml:"max_concurrent"` // default: 3
	ReadTimeout   time.Duration `yaml:"read_timeout"`   // default: 30s
	WriteTimeout  time.Duration `yaml:"write_timeout"`  // default: 120s
	MaxBodyBytes  int64         `yaml:"max_body_bytes"` // default: 10 MiB
}

// ExecutorConfig holds code execution settings.
type ExecutorConfig struct {
	Runner      string        `yaml:"runner"`      // "process" or "docker", default: "process"
	Interpreter []string      `yaml:"interpreter"` // argv prefix, default: ["python3", "-c"]
	Timeout     time.Duration `yaml:"timeout"`     // default: 5s
	Docker      DockerConfig  `yaml:"docker"`
}

// DockerConfig holds settings for the container runner.
type DockerConfig struct {
	Image     string  `yaml:"image"`      // default: python:3.12-slim
	MemoryMB  int64   `yaml:"memory_mb"`  // default: 256
	CPUs      float64 `yaml:"cpus"`       // default: 1
	Network   string  `yaml:"network"`    // default: "none"
	PullImage bool    `yaml:"pull_image"` // default: false
}

// StorageConfig holds job store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds worker authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds settings for HMAC-signed bearer tokens.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	SecretFile  string `yaml:"secret_file"` // _file variant for secret
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	UserClaim   string `yaml:"user_claim"`   // default: "sub"
	TenantClaim string `yaml:"tenant_claim"` // default: "tenant_id"
	ScopesClaim string `yaml:"scopes_claim"` // default: "scope"
}

// RateLimitConfig holds per-tier request limits.
type RateLimitConfig struct {
	DefaultRPM int                   `yaml:"default_rpm"` // 0 disables limiting
	Tiers      map[string]TierConfig `yaml:"tiers"`
}

// TierConfig holds the request limit for one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// ManagementConfig holds pod management API settings.
type ManagementConfig struct {
	BaseURL    string        `yaml:"base_url"` // default: https://rest.runpod.io/v1
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration `yaml:"timeout"`      // default: 30s
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "TRACE", "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Dispatcher: DispatcherConfig{
			BaseURL:          DefaultBaseURL,
			EndpointID:       DefaultEndpointID,
			MaxExecutionTime: 30 * time.Second,
			TimeoutMargin:    5 * time.Second,
			HealthTimeout:    10 * time.Second,
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Addr:      ":8000",
		},
		Worker: WorkerConfig{
			Port:          8080,
			MaxConcurrent: 3,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  120 * time.Second,
			MaxBodyBytes:  10 << 20,
		},
		Executor: ExecutorConfig{
			Runner:      "process",
			Interpreter: []string{"python3", "-c"},
			Timeout:     5 * time.Second,
			Docker: DockerConfig{
				Image:    "python:3.12-slim",
				MemoryMB: 256,
				CPUs:     1,
				Network:  "none",
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Management: ManagementConfig{
			BaseURL: DefaultManagementBaseURL,
			Timeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
