package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PODEXEC_CONFIG env, ./config.yaml, /etc/podexec/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PODEXEC_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/podexec/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("PODEXEC_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/podexec/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
// The RUNPOD_* names and MAX_EXECUTION_TIME are the variables the tool
// server has always read; PODEXEC_* cover everything else. Unparseable
// numeric values are ignored and the previous value is kept.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUNPOD_ENDPOINT_ID"); v != "" {
		cfg.Dispatcher.EndpointID = v
	}
	if v := os.Getenv("RUNPOD_BASE_URL"); v != "" {
		cfg.Dispatcher.BaseURL = v
	}
	if v := os.Getenv("RUNPOD_API_KEY"); v != "" {
		cfg.Dispatcher.APIKey = v
		cfg.Management.APIKey = v
	}
	if v := os.Getenv("MAX_EXECUTION_TIME"); v != "" {
		if d, ok := parseSeconds(v); ok {
			cfg.Dispatcher.MaxExecutionTime = d
		}
	}

	if v := os.Getenv("PODEXEC_MCP_TRANSPORT"); v != "" {
		cfg.MCP.Transport = v
	}
	if v := os.Getenv("PODEXEC_MCP_ADDR"); v != "" {
		cfg.MCP.Addr = v
	}
	if v := os.Getenv("PODEXEC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Port = port
		}
	}
	if v := os.Getenv("PODEXEC_WORKER_ENDPOINT_ID"); v != "" {
		cfg.Worker.EndpointID = v
	}
	if v := os.Getenv("PODEXEC_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.MaxConcurrent = n
		}
	}
	if v := os.Getenv("PODEXEC_RUNNER"); v != "" {
		cfg.Executor.Runner = v
	}
	if v := os.Getenv("PODEXEC_EXECUTOR_TIMEOUT"); v != "" {
		if d, ok := parseSeconds(v); ok {
			cfg.Executor.Timeout = d
		}
	}
	if v := os.Getenv("PODEXEC_DOCKER_IMAGE"); v != "" {
		cfg.Executor.Docker.Image = v
	}
	if v := os.Getenv("PODEXEC_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("PODEXEC_STORAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("PODEXEC_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("PODEXEC_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("PODEXEC_MANAGEMENT_URL"); v != "" {
		cfg.Management.BaseURL = v
	}

	// PODEXEC_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("PODEXEC_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
}

// parseSeconds accepts either a bare integer number of seconds ("30") or a
// Go duration string ("1m30s").
func parseSeconds(v string) (time.Duration, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	return 0, false
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		path  string
		file  string
		value *string
	}{
		{"dispatcher.api_key_file", cfg.Dispatcher.APIKeyFile, &cfg.Dispatcher.APIKey},
		{"management.api_key_file", cfg.Management.APIKeyFile, &cfg.Management.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.path, err)
		}
		*ref.value = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
