package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
//
// A missing dispatcher API key is not a validation error: the tool server
// must still start and report the missing key through its tools.
func (c *Config) Validate() error {
	var errs []error

	if c.Dispatcher.BaseURL == "" {
		errs = append(errs, fmt.Errorf("dispatcher.base_url is required"))
	}
	if c.Dispatcher.EndpointID == "" {
		errs = append(errs, fmt.Errorf("dispatcher.endpoint_id is required"))
	}
	if c.Dispatcher.MaxExecutionTime <= 0 {
		errs = append(errs, fmt.Errorf("dispatcher.max_execution_time must be > 0, got %s", c.Dispatcher.MaxExecutionTime))
	}
	if c.Dispatcher.TimeoutMargin < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.timeout_margin must be >= 0, got %s", c.Dispatcher.TimeoutMargin))
	}
	if c.Dispatcher.HealthTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatcher.health_timeout must be > 0, got %s", c.Dispatcher.HealthTimeout))
	}

	switch c.MCP.Transport {
	case "stdio":
	case "streamable-http":
		if c.MCP.Addr == "" {
			errs = append(errs, fmt.Errorf("mcp.addr is required when mcp.transport is \"streamable-http\""))
		}
	default:
		errs = append(errs, fmt.Errorf("mcp.transport must be \"stdio\" or \"streamable-http\", got %q", c.MCP.Transport))
	}

	if c.Worker.Port <= 0 {
		errs = append(errs, fmt.Errorf("worker.port must be > 0, got %d", c.Worker.Port))
	}
	if c.Worker.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("worker.max_concurrent must be > 0, got %d", c.Worker.MaxConcurrent))
	}
	if c.Worker.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("worker.max_body_bytes must be > 0, got %d", c.Worker.MaxBodyBytes))
	}

	switch c.Executor.Runner {
	case "process":
		if len(c.Executor.Interpreter) == 0 {
			errs = append(errs, fmt.Errorf("executor.interpreter must not be empty when executor.runner is \"process\""))
		}
	case "docker":
		if c.Executor.Docker.Image == "" {
			errs = append(errs, fmt.Errorf("executor.docker.image is required when executor.runner is \"docker\""))
		}
	default:
		errs = append(errs, fmt.Errorf("executor.runner must be \"process\" or \"docker\", got %q", c.Executor.Runner))
	}
	if c.Executor.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("executor.timeout must be > 0, got %s", c.Executor.Timeout))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	switch c.Logging.Format {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
