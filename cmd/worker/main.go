// Command worker hosts the code executor behind a serverless-style HTTP
// API (/v2/{endpoint}/runsync, /run, /status/{id}, /health).
//
// Configuration is read from a YAML file (-config, PODEXEC_CONFIG,
// ./config.yaml or /etc/podexec/config.yaml) and environment overrides:
//
//	PODEXEC_PORT               - Listen port (default: 8080)
//	PODEXEC_WORKER_ENDPOINT_ID - Only serve this endpoint (default: any)
//	PODEXEC_MAX_CONCURRENT     - Execution slots (default: 3)
//	PODEXEC_RUNNER             - "process" or "docker" (default: process)
//	PODEXEC_EXECUTOR_TIMEOUT   - Per-execution limit (default: 5s)
//	PODEXEC_STORAGE            - "memory" or "postgres" (default: memory)
//	PODEXEC_AUTH_TYPE          - "none", "apikey" or "jwt" (default: none)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rhuss/podexec/pkg/auth"
	"github.com/rhuss/podexec/pkg/auth/apikey"
	"github.com/rhuss/podexec/pkg/auth/jwt"
	"github.com/rhuss/podexec/pkg/auth/noop"
	"github.com/rhuss/podexec/pkg/config"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/executor"
	"github.com/rhuss/podexec/pkg/storage/memory"
	"github.com/rhuss/podexec/pkg/storage/postgres"
	"github.com/rhuss/podexec/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(os.Stderr, cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, cleanup, err := newRunner(ctx, cfg.Executor)
	if err != nil {
		return err
	}
	defer cleanup()

	authMW, err := newAuth(cfg.Auth)
	if err != nil {
		return err
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := worker.New(executor.NewHandler(runner), store, worker.Config{
		EndpointID:    cfg.Worker.EndpointID,
		MaxConcurrent: cfg.Worker.MaxConcurrent,
		MaxBodyBytes:  cfg.Worker.MaxBodyBytes,
		MetricsPath:   metricsPath,
	}, worker.WithAuth(authMW))

	return srv.ListenAndServe(ctx, worker.ServerConfig{
		Addr:         ":" + strconv.Itoa(cfg.Worker.Port),
		ReadTimeout:  cfg.Worker.ReadTimeout,
		WriteTimeout: cfg.Worker.WriteTimeout,
	})
}

func newStore(ctx context.Context, cfg config.StorageConfig) (worker.JobStore, error) {
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	case "memory", "":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func newRunner(ctx context.Context, cfg config.ExecutorConfig) (executor.Runner, func(), error) {
	switch cfg.Runner {
	case "docker":
		r, err := executor.NewDockerRunner(executor.DockerOptions{
			Image:       cfg.Docker.Image,
			Interpreter: cfg.Interpreter,
			Timeout:     cfg.Timeout,
			MemoryMB:    cfg.Docker.MemoryMB,
			CPUs:        cfg.Docker.CPUs,
			Network:     cfg.Docker.Network,
			PullImage:   cfg.Docker.PullImage,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := r.Prepare(ctx); err != nil {
			r.Close()
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	case "process", "":
		return executor.NewProcessRunner(cfg.Interpreter, cfg.Timeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown runner %q", cfg.Runner)
	}
}

func newAuth(cfg config.AuthConfig) (worker.Middleware, error) {
	chain := &auth.Chain{Default: auth.No}

	switch cfg.Type {
	case "none", "":
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, Tenant: k.TenantID, Tier: k.ServiceTier},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(keys)}
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:      []byte(cfg.JWT.Secret),
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
		})
		if err != nil {
			return nil, err
		}
		chain.Authenticators = []auth.Authenticator{a}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.Limiter
	if rl := cfg.RateLimit; rl.DefaultRPM > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]int, len(rl.Tiers))
		for name, tc := range rl.Tiers {
			tiers[name] = tc.RequestsPerMinute
		}
		limiter = auth.NewWindowLimiter(rl.DefaultRPM, tiers)
	}

	slog.Info("authentication configured", "type", cfg.Type, "rate_limited", limiter != nil)
	return auth.Middleware(chain, limiter, auth.DefaultBypassPaths), nil
}
