// Command mcp-server exposes remote code execution as MCP tools
// (execute_python_code, check_runpod_status).
//
// Environment:
//
//	RUNPOD_API_KEY        - Bearer key for the serverless endpoint
//	RUNPOD_ENDPOINT_ID    - Endpoint to submit jobs to (default: p1abozuh79miw9)
//	MAX_EXECUTION_TIME    - Execution budget in seconds (default: 30)
//	PODEXEC_MCP_TRANSPORT - "stdio" or "streamable-http" (default: stdio)
//	PODEXEC_MCP_ADDR      - Listen address for streamable-http (default: :8000)
//
// Logs go to stderr; stdout carries the stdio transport.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/podexec/pkg/config"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/dispatcher"
	"github.com/rhuss/podexec/pkg/mcpserver"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("mcp server failed", "error", err)
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

	dc := cfg.Dispatcher
	d := dispatcher.New(dispatcher.Config{
		BaseURL:          dc.BaseURL,
		EndpointID:       dc.EndpointID,
		APIKey:           dc.APIKey,
		MaxExecutionTime: dc.MaxExecutionTime,
		TimeoutMargin:    dc.TimeoutMargin,
		HealthTimeout:    dc.HealthTimeout,
	})
	if dc.APIKey == "" {
		slog.Warn("RUNPOD_API_KEY is not set; tool calls will report a configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("mcp server starting",
		"transport", cfg.MCP.Transport,
		"endpoint", dc.EndpointID,
		"max_execution_time", dc.MaxExecutionTime,
	)
	return mcpserver.Serve(ctx, mcpserver.NewServer(d, version), cfg.MCP.Transport, cfg.MCP.Addr)
}
