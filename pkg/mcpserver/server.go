// Package mcpserver exposes the dispatcher as MCP tools.
//
// Two tools are registered: execute_python_code and check_runpod_status.
// Both always answer with a text report; failures are part of the report
// and never surface as protocol errors.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/podexec/pkg/debug"
)

// Tool and server names as seen by MCP clients.
const (
	ServerName        = "RunPod Executor"
	ToolExecuteCode   = "execute_python_code"
	ToolCheckStatus   = "check_runpod_status"
	executeCodeDesc   = "Execute Python code on RunPod and return the results: the output of the execution including stdout, stderr, and return code."
	checkStatusDesc   = "Check the status of the RunPod connection and endpoint."
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Dispatcher is the report-producing side of the tools.
type Dispatcher interface {
	Execute(ctx context.Context, code string) string
	CheckStatus(ctx context.Context) string
}

// ExecuteInput is the argument of execute_python_code.
type ExecuteInput struct {
	Code string `json:"code" jsonschema:"the Python code to execute"`
}

// NewServer creates an MCP server with both tools bound to d.
func NewServer(d Dispatcher, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolExecuteCode,
		Description: executeCodeDesc,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, struct{}, error) {
		debug.Log("mcp", "tool called", "tool", ToolExecuteCode, "code_len", len(in.Code))
		return textResult(d.Execute(ctx, in.Code)), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolCheckStatus,
		Description: checkStatusDesc,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		debug.Log("mcp", "tool called", "tool", ToolCheckStatus)
		return textResult(d.CheckStatus(ctx)), struct{}{}, nil
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ServeStdio serves server over stdin/stdout until the client disconnects
// or ctx is cancelled.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	slog.Info("serving MCP over stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// Handler returns an HTTP handler exposing server over the streamable
// HTTP transport at /mcp, with a /healthz liveness probe.
func Handler(server *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}

// ServeHTTP serves server over streamable HTTP on addr until ctx is
// cancelled, then shuts down gracefully.
func ServeHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return serveOn(ctx, server, ln)
}

func serveOn(ctx context.Context, server *mcp.Server, ln net.Listener) error {
	srv := &http.Server{
		Handler:           Handler(server),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over streamable HTTP", "addr", ln.Addr().String(), "path", "/mcp")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down MCP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// Serve selects the transport by name: "stdio" or "streamable-http".
func Serve(ctx context.Context, server *mcp.Server, transport, addr string) error {
	switch transport {
	case "", "stdio":
		return ServeStdio(ctx, server)
	case "streamable-http":
		return ServeHTTP(ctx, server, addr)
	default:
		return fmt.Errorf("unknown MCP transport %q", transport)
	}
}
