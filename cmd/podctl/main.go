// Command podctl manages pods through the provider's REST API.
//
// Usage:
//
//	podctl [-config path] create [-name NAME] [-image IMAGE] [-entrypoint CMD]...
//	podctl [-config path] get POD_ID
//	podctl [-config path] terminate POD_ID
//	podctl [-config path] endpoints
//
// The API key comes from management.api_key in the config file or
// RUNPOD_API_KEY. Results are printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rhuss/podexec/pkg/config"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/pods"
)

const usage = `usage: podctl [-config path] <command> [args]

commands:
  create [-name NAME] [-image IMAGE] [-entrypoint CMD]...   create a CPU pod
  get POD_ID                                                show a pod
  terminate POD_ID                                          terminate a pod
  endpoints                                                 list serverless endpoints
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Error("podctl failed", "error", err)
		os.Exit(1)
	}
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, " ") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("podctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(os.Stderr, cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Management.APIKey == "" {
		return errors.New("management API key not set (RUNPOD_API_KEY or management.api_key)")
	}

	client := pods.New(pods.Config{
		BaseURL: cfg.Management.BaseURL,
		APIKey:  cfg.Management.APIKey,
		Timeout: cfg.Management.Timeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "create":
		spec, err := parseCreate(rest)
		if err != nil {
			return err
		}
		pod, err := client.CreatePod(ctx, spec)
		if err != nil {
			return err
		}
		return printJSON(out, pod)
	case "get":
		if len(rest) != 1 {
			return errUsage
		}
		pod, err := client.GetPod(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(out, pod)
	case "terminate":
		if len(rest) != 1 {
			return errUsage
		}
		if err := client.TerminatePod(ctx, rest[0]); err != nil {
			return err
		}
		return printJSON(out, map[string]string{"id": rest[0], "status": "terminated"})
	case "endpoints":
		endpoints, err := client.ListEndpoints(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, endpoints)
	default:
		return errUsage
	}
}

func parseCreate(args []string) (pods.PodSpec, error) {
	spec := pods.DefaultCPUPodSpec()

	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", spec.Name, "pod name")
	image := fs.String("image", spec.ImageName, "container image")
	var entrypoint stringList
	fs.Var(&entrypoint, "entrypoint", "entrypoint argument (repeatable)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return spec, errUsage
	}

	spec.Name = *name
	spec.ImageName = *image
	if len(entrypoint) > 0 {
		spec = spec.WithEntrypoint(entrypoint...)
	}
	return spec, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
