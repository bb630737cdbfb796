// cmd/statsctl/main.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"scheduler-stats/internal/common/auth"
	apihttp "scheduler-stats/internal/common/http"
	"scheduler-stats/internal/common/validation"
	"scheduler-stats/internal/stats"
)

type options struct {
	baseURL string
	token   string
	timeout time.Duration
	schema  string
	pretty  bool
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		help(out)
		return fmt.Errorf("missing command")
	}

	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts options
	fs.StringVar(&opts.baseURL, "url", envOr("STATS_API_BASE_URL", "http://localhost:8080/api"), "Statistics backend base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("STATS_API_TOKEN"), "Bearer token")
	fs.DurationVar(&opts.timeout, "timeout", 15*time.Second, "Request timeout")
	fs.StringVar(&opts.schema, "schema", "", "JSON Schema file the response must satisfy")
	fs.BoolVar(&opts.pretty, "pretty", false, "Indent JSON output")
	jobID := fs.String("id", "", "Job ID (job command)")

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	svc, err := newService(opts)
	if err != nil {
		return err
	}

	var resp *apihttp.Response
	switch cmd {
	case "dashboard":
		resp, err = svc.GetDashboardData(ctx)
	case "job":
		if *jobID == "" {
			return fmt.Errorf("job requires -id")
		}
		resp, err = svc.GetJobStats(ctx, *jobID)
	case "workers":
		resp, err = svc.GetWorkerStats(ctx)
	case "executions":
		params, perr := parseParams(fs.Args())
		if perr != nil {
			return perr
		}
		resp, err = svc.GetExecutionStats(ctx, params)
	default:
		help(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return err
	}

	if opts.schema != "" {
		if err := validateAgainstSchema(opts.schema, resp.Body); err != nil {
			return err
		}
	}

	return writeBody(out, resp.Body, opts.pretty)
}

func newService(opts options) (*stats.Service, error) {
	clientOpts := []apihttp.Option{apihttp.WithUserAgent("statsctl")}
	if opts.token != "" {
		clientOpts = append(clientOpts, apihttp.WithTokenSource(auth.StaticToken(opts.token)))
	}
	client, err := apihttp.NewClient(opts.baseURL, opts.timeout, clientOpts...)
	if err != nil {
		return nil, err
	}
	return stats.NewService(client), nil
}

// parseParams turns key=value arguments into execution query params.
func parseParams(args []string) (stats.Params, error) {
	params := stats.Params{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

func validateAgainstSchema(path string, body []byte) error {
	schema, err := validation.LoadSchemaFile(path)
	if err != nil {
		return err
	}

	result, err := schema.Validate(body)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("response does not match schema: %s", strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// writeBody prints body as received. pretty only re-indents valid JSON; key
// order, number literals and escapes are kept.
func writeBody(out io.Writer, body []byte, pretty bool) error {
	if pretty && json.Valid(body) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return err
		}
		body = buf.Bytes()
	}
	if _, err := out.Write(body); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func help(out io.Writer) {
	fmt.Fprintln(out, "Usage: statsctl <command> [flags] [key=value ...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  dashboard               GET /stats/dashboard")
	fmt.Fprintln(out, "  job -id <jobId>         GET /stats/jobs/{jobId}")
	fmt.Fprintln(out, "  workers                 GET /stats/workers")
	fmt.Fprintln(out, "  executions [k=v ...]    GET /stats/executions")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Flags: -url, -token, -timeout, -schema <file>, -pretty")
}
