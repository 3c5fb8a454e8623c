package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerdesk/ledgerdesk/cmd/intake/cli"
	"github.com/ledgerdesk/ledgerdesk/internal/apiclient"
	"github.com/ledgerdesk/ledgerdesk/internal/app"
	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
)

const usage = `usage:
  ledgerdesk-intake run -kind supplier|customer [-interactive] [-json] FILE...
  ledgerdesk-intake jobs stats [-json]
  ledgerdesk-intake jobs trigger warmup|batch [BATCH_ID]
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping cli startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitFailure
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return cli.ExitFailure
	}

	switch args[0] {
	case "run":
		return runBatch(ctx, cfg, args[1:], stdin, stdout, stderr)
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitFailure
	}
}

func runBatch(ctx context.Context, cfg *app.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", "supplier", "counterparty kind of the batch (supplier or customer)")
	interactive := fs.Bool("interactive", false, "review every invoice and part before it is created")
	jsonOut := fs.Bool("json", false, "print the batch report as JSON")
	apiURL := fs.String("api", envOr("LEDGERDESK_API_URL", "http://127.0.0.1:8080"), "ledgerdesk API base URL")
	token := fs.String("token", os.Getenv("LEDGERDESK_API_TOKEN"), "bearer token for the API")
	timeout := fs.Duration("timeout", 30*time.Second, "per request timeout against the API")
	if err := fs.Parse(args); err != nil {
		return cli.ExitFailure
	}

	// Diagnostics go to stderr so -json output stays parseable.
	logger := app.NewLoggerTo(stderr, cfg)
	api := apiclient.New(*apiURL, *timeout, apiclient.WithToken(*token), apiclient.WithLogger(logger))
	intakeCLI, err := cli.NewIntakeCLI(cli.Config{
		Extractor: extraction.NewClient(cfg.ExtractionURL, cfg.ExtractionTimeout, extraction.WithLogger(logger)),
		Backend:   api,
		Matcher:   cfg.Intake.Matcher(),
		Defaults:  cfg.Intake.BuildDefaults(),
		AutoClose: cfg.Intake.AutoClose,
		Logger:    logger,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return cli.ExitFailure
	}
	return intakeCLI.RunCommand(ctx, cli.RunOptions{
		Kind:        *kind,
		Files:       fs.Args(),
		Interactive: *interactive,
		JSONOutput:  *jsonOut,
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
	})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitFailure
	}
	fs := flag.NewFlagSet("jobs "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return cli.ExitFailure
	}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "inspect queue: %v\n", err)
			return cli.ExitFailure
		}
		if *jsonOut {
			_ = json.NewEncoder(stdout).Encode(stats)
			return cli.ExitOK
		}
		scheduled, err := jobsCLI.ListScheduled(ctx, 10)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "list scheduled: %v\n", err)
		}
		cli.WriteQueueStats(stdout, stats, scheduled)
		return cli.ExitOK
	case "trigger":
		rest := fs.Args()
		if len(rest) == 0 {
			_, _ = fmt.Fprint(stderr, usage)
			return cli.ExitFailure
		}
		var arg string
		if len(rest) > 1 {
			arg = rest[1]
		}
		info, err := jobsCLI.Trigger(ctx, rest[0], arg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "trigger %s: %v\n", rest[0], err)
			return cli.ExitFailure
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
		return cli.ExitOK
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitFailure
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
