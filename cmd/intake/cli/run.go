package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// Exit codes returned by RunCommand.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitIncomplete = 10
)

// Backend is the remote API a batch writes to.
type Backend interface {
	intake.Backend
	intake.Directory
}

// IntakeCLI runs ingestion batches from local files.
type IntakeCLI struct {
	extractor intake.Extractor
	backend   Backend
	matcher   intake.Matcher
	defaults  intake.BuildDefaults
	autoClose time.Duration
	logger    *slog.Logger
}

// Config wires an IntakeCLI.
type Config struct {
	Extractor intake.Extractor
	Backend   Backend
	Matcher   intake.Matcher
	Defaults  intake.BuildDefaults
	AutoClose time.Duration
	Logger    *slog.Logger
}

// NewIntakeCLI validates cfg and builds the CLI.
func NewIntakeCLI(cfg Config) (*IntakeCLI, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("intake cli: extractor required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("intake cli: backend required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &IntakeCLI{
		extractor: cfg.Extractor,
		backend:   cfg.Backend,
		matcher:   cfg.Matcher,
		defaults:  cfg.Defaults,
		autoClose: cfg.AutoClose,
		logger:    cfg.Logger,
	}, nil
}

// RunOptions defines the flags of the run command.
type RunOptions struct {
	Kind        string
	Files       []string
	Interactive bool
	JSONOutput  bool
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// RunCommand extracts Files, drives the batch and prints the report. It
// returns ExitIncomplete when any document or part was not created.
func (c *IntakeCLI) RunCommand(ctx context.Context, opts RunOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	kind, ok := parties.ParseKind(opts.Kind)
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "intake: invalid --kind %q (expected supplier or customer)\n", opts.Kind)
		return ExitFailure
	}
	if len(opts.Files) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "intake: at least one file is required")
		return ExitFailure
	}

	files, closeFiles, err := openFiles(opts.Files)
	defer closeFiles()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "intake: %v\n", err)
		return ExitFailure
	}
	docs, err := c.extractor.Extract(ctx, files)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "intake: extraction failed, nothing was created: %v\n", err)
		return ExitFailure
	}
	known, err := c.backend.ListParties(ctx, kind)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "intake: load %ss: %v\n", kind, err)
		return ExitFailure
	}

	notices := &intake.Collector{}
	notifier := intake.MultiNotifier(notices, intake.NotifierFunc(func(_ context.Context, n intake.Notice) {
		if opts.JSONOutput || (n.Level == intake.LevelInfo && !opts.Interactive) {
			return
		}
		_, _ = fmt.Fprintf(opts.Stderr, "[%s] %s\n", n.Level, n.Message)
	}))
	driver := intake.NewDriver(intake.DriverConfig{
		Backend:        c.backend,
		Matcher:        c.matcher,
		Defaults:       c.defaults,
		Notifier:       notifier,
		Logger:         c.logger,
		AutoCloseDelay: c.autoClose,
	})
	stopClose := context.AfterFunc(ctx, driver.Close)
	defer stopClose()

	batch := intake.Batch{ID: uuid.NewString(), Kind: kind, Documents: docs}
	pool := intake.NewPool(kind, known)
	var report intake.Report
	if opts.Interactive {
		report = driver.Review(ctx, batch, pool, NewTerminalReviewer(opts.Stdin, opts.Stderr))
	} else {
		report = driver.Process(ctx, batch, pool)
	}

	if opts.JSONOutput {
		out := RunOutput{Report: report, Notices: notices.Notices()}
		if err := json.NewEncoder(opts.Stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "intake: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderReport(opts.Stdout, report)
	}
	t := report.Totals
	if report.Aborted || t.InvoicesFailed > 0 || t.Skipped > 0 || t.PartsFailed > 0 || t.PartsSkipped > 0 {
		return ExitIncomplete
	}
	return ExitOK
}

// RunOutput is the -json document printed by RunCommand.
type RunOutput struct {
	Report  intake.Report   `json:"report"`
	Notices []intake.Notice `json:"notices"`
}

func openFiles(paths []string) ([]extraction.File, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]extraction.File, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, closeAll, fmt.Errorf("open %s: %w", path, err)
		}
		opened = append(opened, f)
		files = append(files, extraction.File{Name: filepath.Base(path), Content: f})
	}
	return files, closeAll, nil
}

func renderReport(w io.Writer, report intake.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tDOCUMENT\tSTATUS\tPARTY\tMATCH\tINVOICE\tPARTS")
	for _, o := range report.Outcomes {
		party := o.PartyName
		if o.PartyCreated {
			party += " (new)"
		}
		invoice := "-"
		if o.InvoiceID > 0 {
			invoice = fmt.Sprintf("%d", o.InvoiceID)
		}
		status := string(o.Status)
		if o.FailedStage != "" {
			status += " at " + string(o.FailedStage)
		}
		created := 0
		for _, p := range o.Parts {
			if p.Status == intake.StatusCreated {
				created++
			}
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			o.Index+1, o.Label, status, party, o.Match, invoice, created, len(o.Parts))
	}
	_ = tw.Flush()
	t := report.Totals
	_, _ = fmt.Fprintf(w, "\n%d documents: %d created, %d failed, %d skipped; %d new %ss; parts %d created, %d failed\n",
		t.Documents, t.InvoicesCreated, t.InvoicesFailed, t.Skipped, t.PartiesCreated, report.Kind, t.PartsCreated, t.PartsFailed)
	if report.Aborted {
		_, _ = fmt.Fprintln(w, "batch stopped before completion")
	}
}
