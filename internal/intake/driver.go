package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// DefaultAutoCloseDelay is how long a finished batch stays visible before the
// driver returns to idle.
const DefaultAutoCloseDelay = 3 * time.Second

var (
	// ErrCreateInvoice wraps backend failures creating an invoice.
	ErrCreateInvoice = errors.New("create invoice")
	// ErrCreatePart wraps backend failures creating a part.
	ErrCreatePart = errors.New("create part")
)

// Batch is an ordered set of extracted documents for one party kind.
type Batch struct {
	ID        string                `json:"id"`
	Kind      parties.Kind          `json:"kind"`
	Documents []extraction.Document `json:"documents"`
}

// DriverConfig wires a Driver.
type DriverConfig struct {
	Backend  Backend
	Matcher  Matcher
	Defaults BuildDefaults
	Notifier Notifier
	Observer Observer
	Metrics  *Metrics
	Logger   *slog.Logger
	// AutoCloseDelay is waited between Finished and Idle. Zero skips the wait.
	AutoCloseDelay time.Duration
	Clock          func() time.Time
}

// Driver walks a batch one step at a time: resolve the party, build the
// invoice, create it, then create its parts in order. Each backend call is
// awaited before the next one is issued. Failures are reported and the driver
// moves on to the next document.
type Driver struct {
	backend  Backend
	resolver *Resolver
	defaults BuildDefaults
	notifier Notifier
	observer Observer
	metrics  *Metrics
	logger   *slog.Logger
	delay    time.Duration
	clock    func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeCh   chan struct{}

	mu    sync.Mutex
	state State
}

// NewDriver builds a Driver.
func NewDriver(cfg DriverConfig) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: cfg.Logger}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Matcher == (Matcher{}) {
		cfg.Matcher = NewMatcher(DefaultMatchThreshold, DefaultTieWindow)
	}
	if cfg.Defaults == (BuildDefaults{}) {
		cfg.Defaults = DefaultBuildDefaults()
	}
	return &Driver{
		backend:  cfg.Backend,
		resolver: NewResolver(cfg.Matcher, cfg.Backend, cfg.Logger),
		defaults: cfg.Defaults,
		notifier: cfg.Notifier,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		delay:    cfg.AutoCloseDelay,
		clock:    cfg.Clock,
		closeCh:  make(chan struct{}),
		state:    idleState,
	}
}

// Close stops the driver from scheduling further steps. A request already in
// flight is allowed to complete. Safe to call from any goroutine.
func (d *Driver) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.closeCh)
	})
}

// State returns the current position of the driver.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) transition(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()
	if d.observer != nil {
		d.observer.OnTransition(from, to)
	}
}

func (d *Driver) stopped(ctx context.Context) bool {
	return d.closed.Load() || ctx.Err() != nil
}

// Process drives batch without human review.
func (d *Driver) Process(ctx context.Context, batch Batch, pool *Pool) Report {
	return d.run(ctx, batch, pool, nil)
}

// Review drives batch, asking reviewer before each invoice and part is created.
func (d *Driver) Review(ctx context.Context, batch Batch, pool *Pool, reviewer Reviewer) Report {
	return d.run(ctx, batch, pool, reviewer)
}

func (d *Driver) run(ctx context.Context, batch Batch, pool *Pool, reviewer Reviewer) Report {
	if pool == nil || pool.Kind() != batch.Kind {
		pool = NewPool(batch.Kind, nil)
	}
	report := Report{
		BatchID:   batch.ID,
		Kind:      batch.Kind,
		Mode:      ModeSilent,
		Outcomes:  make([]Outcome, 0, len(batch.Documents)),
		StartedAt: d.clock().UTC(),
	}
	if reviewer != nil {
		report.Mode = ModeInteractive
	}
	logger := d.logger.With(slog.String("batch_id", batch.ID), slog.String("kind", string(batch.Kind)))
	logger.Info("batch started", slog.Int("documents", len(batch.Documents)), slog.Int("known_parties", pool.Len()))

	direction := invoices.DirectionFor(batch.Kind)
	for i, doc := range batch.Documents {
		if d.stopped(ctx) {
			report.Aborted = true
			report.Outcomes = append(report.Outcomes, skippedOutcomes(batch.Documents, i)...)
			break
		}
		d.transition(State{Phase: PhaseProcessingInvoice, Invoice: i, Part: -1})
		outcome, stop := d.processDocument(ctx, i, len(batch.Documents), doc, direction, pool, reviewer)
		report.Outcomes = append(report.Outcomes, outcome)
		if stop {
			report.Aborted = true
			report.Outcomes = append(report.Outcomes, skippedOutcomes(batch.Documents, i+1)...)
			break
		}
	}

	report.FinishedAt = d.clock().UTC()
	report.tally()
	d.transition(State{Phase: PhaseFinished, Invoice: -1, Part: -1})
	d.metrics.Observe(report)
	logger.Info("batch finished",
		slog.Int("invoices_created", report.Totals.InvoicesCreated),
		slog.Int("invoices_failed", report.Totals.InvoicesFailed),
		slog.Int("skipped", report.Totals.Skipped),
		slog.Int("parties_created", report.Totals.PartiesCreated),
		slog.Int("parts_created", report.Totals.PartsCreated),
		slog.Int("parts_failed", report.Totals.PartsFailed),
		slog.Bool("aborted", report.Aborted),
	)

	d.transition(State{Phase: PhaseAutoClosing, Invoice: -1, Part: -1})
	d.autoClose(ctx)
	d.transition(idleState)
	return report
}

func (d *Driver) autoClose(ctx context.Context) {
	if d.delay <= 0 {
		return
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-d.closeCh:
	}
}

func skippedOutcomes(docs []extraction.Document, from int) []Outcome {
	var out []Outcome
	for i := from; i < len(docs); i++ {
		out = append(out, Outcome{Index: i, Label: docs[i].Label(), Status: StatusSkipped})
	}
	return out
}

func (d *Driver) notify(ctx context.Context, level Level, stage Stage, doc, part int, label, msg string) {
	d.notifier.Notify(ctx, Notice{Level: level, Stage: stage, Document: doc, Part: part, Label: label, Message: msg})
}

// processDocument runs one document through the pipeline. stop is true when
// the batch must not continue (abort or close).
func (d *Driver) processDocument(ctx context.Context, index, total int, doc extraction.Document, direction invoices.Direction, pool *Pool, reviewer Reviewer) (out Outcome, stop bool) {
	label := doc.Label()
	out = Outcome{Index: index, Label: label, Status: StatusFailed}
	if d.stopped(ctx) {
		out.Status = StatusSkipped
		return out, true
	}

	res, err := d.resolver.Resolve(ctx, pool, IdentityOf(doc))
	out.Match = res.Match.Kind
	out.MatchScore = res.Match.Score
	if err != nil {
		out.FailedStage, out.Error = StageResolve, err.Error()
		d.notify(ctx, LevelError, StageResolve, index, -1, label, fmt.Sprintf("could not resolve %s for %s: %v", pool.Kind(), label, err))
		return out, false
	}
	out.PartyID, out.PartyName, out.PartyCreated = res.Party.ID, res.Party.Name, res.Created
	if res.Created {
		d.notify(ctx, LevelInfo, StageResolve, index, -1, label, fmt.Sprintf("created %s %q", pool.Kind(), res.Party.Name))
	}

	input, err := BuildInvoice(doc, direction, res.Party, d.defaults, d.clock())
	if err != nil {
		out.FailedStage, out.Error = StageBuild, err.Error()
		d.notify(ctx, LevelError, StageBuild, index, -1, label, fmt.Sprintf("invoice %s is invalid: %v", label, err))
		return out, false
	}

	if reviewer != nil {
		decision, err := reviewer.ReviewInvoice(ctx, InvoiceDraft{Index: index, Total: total, Document: doc, Resolution: res, Input: input})
		switch {
		case err != nil || decision.Action == ActionAbort:
			out.Status, out.FailedStage = StatusSkipped, StageReview
			if err != nil {
				out.Error = err.Error()
			}
			d.notify(ctx, LevelWarning, StageReview, index, -1, label, "review aborted")
			return out, true
		case decision.Action == ActionSkip:
			out.Status = StatusSkipped
			d.notify(ctx, LevelInfo, StageReview, index, -1, label, fmt.Sprintf("skipped %s", label))
			return out, false
		}
		input = decision.Payload
	}

	if d.stopped(ctx) {
		out.Status = StatusSkipped
		return out, true
	}
	inv, err := d.backend.CreateInvoice(ctx, input)
	if err != nil {
		out.FailedStage, out.Error = StageCreateInvoice, fmt.Errorf("%w: %w", ErrCreateInvoice, err).Error()
		d.notify(ctx, LevelError, StageCreateInvoice, index, -1, label, fmt.Sprintf("failed to create invoice %s: %v", label, err))
		return out, false
	}
	out.Status, out.InvoiceID = StatusCreated, inv.ID
	d.notify(ctx, LevelInfo, StageCreateInvoice, index, -1, label, fmt.Sprintf("invoice %s created", inv.Reference))

	if direction != invoices.DirectionExternal || len(doc.Lines) == 0 {
		return out, false
	}
	out.Parts = make([]PartOutcome, 0, len(doc.Lines))
	for j, line := range doc.Lines {
		if d.stopped(ctx) {
			for k := j; k < len(doc.Lines); k++ {
				out.Parts = append(out.Parts, PartOutcome{Index: k, Code: doc.Lines[k].Code, Status: StatusSkipped})
			}
			return out, true
		}
		d.transition(State{Phase: PhaseProcessingParts, Invoice: index, Part: j})
		part, abort := d.processPart(ctx, index, j, len(doc.Lines), line, inv, label, reviewer)
		out.Parts = append(out.Parts, part)
		if abort {
			for k := j + 1; k < len(doc.Lines); k++ {
				out.Parts = append(out.Parts, PartOutcome{Index: k, Code: doc.Lines[k].Code, Status: StatusSkipped})
			}
			return out, true
		}
	}
	return out, false
}

func (d *Driver) processPart(ctx context.Context, docIndex, index, total int, line extraction.LineItem, inv invoices.Invoice, label string, reviewer Reviewer) (PartOutcome, bool) {
	input := BuildPart(line, inv)
	out := PartOutcome{Index: index, Code: input.Code, Status: StatusFailed}

	if reviewer != nil {
		decision, err := reviewer.ReviewPart(ctx, PartDraft{Document: docIndex, Index: index, Total: total, Line: line, Invoice: inv, Input: input})
		switch {
		case err != nil || decision.Action == ActionAbort:
			out.Status = StatusSkipped
			d.notify(ctx, LevelWarning, StageReview, docIndex, index, label, "review aborted")
			return out, true
		case decision.Action == ActionSkip:
			out.Status = StatusSkipped
			return out, false
		}
		input = decision.Payload
		input.InvoiceID = inv.ID
		out.Code = input.Code
	}

	if d.stopped(ctx) {
		out.Status = StatusSkipped
		return out, true
	}
	part, err := d.backend.CreatePart(ctx, input)
	if err != nil {
		out.Error = fmt.Errorf("%w: %w", ErrCreatePart, err).Error()
		d.notify(ctx, LevelError, StageCreatePart, docIndex, index, label, fmt.Sprintf("failed to create part %s on %s: %v", input.Code, label, err))
		return out, false
	}
	out.Status, out.PartID = StatusCreated, part.ID
	return out, false
}
