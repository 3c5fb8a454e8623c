package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
)

// ErrInputClosed is returned when the terminal reaches EOF mid-review.
var ErrInputClosed = errors.New("review input closed")

// TerminalReviewer asks an operator to confirm, edit, skip or stop on each
// draft over a line-oriented terminal.
type TerminalReviewer struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewTerminalReviewer reads answers from in and writes prompts to out.
func NewTerminalReviewer(in io.Reader, out io.Writer) *TerminalReviewer {
	return &TerminalReviewer{in: bufio.NewScanner(in), out: out}
}

const promptHelp = "[y] create  [n] skip  [e] edit  [q] stop batch"

// ReviewInvoice implements intake.Reviewer.
func (r *TerminalReviewer) ReviewInvoice(ctx context.Context, draft intake.InvoiceDraft) (intake.Decision[invoices.CreateInvoiceInput], error) {
	input := draft.Input
	for {
		r.printInvoice(draft, input)
		answer, err := r.ask(ctx, promptHelp+": ")
		if err != nil {
			return intake.Abort[invoices.CreateInvoiceInput](), err
		}
		switch strings.ToLower(answer) {
		case "y", "yes", "":
			return intake.Submit(input), nil
		case "n", "no", "s", "skip":
			return intake.Skip[invoices.CreateInvoiceInput](), nil
		case "q", "quit":
			return intake.Abort[invoices.CreateInvoiceInput](), nil
		case "e", "edit":
			line, err := r.ask(ctx, "field=value (reference, issue_date, due_date, gross, net, tax, currency, project_id): ")
			if err != nil {
				return intake.Abort[invoices.CreateInvoiceInput](), err
			}
			if err := editInvoice(&input, line); err != nil {
				r.printf("  %v\n", err)
			}
		default:
			r.printf("  unknown answer %q\n", answer)
		}
	}
}

// ReviewPart implements intake.Reviewer.
func (r *TerminalReviewer) ReviewPart(ctx context.Context, draft intake.PartDraft) (intake.Decision[invoices.CreatePartInput], error) {
	input := draft.Input
	for {
		r.printf("\n  part %d/%d of invoice %d: code=%s qty=%s unit_price=%s %q\n",
			draft.Index+1, draft.Total, draft.Invoice.ID, input.Code,
			input.Quantity.String(), input.UnitPrice.StringFixed(2), input.Description)
		answer, err := r.ask(ctx, "  "+promptHelp+": ")
		if err != nil {
			return intake.Abort[invoices.CreatePartInput](), err
		}
		switch strings.ToLower(answer) {
		case "y", "yes", "":
			return intake.Submit(input), nil
		case "n", "no", "s", "skip":
			return intake.Skip[invoices.CreatePartInput](), nil
		case "q", "quit":
			return intake.Abort[invoices.CreatePartInput](), nil
		case "e", "edit":
			line, err := r.ask(ctx, "  field=value (code, description, quantity, unit_price): ")
			if err != nil {
				return intake.Abort[invoices.CreatePartInput](), err
			}
			if err := editPart(&input, line); err != nil {
				r.printf("  %v\n", err)
			}
		default:
			r.printf("  unknown answer %q\n", answer)
		}
	}
}

func (r *TerminalReviewer) printInvoice(draft intake.InvoiceDraft, in invoices.CreateInvoiceInput) {
	res := draft.Resolution
	origin := fmt.Sprintf("%s match, score %.2f", res.Match.Kind, res.Match.Score)
	if res.Created {
		origin = "created"
	}
	r.printf("\ninvoice %d/%d: %s\n", draft.Index+1, draft.Total, draft.Document.Label())
	r.printf("  party      %s [%s] (%s)\n", res.Party.Name, res.Party.TaxID, origin)
	r.printf("  reference  %s\n", in.Reference)
	r.printf("  issued     %s  due %s\n", in.IssueDate.Format("2006-01-02"), in.DueDate.Format("2006-01-02"))
	r.printf("  gross      %s %s (net %s, tax %s)\n", in.Gross.StringFixed(2), in.Currency, in.Net.StringFixed(2), in.Tax.StringFixed(2))
	r.printf("  project    %d  lines %d\n", in.ProjectID, len(draft.Document.Lines))
}

func (r *TerminalReviewer) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.printf("%s", prompt)
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", err
		}
		return "", ErrInputClosed
	}
	return strings.TrimSpace(r.in.Text()), nil
}

func (r *TerminalReviewer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func splitEdit(line string) (string, string, error) {
	field, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", fmt.Errorf("expected field=value, got %q", line)
	}
	return strings.TrimSpace(field), strings.TrimSpace(value), nil
}

func editInvoice(in *invoices.CreateInvoiceInput, line string) error {
	field, value, err := splitEdit(line)
	if err != nil {
		return err
	}
	switch field {
	case "reference":
		in.Reference = strings.ToUpper(value)
	case "issue_date", "due_date":
		t, ok := intake.ParseIssueDate(value)
		if !ok {
			return fmt.Errorf("invalid date %q", value)
		}
		if field == "issue_date" {
			in.IssueDate = t
		} else {
			in.DueDate = t
		}
	case "gross", "net", "tax":
		d, err := decimal.NewFromString(value)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("invalid amount %q", value)
		}
		d = d.Round(2)
		switch field {
		case "gross":
			in.Gross = d
		case "net":
			in.Net = d
		default:
			in.Tax = d
		}
	case "currency":
		if len(value) != 3 {
			return fmt.Errorf("invalid currency %q", value)
		}
		in.Currency = strings.ToUpper(value)
	case "project_id":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid project id %q", value)
		}
		in.ProjectID = id
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func editPart(in *invoices.CreatePartInput, line string) error {
	field, value, err := splitEdit(line)
	if err != nil {
		return err
	}
	switch field {
	case "code":
		if value == "" {
			return errors.New("code cannot be empty")
		}
		in.Code = strings.ToUpper(value)
	case "description":
		in.Description = value
	case "quantity", "unit_price":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		if field == "quantity" {
			if !d.IsPositive() {
				return fmt.Errorf("quantity must be positive, got %q", value)
			}
			in.Quantity = d
		} else {
			in.UnitPrice = d
		}
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}
