package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

type stubExtractor struct {
	docs  []extraction.Document
	err   error
	names []string
}

func (s *stubExtractor) Extract(ctx context.Context, files []extraction.File) ([]extraction.Document, error) {
	for _, f := range files {
		s.names = append(s.names, f.Name)
	}
	return s.docs, s.err
}

type memoryAPI struct {
	mu          sync.Mutex
	known       []parties.Party
	invoices    []invoices.CreateInvoiceInput
	parts       []invoices.CreatePartInput
	failRef     string
	partiesMade int
}

func (m *memoryAPI) ListParties(ctx context.Context, kind parties.Kind) ([]parties.Party, error) {
	return m.known, nil
}

func (m *memoryAPI) CreateParty(ctx context.Context, req parties.CreatePartyRequest) (parties.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partiesMade++
	return parties.Party{ID: int64(500 + m.partiesMade), Kind: req.Kind, Name: req.Name, TaxID: req.TaxID}, nil
}

func (m *memoryAPI) CreateInvoice(ctx context.Context, in invoices.CreateInvoiceInput) (invoices.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.Reference == m.failRef {
		return invoices.Invoice{}, errors.New("api: 500 internal error")
	}
	m.invoices = append(m.invoices, in)
	return invoices.Invoice{ID: int64(len(m.invoices)), Reference: in.Reference, PartyID: in.PartyID, ProjectID: in.ProjectID}, nil
}

func (m *memoryAPI) CreatePart(ctx context.Context, in invoices.CreatePartInput) (invoices.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts = append(m.parts, in)
	return invoices.Part{ID: int64(len(m.parts)), Code: in.Code, InvoiceID: in.InvoiceID}, nil
}

func doc(ref, name, taxID string, codes ...string) extraction.Document {
	d := extraction.Document{
		Filename:  strings.ToLower(ref) + ".pdf",
		PartyName: name,
		TaxID:     taxID,
		Reference: ref,
		IssueDate: "2024-01-01",
		Gross:     extraction.NewAmount(decimal.NewFromInt(120)),
		Tax:       extraction.NewAmount(decimal.NewFromInt(20)),
		Currency:  "MAD",
	}
	for _, code := range codes {
		d.Lines = append(d.Lines, extraction.LineItem{
			Code:      code,
			Quantity:  extraction.NewAmount(decimal.NewFromInt(1)),
			UnitPrice: extraction.NewAmount(decimal.NewFromInt(10)),
		})
	}
	return d
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
		paths = append(paths, path)
	}
	return paths
}

func newCLI(t *testing.T, ex *stubExtractor, api *memoryAPI) *IntakeCLI {
	t.Helper()
	c, err := NewIntakeCLI(Config{Extractor: ex, Backend: api})
	require.NoError(t, err)
	return c
}

func TestRunCommandJSONSuccess(t *testing.T) {
	api := &memoryAPI{known: []parties.Party{{ID: 1, Kind: parties.KindSupplier, Name: "Acme Industrie", TaxID: "001122334"}}}
	ex := &stubExtractor{docs: []extraction.Document{
		doc("F-1", "ACME INDUSTRIE SARL", "001122334", "P-1", "P-2"),
		doc("F-2", "Globex Maroc", "998877665"),
	}}

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := newCLI(t, ex, api).RunCommand(context.Background(), RunOptions{
		Kind:       "suppliers",
		Files:      writeFiles(t, "f-1.pdf", "f-2.pdf"),
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitOK, exitCode, stderr.String())
	require.Equal(t, []string{"f-1.pdf", "f-2.pdf"}, ex.names)

	var out RunOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, intake.ModeSilent, out.Report.Mode)
	require.Equal(t, 2, out.Report.Totals.InvoicesCreated)
	require.Equal(t, 1, out.Report.Totals.PartiesCreated)
	require.Equal(t, 2, out.Report.Totals.PartsCreated)
	require.Equal(t, intake.MatchExactID, out.Report.Outcomes[0].Match)
	require.NotEmpty(t, out.Notices)

	require.Len(t, api.invoices, 2)
	require.Equal(t, invoices.DirectionExternal, api.invoices[0].Direction)
	require.Equal(t, int64(1), api.invoices[0].PartyID)
	require.Equal(t, int64(501), api.invoices[1].PartyID)
}

func TestRunCommandExtractionFailureCreatesNothing(t *testing.T) {
	api := &memoryAPI{}
	ex := &stubExtractor{err: errors.New("extraction: backend returned 502")}

	stderr := new(bytes.Buffer)
	exitCode := newCLI(t, ex, api).RunCommand(context.Background(), RunOptions{
		Kind:   "supplier",
		Files:  writeFiles(t, "a.pdf"),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, ExitFailure, exitCode)
	require.Contains(t, stderr.String(), "extraction failed")
	require.Empty(t, api.invoices)
	require.Zero(t, api.partiesMade)
}

func TestRunCommandRejectsBadArguments(t *testing.T) {
	c := newCLI(t, &stubExtractor{}, &memoryAPI{})

	stderr := new(bytes.Buffer)
	require.Equal(t, ExitFailure, c.RunCommand(context.Background(), RunOptions{Kind: "vendor", Files: []string{"x"}, Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid --kind")

	stderr.Reset()
	require.Equal(t, ExitFailure, c.RunCommand(context.Background(), RunOptions{Kind: "customer", Stderr: stderr}))
	require.Contains(t, stderr.String(), "at least one file")

	stderr.Reset()
	require.Equal(t, ExitFailure, c.RunCommand(context.Background(), RunOptions{Kind: "customer", Files: []string{filepath.Join(t.TempDir(), "missing.pdf")}, Stderr: stderr}))
	require.Contains(t, stderr.String(), "missing.pdf")
}

func TestRunCommandReportsFailuresWithIncompleteExitCode(t *testing.T) {
	api := &memoryAPI{failRef: "F-2"}
	ex := &stubExtractor{docs: []extraction.Document{
		doc("F-1", "Acme", "111"),
		doc("F-2", "Acme", "111"),
		doc("F-3", "Acme", "111"),
	}}

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := newCLI(t, ex, api).RunCommand(context.Background(), RunOptions{
		Kind:   "customer",
		Files:  writeFiles(t, "a.pdf"),
		Stdout: stdout,
		Stderr: stderr,
	})
	require.Equal(t, ExitIncomplete, exitCode)
	require.Len(t, api.invoices, 2)
	require.Equal(t, invoices.DirectionInternal, api.invoices[0].Direction)
	require.Contains(t, stdout.String(), "failed at create_invoice")
	require.Contains(t, stdout.String(), "3 documents: 2 created, 1 failed, 0 skipped")
	require.Contains(t, stderr.String(), "[error] failed to create invoice")
}

func TestRunCommandInteractiveReview(t *testing.T) {
	api := &memoryAPI{}
	ex := &stubExtractor{docs: []extraction.Document{
		doc("F-1", "Acme", "111", "P-1"),
		doc("F-2", "Acme", "111", "P-2", "P-3"),
	}}
	// skip F-1, edit and accept F-2, accept P-2, skip P-3
	stdin := strings.NewReader("n\ne\nreference=f-2b\ny\ny\nn\n")

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := newCLI(t, ex, api).RunCommand(context.Background(), RunOptions{
		Kind:        "supplier",
		Files:       writeFiles(t, "a.pdf"),
		Interactive: true,
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
	})
	require.Equal(t, ExitIncomplete, exitCode)
	require.Len(t, api.invoices, 1)
	require.Equal(t, "F-2B", api.invoices[0].Reference)
	require.Len(t, api.parts, 1)
	require.Equal(t, "P-2", api.parts[0].Code)
	require.Equal(t, int64(1), api.parts[0].InvoiceID)
	require.Contains(t, stderr.String(), "invoice 2/2")
	require.Contains(t, stdout.String(), "1 skipped")
}

func TestRunCommandSkippedPartIsIncomplete(t *testing.T) {
	api := &memoryAPI{}
	ex := &stubExtractor{docs: []extraction.Document{doc("F-1", "Acme", "111", "P-1", "P-2")}}
	// accept F-1, accept P-1, skip P-2
	stdin := strings.NewReader("y\ny\nn\n")

	stdout := new(bytes.Buffer)
	exitCode := newCLI(t, ex, api).RunCommand(context.Background(), RunOptions{
		Kind:        "supplier",
		Files:       writeFiles(t, "a.pdf"),
		Interactive: true,
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      new(bytes.Buffer),
	})
	require.Equal(t, ExitIncomplete, exitCode)
	require.Len(t, api.invoices, 1)
	require.Len(t, api.parts, 1)
	require.Equal(t, "P-1", api.parts[0].Code)
}

func TestRunCommandStopsOnCancel(t *testing.T) {
	api := &memoryAPI{}
	ex := &stubExtractor{docs: []extraction.Document{doc("F-1", "Acme", "111")}}
	c, err := NewIntakeCLI(Config{Extractor: ex, Backend: api, AutoClose: time.Hour})
	require.NoError(t, err)

	files := writeFiles(t, "a.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		done <- c.RunCommand(ctx, RunOptions{Kind: "supplier", Files: files, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		require.Equal(t, ExitOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("auto close did not honour cancellation")
	}
}
