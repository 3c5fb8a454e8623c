package intake

import (
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// Stage names the step of the pipeline a notice or failure belongs to.
type Stage string

const (
	StageResolve       Stage = "resolve"
	StageBuild         Stage = "build"
	StageReview        Stage = "review"
	StageCreateInvoice Stage = "create_invoice"
	StageCreatePart    Stage = "create_part"
)

// Status is the final state of a document or part.
type Status string

const (
	StatusCreated Status = "created"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Mode is how a batch was driven.
type Mode string

const (
	ModeSilent      Mode = "silent"
	ModeInteractive Mode = "interactive"
)

// PartOutcome records what happened to one extracted line.
type PartOutcome struct {
	Index  int    `json:"index"`
	Code   string `json:"code"`
	Status Status `json:"status"`
	PartID int64  `json:"part_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Outcome records what happened to one document.
type Outcome struct {
	Index        int           `json:"index"`
	Label        string        `json:"label"`
	Status       Status        `json:"status"`
	FailedStage  Stage         `json:"failed_stage,omitempty"`
	PartyID      int64         `json:"party_id,omitempty"`
	PartyName    string        `json:"party_name,omitempty"`
	Match        MatchKind     `json:"match"`
	MatchScore   float64       `json:"match_score"`
	PartyCreated bool          `json:"party_created"`
	InvoiceID    int64         `json:"invoice_id,omitempty"`
	Parts        []PartOutcome `json:"parts,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Totals aggregates a report.
type Totals struct {
	Documents       int `json:"documents"`
	InvoicesCreated int `json:"invoices_created"`
	InvoicesFailed  int `json:"invoices_failed"`
	Skipped         int `json:"skipped"`
	PartiesCreated  int `json:"parties_created"`
	PartsCreated    int `json:"parts_created"`
	PartsFailed     int `json:"parts_failed"`
	PartsSkipped    int `json:"parts_skipped"`
}

// Report is the result of driving one batch.
type Report struct {
	BatchID    string       `json:"batch_id"`
	Kind       parties.Kind `json:"kind"`
	Mode       Mode         `json:"mode"`
	Outcomes   []Outcome    `json:"outcomes"`
	Totals     Totals       `json:"totals"`
	Aborted    bool         `json:"aborted"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

func (r *Report) tally() {
	t := Totals{Documents: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusCreated:
			t.InvoicesCreated++
		case StatusFailed:
			t.InvoicesFailed++
		case StatusSkipped:
			t.Skipped++
		}
		if o.PartyCreated {
			t.PartiesCreated++
		}
		for _, p := range o.Parts {
			switch p.Status {
			case StatusCreated:
				t.PartsCreated++
			case StatusFailed:
				t.PartsFailed++
			case StatusSkipped:
				t.PartsSkipped++
			}
		}
	}
	r.Totals = t
}
