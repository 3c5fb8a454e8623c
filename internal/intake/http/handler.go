package intakehttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
)

const (
	defaultMaxUploadBytes = 32 << 20
	// parts beyond this stay on disk while the form is parsed
	multipartMemory = 8 << 20
	filesField      = "files"
)

type intakeService interface {
	Submit(ctx context.Context, kind parties.Kind, files []extraction.File) (intake.BatchRecord, error)
	Batch(ctx context.Context, id string) (intake.BatchRecord, error)
}

// Handler accepts invoice uploads and reports on their batches.
type Handler struct {
	logger      *slog.Logger
	service     intakeService
	maxBytes    int64
	uploadLimit int
}

// NewHandler builds a Handler. uploadsPerMinute limits uploads per client IP;
// zero disables the limit.
func NewHandler(logger *slog.Logger, service intakeService, maxBytes int64, uploadsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &Handler{logger: logger, service: service, maxBytes: maxBytes, uploadLimit: uploadsPerMinute}
}

// MountRoutes registers the intake endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.uploadLimit > 0 {
			r.Use(httprate.Limit(h.uploadLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/{kind}/uploads", h.upload)
	})
	r.Get("/batches/{id}", h.batch)
}

type documentSummary struct {
	Index     int               `json:"index"`
	Label     string            `json:"label"`
	Filename  string            `json:"filename,omitempty"`
	PartyName string            `json:"party_name"`
	TaxID     string            `json:"tax_id"`
	Reference string            `json:"reference"`
	IssueDate string            `json:"issue_date"`
	Gross     extraction.Amount `json:"gross"`
	Currency  string            `json:"currency"`
	LineCount int               `json:"line_count"`
	Thumbnail string            `json:"thumbnail,omitempty"`
}

type batchResponse struct {
	BatchID   string             `json:"batch_id"`
	Kind      parties.Kind       `json:"kind"`
	Status    intake.BatchStatus `json:"status"`
	Documents []documentSummary  `json:"documents"`
	Report    *intake.Report     `json:"report,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func newBatchResponse(rec intake.BatchRecord) batchResponse {
	docs := make([]documentSummary, len(rec.Documents))
	for i, d := range rec.Documents {
		docs[i] = documentSummary{
			Index:     i,
			Label:     d.Label(),
			Filename:  d.Filename,
			PartyName: d.PartyName,
			TaxID:     d.TaxID,
			Reference: d.Reference,
			IssueDate: d.IssueDate,
			Gross:     d.Gross,
			Currency:  d.Currency,
			LineCount: len(d.Lines),
			Thumbnail: d.Thumbnail,
		}
	}
	return batchResponse{
		BatchID:   rec.ID,
		Kind:      rec.Kind,
		Status:    rec.Status,
		Documents: docs,
		Report:    rec.Report,
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	kind, ok := parties.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown intake kind")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, fmt.Errorf("%w: limit is %d bytes", httpx.ErrTooLarge, tooLarge.Limit))
			return
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[filesField]
	if len(headers) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at least one file is required in field \"files\"")
		return
	}
	files, closeAll, err := openFiles(headers)
	defer closeAll()
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	rec, err := h.service.Submit(r.Context(), kind, files)
	if err != nil {
		h.logger.Error("intake upload failed",
			slog.String("kind", string(kind)),
			slog.String("client", shared.APIClientFromContext(r.Context())),
			slog.Int("files", len(files)),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("intake batch accepted",
		slog.String("batch_id", rec.ID),
		slog.String("kind", string(kind)),
		slog.Int("documents", len(rec.Documents)),
		slog.String("client", shared.APIClientFromContext(r.Context())),
	)
	w.Header().Set("Location", "/api/v1/intake/batches/"+rec.ID)
	httpx.JSON(w, http.StatusAccepted, newBatchResponse(rec))
}

func openFiles(headers []*multipart.FileHeader) ([]extraction.File, func(), error) {
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]extraction.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, extraction.File{Name: fh.Filename, Content: f})
	}
	return files, closeAll, nil
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Batch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBatchResponse(rec))
}
