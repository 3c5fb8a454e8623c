package invoices

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
)

// Handler exposes invoices and parts over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create(""))
	r.Post("/external", h.create(DirectionExternal))
	r.Post("/internal", h.create(DirectionInternal))
	r.Get("/{id}", h.show)
	r.Get("/{id}/parts", h.listParts)
}

// MountPartRoutes attaches part routes.
func (h *Handler) MountPartRoutes(r chi.Router) {
	r.Post("/", h.createPart)
}

type invoiceList struct {
	Data []Invoice `json:"data"`
}

type partList struct {
	Data []Part `json:"data"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	filters := ListFilters{Direction: Direction(q.Get("direction")), Limit: page.Limit, Offset: page.Offset}
	if raw := q.Get("party_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid party_id")
			return
		}
		filters.PartyID = id
	}
	list, err := h.service.ListInvoices(r.Context(), filters)
	if err != nil {
		h.logger.Error("list invoices failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoiceList{Data: list})
}

func (h *Handler) create(direction Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateInvoiceInput
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if direction != "" {
			if input.Direction != "" && input.Direction != direction {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "direction does not match route")
				return
			}
			input.Direction = direction
		}
		inv, err := h.service.CreateInvoice(r.Context(), input)
		if err != nil {
			h.logger.Warn("create invoice failed", slog.String("reference", input.Reference), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, inv)
	}
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listParts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	parts, err := h.service.ListParts(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if parts == nil {
		parts = []Part{}
	}
	httpx.JSON(w, http.StatusOK, partList{Data: parts})
}

func (h *Handler) createPart(w http.ResponseWriter, r *http.Request) {
	var input CreatePartInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	part, err := h.service.CreatePart(r.Context(), input)
	if err != nil {
		h.logger.Warn("create part failed", slog.Int64("invoice_id", input.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, part)
}
