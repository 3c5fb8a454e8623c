package parties

import (
	"log/slog"
	"net/http"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
)

// Handler exposes parties over JSON.
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

type listResponse struct {
	Data []Party `json:"data"`
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := ListFilters{Kind: kind, Search: q.Get("search")}
		if q.Has("limit") || q.Has("offset") {
			page := shared.PageFromQuery(q)
			filters.Limit, filters.Offset = page.Limit, page.Offset
		}
		list, err := h.service.List(r.Context(), filters)
		if err != nil {
			h.logger.Error("list parties failed", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if list == nil {
			list = []Party{}
		}
		httpx.JSON(w, http.StatusOK, listResponse{Data: list})
	}
}

func (h *Handler) show(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.Get(r.Context(), id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if party.Kind != kind {
			httpx.Problem(w, http.StatusNotFound, "Not Found", string(kind)+" not found")
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePartyRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if req.Kind == "" {
			req.Kind = kind
		}
		if req.Kind != kind {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind does not match route")
			return
		}
		party, err := h.service.Create(r.Context(), req)
		if err != nil {
			h.logger.Warn("create party failed", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, party)
	}
}
