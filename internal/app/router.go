package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	intakehttp "github.com/ledgerdesk/ledgerdesk/internal/intake/http"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
	"github.com/ledgerdesk/ledgerdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Auth            *shared.TokenAuthenticator
	PartiesHandler  *parties.Handler
	InvoicesHandler *invoices.Handler
	IntakeHandler   *intakehttp.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with ledgerdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.Auth.Middleware)
		if params.PartiesHandler != nil {
			r.Route("/suppliers", params.PartiesHandler.MountRoutes(parties.KindSupplier))
			r.Route("/customers", params.PartiesHandler.MountRoutes(parties.KindCustomer))
		}
		if params.InvoicesHandler != nil {
			r.Route("/invoices", params.InvoicesHandler.MountRoutes)
			r.Route("/parts", params.InvoicesHandler.MountPartRoutes)
		}
		if params.IntakeHandler != nil {
			r.Route("/intake", params.IntakeHandler.MountRoutes)
		}
	})

	return r
}
