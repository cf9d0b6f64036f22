package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/autoparts-erp/autoparts-erp/internal/closing"
	"github.com/autoparts-erp/autoparts-erp/internal/observability"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/receivables"
	"github.com/autoparts-erp/autoparts-erp/internal/stock"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
	"github.com/autoparts-erp/autoparts-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Registry *stores.Registry

	ReceivablesHandler *receivables.Handler
	ClosingHandler     *closing.Handler
	StockHandler       *stock.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

type storeView struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Registry != nil {
		r.Get("/stores", func(w http.ResponseWriter, r *http.Request) {
			all := params.Registry.All()
			out := make([]storeView, 0, len(all))
			for _, s := range all {
				out = append(out, storeView{Code: s.Code, Name: s.Name, Timezone: s.Loc().String()})
			}
			httpx.JSON(w, http.StatusOK, out)
		})
	}

	if params.ReceivablesHandler != nil {
		params.ReceivablesHandler.MountRoutes(r)
	}
	if params.ClosingHandler != nil {
		params.ClosingHandler.MountRoutes(r)
	}
	if params.StockHandler != nil {
		params.StockHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
