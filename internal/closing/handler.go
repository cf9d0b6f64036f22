package closing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/autoparts-erp/autoparts-erp/internal/pivot"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

// Reporter is the service contract used by the handler.
type Reporter interface {
	Report(ctx context.Context, req Request) (Report, error)
}

// Handler serves the closing report.
type Handler struct {
	logger   *slog.Logger
	service  Reporter
	registry *stores.Registry
}

// NewHandler constructs the closing handler.
func NewHandler(logger *slog.Logger, service Reporter, registry *stores.Registry) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, registry: registry}
}

// MountRoutes registers closing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/closing", h.handleReport)
}

// NodeView is a pivot node annotated with its expand state. Items are only
// listed for expanded leaves.
type NodeView struct {
	Key           string                      `json:"key"`
	Dimension     string                      `json:"dimension"`
	Label         string                      `json:"label"`
	Depth         int                         `json:"depth"`
	TotalQuantity float64                     `json:"total_quantity"`
	TotalAmount   decimal.Decimal             `json:"total_amount"`
	Expanded      bool                        `json:"expanded"`
	Children      []NodeView                  `json:"children,omitempty"`
	Items         []records.TransactionRecord `json:"items,omitempty"`
}

// SideView is one side of the report with annotated nodes.
type SideView struct {
	Direction     records.Direction `json:"direction"`
	Levels        []string          `json:"levels"`
	Rows          int               `json:"rows"`
	TotalQuantity float64           `json:"total_quantity"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Mismatches    int               `json:"line_total_mismatches"`
	Nodes         []NodeView        `json:"nodes"`
}

// ReportView is the JSON response of GET /closing.
type ReportView struct {
	Store       string          `json:"store"`
	StoreName   string          `json:"store_name"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Incoming    SideView        `json:"incoming"`
	Outgoing    SideView        `json:"outgoing"`
	Net         decimal.Decimal `json:"net"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	store, err := h.store(q.Get("store"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := parseDate(q.Get("from"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	report, err := h.service.Report(r.Context(), Request{Store: store, From: from, To: to})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	state := pivot.NewExpandState()
	expandAll := false
	for _, key := range q["expand"] {
		if strings.EqualFold(key, "all") {
			expandAll = true
			continue
		}
		state.Expand(key)
	}
	if expandAll {
		pivot.ExpandAll(state, report.Incoming.Tree)
		pivot.ExpandAll(state, report.Outgoing.Tree)
	}

	httpx.JSON(w, http.StatusOK, ReportView{
		Store:       report.Store,
		StoreName:   report.StoreName,
		From:        report.From,
		To:          report.To,
		Incoming:    sideView(report.Incoming, state, expandAll),
		Outgoing:    sideView(report.Outgoing, state, expandAll),
		Net:         report.Net,
		GeneratedAt: report.GeneratedAt,
	})
}

func sideView(side Side, state *pivot.ExpandState, showItems bool) SideView {
	return SideView{
		Direction:     side.Direction,
		Levels:        side.Levels,
		Rows:          side.Rows,
		TotalQuantity: side.TotalQuantity,
		TotalAmount:   side.TotalAmount,
		Mismatches:    side.Mismatches,
		Nodes:         nodeViews(side.Tree, state, showItems),
	}
}

func nodeViews(nodes Tree, state *pivot.ExpandState, showItems bool) []NodeView {
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		v := NodeView{
			Key:           n.Key,
			Dimension:     n.Dimension,
			Label:         n.Label,
			Depth:         n.Depth,
			TotalQuantity: n.TotalQuantity,
			TotalAmount:   n.TotalAmount,
			Expanded:      state.IsExpanded(n.Key),
		}
		if v.Expanded || showItems {
			if n.IsLeaf() {
				v.Items = n.Items
			} else {
				v.Children = nodeViews(n.Children, state, showItems)
			}
		}
		out = append(out, v)
	}
	return out
}

// store resolves the requested store; the first registered store is the
// default.
func (h *Handler) store(code string) (stores.StoreContext, error) {
	if strings.TrimSpace(code) == "" {
		if all := h.registry.All(); len(all) > 0 {
			return all[0], nil
		}
	}
	store, err := h.registry.Lookup(code)
	if err != nil {
		return stores.StoreContext{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return store, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", httpx.ErrValidation, raw)
	}
	return t, nil
}
