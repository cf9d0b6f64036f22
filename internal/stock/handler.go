package stock

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/shared"
)

// Editor is the service contract used by the handler.
type Editor interface {
	EditTransaction(ctx context.Context, in EditInput, actor string) (Edit, error)
}

// Handler serves movement edits.
type Handler struct {
	logger *slog.Logger
	editor Editor
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, editor Editor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, editor: editor}
}

// MountRoutes registers stock endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Patch("/stock/{store}/{direction}/{id}", h.handleEdit)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	var in EditInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.Store = chi.URLParam(r, "store")
	in.Direction = chi.URLParam(r, "direction")
	in.ID = chi.URLParam(r, "id")

	edit, err := h.editor.EditTransaction(r.Context(), in, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement edited",
		slog.String("store", in.Store),
		slog.String("direction", in.Direction),
		slog.String("id", in.ID),
		slog.Float64("stock_delta", edit.StockDelta))
	httpx.JSON(w, http.StatusOK, edit)
}
