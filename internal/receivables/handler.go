package receivables

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/supersede"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/shared"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

const (
	// SessionHeader identifies a client view whose older requests may be
	// cancelled by newer ones.
	SessionHeader = "X-View-Session"
	// IdempotencyHeader deduplicates create requests.
	IdempotencyHeader = "Idempotency-Key"
)

// ViewService is the read side used by the handler.
type ViewService interface {
	View(ctx context.Context, req ViewRequest) (View, error)
}

// Mutator is the write side used by the handler.
type Mutator interface {
	CreatePayment(ctx context.Context, ledger Ledger, in PaymentInput, meta MutationMeta) (records.Payment, error)
	UpdatePayment(ctx context.Context, ledger Ledger, id string, in PaymentInput, meta MutationMeta) (records.Payment, error)
	DeletePayment(ctx context.Context, ledger Ledger, id string, meta MutationMeta) error
	CreateCharge(ctx context.Context, ledger Ledger, in ChargeInput, meta MutationMeta) (records.ManualCharge, error)
	UpdateCharge(ctx context.Context, ledger Ledger, id string, in ChargeInput, meta MutationMeta) (records.ManualCharge, error)
	DeleteCharge(ctx context.Context, ledger Ledger, id string, meta MutationMeta) error
}

// Handler serves the receivables API.
type Handler struct {
	logger    *slog.Logger
	views     ViewService
	mutations Mutator
	registry  *stores.Registry
	sessions  *supersede.Group
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the receivables HTTP handler.
func NewHandler(logger *slog.Logger, views ViewService, mutations Mutator, registry *stores.Registry, sessions *supersede.Group) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		sessions = supersede.NewGroup()
	}
	h := &Handler{
		logger:    logger,
		views:     views,
		mutations: mutations,
		registry:  registry,
		sessions:  sessions,
		now:       time.Now,
	}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// MountRoutes registers receivables endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)

	r.Route("/receivables/{ledger}", func(r chi.Router) {
		r.Get("/", h.handleView)
		r.With(limiter).Get("/export.csv", h.handleCSV)
		r.Post("/payments", h.handleCreatePayment)
		r.Put("/payments/{id}", h.handleUpdatePayment)
		r.Delete("/payments/{id}", h.handleDeletePayment)
		r.Post("/charges", h.handleCreateCharge)
		r.Put("/charges/{id}", h.handleUpdateCharge)
		r.Delete("/charges/{id}", h.handleDeleteCharge)
	})
	r.Get("/tempo/due-month", h.handleDueMonth)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor != shared.SystemActor {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadView(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadView(w, r)
	if !ok {
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := WriteCSV(buf, view); err != nil {
		h.logger.Error("write receivables csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	filename := fmt.Sprintf("receivables-%s-%s.csv", view.Ledger, h.now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("stream receivables csv", slog.Any("error", err))
	}
}

func (h *Handler) loadView(w http.ResponseWriter, r *http.Request) (View, bool) {
	req, err := h.parseViewRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return View{}, false
	}

	ctx, release := h.sessions.Begin(r.Context(), strings.TrimSpace(r.Header.Get(SessionHeader)))
	defer release()

	view, err := h.views.View(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) && r.Context().Err() == nil:
			httpx.Problem(w, http.StatusConflict, "Superseded", "a newer request for this view session replaced this one")
		case r.Context().Err() != nil:
			// client went away
		default:
			httpx.RespondError(w, err)
		}
		return View{}, false
	}
	return view, true
}

func (h *Handler) parseViewRequest(r *http.Request) (ViewRequest, error) {
	ledger, err := h.ledger(r)
	if err != nil {
		return ViewRequest{}, err
	}
	q := r.URL.Query()
	scope, err := h.registry.Resolve(q["store"])
	if err != nil {
		return ViewRequest{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		return ViewRequest{}, err
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		return ViewRequest{}, err
	}
	return ViewRequest{
		Ledger: ledger,
		Stores: scope,
		From:   from,
		To:     to,
		Criteria: Criteria{
			Search: q.Get("q"),
			Tempo:  Selection(q["tempo"]),
			Stores: Selection(q["stores"]),
		},
	}, nil
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	ledger, in, ok := decodeBody[PaymentInput](h, w, r)
	if !ok {
		return
	}
	p, err := h.mutations.CreatePayment(r.Context(), ledger, in, metaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	ledger, in, ok := decodeBody[PaymentInput](h, w, r)
	if !ok {
		return
	}
	p, err := h.mutations.UpdatePayment(r.Context(), ledger, chi.URLParam(r, "id"), in, metaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.ledger(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.mutations.DeletePayment(r.Context(), ledger, chi.URLParam(r, "id"), metaFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateCharge(w http.ResponseWriter, r *http.Request) {
	ledger, in, ok := decodeBody[ChargeInput](h, w, r)
	if !ok {
		return
	}
	c, err := h.mutations.CreateCharge(r.Context(), ledger, in, metaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) handleUpdateCharge(w http.ResponseWriter, r *http.Request) {
	ledger, in, ok := decodeBody[ChargeInput](h, w, r)
	if !ok {
		return
	}
	c, err := h.mutations.UpdateCharge(r.Context(), ledger, chi.URLParam(r, "id"), in, metaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteCharge(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.ledger(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.mutations.DeleteCharge(r.Context(), ledger, chi.URLParam(r, "id"), metaFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dueMonthResponse struct {
	Date       string `json:"date"`
	Tempo      string `json:"tempo"`
	Months     int    `json:"months"`
	DueMonth   string `json:"due_month"`
	Receivable bool   `json:"receivable"`
}

func (h *Handler) handleDueMonth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDateParam(q.Get("date"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if date.IsZero() {
		httpx.RespondError(w, fmt.Errorf("%w: date is required", httpx.ErrValidation))
		return
	}
	term := q.Get("tempo")
	months, ok := tempo.LeadingMonths(term)
	if !ok {
		months = 1
	}
	httpx.JSON(w, http.StatusOK, dueMonthResponse{
		Date:       date.Format(dateLayout),
		Tempo:      tempo.Normalize(term),
		Months:     months,
		DueMonth:   tempo.CalculateDueMonth(date, term),
		Receivable: tempo.IsReceivable(term),
	})
}

func (h *Handler) ledger(r *http.Request) (Ledger, error) {
	ledger, err := LookupLedger(chi.URLParam(r, "ledger"))
	if err != nil {
		return Ledger{}, fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	}
	return ledger, nil
}

func decodeBody[T any](h *Handler, w http.ResponseWriter, r *http.Request) (Ledger, T, bool) {
	var in T
	ledger, err := h.ledger(r)
	if err != nil {
		httpx.RespondError(w, err)
		return Ledger{}, in, false
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return Ledger{}, in, false
	}
	return ledger, in, true
}

func metaFrom(r *http.Request) MutationMeta {
	return MutationMeta{
		Actor:          shared.ActorFromContext(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
}

func parseDateParam(raw string) (time.Time, error) {
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
