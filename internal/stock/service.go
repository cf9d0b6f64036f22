// Package stock edits stock movement rows and keeps the per-part stock level
// of the store in step with the edited quantity.
package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/shared"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

// ErrNegativeStock is returned when an edit would drive a stock level below zero.
var ErrNegativeStock = errors.New("stock: level would become negative")

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached views that read movement rows.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// EditInput is the editable part of a movement row. Blank Tempo or
// Counterparty keep the stored value.
type EditInput struct {
	Store        string          `json:"-" validate:"required"`
	Direction    string          `json:"-" validate:"required"`
	ID           string          `json:"-" validate:"required,max=64"`
	Quantity     float64         `json:"quantity" validate:"gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Tempo        string          `json:"tempo" validate:"max=40"`
	Counterparty string          `json:"counterparty" validate:"max=120"`
}

// Edit is the outcome of an applied edit.
type Edit struct {
	Before     records.TransactionRecord `json:"before"`
	After      records.TransactionRecord `json:"after"`
	StockDelta float64                   `json:"stock_delta"`
	StockLevel *float64                  `json:"stock_level,omitempty"`
}

// Options tune the service.
type Options struct {
	AllowNegative bool
	Logger        *slog.Logger
}

// Service applies movement edits.
type Service struct {
	tx            recordstore.Transactor
	registry      *stores.Registry
	audit         AuditRecorder
	cache         Invalidator
	validate      *validator.Validate
	allowNegative bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the transactor. audit and cache are optional.
func NewService(tx recordstore.Transactor, registry *stores.Registry, audit AuditRecorder, cache Invalidator, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:            tx,
		registry:      registry,
		audit:         audit,
		cache:         cache,
		validate:      validator.New(),
		allowNegative: opts.AllowNegative,
		logger:        logger,
		now:           time.Now,
	}
}

// EditTransaction rewrites quantity, unit price and optionally tempo and
// counterparty of one movement row, recomputes its line total and shifts the
// stock level of its part by the quantity difference. Everything happens in
// one transaction.
func (s *Service) EditTransaction(ctx context.Context, in EditInput, actor string) (Edit, error) {
	store, dir, err := s.check(in)
	if err != nil {
		return Edit{}, err
	}
	table := store.OutgoingTable()
	if dir == records.Incoming {
		table = store.IncomingTable()
	}

	var edit Edit
	err = s.tx.WithTx(ctx, func(ex recordstore.Executor) error {
		row, err := ex.Get(ctx, table, in.ID)
		if err != nil {
			return err
		}
		before := records.DecodeTransaction(row, store.Code, dir, store.Loc())

		patch := records.Row{
			records.ColQuantity:  in.Quantity,
			records.ColUnitPrice: in.UnitPrice,
			records.ColLineTotal: decimal.NewFromFloat(in.Quantity).Mul(in.UnitPrice),
		}
		if term := strings.TrimSpace(in.Tempo); term != "" {
			patch[records.ColTempo] = term
		}
		if party := strings.TrimSpace(in.Counterparty); party != "" {
			patch[partyColumn(dir)] = party
		}
		if err := ex.Update(ctx, table, in.ID, patch); err != nil {
			return err
		}

		merged := make(records.Row, len(row)+len(patch))
		for k, v := range row {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		edit = Edit{
			Before: before,
			After:  records.DecodeTransaction(merged, store.Code, dir, store.Loc()),
		}

		edit.StockDelta = in.Quantity - before.Quantity
		if dir == records.Outgoing {
			edit.StockDelta = -edit.StockDelta
		}
		if edit.StockDelta == 0 || before.PartNumber == "" {
			return nil
		}
		level, err := s.adjust(ctx, ex, store, before.PartNumber, edit.StockDelta)
		if err != nil {
			return err
		}
		edit.StockLevel = &level
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNegativeStock):
			return Edit{}, fmt.Errorf("%w: %w", httpx.ErrConflict, err)
		case errors.Is(err, recordstore.ErrNotFound):
			return Edit{}, fmt.Errorf("%w: %s %s", httpx.ErrNotFound, table, in.ID)
		}
		s.logger.Error("stock edit failed", slog.String("table", table), slog.String("id", in.ID), slog.Any("error", err))
		return Edit{}, fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}

	s.after(ctx, actor, table, in.ID, edit)
	return edit, nil
}

// adjust shifts the stock level of part by delta, creating the stock row
// when the part has none yet.
func (s *Service) adjust(ctx context.Context, ex recordstore.Executor, store stores.StoreContext, part string, delta float64) (float64, error) {
	key := recordstore.Equals{Column: records.ColPartNumber, Value: part}
	level, err := ex.Increment(ctx, store.StockTable(), key, records.ColStock, delta)
	if errors.Is(err, recordstore.ErrNotFound) {
		level = delta
		if level < 0 && !s.allowNegative {
			return 0, fmt.Errorf("%w: part %s at %s", ErrNegativeStock, part, store.Code)
		}
		_, err = ex.Insert(ctx, store.StockTable(), records.Row{
			records.ColPartNumber: part,
			records.ColStock:      level,
		})
		return level, err
	}
	if err != nil {
		return 0, err
	}
	if level < 0 && !s.allowNegative {
		return 0, fmt.Errorf("%w: part %s at %s", ErrNegativeStock, part, store.Code)
	}
	return level, nil
}

func (s *Service) check(in EditInput) (stores.StoreContext, records.Direction, error) {
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return stores.StoreContext{}, "", fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(msgs, "; "))
		}
		return stores.StoreContext{}, "", fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if in.UnitPrice.IsNegative() {
		return stores.StoreContext{}, "", fmt.Errorf("%w: unit_price must not be negative", httpx.ErrValidation)
	}
	dir, err := records.ParseDirection(in.Direction)
	if err != nil {
		return stores.StoreContext{}, "", fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	store, err := s.registry.Lookup(in.Store)
	if err != nil {
		return stores.StoreContext{}, "", fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return store, dir, nil
}

func (s *Service) after(ctx context.Context, actor, table, id string, edit Edit) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "update",
			Entity:   table,
			EntityID: id,
			Meta: map[string]any{
				"quantity_before": edit.Before.Quantity,
				"quantity_after":  edit.After.Quantity,
				"line_total":      edit.After.LineTotal.String(),
				"stock_delta":     edit.StockDelta,
			},
			At: s.now(),
		})
		if err != nil {
			s.logger.Warn("audit log failed", slog.String("entity", table), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("receivables cache bump failed", slog.Any("error", err))
		}
	}
}

func partyColumn(dir records.Direction) string {
	if dir == records.Incoming {
		return records.ColSupplier
	}
	return records.ColCustomer
}
