package receivables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/shared"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard claims and releases request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// PaymentInput is the user-submitted payment form.
type PaymentInput struct {
	Party     string          `json:"party" validate:"required,max=120"`
	Tempo     string          `json:"tempo" validate:"required,max=40"`
	PaidOn    string          `json:"paid_on" validate:"required,datetime=2006-01-02"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note" validate:"max=500"`
	Store     string          `json:"store" validate:"required"`
	ForMonths []string        `json:"for_months" validate:"omitempty,dive,datetime=2006-01"`
}

// ChargeInput is the user-submitted manual charge form.
type ChargeInput struct {
	Party  string          `json:"party" validate:"required,max=120"`
	Tempo  string          `json:"tempo" validate:"required,max=40"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
	Store  string          `json:"store" validate:"required"`
}

// MutationMeta carries caller context of a mutation.
type MutationMeta struct {
	Actor          string
	IdempotencyKey string
}

// MutationService validates and applies payment and charge changes.
type MutationService struct {
	sink     recordstore.Sink
	registry *stores.Registry
	cache    *Cache
	audit    AuditRecorder
	idem     IdempotencyGuard
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewMutationService wires the sink. audit and idem are optional.
func NewMutationService(sink recordstore.Sink, registry *stores.Registry, cache *Cache, audit AuditRecorder, idem IdempotencyGuard, logger *slog.Logger) *MutationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MutationService{
		sink:     sink,
		registry: registry,
		cache:    cache,
		audit:    audit,
		idem:     idem,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePayment records a new payment.
func (s *MutationService) CreatePayment(ctx context.Context, ledger Ledger, in PaymentInput, meta MutationMeta) (records.Payment, error) {
	p, err := s.paymentFromInput(ledger, in)
	if err != nil {
		return records.Payment{}, err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()

	row := p.Row(ledger.PartyColumn)
	row[records.ColCreatedAt] = p.CreatedAt
	err = s.apply(ctx, meta, ledger.Slug+".payment.create", func(ctx context.Context) error {
		_, err := s.sink.Insert(ctx, ledger.PaymentTable, row)
		return err
	})
	if err != nil {
		return records.Payment{}, err
	}
	s.after(ctx, meta, "create", ledger.PaymentTable, p.ID, map[string]any{"party": p.Party, "tempo": p.Tempo, "amount": p.Amount.String()})
	return p, nil
}

// UpdatePayment replaces the editable fields of a payment.
func (s *MutationService) UpdatePayment(ctx context.Context, ledger Ledger, id string, in PaymentInput, meta MutationMeta) (records.Payment, error) {
	if strings.TrimSpace(id) == "" {
		return records.Payment{}, fmt.Errorf("%w: id is required", httpx.ErrValidation)
	}
	p, err := s.paymentFromInput(ledger, in)
	if err != nil {
		return records.Payment{}, err
	}
	p.ID = id

	patch := p.Row(ledger.PartyColumn)
	delete(patch, records.ColID)
	if ledger.MonthsOnPayments && len(p.ForMonths) == 0 {
		patch[records.ColForMonths] = nil
	}
	err = s.apply(ctx, meta, "", func(ctx context.Context) error {
		return s.sink.Update(ctx, ledger.PaymentTable, id, patch)
	})
	if err != nil {
		return records.Payment{}, err
	}
	s.after(ctx, meta, "update", ledger.PaymentTable, id, map[string]any{"amount": p.Amount.String()})
	return p, nil
}

// DeletePayment removes a payment.
func (s *MutationService) DeletePayment(ctx context.Context, ledger Ledger, id string, meta MutationMeta) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", httpx.ErrValidation)
	}
	err := s.apply(ctx, meta, "", func(ctx context.Context) error {
		return s.sink.Delete(ctx, ledger.PaymentTable, id)
	})
	if err != nil {
		return err
	}
	s.after(ctx, meta, "delete", ledger.PaymentTable, id, nil)
	return nil
}

// CreateCharge records a new manual charge.
func (s *MutationService) CreateCharge(ctx context.Context, ledger Ledger, in ChargeInput, meta MutationMeta) (records.ManualCharge, error) {
	c, err := s.chargeFromInput(in)
	if err != nil {
		return records.ManualCharge{}, err
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.now()

	row := c.Row(ledger.PartyColumn)
	row[records.ColCreatedAt] = c.CreatedAt
	err = s.apply(ctx, meta, ledger.Slug+".charge.create", func(ctx context.Context) error {
		_, err := s.sink.Insert(ctx, ledger.ChargeTable, row)
		return err
	})
	if err != nil {
		return records.ManualCharge{}, err
	}
	s.after(ctx, meta, "create", ledger.ChargeTable, c.ID, map[string]any{"party": c.Party, "tempo": c.Tempo, "amount": c.Amount.String()})
	return c, nil
}

// UpdateCharge replaces the editable fields of a manual charge.
func (s *MutationService) UpdateCharge(ctx context.Context, ledger Ledger, id string, in ChargeInput, meta MutationMeta) (records.ManualCharge, error) {
	if strings.TrimSpace(id) == "" {
		return records.ManualCharge{}, fmt.Errorf("%w: id is required", httpx.ErrValidation)
	}
	c, err := s.chargeFromInput(in)
	if err != nil {
		return records.ManualCharge{}, err
	}
	c.ID = id

	patch := c.Row(ledger.PartyColumn)
	delete(patch, records.ColID)
	err = s.apply(ctx, meta, "", func(ctx context.Context) error {
		return s.sink.Update(ctx, ledger.ChargeTable, id, patch)
	})
	if err != nil {
		return records.ManualCharge{}, err
	}
	s.after(ctx, meta, "update", ledger.ChargeTable, id, map[string]any{"amount": c.Amount.String()})
	return c, nil
}

// DeleteCharge removes a manual charge.
func (s *MutationService) DeleteCharge(ctx context.Context, ledger Ledger, id string, meta MutationMeta) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", httpx.ErrValidation)
	}
	err := s.apply(ctx, meta, "", func(ctx context.Context) error {
		return s.sink.Delete(ctx, ledger.ChargeTable, id)
	})
	if err != nil {
		return err
	}
	s.after(ctx, meta, "delete", ledger.ChargeTable, id, nil)
	return nil
}

func (s *MutationService) paymentFromInput(ledger Ledger, in PaymentInput) (records.Payment, error) {
	if err := s.check(in, in.Party, in.Tempo, in.Amount); err != nil {
		return records.Payment{}, err
	}
	if len(in.ForMonths) > 0 && !ledger.MonthsOnPayments {
		return records.Payment{}, fmt.Errorf("%w: for_months is not supported on %s payments", httpx.ErrValidation, ledger.Slug)
	}
	store, err := s.store(in.Store)
	if err != nil {
		return records.Payment{}, err
	}
	paidOn, err := time.ParseInLocation(dateLayout, in.PaidOn, store.Loc())
	if err != nil {
		return records.Payment{}, fmt.Errorf("%w: paid_on: %v", httpx.ErrValidation, err)
	}
	return records.Payment{
		Party:     strings.TrimSpace(in.Party),
		Tempo:     strings.TrimSpace(in.Tempo),
		PaidOn:    paidOn,
		Amount:    in.Amount,
		Note:      strings.TrimSpace(in.Note),
		StoreCode: store.Code,
		ForMonths: in.ForMonths,
	}, nil
}

func (s *MutationService) chargeFromInput(in ChargeInput) (records.ManualCharge, error) {
	if err := s.check(in, in.Party, in.Tempo, in.Amount); err != nil {
		return records.ManualCharge{}, err
	}
	store, err := s.store(in.Store)
	if err != nil {
		return records.ManualCharge{}, err
	}
	date, err := time.ParseInLocation(dateLayout, in.Date, store.Loc())
	if err != nil {
		return records.ManualCharge{}, fmt.Errorf("%w: date: %v", httpx.ErrValidation, err)
	}
	return records.ManualCharge{
		Party:     strings.TrimSpace(in.Party),
		Tempo:     strings.TrimSpace(in.Tempo),
		Date:      date,
		Amount:    in.Amount,
		Note:      strings.TrimSpace(in.Note),
		StoreCode: store.Code,
	}, nil
}

func (s *MutationService) check(form any, party, term string, amount decimal.Decimal) error {
	if err := s.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if strings.TrimSpace(party) == "" || strings.TrimSpace(term) == "" {
		return fmt.Errorf("%w: party and tempo must not be blank", httpx.ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}
	return nil
}

func (s *MutationService) store(code string) (stores.StoreContext, error) {
	store, err := s.registry.Lookup(code)
	if err != nil {
		return stores.StoreContext{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return store, nil
}

// apply runs fn under the optional idempotency key. module is empty for
// operations that are naturally idempotent.
func (s *MutationService) apply(ctx context.Context, meta MutationMeta, module string, fn func(context.Context) error) error {
	claimed := false
	if module != "" && meta.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, meta.IdempotencyKey, "receivables."+module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return fmt.Errorf("%w: %v", httpx.ErrDuplicate, err)
			}
			return fmt.Errorf("%w: idempotency: %w", httpx.ErrUpstream, err)
		}
		claimed = true
	}

	if err := fn(ctx); err != nil {
		if claimed {
			if relErr := s.idem.Delete(ctx, meta.IdempotencyKey); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		if errors.Is(err, recordstore.ErrNotFound) {
			return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
		}
		s.logger.Error("receivables mutation failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}
	return nil
}

// after records the audit entry and invalidates cached views. Neither
// failure undoes the committed mutation.
func (s *MutationService) after(ctx context.Context, meta MutationMeta, action, entity, id string, details map[string]any) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    meta.Actor,
			Action:   action,
			Entity:   entity,
			EntityID: id,
			Meta:     details,
			At:       s.now(),
		})
		if err != nil {
			s.logger.Warn("audit log failed", slog.String("entity", entity), slog.Any("error", err))
		}
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("receivables cache bump failed", slog.Any("error", err))
	}
}
