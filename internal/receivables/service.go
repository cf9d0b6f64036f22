package receivables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

const (
	dateLayout         = "2006-01-02"
	defaultLoadTimeout = 30 * time.Second
)

// excludedTempo is pushed down to the fetch so cash and stock-correction
// movements never leave the database.
var excludedTempo = []string{"CASH", "NADIR", "RETUR", "STOK"}

// Recorder receives data-quality and cache observations.
type Recorder interface {
	OrphanPayments(ledger string, n int)
	LineTotalMismatches(ledger string, n int)
	CacheLookup(ledger string, hit bool)
}

// Options tunes the Service.
type Options struct {
	BucketMode  tempo.BucketMode
	Logger      *slog.Logger
	Metrics     Recorder
	LoadTimeout time.Duration
	Now         func() time.Time
}

// Service loads and aggregates one ledger for a set of stores.
type Service struct {
	fetcher     recordstore.Fetcher
	cache       *Cache
	mode        tempo.BucketMode
	logger      *slog.Logger
	metrics     Recorder
	loadTimeout time.Duration
	now         func() time.Time
	flights     singleflight.Group
}

// NewService wires the fetcher with an optional cache.
func NewService(fetcher recordstore.Fetcher, cache *Cache, opts Options) *Service {
	s := &Service{
		fetcher:     fetcher,
		cache:       cache,
		mode:        opts.BucketMode,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		loadTimeout: opts.LoadTimeout,
		now:         opts.Now,
	}
	if s.mode == "" {
		s.mode = tempo.BucketModeSubstring
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = defaultLoadTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ViewRequest selects the ledger, stores and calendar window of a view.
// From and To are read as calendar dates in each store's location; a zero
// value leaves the side open.
type ViewRequest struct {
	Ledger   Ledger
	Stores   []stores.StoreContext
	From     time.Time
	To       time.Time
	Criteria Criteria
}

// View is the fully resolved, filtered snapshot handed to clients and
// exporters.
type View struct {
	Ledger         string            `json:"ledger"`
	Title          string            `json:"title"`
	Stores         []string          `json:"stores"`
	From           string            `json:"from,omitempty"`
	To             string            `json:"to,omitempty"`
	Criteria       Criteria          `json:"criteria"`
	Unpaid         []PartyBalance    `json:"unpaid"`
	Paid           []PartyBalance    `json:"paid"`
	Stats          Stats             `json:"stats"`
	PaidTotal      decimal.Decimal   `json:"paid_total"`
	TempoOptions   []string          `json:"tempo_options"`
	StoreOptions   []string          `json:"store_options"`
	FilterState    FilterState       `json:"filter_state"`
	OrphanPayments []records.Payment `json:"orphan_payments,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// View aggregates the request window, then applies the criteria and
// computes statistics over the unpaid balances that remain.
func (s *Service) View(ctx context.Context, req ViewRequest) (View, error) {
	if len(req.Stores) == 0 {
		return View{}, fmt.Errorf("%w: at least one store is required", httpx.ErrValidation)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return View{}, fmt.Errorf("%w: to must not be before from", httpx.ErrValidation)
	}

	res, err := s.result(ctx, req)
	if err != nil {
		return View{}, err
	}

	criteria := req.Criteria.Normalized()
	all := append(append([]PartyBalance(nil), res.Unpaid...), res.Paid...)
	tempoOptions := TempoOptions(all)
	storeOptions := StoreOptions(all)
	unpaid := Filter(res.Unpaid, criteria)
	paid := Filter(res.Paid, criteria)

	v := View{
		Ledger:         req.Ledger.Slug,
		Title:          req.Ledger.Title,
		Stores:         storeCodes(req.Stores),
		From:           formatDate(req.From),
		To:             formatDate(req.To),
		Criteria:       criteria,
		Unpaid:         unpaid,
		Paid:           paid,
		Stats:          ComputeStats(unpaid, s.mode),
		PaidTotal:      TotalPaid(paid),
		TempoOptions:   tempoOptions,
		StoreOptions:   storeOptions,
		FilterState:    criteria.State(tempoOptions, storeOptions),
		OrphanPayments: res.OrphanPayments,
		GeneratedAt:    s.now(),
	}
	return v, nil
}

// result returns the unfiltered aggregation, shared between concurrent
// identical requests and cached in Redis. A caller whose context ends stops
// waiting while the shared load runs to completion and fills the cache.
func (s *Service) result(ctx context.Context, req ViewRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	flightKey := strings.Join([]string{req.Ledger.Slug, strings.Join(storeCodes(req.Stores), ","), formatDate(req.From), formatDate(req.To)}, ":")
	ch := s.flights.DoChan(flightKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.cachedResult(loadCtx, req)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return Result{}, out.Err
		}
		return out.Val.(Result), nil
	}
}

func (s *Service) cachedResult(ctx context.Context, req ViewRequest) (Result, error) {
	key, err := s.cache.BuildKey(ctx, req.Ledger.Slug, strings.Join(storeCodes(req.Stores), ","), dateToken(req.From), dateToken(req.To))
	if err != nil {
		s.logger.Warn("receivables cache unavailable", slog.Any("error", err))
		return s.Load(ctx, req.Ledger, req.Stores, req.From, req.To)
	}

	var (
		res     Result
		loaded  *Result
		loadErr error
	)
	err = s.cache.FetchJSON(ctx, key, &res, func(ctx context.Context) (any, error) {
		r, err := s.Load(ctx, req.Ledger, req.Stores, req.From, req.To)
		if err != nil {
			loadErr = err
			return nil, err
		}
		loaded = &r
		return r, nil
	})
	switch {
	case loadErr != nil:
		return Result{}, loadErr
	case err != nil && loaded != nil:
		s.logger.Warn("receivables cache write failed", slog.String("key", key), slog.Any("error", err))
		return *loaded, nil
	case err != nil:
		s.logger.Warn("receivables cache read failed", slog.String("key", key), slog.Any("error", err))
		return s.Load(ctx, req.Ledger, req.Stores, req.From, req.To)
	}
	if s.metrics != nil && s.cache.Enabled() {
		s.metrics.CacheLookup(req.Ledger.Slug, loaded == nil)
	}
	return res, nil
}

type storeRows struct {
	transactions []records.TransactionRecord
	charges      []records.ManualCharge
	payments     []records.Payment
}

// Load fetches movements, charges and payments of every store concurrently
// and aggregates them without touching the cache.
func (s *Service) Load(ctx context.Context, ledger Ledger, scope []stores.StoreContext, from, to time.Time) (Result, error) {
	slots := make([]storeRows, len(scope))
	g, gctx := errgroup.WithContext(ctx)
	for i, store := range scope {
		loc := store.Loc()
		start, end := dayStart(from, loc), dayEnd(to, loc)
		ownStore := recordstore.EqualsFold{Column: records.ColStore, Value: store.Code}

		g.Go(func() error {
			rows, err := s.fetch(gctx, recordstore.RangeQuery{
				Table:      ledger.MovementTable(store),
				Column:     records.ColCreatedAt,
				From:       start,
				To:         end,
				Predicates: []recordstore.Predicate{recordstore.NotContainsAny{Column: records.ColTempo, Substrings: excludedTempo}},
				Order:      recordstore.Ascending,
			})
			if err != nil {
				return err
			}
			out := make([]records.TransactionRecord, 0, len(rows))
			for _, row := range rows {
				out = append(out, records.DecodeTransaction(row, store.Code, ledger.Direction, loc))
			}
			slots[i].transactions = out
			return nil
		})
		g.Go(func() error {
			rows, err := s.fetch(gctx, recordstore.RangeQuery{
				Table:      ledger.ChargeTable,
				Column:     records.ColDate,
				From:       start,
				To:         end,
				Predicates: []recordstore.Predicate{ownStore},
				Order:      recordstore.Ascending,
			})
			if err != nil {
				return err
			}
			out := make([]records.ManualCharge, 0, len(rows))
			for _, row := range rows {
				out = append(out, records.DecodeCharge(row, ledger.PartyColumn, loc))
			}
			slots[i].charges = out
			return nil
		})
		g.Go(func() error {
			// Payments made after the window still settle balances inside it.
			rows, err := s.fetch(gctx, recordstore.RangeQuery{
				Table:      ledger.PaymentTable,
				Column:     records.ColDate,
				From:       start,
				Predicates: []recordstore.Predicate{ownStore},
				Order:      recordstore.Ascending,
			})
			if err != nil {
				return err
			}
			out := make([]records.Payment, 0, len(rows))
			for _, row := range rows {
				out = append(out, records.DecodePayment(row, ledger.PartyColumn, loc))
			}
			slots[i].payments = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("receivables fetch failed", slog.String("ledger", ledger.Slug), slog.Any("error", err))
		return Result{}, err
	}

	var (
		transactions []records.TransactionRecord
		charges      []records.ManualCharge
		payments     []records.Payment
		mismatches   int
	)
	for _, slot := range slots {
		transactions = append(transactions, slot.transactions...)
		charges = append(charges, slot.charges...)
		payments = append(payments, slot.payments...)
	}
	for _, tx := range transactions {
		if tx.LineTotalMismatch() {
			mismatches++
		}
	}

	res := Aggregate(transactions, charges, payments, AggregateOptions{Rule: ledger.Rule()})
	if s.metrics != nil {
		s.metrics.OrphanPayments(ledger.Slug, len(res.OrphanPayments))
		s.metrics.LineTotalMismatches(ledger.Slug, mismatches)
	}
	s.logger.Debug("receivables aggregated",
		slog.String("ledger", ledger.Slug),
		slog.Int("transactions", len(transactions)),
		slog.Int("charges", len(charges)),
		slog.Int("payments", len(payments)),
		slog.Int("unpaid", len(res.Unpaid)),
		slog.Int("orphans", len(res.OrphanPayments)),
	)
	return res, nil
}

func (s *Service) fetch(ctx context.Context, q recordstore.RangeQuery) ([]records.Row, error) {
	rows, err := s.fetcher.FetchRange(ctx, q)
	if err == nil {
		return rows, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, err
	}
	if errors.Is(err, recordstore.ErrInvalidIdentifier) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: fetch %s: %w", httpx.ErrUpstream, q.Table, err)
}

func storeCodes(scope []stores.StoreContext) []string {
	out := make([]string, len(scope))
	for i, s := range scope {
		out[i] = s.Code
	}
	return out
}

func dayStart(d time.Time, loc *time.Location) time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

func dayEnd(d time.Time, loc *time.Location) time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return dayStart(d, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func dateToken(d time.Time) string {
	if d.IsZero() {
		return "-"
	}
	return d.Format(dateLayout)
}
