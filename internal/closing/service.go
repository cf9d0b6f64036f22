// Package closing builds the end-of-period stock-in and stock-out report
// pivoted by date, tempo, channel and counterparty.
package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/autoparts-erp/autoparts-erp/internal/pivot"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

const (
	dateLayout    = "2006-01-02"
	displayLayout = "02/01/2006"
	blankLabel    = "-"
)

// Tree is a pivot over movement records.
type Tree = []*pivot.Node[records.TransactionRecord]

// Request selects the store and calendar window of a report. Zero dates
// default to today in the store's location.
type Request struct {
	Store stores.StoreContext
	From  time.Time
	To    time.Time
}

// Side is one direction of the report.
type Side struct {
	Direction     records.Direction `json:"direction"`
	Levels        []string          `json:"levels"`
	Tree          Tree              `json:"tree"`
	Rows          int               `json:"rows"`
	TotalQuantity float64           `json:"total_quantity"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Mismatches    int               `json:"line_total_mismatches"`
}

// Report is the closing report of one store.
type Report struct {
	Store       string          `json:"store"`
	StoreName   string          `json:"store_name"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Incoming    Side            `json:"incoming"`
	Outgoing    Side            `json:"outgoing"`
	Net         decimal.Decimal `json:"net"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Service loads movements and pivots them.
type Service struct {
	fetcher recordstore.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(fetcher recordstore.Fetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{fetcher: fetcher, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Report fetches both movement tables of the store in ascending creation
// order and builds the two trees.
func (s *Service) Report(ctx context.Context, req Request) (Report, error) {
	if req.Store.TableSuffix == "" {
		return Report{}, fmt.Errorf("%w: store is required", httpx.ErrValidation)
	}
	loc := req.Store.Loc()
	today := s.now().In(loc)
	from, to := req.From, req.To
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = from
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
	if end.Before(start) {
		return Report{}, fmt.Errorf("%w: to must not be before from", httpx.ErrValidation)
	}

	var incoming, outgoing []records.TransactionRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incoming, err = s.load(gctx, req.Store, records.Incoming, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		outgoing, err = s.load(gctx, req.Store, records.Outgoing, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("closing fetch failed", slog.String("store", req.Store.Code), slog.Any("error", err))
		return Report{}, err
	}

	in := buildSide(records.Incoming, incoming, IncomingDimensions(loc))
	out := buildSide(records.Outgoing, outgoing, OutgoingDimensions(loc))
	return Report{
		Store:       req.Store.Code,
		StoreName:   req.Store.Name,
		From:        start.Format(dateLayout),
		To:          end.Format(dateLayout),
		Incoming:    in,
		Outgoing:    out,
		Net:         out.TotalAmount.Sub(in.TotalAmount),
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) load(ctx context.Context, store stores.StoreContext, dir records.Direction, start, end time.Time) ([]records.TransactionRecord, error) {
	table := store.OutgoingTable()
	if dir == records.Incoming {
		table = store.IncomingTable()
	}
	rows, err := s.fetcher.FetchRange(ctx, recordstore.RangeQuery{
		Table:  table,
		Column: records.ColCreatedAt,
		From:   start,
		To:     end,
		Order:  recordstore.Ascending,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, recordstore.ErrInvalidIdentifier) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetch %s: %w", httpx.ErrUpstream, table, err)
	}
	out := make([]records.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, records.DecodeTransaction(row, store.Code, dir, store.Loc()))
	}
	return out, nil
}

func buildSide(dir records.Direction, items []records.TransactionRecord, dims []pivot.Dimension[records.TransactionRecord]) Side {
	tree := pivot.Build(items, dims, Measure)
	qty, amount := pivot.Totals(tree)
	side := Side{
		Direction:     dir,
		Tree:          tree,
		Rows:          len(items),
		TotalQuantity: qty,
		TotalAmount:   amount,
	}
	for _, d := range dims {
		side.Levels = append(side.Levels, d.Name)
	}
	for _, it := range items {
		if it.LineTotalMismatch() {
			side.Mismatches++
		}
	}
	return side
}

// Measure reads quantity and the stored line total.
func Measure(t records.TransactionRecord) (float64, decimal.Decimal) {
	return t.Quantity, t.LineTotal
}

func dateDimension(loc *time.Location) pivot.Dimension[records.TransactionRecord] {
	return pivot.Dimension[records.TransactionRecord]{
		Name:    "date",
		Label:   func(t records.TransactionRecord) string { return t.CreatedAt.In(loc).Format(displayLayout) },
		SortKey: func(t records.TransactionRecord) string { return t.CreatedAt.In(loc).Format(dateLayout) },
	}
}

func tempoDimension() pivot.Dimension[records.TransactionRecord] {
	return pivot.Dimension[records.TransactionRecord]{
		Name:  "tempo",
		Label: func(t records.TransactionRecord) string { return tempo.Normalize(t.Tempo) },
	}
}

func partyDimension(name string, rule records.CounterpartyRule) pivot.Dimension[records.TransactionRecord] {
	return pivot.Dimension[records.TransactionRecord]{
		Name: name,
		Label: func(t records.TransactionRecord) string {
			if cp := records.ResolveCounterparty(t, rule); cp.Name != "" {
				return tempo.NormalizeParty(cp.Name)
			}
			return blankLabel
		},
	}
}

// IncomingDimensions pivots stock-in by date, tempo and supplier.
func IncomingDimensions(loc *time.Location) []pivot.Dimension[records.TransactionRecord] {
	return []pivot.Dimension[records.TransactionRecord]{
		dateDimension(loc),
		tempoDimension(),
		partyDimension("supplier", records.RuleFor(records.Incoming)),
	}
}

// OutgoingDimensions pivots stock-out by date, channel, tempo and customer.
func OutgoingDimensions(loc *time.Location) []pivot.Dimension[records.TransactionRecord] {
	return []pivot.Dimension[records.TransactionRecord]{
		dateDimension(loc),
		{
			Name: "channel",
			Label: func(t records.TransactionRecord) string {
				if t.Channel == "" {
					return blankLabel
				}
				return tempo.NormalizeParty(t.Channel)
			},
		},
		tempoDimension(),
		partyDimension("customer", records.RuleFor(records.Outgoing)),
	}
}
