package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/autoparts-erp/autoparts-erp/internal/jobs"
	"github.com/autoparts-erp/autoparts-erp/internal/receivables"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ViewBuilder builds receivables views; the service caches what it builds.
type ViewBuilder interface {
	View(ctx context.Context, req receivables.ViewRequest) (receivables.View, error)
}

// WarmupJob pre-populates the receivables cache for every ledger, once per
// store and once for all stores combined.
type WarmupJob struct {
	Views    ViewBuilder
	Registry *stores.Registry
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Timeout  time.Duration
	clock    func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(views ViewBuilder, registry *stores.Registry, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Views:    views,
		Registry: registry,
		Logger:   logger,
		Metrics:  metrics,
		Timeout:  time.Minute,
		clock:    time.Now,
	}
}

// Handle processes warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Views == nil || j.Registry == nil {
		return errors.New("receivables warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("receivables warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Months <= 0 {
		payload.Months = DefaultWarmupMonths
	}
	ledgers, err := resolveLedgers(payload.Ledgers)
	if err != nil {
		return fmt.Errorf("receivables warmup: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskReceivablesWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("months", payload.Months))
	logger.Info("starting receivables warmup")

	start := j.now()
	warmed := 0
	for _, ledger := range ledgers {
		for _, scope := range j.scopes() {
			if err := j.warm(ctx, ledger, scope, payload.Months); err != nil {
				resultErr = err
				logger.Error("warm receivables view",
					slog.String("ledger", ledger.Slug),
					slog.String("stores", scopeLabel(scope)),
					slog.Any("error", err))
				return resultErr
			}
			j.metrics().AddWarmed(ledger.Slug, scopeLabel(scope), 1)
			warmed++
		}
	}

	logger.Info("completed receivables warmup", slog.Int("views", warmed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

// Window returns the calendar window warmed for months: from the first day of
// the month months-1 before now up to today, in loc.
func Window(now time.Time, months int, loc *time.Location) (time.Time, time.Time) {
	if months <= 0 {
		months = 1
	}
	local := now.In(loc)
	to := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	from := time.Date(local.Year(), local.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)
	return from, to
}

func (j *WarmupJob) warm(ctx context.Context, ledger receivables.Ledger, scope []stores.StoreContext, months int) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	scopeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	from, to := Window(j.now(), months, scope[0].Loc())
	_, err := j.Views.View(scopeCtx, receivables.ViewRequest{
		Ledger: ledger,
		Stores: scope,
		From:   from,
		To:     to,
	})
	return err
}

// scopes lists every single store followed by the all-stores selection.
func (j *WarmupJob) scopes() [][]stores.StoreContext {
	all := j.Registry.All()
	out := make([][]stores.StoreContext, 0, len(all)+1)
	for _, s := range all {
		out = append(out, []stores.StoreContext{s})
	}
	if len(all) > 1 {
		out = append(out, all)
	}
	return out
}

func resolveLedgers(slugs []string) ([]receivables.Ledger, error) {
	if len(slugs) == 0 {
		return receivables.Ledgers(), nil
	}
	out := make([]receivables.Ledger, 0, len(slugs))
	for _, slug := range slugs {
		l, err := receivables.LookupLedger(slug)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func scopeLabel(scope []stores.StoreContext) string {
	if len(scope) == 1 {
		return scope[0].Code
	}
	return ""
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReceivablesWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReceivablesWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
