package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autoparts-erp/autoparts-erp/internal/app"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/cache"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/db"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/receivables"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

// ViewBuilder builds receivables views.
type ViewBuilder interface {
	View(ctx context.Context, req receivables.ViewRequest) (receivables.View, error)
}

// ReportOptions defines the flags of the report command.
type ReportOptions struct {
	Ledger     string
	Stores     []string
	From       string
	To         string
	Search     string
	Tempo      []string
	StoreSel   []string
	Paid       bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runReport(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		opts     = ReportOptions{Stdout: stdout, Stderr: stderr}
		storeArg listFlag
		tempoArg listFlag
		selArg   listFlag
		fixtures string
		bucket   string
	)
	fs.StringVar(&opts.Ledger, "ledger", "customer", "ledger to report: customer or supplier")
	fs.Var(&storeArg, "store", "store code to load, repeatable; \"all\" or empty loads every store")
	fs.StringVar(&opts.From, "from", "", "first day YYYY-MM-DD")
	fs.StringVar(&opts.To, "to", "", "last day YYYY-MM-DD")
	fs.StringVar(&opts.Search, "q", "", "party name search")
	fs.Var(&tempoArg, "tempo", "tempo filter, repeatable")
	fs.Var(&selArg, "stores", "store filter applied after aggregation, repeatable")
	fs.BoolVar(&opts.Paid, "paid", false, "list settled balances instead of unpaid ones")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the view as JSON")
	fs.StringVar(&fixtures, "fixtures", "", "YAML file of table rows; runs offline without PostgreSQL or Redis")
	fs.StringVar(&bucket, "bucket-mode", "", "tempo bucket mode: substring or exact")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	opts.Stores, opts.Tempo, opts.StoreSel = storeArg, tempoArg, selArg

	var (
		registry *stores.Registry
		views    ViewBuilder
		err      error
	)
	if fixtures != "" {
		registry = stores.DefaultRegistry()
		mode, modeErr := tempo.ParseBucketMode(bucket)
		if modeErr != nil {
			_, _ = fmt.Fprintf(stderr, "report: %v\n", modeErr)
			return 1
		}
		var mem *recordstore.Memory
		mem, err = LoadFixtures(fixtures)
		if err == nil {
			views = receivables.NewService(mem, nil, receivables.Options{BucketMode: mode})
		}
	} else {
		var closeFn func()
		registry, views, closeFn, err = connect(ctx, bucket)
		if closeFn != nil {
			defer closeFn()
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report: %v\n", err)
		return 1
	}
	return ReportCommand(ctx, views, registry, opts)
}

// ReportCommand builds the requested view and prints it.
func ReportCommand(ctx context.Context, views ViewBuilder, registry *stores.Registry, opts ReportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	ledger, err := receivables.LookupLedger(opts.Ledger)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		return 1
	}
	scope, err := registry.Resolve(opts.Stores)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		return 1
	}
	from, err := parseDay(opts.From)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: invalid from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to, err := parseDay(opts.To)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: invalid to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}

	view, err := views.View(ctx, receivables.ViewRequest{
		Ledger: ledger,
		Stores: scope,
		From:   from,
		To:     to,
		Criteria: receivables.Criteria{
			Search: opts.Search,
			Tempo:  receivables.Selection(opts.Tempo),
			Stores: receivables.Selection(opts.StoreSel),
		},
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderHuman(opts.Stdout, view, opts.Paid)
	return 0
}

func renderHuman(w io.Writer, view receivables.View, paid bool) {
	rows, label := view.Unpaid, "BELUM LUNAS"
	if paid {
		rows, label = view.Paid, "LUNAS"
	}
	_, _ = fmt.Fprintf(w, "%s · %s · toko %s\n", view.Title, label, strings.Join(view.Stores, ","))
	if view.From != "" || view.To != "" {
		_, _ = fmt.Fprintf(w, "periode %s s/d %s\n", dash(view.From), dash(view.To))
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "NAMA\tTEMPO\tTOKO\tTAGIHAN\tDIBAYAR\tSISA\tJATUH TEMPO\t")
	for _, b := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			b.Party, b.Tempo, strings.Join(b.Stores, ","),
			b.Billed().StringFixed(0), b.TotalPaid.StringFixed(0), b.Outstanding.StringFixed(0), dash(b.DueMonth))
	}
	_ = tw.Flush()
	if paid {
		_, _ = fmt.Fprintf(w, "total dibayar %s (%d)\n", view.PaidTotal.StringFixed(0), len(rows))
	} else {
		s := view.Stats
		_, _ = fmt.Fprintf(w, "total sisa %s (%d) · tempo 3: %s · tempo 2: %s · tempo 1: %s · lainnya: %s\n",
			s.TotalOutstanding.StringFixed(0), s.Count,
			s.Tempo3.StringFixed(0), s.Tempo2.StringFixed(0), s.Tempo1.StringFixed(0), s.Other.StringFixed(0))
	}
	if n := len(view.OrphanPayments); n > 0 {
		_, _ = fmt.Fprintf(w, "peringatan: %d pembayaran tidak cocok dengan tagihan mana pun\n", n)
	}
}

// fixtureFile is the offline data format: rows keyed by table name.
type fixtureFile struct {
	Tables map[string][]records.Row `yaml:"tables"`
}

// LoadFixtures seeds an in-memory record store from a YAML file.
func LoadFixtures(path string) (*recordstore.Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	if len(file.Tables) == 0 {
		return nil, errors.New("fixtures contain no tables")
	}
	mem := recordstore.NewMemory()
	for table, rows := range file.Tables {
		mem.Seed(table, rows...)
	}
	return mem, nil
}

func connect(ctx context.Context, bucket string) (*stores.Registry, ViewBuilder, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if bucket != "" {
		cfg.TempoBucketMode = bucket
	}
	mode, err := tempo.ParseBucketMode(cfg.TempoBucketMode)
	if err != nil {
		return nil, nil, nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		return nil, nil, nil, err
	}
	closers := []func(){pool.Close}
	var rc *receivables.Cache
	if client, err := cache.New(ctx, cfg.Redis()); err == nil {
		rc = receivables.NewCache(client, cfg.CacheTTL)
		closers = append(closers, func() { _ = client.Close() })
	} else if client != nil {
		_ = client.Close()
	}
	svc := receivables.NewService(recordstore.New(pool), rc, receivables.Options{BucketMode: mode, LoadTimeout: 2 * time.Minute})
	return registry, svc, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
