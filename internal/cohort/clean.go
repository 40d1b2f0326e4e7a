package cohort

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"cohort-dashboard/internal/models"
)

// InvoiceDateLayout accepts one or two digit month, day and hour.
const InvoiceDateLayout = "1/2/2006 15:04"

const (
	colQuantity    = "Quantity"
	colInvoiceDate = "InvoiceDate"
	colUnitPrice   = "UnitPrice"
	colCustomerID  = "CustomerID"
	colCountry     = "Country"
	colLine        = "_line"

	parseChunkSize = 20000
)

var retainedColumns = []string{colQuantity, colInvoiceDate, colUnitPrice, colCustomerID, colCountry}

var missingValues = []string{"", "NA", "NaN", "nan", "null", "NULL"}

type Options struct {
	// SkipInvalidDates logs and drops rows whose InvoiceDate does not match
	// InvoiceDateLayout instead of failing the whole load.
	SkipInvalidDates bool
	Workers          int
	Logger           *slog.Logger
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ParseError reports an InvoiceDate that does not match InvoiceDateLayout.
// Line is the 1-based line in the source file, header included.
type ParseError struct {
	Line  int
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid invoice date %q (want %s): %v", e.Line, e.Value, InvoiceDateLayout, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReadFrame decodes a Latin-1 transaction log into a DataFrame. Every column
// is read as a string except Quantity and UnitPrice; blank and NA cells are
// marked missing.
func ReadFrame(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(charmap.ISO8859_1.NewDecoder().Reader(r),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(map[string]series.Type{
			colQuantity:  series.Int,
			colUnitPrice: series.Float,
		}),
		dataframe.NaNValues(missingValues),
	)
	if df.Err != nil {
		return df, fmt.Errorf("read csv: %w", df.Err)
	}

	names := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		names[name] = true
	}
	for _, col := range retainedColumns {
		if !names[col] {
			return df, fmt.Errorf("read csv: missing column %q", col)
		}
	}

	return df, nil
}

// Clean reads a raw transaction log and returns its cohort-augmented records.
func Clean(ctx context.Context, r io.Reader, opts Options) ([]models.CohortRecord, models.CleanReport, error) {
	df, err := ReadFrame(r)
	if err != nil {
		return nil, models.CleanReport{}, err
	}
	return CleanFrame(ctx, df, opts)
}

// CleanFrame drops irrelevant columns and incomplete or non-positive rows,
// parses invoice dates and assigns every record its cohort.
func CleanFrame(ctx context.Context, df dataframe.DataFrame, opts Options) ([]models.CohortRecord, models.CleanReport, error) {
	var report models.CleanReport
	report.RawRows = df.Nrow()
	if report.RawRows == 0 {
		return nil, report, nil
	}

	lines := make([]int, df.Nrow())
	for i := range lines {
		lines[i] = i + 2
	}
	df = df.Mutate(series.New(lines, series.Int, colLine))
	df = df.Select(append([]string{colLine}, retainedColumns...))
	if df.Err != nil {
		return nil, report, fmt.Errorf("select columns: %w", df.Err)
	}

	for _, col := range retainedColumns {
		df = df.Filter(dataframe.F{
			Colname:    col,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool { return !el.IsNA() },
		})
	}
	if df.Err != nil {
		return nil, report, fmt.Errorf("drop missing: %w", df.Err)
	}
	report.DroppedMissing = report.RawRows - df.Nrow()

	complete := df.Nrow()
	df = df.
		Filter(dataframe.F{Colname: colQuantity, Comparator: series.Greater, Comparando: 0}).
		Filter(dataframe.F{Colname: colUnitPrice, Comparator: series.Greater, Comparando: 0.0})
	if df.Err != nil {
		return nil, report, fmt.Errorf("drop non-positive: %w", df.Err)
	}
	report.DroppedNonPositive = complete - df.Nrow()

	if df.Nrow() == 0 {
		return nil, report, nil
	}

	quantities, err := df.Col(colQuantity).Int()
	if err != nil {
		return nil, report, fmt.Errorf("quantity column: %w", err)
	}
	fileLines, err := df.Col(colLine).Int()
	if err != nil {
		return nil, report, fmt.Errorf("line column: %w", err)
	}
	prices := df.Col(colUnitPrice).Float()
	customers := df.Col(colCustomerID).Records()
	countries := df.Col(colCountry).Records()

	dates, valid, err := parseInvoiceDates(ctx, df.Col(colInvoiceDate).Records(), fileLines, opts)
	if err != nil {
		return nil, report, err
	}

	txs := make([]models.Transaction, 0, len(dates))
	for i := range dates {
		if !valid[i] {
			report.SkippedBadDates++
			continue
		}
		txs = append(txs, models.Transaction{
			CustomerID:  normalizeCustomerID(customers[i]),
			Country:     strings.TrimSpace(countries[i]),
			InvoiceDate: dates[i],
			Quantity:    quantities[i],
			UnitPrice:   decimal.NewFromFloat(prices[i]),
		})
	}

	records := Assign(txs)
	report.KeptRows = len(records)
	report.Customers = countDistinct(records, func(r models.CohortRecord) string { return r.CustomerID })
	report.Countries = countDistinct(records, func(r models.CohortRecord) string { return r.Country })

	return records, report, nil
}

func parseInvoiceDates(ctx context.Context, raw []string, lines []int, opts Options) ([]time.Time, []bool, error) {
	dates := make([]time.Time, len(raw))
	valid := make([]bool, len(raw))
	logger := opts.logger()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for start := 0; start < len(raw); start += parseChunkSize {
		end := min(start+parseChunkSize, len(raw))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				d, err := ParseInvoiceDate(raw[i])
				if err != nil {
					perr := &ParseError{Line: lines[i], Value: raw[i], Err: err}
					if !opts.SkipInvalidDates {
						return perr
					}
					logger.Warn("skipping row with invalid invoice date", "line", perr.Line, "value", perr.Value)
					continue
				}
				dates[i] = d
				valid[i] = true
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return dates, valid, nil
}

// ParseInvoiceDate parses a timestamp in InvoiceDateLayout and truncates it
// to its calendar date in UTC.
func ParseInvoiceDate(s string) (time.Time, error) {
	t, err := time.Parse(InvoiceDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// normalizeCustomerID folds float-formatted ids ("17850.0") onto their
// integer spelling so both group together.
func normalizeCustomerID(id string) string {
	id = strings.TrimSpace(id)
	if whole, frac, ok := strings.Cut(id, "."); ok && strings.Trim(frac, "0") == "" && whole != "" {
		return whole
	}
	return id
}

func countDistinct(records []models.CohortRecord, key func(models.CohortRecord) string) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[key(r)] = struct{}{}
	}
	return len(seen)
}
