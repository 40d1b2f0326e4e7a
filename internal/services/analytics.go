package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"cohort-dashboard/internal/cohort"
	"cohort-dashboard/internal/models"
	"cohort-dashboard/internal/observability"
)

const (
	cacheVersion       = "v2"
	defaultCacheDir    = ".cache"
	defaultMemoEntries = 64
)

// Dataset is the cleaned, cohort-augmented transaction log. It is never
// mutated after construction; loading a new file swaps the whole value.
type Dataset struct {
	Records   []models.CohortRecord
	Countries []string
	Report    models.CleanReport
	Source    string
	LoadedAt  time.Time

	// Size and modification time of Source when it was read. A cached
	// dataset is only reused while both still match the file.
	SourceSize    int64
	SourceModTime time.Time
}

// memoKey ties a memoized matrix to the dataset generation it was computed
// from, so a matrix finished after a swap is never served for the new data.
type memoKey struct {
	gen     uint64
	country string
}

type Options struct {
	Clean         cohort.Options
	CacheDir      string
	DisableCache  bool
	RetentionSize int
	Logger        *slog.Logger
}

type Analytics struct {
	mu     sync.RWMutex
	data   *Dataset
	gen    uint64
	opts   Options
	memo   *lru.Cache[memoKey, *models.RetentionMatrix]
	logger *slog.Logger
}

func NewAnalytics(opts Options) *Analytics {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clean.Logger == nil {
		opts.Clean.Logger = opts.Logger
	}
	if opts.CacheDir == "" {
		opts.CacheDir = defaultCacheDir
	}
	if opts.RetentionSize <= 0 {
		opts.RetentionSize = defaultMemoEntries
	}

	// lru.New only fails for a non-positive size, ruled out above.
	memo, _ := lru.New[memoKey, *models.RetentionMatrix](opts.RetentionSize)

	return &Analytics{
		data:   &Dataset{},
		opts:   opts,
		memo:   memo,
		logger: opts.Logger,
	}
}

// SetData replaces the dataset with already-cleaned transactions.
func (a *Analytics) SetData(txs []models.Transaction) {
	records := cohort.Assign(txs)
	a.swap(&Dataset{
		Records:   records,
		Countries: cohort.Countries(records),
		Report: models.CleanReport{
			RawRows:  len(txs),
			KeptRows: len(records),
		},
		LoadedAt: time.Now(),
	})
}

func (a *Analytics) swap(ds *Dataset) {
	a.mu.Lock()
	a.data = ds
	a.gen++
	a.mu.Unlock()
	a.memo.Purge()

	observability.RecordsLoaded.Set(float64(len(ds.Records)))
	observability.RowsExcluded.WithLabelValues("missing").Set(float64(ds.Report.DroppedMissing))
	observability.RowsExcluded.WithLabelValues("non_positive").Set(float64(ds.Report.DroppedNonPositive))
	observability.RowsExcluded.WithLabelValues("invalid_date").Set(float64(ds.Report.SkippedBadDates))
}

func (a *Analytics) dataset() *Dataset {
	ds, _ := a.snapshot()
	return ds
}

func (a *Analytics) snapshot() (*Dataset, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data, a.gen
}

// LoadFromCSV loads and cleans the transaction log once. A gob cache of the
// cleaned dataset is reused while the CSV keeps the size and modification
// time it had when the cache was written.
func (a *Analytics) LoadFromCSV(ctx context.Context, filename string) (err error) {
	ctx, span := observability.StartSpan(ctx, "analytics.load", attribute.String("file", filename))
	defer func() { observability.EndSpan(span, err) }()

	fileInfo, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("stat csv: %w", err)
	}

	if !a.opts.DisableCache {
		if cached, cacheErr := a.loadFromCache(filename); cacheErr == nil && cached.matches(fileInfo) {
			a.swap(cached)
			a.logger.Info("loaded from cache", "records", humanize.Comma(int64(len(cached.Records))))
			return nil
		}
	}

	start := time.Now()
	a.logger.Info("processing CSV file", "filename", filename, "size", humanize.Bytes(uint64(fileInfo.Size())))

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	records, report, err := cohort.Clean(ctx, file, a.opts.Clean)
	if err != nil {
		return fmt.Errorf("clean %s: %w", filename, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("clean %s: no valid records found", filename)
	}

	a.swap(&Dataset{
		Records:   records,
		Countries: cohort.Countries(records),
		Report:    report,
		Source:    filename,
		LoadedAt:  time.Now(),

		SourceSize:    fileInfo.Size(),
		SourceModTime: fileInfo.ModTime(),
	})

	if !a.opts.DisableCache {
		if err := a.saveToCache(filename); err != nil {
			a.logger.Warn("failed to save cache", "error", err)
		}
	}

	duration := time.Since(start)
	a.logger.Info("csv processing complete",
		"raw_rows", humanize.Comma(int64(report.RawRows)),
		"kept", humanize.Comma(int64(report.KeptRows)),
		"dropped_missing", report.DroppedMissing,
		"dropped_non_positive", report.DroppedNonPositive,
		"skipped_bad_dates", report.SkippedBadDates,
		"customers", humanize.Comma(int64(report.Customers)),
		"countries", report.Countries,
		"duration", duration,
	)

	return nil
}

func (a *Analytics) Countries() []string {
	return a.dataset().Countries
}

func (a *Analytics) HasCountry(country string) bool {
	return slices.Contains(a.Countries(), country)
}

// Retention returns the retention matrix for country. Matrices are memoized
// per country and shared between callers, who must not modify them.
func (a *Analytics) Retention(ctx context.Context, country string) *models.RetentionMatrix {
	ds, gen := a.snapshot()
	key := memoKey{gen: gen, country: country}
	if m, ok := a.memo.Get(key); ok {
		observability.RetentionCacheLookups.WithLabelValues("hit").Inc()
		return m
	}
	observability.RetentionCacheLookups.WithLabelValues("miss").Inc()

	_, span := observability.StartSpan(ctx, "analytics.retention", attribute.String("country", country))
	defer span.End()

	timer := prometheus.NewTimer(observability.RetentionComputeDuration)
	m := cohort.Retention(ds.Records, country)
	elapsed := timer.ObserveDuration()

	span.SetAttributes(
		attribute.Int("cohorts", len(m.Cohorts)),
		attribute.Int("indexes", len(m.Indexes)),
	)
	a.logger.Debug("retention computed", "country", country, "cohorts", len(m.Cohorts), "duration", elapsed)

	a.memo.Add(key, m)
	return m
}

func (a *Analytics) Summary(country string) models.CountrySummary {
	return cohort.Summarize(a.dataset().Records, country)
}

func (a *Analytics) Report() models.CleanReport {
	return a.dataset().Report
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	ds := a.dataset()

	return map[string]any{
		"source":               ds.Source,
		"record_count":         len(ds.Records),
		"record_count_human":   humanize.Comma(int64(len(ds.Records))),
		"raw_rows":             ds.Report.RawRows,
		"dropped_missing":      ds.Report.DroppedMissing,
		"dropped_non_positive": ds.Report.DroppedNonPositive,
		"skipped_bad_dates":    ds.Report.SkippedBadDates,
		"customers":            ds.Report.Customers,
		"countries":            len(ds.Countries),
		"memoized_matrices":    a.memo.Len(),
		"last_processed":       ds.LoadedAt,
		"loaded":               humanize.Time(ds.LoadedAt),
	}
}

// Cache management
func (a *Analytics) getCacheFilename(csvPath string) string {
	mode := "strict"
	if a.opts.Clean.SkipInvalidDates {
		mode = "lenient"
	}
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(csvPath)
	return filepath.Join(a.opts.CacheDir, fmt.Sprintf("%s_%s_%s.gob", name, mode, cacheVersion))
}

func (a *Analytics) saveToCache(csvPath string) error {
	if err := os.MkdirAll(a.opts.CacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(a.getCacheFilename(csvPath))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(a.dataset())
}

func (ds *Dataset) matches(fi os.FileInfo) bool {
	return ds.SourceSize == fi.Size() && ds.SourceModTime.Equal(fi.ModTime())
}

func (a *Analytics) loadFromCache(csvPath string) (*Dataset, error) {
	file, err := os.Open(a.getCacheFilename(csvPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data Dataset
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, err
	}

	return &data, nil
}
