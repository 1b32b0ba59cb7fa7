// Package importer stores parsed catalog files and reconciles the catalog directory
// against what the store already holds.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/aluiziolira/go-catalog-sync/models"
	"github.com/aluiziolira/go-catalog-sync/parser"
	"github.com/aluiziolira/go-catalog-sync/store"
)

// Skip reasons reported on catalog_products_skipped_total.
const (
	SkipKnown    = "known"
	SkipExists   = "exists"
	SkipConflict = "conflict"
)

// ErrOutsideCatalogDir rejects file names that resolve outside the catalog directory.
var ErrOutsideCatalogDir = errors.New("file name leaves the catalog directory")

// Importer imports catalog files from a single directory into a ProductStore.
type Importer struct {
	dir      string
	parser   *parser.Parser
	products store.ProductStore
	locker   KeyLocker
	known    *lru.Cache[string, struct{}]
	metrics  *Metrics
	logger   zerolog.Logger
}

// Option customises an Importer.
type Option func(*Importer) error

// WithLocker replaces the default in-process locker.
func WithLocker(locker KeyLocker) Option {
	return func(i *Importer) error {
		if locker != nil {
			i.locker = locker
		}
		return nil
	}
}

// WithKnownCodeCache remembers up to size stock codes already present in the store.
// A size of zero disables the cache.
func WithKnownCodeCache(size int) Option {
	return func(i *Importer) error {
		if size <= 0 {
			i.known = nil
			return nil
		}
		cache, err := lru.New[string, struct{}](size)
		if err != nil {
			return fmt.Errorf("create known code cache: %w", err)
		}
		i.known = cache
		return nil
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(i *Importer) error {
		i.metrics = m
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Importer) error {
		i.logger = logger
		return nil
	}
}

// New returns an Importer reading catalog files from dir.
func New(dir string, p *parser.Parser, products store.ProductStore, opts ...Option) (*Importer, error) {
	if dir == "" {
		return nil, errors.New("catalog directory cannot be empty")
	}
	if p == nil {
		return nil, errors.New("parser cannot be nil")
	}
	if products == nil {
		return nil, errors.New("product store cannot be nil")
	}

	i := &Importer{
		dir:      dir,
		parser:   p,
		products: products,
		locker:   NewLocalLocker(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// Dir returns the catalog directory.
func (i *Importer) Dir() string {
	return i.dir
}

// ImportFile parses the named file in the catalog directory and inserts every record whose
// stock code is not stored yet. Records inserted before a failure are kept.
func (i *Importer) ImportFile(ctx context.Context, fileName string) (models.ImportResult, error) {
	return i.importFile(ctx, fileName, i.logger)
}

func (i *Importer) importFile(ctx context.Context, fileName string, logger zerolog.Logger) (models.ImportResult, error) {
	path := filepath.Join(i.dir, fileName)
	result := models.ImportResult{File: path}
	logger = logger.With().Str("file", path).Logger()

	if !filepath.IsLocal(fileName) {
		err := fmt.Errorf("%w: %q", ErrOutsideCatalogDir, fileName)
		i.fail(logger, err)
		return result, err
	}

	if !i.parser.IsCatalogFile(fileName) {
		err := parser.FormatError{Path: fileName}
		i.fail(logger, err)
		return result, err
	}

	products, err := i.parser.ParseFile(path)
	if err != nil {
		i.fail(logger, err)
		return result, err
	}
	result.Parsed = len(products)
	i.metrics.AddParsed(len(products))

	for _, product := range products {
		inserted, err := i.save(ctx, product)
		if err != nil {
			err = fmt.Errorf("save product %s: %w", product.StockCode, err)
			i.fail(logger, err)
			return result, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	i.metrics.IncFile("imported")
	logger.Info().
		Int("parsed", result.Parsed).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Msg("catalog imported")
	return result, nil
}

func (i *Importer) fail(logger zerolog.Logger, err error) {
	kind := parser.ErrorKind(err)
	i.metrics.IncFile("failed")
	i.metrics.IncError(kind)
	logger.Error().Err(err).Str("error_type", kind).Msg("catalog import failed")
}

// save inserts product unless its stock code is already stored.
func (i *Importer) save(ctx context.Context, product *models.Product) (bool, error) {
	code := product.StockCode
	if i.known != nil && i.known.Contains(code) {
		i.metrics.IncSkipped(SkipKnown)
		return false, nil
	}

	unlock, err := i.locker.Lock(ctx, code)
	if err != nil {
		return false, fmt.Errorf("lock stock code: %w", err)
	}
	defer unlock()

	existing, err := i.products.FindByStockCode(ctx, code)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		i.remember(code)
		i.metrics.IncSkipped(SkipExists)
		return false, nil
	}

	err = i.products.Insert(ctx, product)
	if errors.Is(err, store.ErrDuplicateStockCode) {
		i.remember(code)
		i.metrics.IncSkipped(SkipConflict)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	i.remember(code)
	i.metrics.IncInserted()
	return true, nil
}

func (i *Importer) remember(code string) {
	if i.known != nil {
		i.known.Add(code, struct{}{})
	}
}

// Reconcile imports every catalog file in the directory whose path is not yet recorded
// as a source file in the store. A failing file is reported and does not stop the pass.
func (i *Importer) Reconcile(ctx context.Context) (report models.ReconcileReport) {
	report = models.ReconcileReport{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Failed:    make(map[string]error),
	}
	logger := i.logger.With().Str("run_id", report.RunID).Logger()
	defer func() {
		report.EndTime = time.Now()
		i.metrics.ObserveReconcile(report.EndTime.Sub(report.StartTime))
	}()

	pending, err := i.pending(ctx, &report)
	if err != nil {
		report.Err = err
		i.metrics.IncError(parser.ErrorKind(err))
		logger.Error().Err(err).Msg("reconciliation aborted")
		return report
	}

	for _, name := range pending {
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		result, err := i.importFile(ctx, name, logger)
		if err != nil {
			report.Failed[result.File] = err
			continue
		}
		report.Imported = append(report.Imported, result)
	}

	logger.Info().
		Int("discovered", report.Discovered).
		Int("already_imported", report.AlreadyImported).
		Int("imported", len(report.Imported)).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(report.StartTime)).
		Msg("reconciliation finished")
	return report
}

// pending lists catalog file names on disk whose joined path is not a stored source file.
// os.ReadDir returns entries sorted by name, which fixes the import order.
func (i *Importer) pending(ctx context.Context, report *models.ReconcileReport) ([]string, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return nil, fmt.Errorf("list catalog directory: %w", err)
	}
	imported, err := i.products.DistinctSourceFilePaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list imported files: %w", err)
	}
	seen := make(map[string]struct{}, len(imported))
	for _, path := range imported {
		seen[path] = struct{}{}
	}

	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !i.parser.IsCatalogFile(entry.Name()) {
			continue
		}
		report.Discovered++
		if _, ok := seen[filepath.Join(i.dir, entry.Name())]; ok {
			report.AlreadyImported++
			i.metrics.IncFile("skipped")
			continue
		}
		pending = append(pending, entry.Name())
	}
	return pending, nil
}

// RunPeriodic reconciles immediately and then every interval until ctx is cancelled.
func (i *Importer) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", interval)
	}

	i.Reconcile(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			i.Reconcile(ctx)
		}
	}
}
