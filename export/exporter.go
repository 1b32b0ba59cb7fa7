// Package export writes parsed catalog files to CSV or JSON lines without touching
// the product store.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-catalog-sync/models"
)

// ErrExporterClosed is returned by Export after Close.
var ErrExporterClosed = errors.New("export: exporter closed")

// ParseFunc turns one catalog file into records in document order.
type ParseFunc func(path string) ([]*models.Product, error)

// Duplicate is a record dropped because an earlier record had its stock code.
type Duplicate struct {
	StockCode string
	File      string
	FirstFile string
}

// Stats summarises everything exported so far.
type Stats struct {
	Files      int
	Parsed     int
	Written    int
	Duplicates []Duplicate
}

// Exporter parses catalog files and writes their records to an OutputWriter.
// Files are written in the order given and records in document order. The first
// record seen for a stock code wins, as in the store.
//
// Parsing may run on several goroutines; only the goroutine calling Export writes.
type Exporter struct {
	parse     ParseFunc
	writer    OutputWriter
	workers   int
	batchSize int
	logger    zerolog.Logger

	seen   map[string]string // stock code -> file that supplied it
	stats  Stats
	closed bool
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithWorkers sets how many files are parsed ahead of the writer.
func WithWorkers(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBatchSize sets how many records go to the writer per Write call.
func WithBatchSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New returns an Exporter that parses with parse and writes to writer.
func New(parse ParseFunc, writer OutputWriter, opts ...Option) *Exporter {
	e := &Exporter{
		parse:     parse,
		writer:    writer,
		workers:   1,
		batchSize: 64,
		logger:    zerolog.Nop(),
		seen:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type parsed struct {
	products []*models.Product
	err      error
	ready    chan struct{}
}

// Export parses paths and writes their records. A parse or write failure stops the
// export; records of files before the failing one are already written.
// Export is not safe for concurrent use.
func (e *Exporter) Export(ctx context.Context, paths ...string) error {
	if e.closed {
		return ErrExporterClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make([]parsed, len(paths))
	for i := range slots {
		slots[i].ready = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i, path := range paths {
			if gctx.Err() != nil {
				return
			}
			slot := &slots[i]
			path := path
			g.Go(func() error {
				defer close(slot.ready)
				slot.products, slot.err = e.parse(path)
				if slot.err != nil {
					return fmt.Errorf("parse %s: %w", path, slot.err)
				}
				return nil
			})
		}
	}()

	writeErr := e.drain(gctx, paths, slots)
	if writeErr != nil {
		cancel()
	}
	<-fed
	if err := g.Wait(); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	return ctx.Err()
}

// drain writes each file once it is parsed, in input order.
func (e *Exporter) drain(ctx context.Context, paths []string, slots []parsed) error {
	for i, path := range paths {
		select {
		case <-slots[i].ready:
		case <-ctx.Done():
			return nil
		}
		if slots[i].err != nil {
			return nil
		}
		if err := e.writeFile(path, slots[i].products); err != nil {
			return err
		}
		slots[i].products = nil
	}
	return nil
}

func (e *Exporter) writeFile(path string, products []*models.Product) error {
	e.stats.Files++
	e.stats.Parsed += len(products)

	batch := make([]*models.Product, 0, e.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.writer.Write(batch); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		e.stats.Written += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, product := range products {
		if first, ok := e.seen[product.StockCode]; ok {
			e.stats.Duplicates = append(e.stats.Duplicates, Duplicate{
				StockCode: product.StockCode,
				File:      path,
				FirstFile: first,
			})
			e.logger.Warn().
				Str("stock_code", product.StockCode).
				Str("file", path).
				Str("first_file", first).
				Msg("duplicate stock code dropped")
			continue
		}
		e.seen[product.StockCode] = path
		batch = append(batch, product)
		if len(batch) >= e.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	e.logger.Debug().Str("file", path).Int("records", len(products)).Msg("catalog exported")
	return nil
}

// Stats returns a copy of the counters.
func (e *Exporter) Stats() Stats {
	s := e.stats
	s.Duplicates = append([]Duplicate(nil), e.stats.Duplicates...)
	return s
}

// Close checks the output and closes the writer. Exporting after Close fails.
func (e *Exporter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.stats.Written > 0 {
		if err := e.writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate output: %w", err))
		}
	}
	if err := e.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	return errors.Join(errs...)
}
